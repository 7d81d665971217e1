// Package config loads webquery client configuration from YAML files,
// .env files and environment variables using viper and godotenv.
//
// Precedence is environment > .env file > YAML file. Environment variables
// are matched with the configured prefix stripped, so with the default
// prefix WEBQUERY, WEBQUERY_CLIENT_TIMEOUT sets client.timeout.
//
//	var cfg struct {
//	    Client client.Config `mapstructure:"client"`
//	}
//	err := config.LoadConfig("billing-api", &cfg)
package config
