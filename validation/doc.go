// Package validation validates webquery configuration structs with
// go-playground/validator struct tags.
//
//	type Config struct {
//	    Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
//	    PoolSize int    `mapstructure:"pool_size" validate:"min=1"`
//	}
//	err := validation.Validate(cfg)
//
// Failures are returned as CONFIGURATION errors with one entry per field.
package validation
