package auth

import (
	"context"
	"fmt"

	"github.com/kbukum/webquery/query"
)

// Scheme selects the authorizer Config builds.
type Scheme string

const (
	SchemeNone   Scheme = "none"
	SchemeBasic  Scheme = "basic"
	SchemeBearer Scheme = "bearer"
	SchemeAPIKey Scheme = "api_key"
	SchemeOAuth2 Scheme = "oauth2"
	SchemeJWT    Scheme = "jwt"
)

// Config holds request signing configuration. Sub-configs are pointers so
// unused schemes stay nil and are not validated.
type Config struct {
	Scheme   Scheme `mapstructure:"scheme"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`

	APIKeyName  string    `mapstructure:"api_key_name"`
	APIKeyValue string    `mapstructure:"api_key_value"`
	APIKeyIn    Placement `mapstructure:"api_key_in"`

	OAuth2 *OAuth2Config `mapstructure:"oauth2"`
	JWT    *JWTConfig    `mapstructure:"jwt"`
}

// ApplyDefaults sets defaults for the selected scheme.
func (c *Config) ApplyDefaults() {
	if c.Scheme == "" {
		c.Scheme = SchemeNone
	}
	if c.APIKeyIn == "" {
		c.APIKeyIn = InHeader
	}
	if c.APIKeyName == "" {
		c.APIKeyName = "X-API-Key"
	}
	if c.JWT != nil {
		c.JWT.ApplyDefaults()
	}
}

// Validate checks the fields the selected scheme needs.
func (c *Config) Validate() error {
	switch c.Scheme {
	case SchemeNone, "":
		return nil
	case SchemeBasic:
		if c.Username == "" {
			return fmt.Errorf("auth.basic: username is required")
		}
	case SchemeBearer:
		if c.Token == "" {
			return fmt.Errorf("auth.bearer: token is required")
		}
	case SchemeAPIKey:
		if c.APIKeyValue == "" {
			return fmt.Errorf("auth.api_key: api_key_value is required")
		}
		if c.APIKeyIn != InHeader && c.APIKeyIn != InQuery {
			return fmt.Errorf("auth.api_key: api_key_in must be header or query")
		}
	case SchemeOAuth2:
		if c.OAuth2 == nil {
			return fmt.Errorf("auth.oauth2: configuration is required")
		}
		if err := c.OAuth2.Validate(); err != nil {
			return fmt.Errorf("auth.oauth2: %w", err)
		}
	case SchemeJWT:
		if c.JWT == nil {
			return fmt.Errorf("auth.jwt: configuration is required")
		}
		if err := c.JWT.Validate(); err != nil {
			return fmt.Errorf("auth.jwt: %w", err)
		}
	default:
		return fmt.Errorf("auth: unknown scheme %q", c.Scheme)
	}
	return nil
}

// Authorizer builds the authorizer for the selected scheme. SchemeNone
// returns nil.
func (c *Config) Authorizer(ctx context.Context) (query.Authorizer, error) {
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Scheme {
	case SchemeBasic:
		return Basic(c.Username, c.Password), nil
	case SchemeBearer:
		return Bearer(c.Token), nil
	case SchemeAPIKey:
		return APIKey(c.APIKeyName, c.APIKeyValue, c.APIKeyIn), nil
	case SchemeOAuth2:
		return OAuth2(c.OAuth2.TokenSource(ctx)), nil
	case SchemeJWT:
		signer, err := JWT(*c.JWT)
		if err != nil {
			return nil, err
		}
		return signer, nil
	default:
		return nil, nil
	}
}

// Describe returns a one-line summary without secrets.
func (c *Config) Describe() string {
	switch c.Scheme {
	case SchemeBasic:
		return fmt.Sprintf("basic(%s)", c.Username)
	case SchemeAPIKey:
		return fmt.Sprintf("api_key(%s in %s)", c.APIKeyName, c.APIKeyIn)
	case SchemeOAuth2:
		if c.OAuth2 != nil {
			return fmt.Sprintf("oauth2(%s)", c.OAuth2.TokenURL)
		}
	case SchemeJWT:
		if c.JWT != nil {
			return fmt.Sprintf("jwt(%s)", c.JWT.Method)
		}
	case SchemeBearer:
		return "bearer"
	}
	return "none"
}
