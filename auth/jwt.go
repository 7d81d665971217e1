package auth

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kbukum/webquery/query"
)

// SigningMethod names a JWT signing algorithm.
type SigningMethod string

const (
	HS256 SigningMethod = "HS256"
	HS384 SigningMethod = "HS384"
	HS512 SigningMethod = "HS512"
	RS256 SigningMethod = "RS256"
	ES256 SigningMethod = "ES256"
)

// JWTConfig configures per-request token signing.
type JWTConfig struct {
	// Secret is the HMAC key for HS* methods.
	Secret string `mapstructure:"secret"`
	// PrivateKey is the *rsa.PrivateKey or *ecdsa.PrivateKey for RS256/ES256.
	PrivateKey any `mapstructure:"-"`
	// Method defaults to HS256.
	Method SigningMethod `mapstructure:"method"`
	// Issuer is the "iss" claim.
	Issuer string `mapstructure:"issuer"`
	// Subject is the "sub" claim.
	Subject string `mapstructure:"subject"`
	// Audience is the "aud" claim.
	Audience []string `mapstructure:"audience"`
	// TTL is the token lifetime. Defaults to one minute.
	TTL time.Duration `mapstructure:"ttl"`
	// Claims are extra private claims added to every token.
	Claims map[string]any `mapstructure:"claims"`
}

// ApplyDefaults fills in zero-value fields.
func (c *JWTConfig) ApplyDefaults() {
	if c.Method == "" {
		c.Method = HS256
	}
	if c.TTL <= 0 {
		c.TTL = time.Minute
	}
}

// Validate checks the key matches the signing method.
func (c *JWTConfig) Validate() error {
	switch c.Method {
	case HS256, HS384, HS512:
		if c.Secret == "" {
			return errors.New("jwt: secret is required for HMAC signing methods")
		}
	case RS256:
		if _, ok := c.PrivateKey.(*rsa.PrivateKey); !ok {
			return errors.New("jwt: private key must be *rsa.PrivateKey for RS256")
		}
	case ES256:
		if _, ok := c.PrivateKey.(*ecdsa.PrivateKey); !ok {
			return errors.New("jwt: private key must be *ecdsa.PrivateKey for ES256")
		}
	default:
		return fmt.Errorf("jwt: unsupported signing method: %s", c.Method)
	}
	return nil
}

func (c *JWTConfig) signingMethod() gojwt.SigningMethod {
	switch c.Method {
	case HS384:
		return gojwt.SigningMethodHS384
	case HS512:
		return gojwt.SigningMethodHS512
	case RS256:
		return gojwt.SigningMethodRS256
	case ES256:
		return gojwt.SigningMethodES256
	default:
		return gojwt.SigningMethodHS256
	}
}

func (c *JWTConfig) signKey() any {
	switch c.Method {
	case RS256, ES256:
		return c.PrivateKey
	default:
		return []byte(c.Secret)
	}
}

// JWTSigner signs a fresh bearer token for every request.
type JWTSigner struct {
	cfg JWTConfig
	now func() time.Time
}

var _ query.Authorizer = (*JWTSigner)(nil)

// JWT creates a signer from cfg.
func JWT(cfg JWTConfig) (*JWTSigner, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &JWTSigner{cfg: cfg, now: time.Now}, nil
}

// Token signs a token valid from now for the configured TTL.
func (s *JWTSigner) Token() (string, error) {
	now := s.now()
	claims := gojwt.MapClaims{
		"iat": gojwt.NewNumericDate(now),
		"nbf": gojwt.NewNumericDate(now),
		"exp": gojwt.NewNumericDate(now.Add(s.cfg.TTL)),
		"jti": uuid.NewString(),
	}
	for k, v := range s.cfg.Claims {
		claims[k] = v
	}
	if s.cfg.Issuer != "" {
		claims["iss"] = s.cfg.Issuer
	}
	if s.cfg.Subject != "" {
		claims["sub"] = s.cfg.Subject
	}
	if len(s.cfg.Audience) > 0 {
		claims["aud"] = gojwt.ClaimStrings(s.cfg.Audience)
	}

	token := gojwt.NewWithClaims(s.cfg.signingMethod(), claims)
	signed, err := token.SignedString(s.cfg.signKey())
	if err != nil {
		return "", fmt.Errorf("jwt: failed to sign token: %w", err)
	}
	return signed, nil
}

// Authorize sets a freshly signed bearer token on req.
func (s *JWTSigner) Authorize(req *http.Request) error {
	token, err := s.Token()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
