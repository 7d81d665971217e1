package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/kbukum/webquery/query"
)

// OAuth2Config configures the client credentials grant.
type OAuth2Config struct {
	ClientID     string            `mapstructure:"client_id"`
	ClientSecret string            `mapstructure:"client_secret"`
	TokenURL     string            `mapstructure:"token_url"`
	Scopes       []string          `mapstructure:"scopes"`
	Params       map[string]string `mapstructure:"params"`
}

// Validate checks the grant has what the token endpoint needs.
func (c *OAuth2Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("oauth2: client_id is required")
	}
	if c.TokenURL == "" {
		return errors.New("oauth2: token_url is required")
	}
	return nil
}

// TokenSource returns a caching token source for the grant. Token requests
// use ctx, so an *http.Client stored under oauth2.HTTPClient is honored.
func (c *OAuth2Config) TokenSource(ctx context.Context) oauth2.TokenSource {
	cc := &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
	if len(c.Params) > 0 {
		cc.EndpointParams = make(map[string][]string, len(c.Params))
		for k, v := range c.Params {
			cc.EndpointParams[k] = []string{v}
		}
	}
	return cc.TokenSource(ctx)
}

type tokenSourceAuthorizer struct {
	src oauth2.TokenSource
}

// OAuth2 returns an authorizer that sets the current token from src.
// Wrap src with oauth2.ReuseTokenSource if it does not cache.
func OAuth2(src oauth2.TokenSource) query.Authorizer {
	return &tokenSourceAuthorizer{src: src}
}

func (a *tokenSourceAuthorizer) Authorize(req *http.Request) error {
	if a.src == nil {
		return ErrNoCredentials
	}
	tok, err := a.src.Token()
	if err != nil {
		return fmt.Errorf("oauth2: failed to obtain token: %w", err)
	}
	if !tok.Valid() {
		return errors.New("oauth2: token source returned an invalid token")
	}
	tok.SetAuthHeader(req)
	return nil
}
