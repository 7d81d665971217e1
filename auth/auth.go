package auth

import (
	"errors"
	"net/http"

	"github.com/kbukum/webquery/query"
)

// ErrNoCredentials is returned when an authorizer has nothing to send.
var ErrNoCredentials = errors.New("auth: no credentials configured")

// Basic returns an authorizer sending HTTP basic credentials.
func Basic(username, password string) query.Authorizer {
	return query.AuthorizerFunc(func(req *http.Request) error {
		if username == "" {
			return ErrNoCredentials
		}
		req.SetBasicAuth(username, password)
		return nil
	})
}

// Bearer returns an authorizer sending a static bearer token.
func Bearer(token string) query.Authorizer {
	return query.AuthorizerFunc(func(req *http.Request) error {
		if token == "" {
			return ErrNoCredentials
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	})
}

// Placement says where an API key is sent.
type Placement string

const (
	InHeader Placement = "header"
	InQuery  Placement = "query"
)

// APIKey returns an authorizer sending value under name, either as a
// header or as a query parameter.
func APIKey(name, value string, in Placement) query.Authorizer {
	return query.AuthorizerFunc(func(req *http.Request) error {
		if name == "" || value == "" {
			return ErrNoCredentials
		}
		if in == InQuery {
			q := req.URL.Query()
			q.Set(name, value)
			req.URL.RawQuery = q.Encode()
			return nil
		}
		req.Header.Set(name, value)
		return nil
	})
}

// Chain applies several authorizers in order, stopping at the first error.
func Chain(authorizers ...query.Authorizer) query.Authorizer {
	return query.AuthorizerFunc(func(req *http.Request) error {
		for _, a := range authorizers {
			if a == nil {
				continue
			}
			if err := a.Authorize(req); err != nil {
				return err
			}
		}
		return nil
	})
}

// Credentials binds an authorizer to the engines it produces.
type Credentials struct {
	Authorizer query.Authorizer
}

// NewEngine returns a query engine that signs every request with the
// credentials. base options are applied first.
func (c Credentials) NewEngine(info query.Info, base ...query.Option) *query.Engine {
	opts := append([]query.Option{}, base...)
	opts = append(opts, query.WithInfo(info))
	if c.Authorizer != nil {
		opts = append(opts, query.WithAuthorizer(c.Authorizer))
	}
	return query.New(opts...)
}
