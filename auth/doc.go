// Package auth signs outgoing requests.
//
// Every scheme implements query.Authorizer and runs once per built request,
// after headers and cookies are applied:
//
//   - Basic: HTTP basic credentials
//   - Bearer: a static bearer token
//   - APIKey: a key sent as a header or query parameter
//   - OAuth2: tokens from an oauth2.TokenSource, refreshed as they expire
//   - JWT: a short lived token signed per request with golang-jwt
//
// Credentials turns any of them into a query engine, so schemes can be
// swapped without touching the orchestrator:
//
//	creds := auth.Credentials{Authorizer: auth.Bearer(token)}
//	engine := creds.NewEngine(query.Info{Name: "billing"})
//
// A Registry holds named authorizers for clients that call several
// services with different credentials.
package auth
