// Package errors provides the error taxonomy shared by the webquery packages.
//
// Every failure the engine surfaces is an *AppError carrying a machine-readable
// Code. Transport failures and timeouts are captured on outcomes rather than
// returned; configuration and deserialization errors are returned directly
// so callers can fail fast.
package errors
