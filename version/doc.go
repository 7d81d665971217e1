// Package version reports the webquery build version and derives the
// default User-Agent sent with every exchange.
//
// Version and commit are set at compile time via -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/webquery/version.Version=1.0.0"
package version
