// Package rediscache is a cache.Provider backed by Redis (go-redis v9).
//
// Each entry is a hash holding the content ("v") and, for sliding entries,
// the window in milliseconds ("s"). Expiration uses PEXPIREAT for absolute
// entries and PEXPIRE for sliding ones; a hit on a sliding entry re-arms
// its expiry.
package rediscache
