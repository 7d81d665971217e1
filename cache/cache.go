package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Provider is a thread-safe key to bytes store with expiration modes.
// Get and Insert are not transactional with each other.
type Provider interface {
	// Get returns the stored content, or false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Insert stores content without expiration.
	Insert(ctx context.Context, key string, value []byte) error
	// InsertAbsolute stores content that expires at the given time.
	InsertAbsolute(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	// InsertSliding stores content that expires after window without a hit.
	InsertSliding(ctx context.Context, key string, value []byte, window time.Duration) error
}

// Mode selects the expiration semantics used when inserting.
type Mode string

const (
	// ModeNone stores without expiration.
	ModeNone Mode = "none"
	// ModeAbsolute expires at a fixed time.
	ModeAbsolute Mode = "absolute"
	// ModeSliding expires after a window of inactivity.
	ModeSliding Mode = "sliding"
)

// Options binds an exchange to the cache.
type Options struct {
	// Mode is the expiration mode. Empty means ModeNone.
	Mode Mode `yaml:"mode" mapstructure:"mode"`
	// Duration is the sliding window, or the time to live for
	// ModeAbsolute when AbsoluteExpiration is zero.
	Duration time.Duration `yaml:"duration" mapstructure:"duration"`
	// AbsoluteExpiration is the fixed expiry for ModeAbsolute.
	AbsoluteExpiration time.Time `yaml:"absolute_expiration" mapstructure:"absolute_expiration"`
	// KeyPrefix namespaces the derived key.
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// Validate checks that the options describe a usable expiration.
func (o Options) Validate() error {
	switch o.Mode {
	case "", ModeNone:
		return nil
	case ModeAbsolute:
		if o.AbsoluteExpiration.IsZero() && o.Duration <= 0 {
			return fmt.Errorf("cache: absolute mode needs absolute_expiration or a positive duration")
		}
		return nil
	case ModeSliding:
		if o.Duration <= 0 {
			return fmt.Errorf("cache: sliding mode needs a positive duration")
		}
		return nil
	default:
		return fmt.Errorf("cache: unknown mode %q", o.Mode)
	}
}

// Expiry returns the absolute expiry ModeAbsolute would use at now.
func (o Options) Expiry(now time.Time) time.Time {
	if !o.AbsoluteExpiration.IsZero() {
		return o.AbsoluteExpiration
	}
	return now.Add(o.Duration)
}

// Store inserts value into p with the expiration the options describe.
func (o Options) Store(ctx context.Context, p Provider, key string, value []byte) error {
	if err := o.Validate(); err != nil {
		return err
	}
	switch o.Mode {
	case ModeAbsolute:
		return p.InsertAbsolute(ctx, key, value, o.Expiry(time.Now()))
	case ModeSliding:
		return p.InsertSliding(ctx, key, value, o.Duration)
	default:
		return p.Insert(ctx, key, value)
	}
}

// Key derives the cache key for a resolved URL. Identical (prefix, url)
// pairs always yield the same key.
func Key(prefix, url string) string {
	sum := blake2b.Sum256([]byte(url))
	k := hex.EncodeToString(sum[:])
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
