package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/webquery/cache"
	wqerrors "github.com/kbukum/webquery/errors"
	"github.com/kbukum/webquery/logger"
)

const (
	fieldValue   = "v"
	fieldSliding = "s"
)

// Store is a Redis backed cache.Provider.
type Store struct {
	rdb    goredis.UniversalClient
	prefix string
	log    *logger.Logger
	owned  bool

	mu     sync.Mutex
	closed bool
}

var _ cache.Provider = (*Store)(nil)

// New connects to Redis using cfg.
func New(cfg Config, log *logger.Logger) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Get("webquery.cache.redis")
	}

	dialTimeout, _ := time.ParseDuration(cfg.DialTimeout)
	readTimeout, _ := time.ParseDuration(cfg.ReadTimeout)
	writeTimeout, _ := time.ParseDuration(cfg.WriteTimeout)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	log.Info("redis cache created", logger.Fields(
		"addr", cfg.Addr,
		"db", cfg.DB,
		"pool_size", cfg.PoolSize,
	))

	return &Store{rdb: rdb, prefix: cfg.KeyPrefix, log: log, owned: true}, nil
}

// NewFromClient wraps an existing go-redis client. Close leaves it open.
func NewFromClient(rdb goredis.UniversalClient, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix, log: logger.Get("webquery.cache.redis")}
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return wqerrors.Cache("ping", err)
	}
	return nil
}

// Get returns the stored content, re-arming sliding entries.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	k := s.prefix + key
	vals, err := s.rdb.HMGet(ctx, k, fieldValue, fieldSliding).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, wqerrors.Cache("get", err)
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, false, nil
	}

	if sv, ok := vals[1].(string); ok {
		if ms, err := strconv.ParseInt(sv, 10, 64); err == nil && ms > 0 {
			if err := s.rdb.PExpire(ctx, k, time.Duration(ms)*time.Millisecond).Err(); err != nil {
				s.log.Warn("failed to refresh sliding entry", logger.Fields(logger.FieldCacheKey, key, logger.FieldError, err.Error()))
			}
		}
	}
	return []byte(raw), true, nil
}

// Insert stores content without expiration.
func (s *Store) Insert(ctx context.Context, key string, value []byte) error {
	k := s.prefix + key
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, k, fieldValue, value, fieldSliding, 0)
		p.Persist(ctx, k)
		return nil
	})
	if err != nil {
		return wqerrors.Cache("insert", err)
	}
	return nil
}

// InsertAbsolute stores content that expires at expiresAt.
func (s *Store) InsertAbsolute(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	k := s.prefix + key
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, k, fieldValue, value, fieldSliding, 0)
		p.PExpireAt(ctx, k, expiresAt)
		return nil
	})
	if err != nil {
		return wqerrors.Cache("insert absolute", err)
	}
	return nil
}

// InsertSliding stores content that expires after window without a hit.
func (s *Store) InsertSliding(ctx context.Context, key string, value []byte, window time.Duration) error {
	if window <= 0 {
		return wqerrors.Cache("insert sliding", fmt.Errorf("window must be positive, got %s", window))
	}
	k := s.prefix + key
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, k, fieldValue, value, fieldSliding, window.Milliseconds())
		p.PExpire(ctx, k, window)
		return nil
	})
	if err != nil {
		return wqerrors.Cache("insert sliding", err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return wqerrors.Cache("delete", err)
	}
	return nil
}

// Close closes the connection if New created it. Safe to call multiple times.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.owned {
		return nil
	}
	s.closed = true
	s.log.Info("closing redis cache")
	return s.rdb.Close()
}
