package sqlcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kbukum/webquery/cache"
	wqerrors "github.com/kbukum/webquery/errors"
	"github.com/kbukum/webquery/logger"
)

// Config configures the SQLite cache.
type Config struct {
	// Path is the database file. ":memory:" keeps everything in process.
	Path string `yaml:"path" mapstructure:"path"`
	// PurgeInterval runs Purge periodically when positive.
	PurgeInterval time.Duration `yaml:"purge_interval" mapstructure:"purge_interval"`
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("sqlcache: path is required")
	}
	if c.PurgeInterval < 0 {
		return fmt.Errorf("sqlcache: purge_interval must not be negative")
	}
	return nil
}

const schema = `CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0,
	sliding_ns INTEGER NOT NULL DEFAULT 0
);`

// Store is a SQLite backed cache.Provider.
type Store struct {
	db  *sql.DB
	log *logger.Logger
	now func() time.Time

	stop chan struct{}
	done chan struct{}
}

var _ cache.Provider = (*Store)(nil)

// New opens (creating if needed) the cache database.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, wqerrors.Cache("open", err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: logger.Get("webquery.cache.sqlite"), now: time.Now}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.PurgeInterval > 0 {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.purgeLoop(cfg.PurgeInterval)
	}

	s.log.Info("sqlite cache opened", logger.Fields("path", cfg.Path))
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		return wqerrors.Cache("init", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return wqerrors.Cache("init", err)
	}
	return nil
}

// Get returns the stored content, re-arming sliding entries.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt int64
		slidingNs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at, sliding_ns FROM cache_entries WHERE key = ?`, key,
	).Scan(&value, &expiresAt, &slidingNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wqerrors.Cache("get", err)
	}

	now := s.now()
	if expiresAt != 0 && now.UnixNano() >= expiresAt {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
			s.log.Warn("failed to drop expired entry", logger.Fields(logger.FieldCacheKey, key, logger.FieldError, err.Error()))
		}
		return nil, false, nil
	}

	if slidingNs > 0 {
		_, err := s.db.ExecContext(ctx,
			`UPDATE cache_entries SET expires_at = ? WHERE key = ?`,
			now.Add(time.Duration(slidingNs)).UnixNano(), key)
		if err != nil {
			s.log.Warn("failed to refresh sliding entry", logger.Fields(logger.FieldCacheKey, key, logger.FieldError, err.Error()))
		}
	}
	return value, true, nil
}

// Insert stores content without expiration.
func (s *Store) Insert(ctx context.Context, key string, value []byte) error {
	return s.upsert(ctx, "insert", key, value, 0, 0)
}

// InsertAbsolute stores content that expires at expiresAt.
func (s *Store) InsertAbsolute(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	return s.upsert(ctx, "insert absolute", key, value, expiresAt.UnixNano(), 0)
}

// InsertSliding stores content that expires after window without a hit.
func (s *Store) InsertSliding(ctx context.Context, key string, value []byte, window time.Duration) error {
	if window <= 0 {
		return wqerrors.Cache("insert sliding", fmt.Errorf("window must be positive, got %s", window))
	}
	return s.upsert(ctx, "insert sliding", key, value, s.now().Add(window).UnixNano(), int64(window))
}

func (s *Store) upsert(ctx context.Context, op, key string, value []byte, expiresAt, slidingNs int64) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, expires_at, sliding_ns) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, sliding_ns = excluded.sliding_ns`,
		key, value, expiresAt, slidingNs)
	if err != nil {
		return wqerrors.Cache(op, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return wqerrors.Cache("delete", err)
	}
	return nil
}

// Purge removes expired rows and returns how many were deleted.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at != 0 AND expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, wqerrors.Cache("purge", err)
	}
	return res.RowsAffected()
}

func (s *Store) purgeLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			n, err := s.Purge(context.Background())
			if err != nil {
				s.log.Warn("cache purge failed", logger.ErrorFields("purge", err))
				continue
			}
			if n > 0 {
				s.log.Debug("cache purged", logger.Fields("removed", n))
			}
		}
	}
}

// Close stops the purge loop and closes the database.
func (s *Store) Close() error {
	if s.stop != nil {
		close(s.stop)
		<-s.done
		s.stop = nil
	}
	return s.db.Close()
}
