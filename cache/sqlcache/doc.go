// Package sqlcache is a cache.Provider persisted in SQLite through the
// pure Go modernc.org/sqlite driver, so cached responses survive process
// restarts.
//
//	store, err := sqlcache.New(ctx, sqlcache.Config{Path: "webquery-cache.db"})
//	defer store.Close()
package sqlcache
