package geocode

import (
	"database/sql"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"llmap/internal/logger"
)

// Cache stores geocoding results keyed by normalized query. Lookups are
// served from memory; when a database is attached, positive results are also
// read and written through to it so they survive the process. Known misses
// are cached in memory only (a nil entry), and errors are never cached.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*ProviderResult
	db      *sql.DB
	log     zerolog.Logger
}

// NewMemoryCache creates a process-local cache.
func NewMemoryCache() *Cache {
	return &Cache{
		entries: make(map[string]*ProviderResult),
		log:     logger.WithComponent("geocode-cache"),
	}
}

// NewPersistentCache creates a cache backed by the given database. The
// caller owns driver registration and the connection lifecycle up to Close.
func NewPersistentCache(db *sql.DB) (*Cache, error) {
	c := &Cache{
		entries: make(map[string]*ProviderResult),
		db:      db,
		log:     logger.WithComponent("geocode-cache"),
	}
	if err := c.createSchema(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) createSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS geocode_cache (
			query VARCHAR PRIMARY KEY,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			display_name VARCHAR NOT NULL,
			confidence DOUBLE NOT NULL,
			provider VARCHAR NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// Get returns the cached result for a normalized query. The second return
// reports whether the query was seen before at all; a true with a nil result
// means a remembered miss.
func (c *Cache) Get(query string) (*ProviderResult, bool) {
	c.mu.RLock()
	result, ok := c.entries[query]
	c.mu.RUnlock()
	if ok {
		return result, true
	}

	if c.db == nil {
		return nil, false
	}

	row := c.db.QueryRow(`
		SELECT latitude, longitude, display_name, confidence, provider
		FROM geocode_cache WHERE query = ?
	`, query)

	var stored ProviderResult
	err := row.Scan(&stored.Latitude, &stored.Longitude, &stored.DisplayName, &stored.Confidence, &stored.Provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Str("query", query).Msg("Cache read failed, treating as miss")
		return nil, false
	}

	c.mu.Lock()
	c.entries[query] = &stored
	c.mu.Unlock()

	return &stored, true
}

// Put stores a result for a normalized query. A nil result records a known
// miss in memory so repeated lookups skip the providers within this run.
func (c *Cache) Put(query string, result *ProviderResult) {
	c.mu.Lock()
	c.entries[query] = result
	c.mu.Unlock()

	if c.db == nil || result == nil {
		return
	}

	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO geocode_cache(query, latitude, longitude, display_name, confidence, provider)
		VALUES (?, ?, ?, ?, ?, ?)
	`, query, result.Latitude, result.Longitude, result.DisplayName, result.Confidence, result.Provider)
	if err != nil {
		c.log.Warn().Err(err).Str("query", query).Msg("Cache write failed")
	}
}

// Len returns the number of in-memory entries, counting remembered misses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close releases the backing database when one is attached.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
