package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"tender_fetcher/internal/domain"
)

type Config struct {
	TTL        time.Duration
	MaxEntries int
}

// Loader assembles the snapshots of the last days days on a cache miss.
type Loader func(ctx context.Context, days int) ([]domain.TenderSnapshot, error)

// Listing caches assembled tender listings per day bucket.
type Listing struct {
	entries *expirable.LRU[string, []domain.TenderSnapshot]
	mu      sync.Mutex // serializes loads
	logger  *slog.Logger

	genMu sync.Mutex
	gen   uint64 // bumped by Purge
}

func NewListing(cfg Config, logger *slog.Logger) *Listing {
	if cfg.MaxEntries < 1 {
		cfg.MaxEntries = 64
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &Listing{
		entries: expirable.NewLRU[string, []domain.TenderSnapshot](cfg.MaxEntries, nil, cfg.TTL),
		logger:  logger.With("component", "listing_cache"),
	}
}

func Key(days int) string {
	return fmt.Sprintf("last_%d_days", days)
}

// Get returns the cached bucket or loads it. Loads are serialized so concurrent
// misses for a bucket hit the store once.
func (c *Listing) Get(ctx context.Context, days int, load Loader) ([]domain.TenderSnapshot, error) {
	key := Key(days)
	if v, ok := c.entries.Get(key); ok {
		return v, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.entries.Get(key); ok {
		return v, nil
	}

	c.genMu.Lock()
	gen := c.gen
	c.genMu.Unlock()

	v, err := load(ctx, days)
	if err != nil {
		return nil, err
	}

	// A purge during the load means v may predate the write that caused it.
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.gen != gen {
		c.logger.Debug("listing load raced a purge, not cached", "key", key)
		return v, nil
	}
	c.entries.Add(key, v)
	c.logger.Debug("listing cached", "key", key, "tenders", len(v))
	return v, nil
}

// Purge drops every bucket. Loads already in flight are not cached.
func (c *Listing) Purge() {
	c.genMu.Lock()
	c.gen++
	c.entries.Purge()
	c.genMu.Unlock()
	c.logger.Debug("listing cache purged")
}

func (c *Listing) Len() int {
	return c.entries.Len()
}
