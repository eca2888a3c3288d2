package dataset

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const cacheKey = "dataset"

type CachedLoaderConfig struct {
	Source Source
	// TTL is how long a cleaned dataset is reused. Zero disables caching.
	TTL time.Duration
}

func (cfg *CachedLoaderConfig) Validate() error {
	if cfg.Source == nil {
		return errors.New("source is required")
	}
	if cfg.TTL < 0 {
		return errors.New("ttl must not be negative")
	}
	return nil
}

// CachedLoader reuses the last cleaned dataset for a bounded time. Datasets
// are immutable, so sharing one between requests is safe.
type CachedLoader struct {
	cfg   *CachedLoaderConfig
	cache *ttlcache.Cache[string, *Dataset]
	mu    sync.Mutex
}

func NewCachedLoader(cfg *CachedLoaderConfig) (*CachedLoader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &CachedLoader{cfg: cfg}
	if cfg.TTL > 0 {
		l.cache = ttlcache.New(
			ttlcache.WithTTL[string, *Dataset](cfg.TTL),
			ttlcache.WithDisableTouchOnHit[string, *Dataset](),
		)
	}
	return l, nil
}

func (l *CachedLoader) Load(ctx context.Context) (*Dataset, error) {
	if l.cache == nil {
		return l.cfg.Source.Load(ctx)
	}

	// Serialize misses so concurrent requests share a single scan.
	l.mu.Lock()
	defer l.mu.Unlock()

	if item := l.cache.Get(cacheKey); item != nil {
		return item.Value(), nil
	}
	ds, err := l.cfg.Source.Load(ctx)
	if err != nil {
		return nil, err
	}
	l.cache.Set(cacheKey, ds, ttlcache.DefaultTTL)
	return ds, nil
}

// Invalidate drops the cached dataset so the next Load scans the store.
func (l *CachedLoader) Invalidate() {
	if l.cache == nil {
		return
	}
	l.cache.Delete(cacheKey)
}
