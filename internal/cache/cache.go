package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"storefront-client/internal/util"

	"go.uber.org/zap"
)

// FetchFunc loads the authoritative value for a key.
type FetchFunc func(ctx context.Context) (interface{}, error)

// Options control freshness and retention per key.
type Options struct {
	// StaleTime is how long a fetched value is served without revalidation.
	// Zero means the value is stale as soon as it lands.
	StaleTime time.Duration
	// RetainTime is how long an unused entry stays in memory before the
	// janitor evicts it. Zero disables eviction for the key.
	RetainTime time.Duration
	// Retries is the number of additional fetch attempts on error.
	Retries int
	// RetryIf, when set, gates retries; auth errors are the usual opt-out.
	RetryIf func(error) bool
}

type entry struct {
	value      interface{}
	hasValue   bool
	err        error
	fetchedAt  time.Time
	lastAccess time.Time
	retain     time.Duration
	inflight   chan struct{}
}

// Cache is a process-wide keyed cache of gateway responses. It exclusively
// owns the authoritative collections; sessions only hold clones.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *zap.Logger
	stop    chan struct{}
	once    sync.Once
}

const (
	janitorInterval = time.Minute
	refreshTimeout  = 30 * time.Second
)

// New creates a cache and starts its janitor goroutine.
func New() *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		logger:  util.GetLogger(),
		stop:    make(chan struct{}),
	}
	go c.janitor()
	return c
}

// Close stops the janitor.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// Get returns the cached value for key, fetching when needed. Fresh entries
// are served directly; stale entries are served immediately while a single
// background revalidation runs; concurrent callers for a missing key
// collapse into one fetch.
func (c *Cache) Get(ctx context.Context, key string, opts Options, fetch FetchFunc) (interface{}, error) {
	for {
		c.mu.Lock()
		e, ok := c.entries[key]
		if !ok {
			e = &entry{}
			c.entries[key] = e
		}
		now := time.Now()
		e.lastAccess = now
		e.retain = opts.RetainTime

		if e.hasValue && opts.StaleTime > 0 && now.Sub(e.fetchedAt) < opts.StaleTime {
			v := e.value
			c.mu.Unlock()
			util.CacheHitsTotal.Inc()
			return v, nil
		}

		if e.inflight == nil {
			ch := make(chan struct{})
			e.inflight = ch

			if e.hasValue {
				v := e.value
				c.mu.Unlock()
				util.CacheStaleServesTotal.Inc()
				go c.refresh(key, ch, opts, fetch)
				return v, nil
			}

			e.err = nil
			c.mu.Unlock()
			util.CacheMissesTotal.Inc()
			val, err := c.fetchWithRetry(ctx, opts, fetch)
			c.finish(key, ch, val, err)
			if err != nil {
				return nil, err
			}
			return val, nil
		}

		if e.hasValue {
			v := e.value
			c.mu.Unlock()
			util.CacheStaleServesTotal.Inc()
			return v, nil
		}

		ch := e.inflight
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		c.mu.Lock()
		e, ok = c.entries[key]
		if ok && e.hasValue {
			v := e.value
			c.mu.Unlock()
			return v, nil
		}
		var err error
		if ok {
			err = e.err
		}
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
		// Entry was invalidated while we waited; try again.
	}
}

// Invalidate drops the given keys so the next read refetches.
func (c *Cache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		if _, ok := c.entries[key]; ok {
			delete(c.entries, key)
			util.CacheInvalidationsTotal.Inc()
		}
	}
}

// InvalidatePrefix drops every key with the given prefix. Used when a
// mutation affects a whole key family, e.g. all shop listing pages.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			util.CacheInvalidationsTotal.Inc()
		}
	}
}

// Len reports the number of retained entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) refresh(key string, ch chan struct{}, opts Options, fetch FetchFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	val, err := c.fetchWithRetry(ctx, opts, fetch)
	if err != nil {
		c.logger.Warn("Background revalidation failed, keeping stale value",
			zap.String("key", key),
			zap.Error(err))
	}
	c.finish(key, ch, val, err)
}

func (c *Cache) finish(key string, ch chan struct{}, val interface{}, err error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.inflight == ch {
		e.inflight = nil
		if err == nil {
			e.value = val
			e.hasValue = true
			e.err = nil
			e.fetchedAt = time.Now()
		} else {
			e.err = err
		}
	}
	c.mu.Unlock()
	close(ch)
}

func (c *Cache) fetchWithRetry(ctx context.Context, opts Options, fetch FetchFunc) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		val, err := fetch(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if opts.RetryIf != nil && !opts.RetryIf(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired(time.Now())
		}
	}
}

func (c *Cache) evictExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if e.retain > 0 && e.inflight == nil && now.Sub(e.lastAccess) > e.retain {
			delete(c.entries, key)
			util.CacheEvictionsTotal.Inc()
		}
	}
}
