package features

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-spotify-wrapped/internal/metrics"
)

// Defaults for Cache.
const (
	// DefaultBatchSize is the Spotify audio-features limit per request.
	DefaultBatchSize = 100
	DefaultWorkers   = 4
)

// Fetcher resolves one batch of track ids. BatchFetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, ids []string) (map[string]FeatureVector, error)
}

// Report summarizes one Enrich call. Every requested id lands in exactly one
// of the result counters.
type Report struct {
	Requested int `json:"requested"`
	CacheHits int `json:"cache_hits"`
	StoreHits int `json:"store_hits"`
	Fetched   int `json:"fetched"`
	NotFound  int `json:"not_found"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"` // not attempted or cut off by the deadline
}

// Cache maps track ids to feature vectors. Lookups are served from memory,
// then from the optional persistent Store, then from the Fetcher.
// Each id is looked up by at most one caller at a time.
type Cache struct {
	fetcher   Fetcher
	store     Store
	batchSize int
	workers   int
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	entries  map[string]FeatureVector
	missing  map[string]struct{}      // not found during this run
	inflight map[string]chan struct{} // closed when the owner finishes
}

// Option configures a Cache.
type Option func(*Cache)

// WithBatchSize caps the number of ids per external request.
func WithBatchSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithWorkers sets how many batches may be in flight at once.
func WithWorkers(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithTTL sets the freshness TTL. Zero means entries never go stale.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl >= 0 {
			c.ttl = ttl
		}
	}
}

// WithStore enables cross-run persistence.
func WithStore(s Store) Option {
	return func(c *Cache) {
		c.store = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records lookup results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCache creates an empty cache in front of fetcher.
func NewCache(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:   fetcher,
		batchSize: DefaultBatchSize,
		workers:   DefaultWorkers,
		now:       time.Now,
		logger:    slog.Default(),
		entries:   make(map[string]FeatureVector),
		missing:   make(map[string]struct{}),
		inflight:  make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enrich returns the feature vectors it could resolve for ids. Tracks whose
// lookup failed, was not found, or did not finish before ctx ended are simply
// absent from the map. Enrich never fails as a whole.
func (c *Cache) Enrich(ctx context.Context, ids []string) (map[string]FeatureVector, Report) {
	ids = uniqueIDs(ids)
	report := Report{Requested: len(ids)}
	result := make(map[string]FeatureVector, len(ids))

	var owned []string
	waits := make(map[string]chan struct{})

	c.mu.Lock()
	for _, id := range ids {
		if v, ok := c.entries[id]; ok && c.fresh(v) {
			result[id] = v
			report.CacheHits++
			continue
		}
		if _, ok := c.missing[id]; ok {
			report.NotFound++
			continue
		}
		if ch, ok := c.inflight[id]; ok {
			waits[id] = ch
			continue
		}
		c.inflight[id] = make(chan struct{})
		owned = append(owned, id)
	}
	c.mu.Unlock()

	if len(owned) > 0 {
		c.resolve(ctx, owned, result, &report)
	}

	// Ids another caller was already looking up.
	for id, ch := range waits {
		select {
		case <-ch:
		case <-ctx.Done():
		}
		c.mu.Lock()
		v, ok := c.entries[id]
		_, missing := c.missing[id]
		c.mu.Unlock()
		switch {
		case ok && c.fresh(v):
			result[id] = v
			report.CacheHits++
		case missing:
			report.NotFound++
		case ctx.Err() != nil:
			report.Skipped++
		default:
			report.Failed++
		}
	}

	c.metrics.AddLookups(metrics.LookupCacheHit, report.CacheHits)
	c.metrics.AddLookups(metrics.LookupStoreHit, report.StoreHits)
	c.metrics.AddLookups(metrics.LookupFetched, report.Fetched)
	c.metrics.AddLookups(metrics.LookupNotFound, report.NotFound)
	c.metrics.AddLookups(metrics.LookupFailed, report.Failed)
	c.metrics.AddLookups(metrics.LookupSkipped, report.Skipped)

	c.logger.Debug("feature enrichment finished",
		"requested", report.Requested,
		"cache_hits", report.CacheHits,
		"store_hits", report.StoreHits,
		"fetched", report.Fetched,
		"not_found", report.NotFound,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	return result, report
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// resolve looks up ids this caller owns and releases them when done.
func (c *Cache) resolve(ctx context.Context, ids []string, result map[string]FeatureVector, report *Report) {
	defer c.release(ids)

	pending := c.loadStored(ctx, ids, result, report)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(c.workers)

	for _, batch := range chunk(pending, c.batchSize) {
		g.Go(func() error {
			// Batches are not started after the deadline.
			if ctx.Err() != nil {
				mu.Lock()
				report.Skipped += len(batch)
				mu.Unlock()
				return nil
			}

			start := time.Now()
			found, err := c.fetcher.Fetch(ctx, batch)
			c.metrics.ObserveBatch(time.Since(start).Seconds())

			failed := failedIDs(batch, err)
			cutOff := err != nil && (ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled))

			var fetched []FeatureVector
			c.mu.Lock()
			for _, id := range batch {
				if v, ok := found[id]; ok {
					v.TrackID = id
					if v.FetchedAt.IsZero() {
						v.FetchedAt = c.now()
					}
					c.entries[id] = v
					fetched = append(fetched, v)
					continue
				}
				if _, ok := failed[id]; !ok {
					c.missing[id] = struct{}{}
				}
			}
			c.mu.Unlock()

			mu.Lock()
			for _, v := range fetched {
				result[v.TrackID] = v
			}
			report.Fetched += len(fetched)
			if cutOff {
				report.Skipped += len(failed)
			} else {
				report.Failed += len(failed)
			}
			report.NotFound += len(batch) - len(fetched) - len(failed)
			mu.Unlock()

			c.persist(ctx, fetched)
			return nil
		})
	}
	_ = g.Wait()
}

// loadStored serves fresh vectors from the persistent store and returns the
// ids still to fetch.
func (c *Cache) loadStored(ctx context.Context, ids []string, result map[string]FeatureVector, report *Report) []string {
	if c.store == nil {
		return ids
	}

	stored, err := c.store.GetFeatures(ctx, ids)
	if err != nil {
		c.logger.Warn("reading feature store failed", "ids", len(ids), "err", err)
		return ids
	}

	pending := make([]string, 0, len(ids))
	c.mu.Lock()
	for _, id := range ids {
		v, ok := stored[id]
		if !ok || !c.fresh(v) {
			pending = append(pending, id)
			continue
		}
		c.entries[id] = v
		result[id] = v
		report.StoreHits++
	}
	c.mu.Unlock()
	return pending
}

// persist writes fetched vectors to the store. Failures only cost the next
// run a refetch, so they are logged and dropped.
func (c *Cache) persist(ctx context.Context, vectors []FeatureVector) {
	if c.store == nil || len(vectors) == 0 {
		return
	}
	// Results already fetched are worth keeping even past the deadline.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.store.UpsertFeatures(writeCtx, vectors); err != nil {
		c.logger.Warn("persisting features failed", "ids", len(vectors), "err", err)
	}
}

// release drops ownership of ids and wakes any waiting callers.
func (c *Cache) release(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if ch, ok := c.inflight[id]; ok {
			close(ch)
			delete(c.inflight, id)
		}
	}
}

func (c *Cache) fresh(v FeatureVector) bool {
	if c.ttl == 0 {
		return true
	}
	return c.now().Sub(v.FetchedAt) < c.ttl
}

// failedIDs returns the ids err reports as failed. An error that is not a
// *BatchError fails the whole batch.
func failedIDs(batch []string, err error) map[string]struct{} {
	failed := make(map[string]struct{})
	if err == nil {
		return failed
	}
	ids := batch
	var batchErr *BatchError
	if errors.As(err, &batchErr) {
		ids = batchErr.IDs
	}
	for _, id := range ids {
		failed[id] = struct{}{}
	}
	return failed
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func chunk(ids []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(ids); i += size {
		end := min(i+size, len(ids))
		batches = append(batches, ids[i:end])
	}
	return batches
}
