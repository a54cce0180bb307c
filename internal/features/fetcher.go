package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/time/rate"

	"github.com/justestif/go-spotify-wrapped/internal/metrics"
)

// Default throttling for the feature service.
const (
	DefaultRatePerSecond = 5
	DefaultBurst         = 1
)

// errThrottleDeadline means waiting for the limiter would outlive the context.
var errThrottleDeadline = errors.New("rate limiter wait exceeds deadline")

// BackoffPolicy controls how a rate-limited batch is retried.
type BackoffPolicy struct {
	Attempts     uint          // total attempts including the first
	InitialDelay time.Duration // doubled after every rate-limited attempt
	MaxDelay     time.Duration // cap for a single backoff delay
	MaxJitter    time.Duration // random delay added on top of the backoff

	// DelayType overrides the exponential-plus-jitter delay when set.
	DelayType retry.DelayTypeFunc
}

// DefaultBackoffPolicy returns the policy used when none is configured.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Attempts:     5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		MaxJitter:    250 * time.Millisecond,
	}
}

func (p BackoffPolicy) options(ctx context.Context) []retry.Option {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	delayType := p.DelayType
	if delayType == nil {
		delayType = retry.BackOffDelay
		// RandomDelay needs a positive jitter bound.
		if p.MaxJitter > 0 {
			delayType = retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)
		}
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.InitialDelay),
		retry.DelayType(delayType),
		retry.LastErrorOnly(true),
	}
	if p.MaxDelay > 0 {
		opts = append(opts, retry.MaxDelay(p.MaxDelay))
	}
	if p.MaxJitter > 0 {
		opts = append(opts, retry.MaxJitter(p.MaxJitter))
	}
	return opts
}

// FetcherConfig configures a BatchFetcher. Zero fields take defaults.
type FetcherConfig struct {
	Limiter *rate.Limiter
	Backoff BackoffPolicy
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// BatchFetcher issues throttled batch lookups against a Service, retrying
// rate-limit rejections with backoff. It knows nothing about caching.
type BatchFetcher struct {
	service Service
	limiter *rate.Limiter
	backoff BackoffPolicy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewBatchFetcher creates a BatchFetcher over service.
func NewBatchFetcher(service Service, cfg FetcherConfig) *BatchFetcher {
	f := &BatchFetcher{
		service: service,
		limiter: cfg.Limiter,
		backoff: cfg.Backoff,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if f.limiter == nil {
		f.limiter = rate.NewLimiter(rate.Limit(DefaultRatePerSecond), DefaultBurst)
	}
	if f.backoff.Attempts == 0 {
		f.backoff = DefaultBackoffPolicy()
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Fetch looks up one batch. The returned map holds every vector that was
// found, even when err is non-nil. A non-nil err is a *BatchError naming only
// the ids that could not be resolved.
//
// A batch that keeps getting rate limited fails as a whole. Any other
// permanent failure is isolated by splitting the batch in halves, so a single
// id the service refuses does not take its neighbours down with it.
func (f *BatchFetcher) Fetch(ctx context.Context, ids []string) (map[string]FeatureVector, error) {
	if len(ids) == 0 {
		return map[string]FeatureVector{}, nil
	}

	found, err := f.fetchWithRetry(ctx, ids)
	if err == nil {
		return found, nil
	}

	if len(ids) == 1 || ctx.Err() != nil ||
		errors.Is(err, ErrRateLimited) || errors.Is(err, errThrottleDeadline) {
		f.logger.Warn("feature batch failed", "ids", len(ids), "err", err)
		return map[string]FeatureVector{}, &BatchError{IDs: ids, Err: err}
	}

	f.logger.Debug("splitting failed feature batch", "ids", len(ids), "err", err)
	mid := len(ids) / 2
	left, leftErr := f.Fetch(ctx, ids[:mid])
	right, rightErr := f.Fetch(ctx, ids[mid:])

	for id, v := range right {
		left[id] = v
	}

	var failed []string
	var errs []error
	for _, e := range []error{leftErr, rightErr} {
		var batchErr *BatchError
		if errors.As(e, &batchErr) {
			failed = append(failed, batchErr.IDs...)
			errs = append(errs, batchErr.Err)
		}
	}
	if len(failed) == 0 {
		return left, nil
	}
	return left, &BatchError{IDs: failed, Err: errors.Join(errs...)}
}

// fetchWithRetry performs one throttled lookup, retrying rate limits.
func (f *BatchFetcher) fetchWithRetry(ctx context.Context, ids []string) (map[string]FeatureVector, error) {
	var found map[string]FeatureVector
	err := f.Call(ctx, func(ctx context.Context) error {
		res, err := f.service.AudioFeatures(ctx, ids)
		if err != nil {
			return err
		}
		found = res
		return nil
	}, "ids", len(ids))
	if err != nil {
		return nil, err
	}
	if found == nil {
		found = map[string]FeatureVector{}
	}
	return found, nil
}

// Call runs op under the fetcher's limiter, retrying it with the backoff
// policy while it fails with ErrRateLimited. Track searches go through it so
// they share the rate budget with feature batches. logAttrs are added to the
// retry log line.
func (f *BatchFetcher) Call(ctx context.Context, op func(context.Context) error, logAttrs ...any) error {
	opts := append(f.backoff.options(ctx),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrRateLimited)
		}),
		retry.OnRetry(func(n uint, err error) {
			f.metrics.IncRateLimited()
			f.logger.Debug("spotify rate limited", append([]any{"attempt", n + 1}, logAttrs...)...)
		}),
	)

	return retry.Do(
		func() error {
			if err := f.limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return fmt.Errorf("%w: %v", errThrottleDeadline, err)
			}
			return op(ctx)
		},
		opts...,
	)
}
