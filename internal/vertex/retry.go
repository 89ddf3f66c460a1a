package vertex

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgallion1/vertexrag/internal/rag"
)

// DefaultMaxRetries is the retry budget for transient Vertex failures.
const DefaultMaxRetries = 3

// IsRetryable reports whether a translated error is worth retrying:
// rate limiting and server-side failures.
func IsRetryable(err error) bool {
	var se *rag.ServiceError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusTooManyRequests || se.Code >= 500
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// caller runs every remote call through the rate limiter, records its
// latency and retries transient failures.
type caller struct {
	limiter    *rate.Limiter
	maxRetries int
	backoff    func(attempt int) time.Duration
	stats      *CallStats
	log        *slog.Logger
}

func newCaller(rps float64, maxRetries int, stats *CallStats, log *slog.Logger) *caller {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &caller{
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: maxRetries,
		backoff:    Backoff,
		stats:      stats,
		log:        log,
	}
}

func (c *caller) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		start := time.Now()
		err := fn(ctx)
		c.stats.Record(op, time.Since(start), err)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err = translate(op, err)
		if !IsRetryable(err) || attempt >= c.maxRetries {
			return err
		}

		wait := c.backoff(attempt)
		c.log.Warn("retrying vertex call", "op", op, "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
