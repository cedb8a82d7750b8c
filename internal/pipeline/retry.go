package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/folio/internal/providers"
)

// runRetries runs op up to maxRetries+1 times. Configuration errors end the
// loop immediately. A rate limit with a retry-after hint waits that long
// instead of delay. The error of the last attempt is returned.
func runRetries[T any](ctx context.Context, logger *slog.Logger, maxRetries int, delay time.Duration, page int, op func(ctx context.Context) (T, error)) (T, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retry.DoWithData(
		func() (T, error) {
			return op(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxRetries)+1),
		retry.Delay(delay),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			if rle, ok := providers.IsRateLimitError(err); ok && rle.RetryAfter > 0 {
				return rle.RetryAfter
			}
			return retry.FixedDelay(n, err, config)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("attempt failed, retrying",
				"page", page,
				"attempt", n+1,
				"max_attempts", maxRetries+1,
				"error", err)
		}),
	)
}

func retryable(err error) bool {
	return !errors.Is(err, ErrInvalidConfig) &&
		!errors.Is(err, providers.ErrUnsupportedMode) &&
		!errors.Is(err, providers.ErrMissingCredentials) &&
		!errors.Is(err, context.Canceled)
}
