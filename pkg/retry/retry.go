package retry

import (
	"context"
	"time"

	apperrors "rideshare/pkg/errors"
	"rideshare/pkg/logger"

	"github.com/cenkalti/backoff/v5"
)

type Config struct {
	MaxTries        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Do runs op until it succeeds, the tries are used up or ctx ends.
// AppErrors are business outcomes (not found, forbidden, closed) and stop
// the loop immediately; anything else is treated as transient.
func Do(ctx context.Context, cfg Config, log *logger.Logger, name string, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := op(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if apperrors.IsAppError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(max(cfg.MaxTries, 1))),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("Retrying after transient failure",
				"operation", name,
				"attempt", attempt,
				"next_in", next.String(),
				"error", err,
			)
		}),
	)
	return err
}
