// README: Operation timing helper that logs duration and error through the context logger.
package infra

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Time logs how long op took when the returned func runs. Use as:
//
//	defer infra.Time(ctx, "geocode")(&err)
func Time(ctx context.Context, op string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		logger := zerolog.Ctx(ctx)
		ev := logger.Debug()
		if errp != nil && *errp != nil {
			ev = logger.Warn().Err(*errp)
		}
		ev.Str("op", op).Dur("elapsed", time.Since(start)).Msg("op finished")
	}
}
