package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/baton"
)

// Logging returns middleware that logs dispatch start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, env *baton.Envelope, next Handler) error {
		logger.Info("dispatch started",
			slog.String("message", env.Name),
			slog.String("message_id", env.ID.String()),
			slog.String("kind", env.Kind().String()),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("dispatch failed",
				slog.String("message", env.Name),
				slog.String("message_id", env.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("dispatch completed",
				slog.String("message", env.Name),
				slog.String("message_id", env.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
