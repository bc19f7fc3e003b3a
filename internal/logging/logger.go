// Package logging provides the structured logger shared by every zkgate process.
package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

var defaultLogger = New()

// New builds a zap logger. Mode is driven by APP_MODE: "production" gets the
// JSON encoder, anything else gets the human-readable development encoder.
func New() *zap.Logger {
	cfg := zap.NewProductionConfig()

	if os.Getenv("APP_MODE") != "production" {
		cfg = zap.NewDevelopmentConfig()
	}

	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := cfg.Build()
	if err != nil {
		log = zap.NewExample()
		log.Warn("falling back to example logger", zap.Error(err))
	}

	return log
}

// WithLogger attaches a logger to ctx so downstream calls can pull it back out
// without threading it through every function signature.
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger embedded in ctx, or the package default if
// none was attached.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return defaultLogger
}
