package logging

import (
	"go.uber.org/zap"
)

// New builds the process logger. Production env gets JSON output,
// everything else the human-readable development encoder.
func New(env string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if env == "production" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		// zap only fails on invalid config; fall back to a no-op logger
		// rather than taking the process down over logging.
		return zap.NewNop()
	}
	return l
}
