package obs

import (
	"sync"

	"go.uber.org/zap"
)

var loggerOnce sync.Once

// InitLogger builds the production JSON logger and installs it as the zap
// global, so packages log through zap.L() without carrying a logger handle.
func InitLogger() {
	loggerOnce.Do(func() {
		logger, err := zap.NewProduction()
		if err != nil {
			panic("obs: build logger: " + err.Error())
		}
		zap.ReplaceGlobals(logger)
	})
}

// Logger returns the shared structured logger used across the service.
func Logger() *zap.Logger {
	InitLogger()
	return zap.L()
}
