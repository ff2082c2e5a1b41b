package testutil

import (
	"github.com/flexprice/stripesync/internal/config"
	"github.com/flexprice/stripesync/internal/logger"
)

// GetLogger returns a logger for tests.
func GetLogger() *logger.Logger {
	log, err := logger.NewLogger(config.GetDefaultConfig())
	if err != nil {
		panic(err)
	}
	return log
}
