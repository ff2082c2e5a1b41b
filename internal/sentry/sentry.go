package sentry

import (
	"time"

	"github.com/flexprice/stripesync/internal/config"
	"github.com/flexprice/stripesync/internal/logger"
	"github.com/getsentry/sentry-go"
)

// Service is the optional error-reporting bootstrap. Every method is a no-op
// when Sentry is disabled in the configuration.
type Service struct {
	cfg     *config.Configuration
	logger  *logger.Logger
	enabled bool
}

func NewService(cfg *config.Configuration, log *logger.Logger) *Service {
	return &Service{
		cfg:    cfg,
		logger: log,
	}
}

// Init initializes the Sentry client when enabled.
func (s *Service) Init() error {
	if !s.cfg.Sentry.Enabled {
		s.logger.Debug("Sentry is disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              s.cfg.Sentry.DSN,
		Environment:      s.cfg.Sentry.Environment,
		TracesSampleRate: s.cfg.Sentry.SampleRate,
	})
	if err != nil {
		s.logger.Errorw("Failed to initialize Sentry", "error", err)
		return err
	}

	s.enabled = true
	s.logger.Infow("Sentry initialized successfully",
		"environment", s.cfg.Sentry.Environment,
		"sample_rate", s.cfg.Sentry.SampleRate,
	)
	return nil
}

// CaptureError reports a fatal phase error.
func (s *Service) CaptureError(err error) {
	if !s.enabled || err == nil {
		return
	}
	sentry.CaptureException(err)
}

// Flush drains pending events before the process exits.
func (s *Service) Flush() {
	if !s.enabled {
		return
	}
	sentry.Flush(2 * time.Second)
}
