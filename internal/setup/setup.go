// Package setup performs the common application bootstrap: configuration
// loading and logger construction.
package setup

import (
	"log"

	"go.uber.org/zap"

	"github.com/sentrabot/sentra/internal/setup/config"
)

// AppSetup contains all the common setup components.
type AppSetup struct {
	Config *config.Config
	Logger *zap.Logger
}

// InitializeApp performs common setup tasks and returns an AppSetup.
func InitializeApp() (*AppSetup, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := GetLogger(cfg.Logging.Dir, cfg.Logging.Level, cfg.Logging.MaxLogsToKeep)
	if err != nil {
		return nil, err
	}

	return &AppSetup{
		Config: cfg,
		Logger: logger,
	}, nil
}

// CleanupApp performs cleanup tasks.
func (s *AppSetup) CleanupApp() {
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}
}
