package commands

import (
	"os"
	"path/filepath"

	"github.com/Fato07/runway-music-video-generator/internal/config"
	"github.com/Fato07/runway-music-video-generator/internal/logging"
	"github.com/Fato07/runway-music-video-generator/pkg/errors"
)

// loadConfig reads and validates configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	logging.Configure(cfg.AppEnv, cfg.LogLevel)
	return cfg, nil
}

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(sqlitePath, fsmDBPath, resultsDir string) error {
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	// Only needed when the workflow runs
	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	if resultsDir != "" {
		if err := os.MkdirAll(resultsDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create results directory")
		}
	}

	return nil
}
