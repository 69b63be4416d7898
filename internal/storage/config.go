package storage

import (
	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/logging"
)

// NewStoreFromConfig creates a lazily opened Store with settings from config
func NewStoreFromConfig(cfg config.IndexConfig, logger *logging.Logger) *Store {
	return New(cfg.Path, Options{
		DisableAcceleration: cfg.DisableAcceleration,
		Logger:              logger,
	})
}
