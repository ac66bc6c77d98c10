package store

import (
	"github.com/cockroachdb/errors"

	"chatbak/internal/backup"
	"chatbak/internal/config"
)

// NewStoreFromConfig creates a Collector based on the store config type.
func NewStoreFromConfig(cfg config.StoreConfig) (backup.Collector, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem", "":
		if cfg.DataDir == "" {
			return nil, errors.New("filesystem store requires data_dir to be set")
		}
		return NewFileSystemStore(cfg.DataDir)
	default:
		return nil, errors.Newf("unknown store type: %s", cfg.Type)
	}
}
