package app

import (
	"fmt"

	"github.com/deusflow/aidigest/internal/config"
	"github.com/deusflow/aidigest/internal/knowledge"
	"github.com/deusflow/aidigest/internal/logger"
	"github.com/deusflow/aidigest/internal/storage"
)

// HistoryBackend provides a unified interface for the topic history stores.
type HistoryBackend interface {
	knowledge.HistoryStore
	Load()
	Entries() map[string]string
	Len() int
	Close() error
}

// fileHistoryBackend wraps FileHistory, which holds no connection.
type fileHistoryBackend struct {
	*storage.FileHistory
}

func (fileHistoryBackend) Close() error { return nil }

// OpenHistory builds and loads the configured history backend.
func OpenHistory(cfg config.KnowledgeConfig) (HistoryBackend, error) {
	var backend HistoryBackend

	switch cfg.HistoryBackend {
	case "postgres":
		ph, err := storage.NewPostgresHistory(cfg.DatabaseURL, cfg.MaxHistoryDays)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres history: %w", err)
		}
		backend = ph
	case "file", "":
		backend = fileHistoryBackend{storage.NewFileHistory(cfg.HistoryFile, cfg.MaxHistoryDays)}
	default:
		return nil, fmt.Errorf("unsupported history backend %q", cfg.HistoryBackend)
	}

	backend.Load()
	logger.Info("topic history loaded", "backend", cfg.HistoryBackend, "entries", backend.Len())
	return backend, nil
}
