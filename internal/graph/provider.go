package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Esoteriker/openTree/internal/common/config"
	"github.com/Esoteriker/openTree/internal/common/database"
	"github.com/Esoteriker/openTree/internal/common/logger"
)

// Provide builds the Graph service's repository per config.Graph.Backend.
func Provide(ctx context.Context, cfg *config.Config, log *logger.Logger) (Repository, func() error, error) {
	if log == nil {
		log = logger.Default()
	}

	switch cfg.Graph.Backend {
	case "postgres":
		db, err := database.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres connection: %w", err)
		}
		repo, err := NewPostgresRepository(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize postgres graph repository: %w", err)
		}
		log.Info("graph repository initialized", zap.String("backend", "postgres"))
		return repo, func() error { db.Close(); return nil }, nil

	default:
		log.Info("graph repository initialized", zap.String("backend", "memory"))
		return NewMemoryRepository(), func() error { return nil }, nil
	}
}
