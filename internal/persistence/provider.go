package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Esoteriker/openTree/internal/common/config"
	"github.com/Esoteriker/openTree/internal/common/database"
	"github.com/Esoteriker/openTree/internal/common/logger"
)

// Provided bundles the session and job stores selected by config.Database.Driver.
// Provide returns it together with a single cleanup func that closes whatever
// backing connection they share.
type Provided struct {
	Sessions SessionStore
	Jobs     JobStore
}

// Provide builds the session and job stores for the dialogue service: "memory"
// (default) needs nothing further; "postgres" opens one shared connection
// pool and hands both stores a reference to it, so cleanup closes it once.
func Provide(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Provided, func() error, error) {
	if log == nil {
		log = logger.Default()
	}

	switch cfg.Database.Driver {
	case "postgres":
		db, err := database.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres connection: %w", err)
		}

		sessions, err := NewPostgresSessionStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize postgres session store: %w", err)
		}
		jobs, err := NewPostgresJobStore(ctx, db, cfg.Pipeline.JobTTL())
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to initialize postgres job store: %w", err)
		}

		log.Info("persistence initialized", zap.String("driver", "postgres"))
		cleanup := func() error {
			db.Close()
			return nil
		}
		return &Provided{Sessions: sessions, Jobs: jobs}, cleanup, nil

	default:
		log.Info("persistence initialized", zap.String("driver", "memory"))
		return &Provided{
			Sessions: NewMemorySessionStore(),
			Jobs:     NewMemoryJobStore(),
		}, func() error { return nil }, nil
	}
}
