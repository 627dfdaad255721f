// Package main is the Graph service entry point: the per-session
// concept/relation deduplication store, backed by memory or PostgreSQL.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Esoteriker/openTree/internal/auth"
	"github.com/Esoteriker/openTree/internal/common/config"
	"github.com/Esoteriker/openTree/internal/common/constants"
	"github.com/Esoteriker/openTree/internal/common/logger"
	"github.com/Esoteriker/openTree/internal/graph"
	"github.com/Esoteriker/openTree/internal/httpapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting graph service", zap.String("backend", cfg.Graph.Backend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeRepo, err := graph.Provide(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize graph repository", zap.Error(err))
	}
	defer repo.Close()
	defer closeRepo()

	resolver := auth.NewResolver(cfg.Auth)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewGraphRouter(repo, resolver, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("graph service listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down graph service")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	log.Info("graph service stopped")
}
