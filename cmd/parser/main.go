// Package main is the Parser service entry point: turns a dialogue turn into
// concepts, relations, coreferences, and knowledge gaps, via either the
// heuristic backend or a remote transformer model with heuristic fallback.
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
	"github.com/Esoteriker/openTree/internal/httpapi"
	"github.com/Esoteriker/openTree/internal/parser"
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

	log.Info("starting parser service", zap.String("backend", cfg.Parser.Backend))

	backend, err := parser.Provide(cfg)
	if err != nil {
		log.Fatal("failed to initialize parser backend", zap.Error(err))
	}

	resolver := auth.NewResolver(cfg.Auth)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	backendName := cfg.Parser.Backend
	if backendName == "" {
		backendName = "heuristic"
	}
	router := httpapi.NewParserRouter(backend, resolver, log, backendName, cfg.Parser.TransformerURL)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("parser service listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down parser service")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	log.Info("parser service stopped")
}
