// Package main is the Dialogue service entry point: session/turn CRUD, the
// synchronous pipeline path, and (when enabled) the async worker draining
// turn.ingested off the event bus.
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
	"github.com/Esoteriker/openTree/internal/cipher"
	"github.com/Esoteriker/openTree/internal/common/config"
	"github.com/Esoteriker/openTree/internal/common/constants"
	"github.com/Esoteriker/openTree/internal/common/logger"
	"github.com/Esoteriker/openTree/internal/dialogue"
	"github.com/Esoteriker/openTree/internal/events"
	"github.com/Esoteriker/openTree/internal/httpapi"
	"github.com/Esoteriker/openTree/internal/persistence"
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

	log.Info("starting dialogue service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providedBus, closeBus, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer closeBus()
	eventBus := providedBus.Bus

	provided, closePersistence, err := persistence.Provide(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize persistence", zap.Error(err))
	}
	defer closePersistence()
	sessions, jobs := provided.Sessions, provided.Jobs

	contentCipher, err := cipher.New(cfg.Crypto.ContentEncryptionKey)
	if err != nil {
		log.Fatal("failed to initialize content cipher", zap.Error(err))
	}

	downstreamTimeout := cfg.Pipeline.DownstreamTimeout()
	pipelineRunner := dialogue.NewHTTPPipelineRunner(cfg.Services.ParserURL, cfg.Services.GraphURL, cfg.Services.SuggestionURL, downstreamTimeout)
	graphClient := dialogue.NewHTTPGraphClient(cfg.Services.GraphURL, downstreamTimeout)

	svc := dialogue.NewService(sessions, jobs, eventBus, contentCipher, pipelineRunner, graphClient, cfg.Pipeline.HistoryWindow, cfg.Pipeline.AsyncEnabled)

	var worker *dialogue.Worker
	if cfg.Pipeline.AsyncEnabled {
		worker = dialogue.NewWorker(eventBus, jobs, pipelineRunner, log, dialogue.WorkerConfig{
			ConsumerGroup:    cfg.NATS.ConsumerGroup,
			ConsumerName:     cfg.Pipeline.ConsumerName,
			BatchSize:        cfg.Pipeline.ConsumeBatchSize,
			BlockDuration:    cfg.Pipeline.ConsumeBlock(),
			RetryMaxAttempts: cfg.Pipeline.RetryMaxAttempts,
			RetryBaseDelay:   cfg.Pipeline.RetryBaseDelay(),
			ShutdownTimeout:  cfg.Pipeline.ShutdownTimeout(),
		})
		worker.Start(ctx)
		log.Info("async pipeline worker started")
	} else {
		log.Info("async pipeline disabled")
	}

	resolver := auth.NewResolver(cfg.Auth)
	readiness := httpapi.DialogueReadiness{
		ParserURL:     cfg.Services.ParserURL,
		GraphURL:      cfg.Services.GraphURL,
		SuggestionURL: cfg.Services.SuggestionURL,
		SessionStoreCheck: func() (bool, string) { return sessions.IsReady(ctx) },
		JobStoreCheck:     func() (bool, string) { return jobs.IsReady(ctx) },
		EventBusCheck: func() (bool, string) {
			ok := eventBus.IsReady(ctx)
			if ok {
				return true, "event bus reachable"
			}
			return false, "event bus unreachable"
		},
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewDialogueRouter(svc, resolver, log, cfg.Pipeline.AsyncEnabled, readiness)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("dialogue service listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down dialogue service")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownGracePeriod)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}
	if worker != nil {
		worker.Stop()
	}

	log.Info("dialogue service stopped")
}
