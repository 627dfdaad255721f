package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/Esoteriker/openTree/internal/common/ids"
	"github.com/Esoteriker/openTree/internal/common/logger"
	"github.com/Esoteriker/openTree/internal/common/stringutil"
	"github.com/Esoteriker/openTree/internal/domain"
	"github.com/Esoteriker/openTree/internal/events/bus"
	"github.com/Esoteriker/openTree/internal/persistence"
	"go.uber.org/zap"
)

// turnIngestedEvent is the wire shape published onto bus.TopicTurnIngested
// and consumed by the worker. api_key rides along so the worker can attach
// it to its own downstream pipeline calls, exactly as the synchronous path does.
type turnIngestedEvent struct {
	JobID     string        `json:"job_id"`
	TenantID  string        `json:"tenant_id"`
	SessionID string        `json:"session_id"`
	APIKey    string        `json:"api_key,omitempty"`
	Turn      domain.Turn   `json:"turn"`
	History   []domain.Turn `json:"history"`
}

func turnIngestedPayload(jobID, tenantID, apiKey string, turn domain.Turn, history []domain.Turn) map[string]interface{} {
	return map[string]interface{}{
		"job_id":     jobID,
		"tenant_id":  tenantID,
		"session_id": turn.SessionID,
		"api_key":    apiKey,
		"turn":       turn,
		"history":    history,
	}
}

func decodeTurnIngestedEvent(payload map[string]interface{}) (turnIngestedEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return turnIngestedEvent{}, err
	}
	var event turnIngestedEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return turnIngestedEvent{}, err
	}
	return event, nil
}

// WorkerConfig tunes the async worker's batch size, poll block, retry, and shutdown behavior.
type WorkerConfig struct {
	ConsumerGroup    string
	ConsumerName     string
	BatchSize        int
	BlockDuration    time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	ShutdownTimeout  time.Duration
}

// Worker drains bus.TopicTurnIngested, runs the pipeline per message with
// retry+backoff, and dead-letters messages that exhaust their attempts.
type Worker struct {
	events   bus.EventBus
	jobs     persistence.JobStore
	pipeline PipelineRunner
	log      *logger.Logger
	cfg      WorkerConfig

	stop chan struct{}
	done chan struct{}
}

// NewWorker constructs an async worker. log may be nil, in which case
// logger.Default() is used.
func NewWorker(events bus.EventBus, jobs persistence.JobStore, pipeline PipelineRunner, log *logger.Logger, cfg WorkerConfig) *Worker {
	if log == nil {
		log = logger.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = 500 * time.Millisecond
	}
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 250 * time.Millisecond
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}
	if cfg.ConsumerName == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "dialogue"
		}
		cfg.ConsumerName = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return &Worker{
		events:   events,
		jobs:     jobs,
		pipeline: pipeline,
		log:      log,
		cfg:      cfg,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the consume loop until Stop is called or ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the worker to exit and blocks until it does, or the
// configured shutdown timeout elapses.
func (w *Worker) Stop() {
	close(w.stop)
	select {
	case <-w.done:
	case <-time.After(w.cfg.ShutdownTimeout):
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		messages, err := w.events.Consume(ctx, bus.TopicTurnIngested, w.cfg.ConsumerGroup, w.cfg.ConsumerName, w.cfg.BatchSize, w.cfg.BlockDuration)
		if err != nil {
			w.log.Error("worker consume failed", zap.Error(err))
			continue
		}
		if len(messages) == 0 {
			continue
		}

		for _, message := range messages {
			w.handle(ctx, message)
		}

		messageIDs := make([]string, len(messages))
		for i, message := range messages {
			messageIDs[i] = message.MessageID
		}
		if err := w.events.Ack(ctx, bus.TopicTurnIngested, w.cfg.ConsumerGroup, messageIDs); err != nil {
			w.log.Error("worker ack failed", zap.Error(err))
		}
	}
}

func (w *Worker) handle(ctx context.Context, message bus.Envelope) {
	event, err := decodeTurnIngestedEvent(message.Payload)
	if err != nil {
		w.log.Error("worker failed to decode event", zap.Error(err))
		return
	}

	job, err := w.jobs.GetJob(ctx, event.JobID)
	if err != nil || job == nil {
		return
	}

	job.Status = domain.JobProcessing
	job.UpdatedAt = ids.UTCNow()
	_ = w.jobs.UpsertJob(ctx, *job)

	var lastErr error
	for attempt := 1; attempt <= w.cfg.RetryMaxAttempts; attempt++ {
		result, err := w.pipeline.Run(ctx, event.TenantID, event.APIKey, event.Turn, event.History)
		if err == nil {
			job.Status = domain.JobCompleted
			job.Result = &result
			job.UpdatedAt = ids.UTCNow()
			_ = w.jobs.UpsertJob(ctx, *job)
			_, _ = w.events.Publish(ctx, bus.TopicTurnProcessed, map[string]interface{}{
				"job_id":     job.JobID,
				"tenant_id":  job.TenantID,
				"session_id": job.SessionID,
				"turn_id":    job.TurnID,
				"status":     string(domain.JobCompleted),
			}, job.TurnID)
			return
		}

		lastErr = err
		w.log.WithSessionID(job.SessionID).WithError(err).Warn("async turn attempt failed",
			zap.String("job_id", job.JobID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", w.cfg.RetryMaxAttempts),
		)
		if attempt < w.cfg.RetryMaxAttempts {
			delay := time.Duration(float64(w.cfg.RetryBaseDelay) * math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
	}

	job.Status = domain.JobFailed
	if lastErr != nil {
		job.Error = lastErr.Error()
	}
	job.UpdatedAt = ids.UTCNow()
	_ = w.jobs.UpsertJob(ctx, *job)

	w.log.Error("turn exhausted retries, dead-lettering",
		zap.String("job_id", job.JobID),
		zap.String("turn_id", job.TurnID),
		zap.String("content_preview", stringutil.TruncateStringWithEllipsis(event.Turn.Content, 120)),
		zap.Error(lastErr),
	)

	_, _ = w.events.Publish(ctx, bus.TopicTurnDeadLetter, map[string]interface{}{
		"job_id":     job.JobID,
		"tenant_id":  job.TenantID,
		"session_id": job.SessionID,
		"turn_id":    job.TurnID,
		"status":     string(domain.JobFailed),
		"error":      job.Error,
		"turn":       event.Turn,
		"history":    event.History,
	}, job.TurnID)
}
