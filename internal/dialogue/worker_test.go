package dialogue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Esoteriker/openTree/internal/common/ids"
	apperrors "github.com/Esoteriker/openTree/internal/common/apperrors"
	"github.com/Esoteriker/openTree/internal/domain"
	"github.com/Esoteriker/openTree/internal/events/bus"
	"github.com/Esoteriker/openTree/internal/persistence"
)

type countingFailRunner struct {
	failures int
	calls    int
}

func (r *countingFailRunner) Run(_ context.Context, _, _ string, turn domain.Turn, _ []domain.Turn) (domain.DialogueTurnResponse, error) {
	r.calls++
	if r.calls <= r.failures {
		return domain.DialogueTurnResponse{}, apperrors.Transient("downstream unavailable", errors.New("boom"))
	}
	return domain.DialogueTurnResponse{Turn: turn}, nil
}

func setupWorker(t *testing.T, runner PipelineRunner, retryAttempts int) (*Worker, persistence.JobStore, bus.EventBus) {
	t.Helper()
	jobs := persistence.NewMemoryJobStore()
	events := bus.NewMemoryEventBus(nil)
	worker := NewWorker(events, jobs, runner, nil, WorkerConfig{
		ConsumerGroup:    "dialogue",
		ConsumerName:     "test",
		BatchSize:        10,
		BlockDuration:    10 * time.Millisecond,
		RetryMaxAttempts: retryAttempts,
		RetryBaseDelay:   time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	return worker, jobs, events
}

func enqueueJob(t *testing.T, ctx context.Context, jobs persistence.JobStore, events bus.EventBus, turn domain.Turn) string {
	t.Helper()
	now := ids.UTCNow()
	job := domain.AsyncJob{JobID: ids.New(ids.PrefixJob), TenantID: "t1", SessionID: turn.SessionID, TurnID: turn.TurnID, Status: domain.JobQueued, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, jobs.CreateJob(ctx, job))
	_, err := events.Publish(ctx, bus.TopicTurnIngested, turnIngestedPayload(job.JobID, "t1", "key", turn, nil), turn.TurnID)
	require.NoError(t, err)
	return job.JobID
}

func TestWorker_HandleSucceedsAndMarksJobCompleted(t *testing.T) {
	runner := &countingFailRunner{}
	worker, jobs, events := setupWorker(t, runner, 3)
	ctx := context.Background()

	turn := domain.Turn{TenantID: "t1", SessionID: "s1", TurnID: ids.New(ids.PrefixTurn), Speaker: domain.SpeakerUser, Content: "hi"}
	jobID := enqueueJob(t, ctx, jobs, events, turn)

	messages, err := events.Consume(ctx, bus.TopicTurnIngested, "dialogue", "test", 10, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	worker.handle(ctx, messages[0])

	job, err := jobs.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, job.Status)
	require.Equal(t, 1, runner.calls)
}

func TestWorker_HandleRetriesThenSucceeds(t *testing.T) {
	runner := &countingFailRunner{failures: 2}
	worker, jobs, events := setupWorker(t, runner, 3)
	ctx := context.Background()

	turn := domain.Turn{TenantID: "t1", SessionID: "s1", TurnID: ids.New(ids.PrefixTurn), Speaker: domain.SpeakerUser, Content: "hi"}
	jobID := enqueueJob(t, ctx, jobs, events, turn)

	messages, err := events.Consume(ctx, bus.TopicTurnIngested, "dialogue", "test", 10, 0)
	require.NoError(t, err)
	worker.handle(ctx, messages[0])

	job, err := jobs.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, job.Status)
	require.Equal(t, 3, runner.calls)
}

func TestWorker_HandleExhaustsRetriesAndDeadLetters(t *testing.T) {
	runner := &countingFailRunner{failures: 100}
	worker, jobs, events := setupWorker(t, runner, 3)
	ctx := context.Background()

	turn := domain.Turn{TenantID: "t1", SessionID: "s1", TurnID: ids.New(ids.PrefixTurn), Speaker: domain.SpeakerUser, Content: "hi"}
	jobID := enqueueJob(t, ctx, jobs, events, turn)

	messages, err := events.Consume(ctx, bus.TopicTurnIngested, "dialogue", "test", 10, 0)
	require.NoError(t, err)
	worker.handle(ctx, messages[0])

	job, err := jobs.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, job.Status)
	require.Equal(t, 3, runner.calls)
	require.NotEmpty(t, job.Error)

	deadLetters, err := events.Consume(ctx, bus.TopicTurnDeadLetter, "dialogue", "test", 10, 0)
	require.NoError(t, err)
	require.Len(t, deadLetters, 1)

	payload := deadLetters[0].Payload
	require.Equal(t, job.Error, payload["error"])
	turnPayload, ok := payload["turn"].(domain.Turn)
	require.True(t, ok, "dead letter payload must carry the original turn")
	require.Equal(t, turn.TurnID, turnPayload.TurnID)
	require.Equal(t, turn.Content, turnPayload.Content)
}

func TestWorker_HandleUnknownJobIsANoOp(t *testing.T) {
	runner := &countingFailRunner{}
	worker, _, events := setupWorker(t, runner, 1)
	ctx := context.Background()

	turn := domain.Turn{TenantID: "t1", SessionID: "s1", TurnID: ids.New(ids.PrefixTurn), Speaker: domain.SpeakerUser, Content: "hi"}
	_, err := events.Publish(ctx, bus.TopicTurnIngested, turnIngestedPayload("job_missing", "t1", "key", turn, nil), turn.TurnID)
	require.NoError(t, err)

	messages, err := events.Consume(ctx, bus.TopicTurnIngested, "dialogue", "test", 10, 0)
	require.NoError(t, err)
	worker.handle(ctx, messages[0])
	require.Equal(t, 0, runner.calls)
}
