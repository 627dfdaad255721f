package dialogue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Esoteriker/openTree/internal/cipher"
	"github.com/Esoteriker/openTree/internal/common/ids"
	"github.com/Esoteriker/openTree/internal/domain"
	"github.com/Esoteriker/openTree/internal/events/bus"
	"github.com/Esoteriker/openTree/internal/persistence"
)

type fakePipelineRunner struct {
	response domain.DialogueTurnResponse
	err      error
	calls    int
}

func (f *fakePipelineRunner) Run(_ context.Context, _, _ string, turn domain.Turn, _ []domain.Turn) (domain.DialogueTurnResponse, error) {
	f.calls++
	if f.err != nil {
		return domain.DialogueTurnResponse{}, f.err
	}
	response := f.response
	response.Turn = turn
	return response, nil
}

type fakeGraphClient struct {
	snapshot domain.GraphSnapshot
}

func (f *fakeGraphClient) Snapshot(_ context.Context, _, _, _ string) (domain.GraphSnapshot, error) {
	return f.snapshot, nil
}

func newTestService(t *testing.T, pipeline PipelineRunner) (*Service, persistence.SessionStore, persistence.JobStore, bus.EventBus) {
	t.Helper()
	sessions := persistence.NewMemorySessionStore()
	jobs := persistence.NewMemoryJobStore()
	events := bus.NewMemoryEventBus(nil)
	contentCipher, err := cipher.New("")
	require.NoError(t, err)
	service := NewService(sessions, jobs, events, contentCipher, pipeline, &fakeGraphClient{}, defaultHistoryWindow, true)
	return service, sessions, jobs, events
}

func TestService_AddTurnSync_StoresTurnAndRunsPipeline(t *testing.T) {
	pipeline := &fakePipelineRunner{}
	service, _, _, _ := newTestService(t, pipeline)
	ctx := context.Background()

	session, err := service.CreateSession(ctx, "t1", "u1", nil)
	require.NoError(t, err)

	response, err := service.AddTurnSync(ctx, "t1", session.SessionID, "key", domain.TurnCreate{
		Speaker: domain.SpeakerUser,
		Content: "hello",
	})
	require.NoError(t, err)
	require.Equal(t, 1, pipeline.calls)
	require.Equal(t, "hello", response.Turn.Content)

	turns, err := service.ListTurns(ctx, "t1", session.SessionID)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Equal(t, "hello", turns[0].Content)
}

func TestService_AddTurnSync_UnknownSessionReturnsNotFound(t *testing.T) {
	service, _, _, _ := newTestService(t, &fakePipelineRunner{})
	_, err := service.AddTurnSync(context.Background(), "t1", "missing", "", domain.TurnCreate{Speaker: domain.SpeakerUser, Content: "hi"})
	require.Error(t, err)
}

func TestService_AddTurnSync_RejectsInvalidSpeaker(t *testing.T) {
	service, _, _, _ := newTestService(t, &fakePipelineRunner{})
	ctx := context.Background()

	session, err := service.CreateSession(ctx, "t1", "u1", nil)
	require.NoError(t, err)

	_, err = service.AddTurnSync(ctx, "t1", session.SessionID, "", domain.TurnCreate{Speaker: "narrator", Content: "hi"})
	require.Error(t, err)
}

func TestService_AddTurnAsync_DisabledReturnsConflict(t *testing.T) {
	sessions := persistence.NewMemorySessionStore()
	jobs := persistence.NewMemoryJobStore()
	events := bus.NewMemoryEventBus(nil)
	contentCipher, err := cipher.New("")
	require.NoError(t, err)
	service := NewService(sessions, jobs, events, contentCipher, &fakePipelineRunner{}, &fakeGraphClient{}, defaultHistoryWindow, false)

	ctx := context.Background()
	session, err := service.CreateSession(ctx, "t1", "u1", nil)
	require.NoError(t, err)

	_, err = service.AddTurnAsync(ctx, "t1", session.SessionID, "", domain.TurnCreate{Speaker: domain.SpeakerUser, Content: "hi"})
	require.Error(t, err)
}

func TestService_AddTurnAsync_EnqueuesJobAndPublishesEvent(t *testing.T) {
	service, _, jobs, events := newTestService(t, &fakePipelineRunner{})
	ctx := context.Background()

	session, err := service.CreateSession(ctx, "t1", "u1", nil)
	require.NoError(t, err)

	accepted, err := service.AddTurnAsync(ctx, "t1", session.SessionID, "key", domain.TurnCreate{Speaker: domain.SpeakerUser, Content: "hi"})
	require.NoError(t, err)
	require.Equal(t, domain.JobQueued, accepted.Status)

	job, err := jobs.GetJob(ctx, accepted.JobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobQueued, job.Status)

	messages, err := events.Consume(ctx, bus.TopicTurnIngested, "g1", "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
}

func TestService_GetJob_RejectsTenantMismatch(t *testing.T) {
	service, _, jobs, _ := newTestService(t, &fakePipelineRunner{})
	ctx := context.Background()
	now := ids.UTCNow()
	require.NoError(t, jobs.CreateJob(ctx, domain.AsyncJob{
		JobID: "job_1", TenantID: "other-tenant", SessionID: "s1", TurnID: "turn_1",
		Status: domain.JobQueued, CreatedAt: now, UpdatedAt: now,
	}))

	_, err := service.GetJob(ctx, "t1", "job_1")
	require.Error(t, err)
}

func TestService_GetContextPath_ReturnsParentChain(t *testing.T) {
	service, _, _, _ := newTestService(t, &fakePipelineRunner{})
	ctx := context.Background()

	session, err := service.CreateSession(ctx, "t1", "u1", nil)
	require.NoError(t, err)

	_, err = service.AddTurnSync(ctx, "t1", session.SessionID, "", domain.TurnCreate{Speaker: domain.SpeakerUser, Content: "first"})
	require.NoError(t, err)

	path, err := service.GetContextPath(ctx, "t1", session.SessionID)
	require.NoError(t, err)
	require.Len(t, path, 1)
	require.Equal(t, domain.SpeakerUser, path[0].Speaker)
}
