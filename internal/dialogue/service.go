// Package dialogue implements the Dialogue service: session/turn CRUD, the
// synchronous and asynchronous turn-processing pipelines, and the async
// worker that drains the turn-ingestion topic.
package dialogue

import (
	"context"

	apperrors "github.com/Esoteriker/openTree/internal/common/apperrors"
	"github.com/Esoteriker/openTree/internal/cipher"
	"github.com/Esoteriker/openTree/internal/common/ids"
	"github.com/Esoteriker/openTree/internal/domain"
	"github.com/Esoteriker/openTree/internal/events/bus"
	"github.com/Esoteriker/openTree/internal/persistence"
)

// defaultHistoryWindow bounds how many prior turns are sent downstream as context.
const defaultHistoryWindow = 12

// Service implements the Dialogue service's domain operations. It owns no
// HTTP concerns; the gin layer adapts these methods to routes.
type Service struct {
	sessions      persistence.SessionStore
	jobs          persistence.JobStore
	events        bus.EventBus
	cipher        *cipher.ContentCipher
	pipeline      PipelineRunner
	graph         GraphClient
	historyWindow int
	asyncEnabled  bool
}

// NewService wires a Dialogue service from its collaborators.
func NewService(sessions persistence.SessionStore, jobs persistence.JobStore, events bus.EventBus, contentCipher *cipher.ContentCipher, pipeline PipelineRunner, graph GraphClient, historyWindow int, asyncEnabled bool) *Service {
	if historyWindow <= 0 {
		historyWindow = defaultHistoryWindow
	}
	return &Service{
		sessions:      sessions,
		jobs:          jobs,
		events:        events,
		cipher:        contentCipher,
		pipeline:      pipeline,
		graph:         graph,
		historyWindow: historyWindow,
		asyncEnabled:  asyncEnabled,
	}
}

// CreateSession creates and persists a new session for a tenant.
func (s *Service) CreateSession(ctx context.Context, tenantID, userID string, metadata map[string]interface{}) (domain.Session, error) {
	session := domain.Session{
		TenantID:  tenantID,
		SessionID: ids.New(ids.PrefixSession),
		UserID:    userID,
		Metadata:  metadata,
		CreatedAt: ids.UTCNow(),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return domain.Session{}, apperrors.InternalError("failed to create session", err)
	}
	return session, nil
}

// ListTurns returns every turn in a session, plaintext, in append order.
func (s *Service) ListTurns(ctx context.Context, tenantID, sessionID string) ([]domain.Turn, error) {
	if _, err := s.requireSession(ctx, tenantID, sessionID); err != nil {
		return nil, err
	}
	return s.materializeTurns(ctx, tenantID, sessionID)
}

// validSpeaker rejects any speaker value outside the user/assistant/system enum.
func validSpeaker(speaker domain.Speaker) error {
	switch speaker {
	case domain.SpeakerUser, domain.SpeakerAssistant, domain.SpeakerSystem:
		return nil
	default:
		return apperrors.ValidationError("speaker", "must be one of: user, assistant, system")
	}
}

// AddTurnSync stores the turn, runs the full pipeline inline, and returns its result.
func (s *Service) AddTurnSync(ctx context.Context, tenantID, sessionID, apiKey string, create domain.TurnCreate) (domain.DialogueTurnResponse, error) {
	if err := validSpeaker(create.Speaker); err != nil {
		return domain.DialogueTurnResponse{}, err
	}
	if _, err := s.requireSession(ctx, tenantID, sessionID); err != nil {
		return domain.DialogueTurnResponse{}, err
	}

	history, err := s.recentHistory(ctx, tenantID, sessionID)
	if err != nil {
		return domain.DialogueTurnResponse{}, err
	}

	turn := s.newTurn(tenantID, sessionID, create)
	if err := s.storeTurn(ctx, turn); err != nil {
		return domain.DialogueTurnResponse{}, err
	}

	response, err := s.pipeline.Run(ctx, tenantID, apiKey, turn, history)
	if err != nil {
		return domain.DialogueTurnResponse{}, err
	}

	_, _ = s.events.Publish(ctx, bus.TopicTurnProcessed, map[string]interface{}{
		"tenant_id":  tenantID,
		"session_id": sessionID,
		"turn_id":    turn.TurnID,
		"status":     string(domain.JobCompleted),
	}, turn.TurnID)

	return response, nil
}

// AddTurnAsync stores the turn, enqueues a job, and publishes it onto the
// ingestion topic for the worker to pick up. It returns immediately.
func (s *Service) AddTurnAsync(ctx context.Context, tenantID, sessionID, apiKey string, create domain.TurnCreate) (domain.AsyncTurnAccepted, error) {
	if !s.asyncEnabled {
		return domain.AsyncTurnAccepted{}, apperrors.Conflict("async pipeline is disabled")
	}
	if err := validSpeaker(create.Speaker); err != nil {
		return domain.AsyncTurnAccepted{}, err
	}
	if _, err := s.requireSession(ctx, tenantID, sessionID); err != nil {
		return domain.AsyncTurnAccepted{}, err
	}

	history, err := s.recentHistory(ctx, tenantID, sessionID)
	if err != nil {
		return domain.AsyncTurnAccepted{}, err
	}

	turn := s.newTurn(tenantID, sessionID, create)
	if err := s.storeTurn(ctx, turn); err != nil {
		return domain.AsyncTurnAccepted{}, err
	}

	now := ids.UTCNow()
	job := domain.AsyncJob{
		JobID:     ids.New(ids.PrefixJob),
		TenantID:  tenantID,
		SessionID: sessionID,
		TurnID:    turn.TurnID,
		Status:    domain.JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return domain.AsyncTurnAccepted{}, apperrors.InternalError("failed to create job", err)
	}

	if _, err := s.events.Publish(ctx, bus.TopicTurnIngested, turnIngestedPayload(job.JobID, tenantID, apiKey, turn, history), turn.TurnID); err != nil {
		return domain.AsyncTurnAccepted{}, apperrors.Transient("failed to publish turn ingestion event", err)
	}

	return domain.AsyncTurnAccepted{JobID: job.JobID, TurnID: turn.TurnID, Status: domain.JobQueued}, nil
}

// GetJob looks up the materialized view of an async job.
func (s *Service) GetJob(ctx context.Context, tenantID, jobID string) (domain.AsyncTurnJobResponse, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if err == persistence.ErrNotFound {
			return domain.AsyncTurnJobResponse{}, apperrors.NotFound("job", jobID)
		}
		return domain.AsyncTurnJobResponse{}, apperrors.InternalError("failed to fetch job", err)
	}
	if job.TenantID != tenantID {
		return domain.AsyncTurnJobResponse{}, apperrors.Forbidden("tenant mismatch for job")
	}
	return domain.AsyncTurnJobResponse{
		JobID:     job.JobID,
		TenantID:  job.TenantID,
		SessionID: job.SessionID,
		TurnID:    job.TurnID,
		Status:    job.Status,
		Result:    job.Result,
		Error:     job.Error,
	}, nil
}

// GetContextPath returns the flattened parent-chain sequence of a session's turns.
func (s *Service) GetContextPath(ctx context.Context, tenantID, sessionID string) ([]domain.ContextPathEntry, error) {
	turns, err := s.ListTurns(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	path := make([]domain.ContextPathEntry, 0, len(turns))
	for _, turn := range turns {
		path = append(path, domain.ContextPathEntry{
			TurnID:       turn.TurnID,
			Speaker:      turn.Speaker,
			ParentTurnID: turn.ParentTurnID,
		})
	}
	return path, nil
}

// GetSessionGraph fetches the session's deduplicated graph snapshot from the Graph service.
func (s *Service) GetSessionGraph(ctx context.Context, tenantID, apiKey, sessionID string) (domain.GraphSnapshot, error) {
	if _, err := s.requireSession(ctx, tenantID, sessionID); err != nil {
		return domain.GraphSnapshot{}, err
	}
	return s.graph.Snapshot(ctx, tenantID, apiKey, sessionID)
}

func (s *Service) requireSession(ctx context.Context, tenantID, sessionID string) (domain.Session, error) {
	session, err := s.sessions.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		if err == persistence.ErrNotFound {
			return domain.Session{}, apperrors.NotFound("session", sessionID)
		}
		return domain.Session{}, apperrors.InternalError("failed to fetch session", err)
	}
	if session == nil {
		return domain.Session{}, apperrors.NotFound("session", sessionID)
	}
	return *session, nil
}

func (s *Service) recentHistory(ctx context.Context, tenantID, sessionID string) ([]domain.Turn, error) {
	turns, err := s.materializeTurns(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if len(turns) > s.historyWindow {
		turns = turns[len(turns)-s.historyWindow:]
	}
	return turns, nil
}

func (s *Service) materializeTurns(ctx context.Context, tenantID, sessionID string) ([]domain.Turn, error) {
	rows, err := s.sessions.ListTurns(ctx, tenantID, sessionID)
	if err != nil {
		return nil, apperrors.InternalError("failed to list turns", err)
	}
	turns := make([]domain.Turn, 0, len(rows))
	for _, row := range rows {
		plaintext, err := s.cipher.Decrypt(row.ContentCiphertext)
		if err != nil {
			return nil, apperrors.InternalError("failed to decrypt turn content", err)
		}
		turns = append(turns, domain.Turn{
			TurnID:       row.TurnID,
			TenantID:     row.TenantID,
			SessionID:    row.SessionID,
			Speaker:      row.Speaker,
			Content:      plaintext,
			ParentTurnID: row.ParentTurnID,
			CreatedAt:    row.CreatedAt,
		})
	}
	return turns, nil
}

func (s *Service) newTurn(tenantID, sessionID string, create domain.TurnCreate) domain.Turn {
	return domain.Turn{
		TenantID:     tenantID,
		SessionID:    sessionID,
		TurnID:       ids.New(ids.PrefixTurn),
		Speaker:      create.Speaker,
		Content:      create.Content,
		ParentTurnID: create.ParentTurnID,
		CreatedAt:    ids.UTCNow(),
	}
}

func (s *Service) storeTurn(ctx context.Context, turn domain.Turn) error {
	ciphertext, err := s.cipher.Encrypt(turn.Content)
	if err != nil {
		return apperrors.InternalError("failed to encrypt turn content", err)
	}
	if err := s.sessions.AppendTurn(ctx, turn, ciphertext); err != nil {
		return apperrors.InternalError("failed to append turn", err)
	}
	return nil
}
