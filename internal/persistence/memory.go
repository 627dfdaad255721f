package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/Esoteriker/openTree/internal/domain"
)

// MemorySessionStore holds sessions and turns in process memory. Used as the
// default backend and in tests; state is lost on restart.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	turns    map[string][]TurnRecord
}

// NewMemorySessionStore constructs an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domain.Session),
		turns:    make(map[string][]TurnRecord),
	}
}

func scopeKey(tenantID, sessionID string) string {
	return tenantID + ":" + sessionID
}

// CreateSession stores or replaces the session at (tenant_id, session_id).
func (s *MemorySessionStore) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[scopeKey(session.TenantID, session.SessionID)] = session
	return nil
}

// GetSession returns the session, or ErrNotFound.
func (s *MemorySessionStore) GetSession(_ context.Context, tenantID, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[scopeKey(tenantID, sessionID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &session, nil
}

// AppendTurn appends a turn record to its session's turn list, keyed by
// turn_id to make overwrite-on-retry idempotent: appending the same turn_id
// twice replaces the earlier record in place rather than duplicating it.
func (s *MemorySessionStore) AppendTurn(_ context.Context, turn domain.Turn, contentCiphertext string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopeKey(turn.TenantID, turn.SessionID)
	record := TurnRecord{
		TurnID:            turn.TurnID,
		TenantID:          turn.TenantID,
		SessionID:         turn.SessionID,
		Speaker:           turn.Speaker,
		ParentTurnID:      turn.ParentTurnID,
		CreatedAt:         turn.CreatedAt,
		ContentCiphertext: contentCiphertext,
	}

	rows := s.turns[key]
	for i, existing := range rows {
		if existing.TurnID == turn.TurnID {
			rows[i] = record
			s.turns[key] = rows
			return nil
		}
	}
	s.turns[key] = append(rows, record)
	return nil
}

// ListTurns returns the session's turns ordered by (created_at, turn_id).
func (s *MemorySessionStore) ListTurns(_ context.Context, tenantID, sessionID string) ([]TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.turns[scopeKey(tenantID, sessionID)]
	out := make([]TurnRecord, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].TurnID < out[j].TurnID
	})
	return out, nil
}

// IsReady is always true: there is no external connection to lose.
func (s *MemorySessionStore) IsReady(_ context.Context) (bool, string) {
	return true, "memory session store ready"
}

// Close is a no-op for the in-memory backend.
func (s *MemorySessionStore) Close() error { return nil }

// MemoryJobStore holds AsyncJob records in process memory, keyed by job_id.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.AsyncJob
}

// NewMemoryJobStore constructs an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]domain.AsyncJob)}
}

// CreateJob stores a new job record.
func (s *MemoryJobStore) CreateJob(_ context.Context, job domain.AsyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = job
	return nil
}

// UpsertJob overwrites the job record; this is how the worker advances a
// job's status field through its lifecycle.
func (s *MemoryJobStore) UpsertJob(_ context.Context, job domain.AsyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = job
	return nil
}

// GetJob returns the job, or ErrNotFound.
func (s *MemoryJobStore) GetJob(_ context.Context, jobID string) (*domain.AsyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

// IsReady is always true: there is no external connection to lose.
func (s *MemoryJobStore) IsReady(_ context.Context) (bool, string) {
	return true, "memory job store ready"
}

// Close is a no-op for the in-memory backend.
func (s *MemoryJobStore) Close() error { return nil }
