// Package persistence defines the session and job storage contracts shared by
// the dialogue service, plus in-memory and PostgreSQL implementations.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/Esoteriker/openTree/internal/domain"
)

// ErrNotFound is returned by store lookups that find nothing at the given key.
var ErrNotFound = errors.New("persistence: not found")

// TurnRecord is one stored turn row: content is the ciphertext produced by
// internal/cipher, never plaintext. Callers decrypt after ListTurns.
type TurnRecord struct {
	TurnID            string
	TenantID          string
	SessionID         string
	Speaker           domain.Speaker
	ParentTurnID      *string
	CreatedAt         time.Time
	ContentCiphertext string
}

// SessionStore persists sessions and their turns. Turn content is always
// stored encrypted; callers are responsible for encrypting before append and
// decrypting after list.
type SessionStore interface {
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, tenantID, sessionID string) (*domain.Session, error)
	AppendTurn(ctx context.Context, turn domain.Turn, contentCiphertext string) error
	ListTurns(ctx context.Context, tenantID, sessionID string) ([]TurnRecord, error)
	IsReady(ctx context.Context) (bool, string)
	Close() error
}

// JobStore persists AsyncJob records for the async pipeline. Overwriting an
// existing job_id is intentional: upsert is how the worker advances a job
// through queued -> processing -> {completed, failed}.
type JobStore interface {
	CreateJob(ctx context.Context, job domain.AsyncJob) error
	UpsertJob(ctx context.Context, job domain.AsyncJob) error
	GetJob(ctx context.Context, jobID string) (*domain.AsyncJob, error)
	IsReady(ctx context.Context) (bool, string)
	Close() error
}
