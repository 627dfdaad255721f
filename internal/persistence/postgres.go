package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Esoteriker/openTree/internal/common/database"
	"github.com/Esoteriker/openTree/internal/domain"
)

// PostgresSessionStore persists sessions and turns in PostgreSQL. Schema is
// created lazily on construction so a fresh database needs no migration step
// to start serving the dialogue service.
type PostgresSessionStore struct {
	db *database.DB
}

// NewPostgresSessionStore opens the session/turn tables, creating them if
// they do not already exist.
func NewPostgresSessionStore(ctx context.Context, db *database.DB) (*PostgresSessionStore, error) {
	store := &PostgresSessionStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresSessionStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS dialogue_sessions (
			tenant_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			metadata JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (tenant_id, session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS dialogue_turns (
			tenant_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			turn_id TEXT NOT NULL,
			speaker TEXT NOT NULL,
			parent_turn_id TEXT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			content_ciphertext TEXT NOT NULL,
			PRIMARY KEY (tenant_id, session_id, turn_id),
			CONSTRAINT fk_turn_session
				FOREIGN KEY (tenant_id, session_id)
				REFERENCES dialogue_sessions(tenant_id, session_id)
				ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dialogue_turns_lookup
			ON dialogue_turns (tenant_id, session_id, created_at, turn_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply session store schema: %w", err)
		}
	}
	return nil
}

// CreateSession upserts the session row.
func (s *PostgresSessionStore) CreateSession(ctx context.Context, session domain.Session) error {
	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO dialogue_sessions (tenant_id, session_id, user_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, session_id) DO UPDATE
		SET user_id = EXCLUDED.user_id, metadata = EXCLUDED.metadata, created_at = EXCLUDED.created_at
	`, session.TenantID, session.SessionID, session.UserID, metadata, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession looks up the session, or ErrNotFound.
func (s *PostgresSessionStore) GetSession(ctx context.Context, tenantID, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT tenant_id, session_id, user_id, metadata, created_at
		FROM dialogue_sessions
		WHERE tenant_id = $1 AND session_id = $2
	`, tenantID, sessionID)

	var session domain.Session
	var metadata []byte
	if err := row.Scan(&session.TenantID, &session.SessionID, &session.UserID, &metadata, &session.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session metadata: %w", err)
		}
	}
	return &session, nil
}

// AppendTurn upserts the turn row; retried deliveries of the same turn_id
// overwrite rather than duplicate.
func (s *PostgresSessionStore) AppendTurn(ctx context.Context, turn domain.Turn, contentCiphertext string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO dialogue_turns (tenant_id, session_id, turn_id, speaker, parent_turn_id, created_at, content_ciphertext)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, session_id, turn_id) DO UPDATE
		SET speaker = EXCLUDED.speaker,
			parent_turn_id = EXCLUDED.parent_turn_id,
			created_at = EXCLUDED.created_at,
			content_ciphertext = EXCLUDED.content_ciphertext
	`, turn.TenantID, turn.SessionID, turn.TurnID, string(turn.Speaker), turn.ParentTurnID, turn.CreatedAt, contentCiphertext)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// ListTurns returns the session's turns ordered by creation time.
func (s *PostgresSessionStore) ListTurns(ctx context.Context, tenantID, sessionID string) ([]TurnRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT turn_id, tenant_id, session_id, speaker, parent_turn_id, created_at, content_ciphertext
		FROM dialogue_turns
		WHERE tenant_id = $1 AND session_id = $2
		ORDER BY created_at ASC, turn_id ASC
	`, tenantID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var records []TurnRecord
	for rows.Next() {
		var record TurnRecord
		var speaker string
		if err := rows.Scan(&record.TurnID, &record.TenantID, &record.SessionID, &speaker,
			&record.ParentTurnID, &record.CreatedAt, &record.ContentCiphertext); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		record.Speaker = domain.Speaker(speaker)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turn rows: %w", err)
	}
	return records, nil
}

// IsReady pings the pool.
func (s *PostgresSessionStore) IsReady(ctx context.Context) (bool, string) {
	if err := s.db.Ping(ctx); err != nil {
		return false, fmt.Sprintf("postgres session store not ready: %v", err)
	}
	return true, "postgres session store ready"
}

// Close closes the underlying pool.
func (s *PostgresSessionStore) Close() error {
	s.db.Close()
	return nil
}

// PostgresJobStore persists AsyncJob records in PostgreSQL with an explicit
// expires_at column so GetJob can treat a stale row as not found without a
// separate reaper process.
type PostgresJobStore struct {
	db  *database.DB
	ttl time.Duration
}

// NewPostgresJobStore opens the jobs table, creating it if it does not exist.
func NewPostgresJobStore(ctx context.Context, db *database.DB, ttl time.Duration) (*PostgresJobStore, error) {
	store := &PostgresJobStore{db: db, ttl: ttl}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresJobStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS dialogue_async_jobs (
			job_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			turn_id TEXT NOT NULL,
			status TEXT NOT NULL,
			result JSONB NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to apply job store schema: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) put(ctx context.Context, job domain.AsyncJob) error {
	var result []byte
	if job.Result != nil {
		encoded, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal job result: %w", err)
		}
		result = encoded
	}

	expiresAt := job.UpdatedAt.Add(s.ttl)
	_, err := s.db.Exec(ctx, `
		INSERT INTO dialogue_async_jobs (job_id, tenant_id, session_id, turn_id, status, result, error, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id) DO UPDATE
		SET status = EXCLUDED.status,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at
	`, job.JobID, job.TenantID, job.SessionID, job.TurnID, string(job.Status), result, job.Error,
		job.CreatedAt, job.UpdatedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to persist job: %w", err)
	}
	return nil
}

// CreateJob inserts (or replaces) the job record.
func (s *PostgresJobStore) CreateJob(ctx context.Context, job domain.AsyncJob) error {
	return s.put(ctx, job)
}

// UpsertJob overwrites the job record with its new status/result.
func (s *PostgresJobStore) UpsertJob(ctx context.Context, job domain.AsyncJob) error {
	return s.put(ctx, job)
}

// GetJob returns the job if present and not past its TTL-derived expiry.
func (s *PostgresJobStore) GetJob(ctx context.Context, jobID string) (*domain.AsyncJob, error) {
	row := s.db.QueryRow(ctx, `
		SELECT job_id, tenant_id, session_id, turn_id, status, result, error, created_at, updated_at, expires_at
		FROM dialogue_async_jobs
		WHERE job_id = $1
	`, jobID)

	var job domain.AsyncJob
	var status string
	var result []byte
	var expiresAt time.Time
	if err := row.Scan(&job.JobID, &job.TenantID, &job.SessionID, &job.TurnID, &status, &result,
		&job.Error, &job.CreatedAt, &job.UpdatedAt, &expiresAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if time.Now().After(expiresAt) {
		return nil, ErrNotFound
	}
	job.Status = domain.AsyncJobStatus(status)
	if len(result) > 0 {
		var decoded domain.DialogueTurnResponse
		if err := json.Unmarshal(result, &decoded); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job result: %w", err)
		}
		job.Result = &decoded
	}
	return &job, nil
}

// IsReady pings the pool.
func (s *PostgresJobStore) IsReady(ctx context.Context) (bool, string) {
	if err := s.db.Ping(ctx); err != nil {
		return false, fmt.Sprintf("postgres job store not ready: %v", err)
	}
	return true, "postgres job store ready"
}

// Close closes the underlying pool.
func (s *PostgresJobStore) Close() error {
	s.db.Close()
	return nil
}
