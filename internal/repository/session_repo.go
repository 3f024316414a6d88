// Package repository provides data access for persisted session
// metadata.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/agent-console/backend/internal/model"
)

// SessionRepository persists session metadata rows. Rows outlive the
// in-memory sessions: an evicted session stays auditable here.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a repository over db.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session row from a state snapshot.
func (r *SessionRepository) Create(ctx context.Context, s model.SessionState) error {
	query := `
		INSERT INTO sessions (id, workdir, model, state, exit_code, transcript_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var exitCode *int
	if s.ExitCode != nil {
		exitCode = s.ExitCode
	}

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Workdir, s.Model, s.State, exitCode, s.Transcript, s.CreatedAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetByID retrieves one session row.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (model.SessionState, error) {
	query := `
		SELECT id, workdir, model, state, exit_code, transcript_path, created_at
		FROM sessions
		WHERE id = ?
	`

	var (
		s          model.SessionState
		modelName  sql.NullString
		exitCode   sql.NullInt64
		transcript sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.Workdir, &modelName, &s.State, &exitCode, &transcript, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return model.SessionState{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.SessionState{}, fmt.Errorf("failed to query session: %w", err)
	}

	if modelName.Valid {
		s.Model = modelName.String
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		s.ExitCode = &code
	}
	if transcript.Valid {
		s.Transcript = transcript.String
	}
	return s, nil
}

// List retrieves every session row, newest first.
func (r *SessionRepository) List(ctx context.Context) ([]model.SessionState, error) {
	query := `
		SELECT id, workdir, model, state, exit_code, transcript_path, created_at
		FROM sessions
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.SessionState
	for rows.Next() {
		var (
			s          model.SessionState
			modelName  sql.NullString
			exitCode   sql.NullInt64
			transcript sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Workdir, &modelName, &s.State, &exitCode, &transcript, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if modelName.Valid {
			s.Model = modelName.String
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			s.ExitCode = &code
		}
		if transcript.Valid {
			s.Transcript = transcript.String
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return out, nil
}

// UpdateState records a state transition.
func (r *SessionRepository) UpdateState(ctx context.Context, id string, state model.ActivityState, exitCode *int) error {
	query := `
		UPDATE sessions
		SET state = ?, exit_code = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := r.db.ExecContext(ctx, query, state, exitCode, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update session state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

// Delete removes a session row.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}
