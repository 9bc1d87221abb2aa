package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tilawah-live-api/internal/models"
)

const liveSessionColumns = `id, batch_id, child_id, parent_id, role, current_surah, current_ayah, status, version, created_at, updated_at, ended_at`

// LiveSessionRepository persists live sessions and the per-child daily counters.
type LiveSessionRepository struct {
	db *sqlx.DB
}

// NewLiveSessionRepository constructs the repository.
func NewLiveSessionRepository(db *sqlx.DB) *LiveSessionRepository {
	return &LiveSessionRepository{db: db}
}

// StartOrJoin returns the open session for (batch, child) or creates one in
// waiting state. The daily counter row is locked for the whole transaction so
// concurrent starts for the same child serialise on it.
func (r *LiveSessionRepository) StartOrJoin(ctx context.Context, params models.StartSessionParams) (result *models.StartSessionResult, err error) {
	day := params.Day.Format("2006-01-02")

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin start session transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const ensureCounter = `INSERT INTO session_daily_counts (child_id, day, count) VALUES ($1, $2, 0)
ON CONFLICT (child_id, day) DO NOTHING`
	if _, err = tx.ExecContext(ctx, ensureCounter, params.ChildID, day); err != nil {
		return nil, fmt.Errorf("ensure daily counter: %w", err)
	}

	var count int
	const lockCounter = `SELECT count FROM session_daily_counts WHERE child_id = $1 AND day = $2 FOR UPDATE`
	if err = tx.GetContext(ctx, &count, lockCounter, params.ChildID, day); err != nil {
		return nil, fmt.Errorf("lock daily counter: %w", err)
	}

	var existing models.LiveSession
	findOpen := `SELECT ` + liveSessionColumns + ` FROM live_sessions
WHERE batch_id = $1 AND child_id = $2 AND status <> 'ended' LIMIT 1`
	err = tx.GetContext(ctx, &existing, findOpen, params.BatchID, params.ChildID)
	switch {
	case err == nil:
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit start session: %w", err)
		}
		return &models.StartSessionResult{Session: &existing, DailyCount: count}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("find open session: %w", err)
	}
	err = nil

	if params.DailyLimit > 0 && count >= params.DailyLimit {
		err = &models.DailyLimitError{Limit: params.DailyLimit, Count: count}
		return nil, err
	}

	now := params.Now.UTC()
	session := models.LiveSession{
		ID:        uuid.NewString(),
		BatchID:   params.BatchID,
		ChildID:   params.ChildID,
		ParentID:  params.ParentID,
		Role:      params.Role,
		Status:    models.SessionStatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	const insertSession = `INSERT INTO live_sessions (id, batch_id, child_id, parent_id, role, current_surah, current_ayah, status, version, created_at, updated_at)
VALUES (:id, :batch_id, :child_id, :parent_id, :role, NULL, NULL, :status, 0, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertSession, session); err != nil {
		if isUniqueViolation(err) {
			err = ErrDuplicate
			return nil, err
		}
		return nil, fmt.Errorf("insert live session: %w", err)
	}

	const bumpCounter = `UPDATE session_daily_counts SET count = count + 1 WHERE child_id = $1 AND day = $2`
	if _, err = tx.ExecContext(ctx, bumpCounter, params.ChildID, day); err != nil {
		return nil, fmt.Errorf("increment daily counter: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit start session: %w", err)
	}
	return &models.StartSessionResult{Session: &session, Created: true, DailyCount: count + 1}, nil
}

// GetByID fetches a session, returning sql.ErrNoRows when missing.
func (r *LiveSessionRepository) GetByID(ctx context.Context, id string) (*models.LiveSession, error) {
	var session models.LiveSession
	query := `SELECT ` + liveSessionColumns + ` FROM live_sessions WHERE id = $1`
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get live session: %w", err)
	}
	return &session, nil
}

// FindOpen returns the non-ended session for the pair, or sql.ErrNoRows.
func (r *LiveSessionRepository) FindOpen(ctx context.Context, batchID, childID string) (*models.LiveSession, error) {
	var session models.LiveSession
	query := `SELECT ` + liveSessionColumns + ` FROM live_sessions
WHERE batch_id = $1 AND child_id = $2 AND status <> 'ended' LIMIT 1`
	if err := r.db.GetContext(ctx, &session, query, batchID, childID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find open session: %w", err)
	}
	return &session, nil
}

// UpdatePosition writes a new position only when it differs from the stored
// one. It returns sql.ErrNoRows when nothing was written: the session is
// missing, ended, or already at that position.
func (r *LiveSessionRepository) UpdatePosition(ctx context.Context, id string, pos models.Position, at time.Time) (*models.LiveSession, error) {
	query := `UPDATE live_sessions
SET current_surah = $2, current_ayah = $3, status = 'active', version = version + 1, updated_at = $4
WHERE id = $1 AND status <> 'ended'
	AND (current_surah IS DISTINCT FROM $2 OR current_ayah IS DISTINCT FROM $3)
RETURNING ` + liveSessionColumns

	var session models.LiveSession
	if err := r.db.GetContext(ctx, &session, query, id, pos.Surah, pos.Ayah, at.UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update session position: %w", err)
	}
	return &session, nil
}

// End marks an open session as ended. It returns sql.ErrNoRows when the
// session is missing or already ended.
func (r *LiveSessionRepository) End(ctx context.Context, id string, at time.Time) (*models.LiveSession, error) {
	query := `UPDATE live_sessions
SET status = 'ended', ended_at = $2, updated_at = $2, version = version + 1
WHERE id = $1 AND status <> 'ended'
RETURNING ` + liveSessionColumns

	var session models.LiveSession
	if err := r.db.GetContext(ctx, &session, query, id, at.UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("end live session: %w", err)
	}
	return &session, nil
}
