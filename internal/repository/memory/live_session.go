package memory

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/tilawah-live-api/internal/models"
)

// LiveSessionRepository is the in-memory session store. A single mutex covers
// sessions and daily counters so start calls check and increment atomically.
type LiveSessionRepository struct {
	db *sessionTable
}

// NewLiveSessionRepository binds the repository to the DB.
func NewLiveSessionRepository(db *DB) *LiveSessionRepository {
	return &LiveSessionRepository{db: db.sessions}
}

// StartOrJoin returns the open session for the pair or creates a waiting one.
func (r *LiveSessionRepository) StartOrJoin(_ context.Context, params models.StartSessionParams) (*models.StartSessionResult, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	key := dailyKey{childID: params.ChildID, day: params.Day.Format("2006-01-02")}
	count := r.db.counts[key]

	if open := r.findOpen(params.BatchID, params.ChildID); open != nil {
		return &models.StartSessionResult{Session: copySession(open), DailyCount: count}, nil
	}
	if params.DailyLimit > 0 && count >= params.DailyLimit {
		return nil, &models.DailyLimitError{Limit: params.DailyLimit, Count: count}
	}

	now := params.Now.UTC()
	session := &models.LiveSession{
		ID:        uuid.NewString(),
		BatchID:   params.BatchID,
		ChildID:   params.ChildID,
		ParentID:  params.ParentID,
		Role:      params.Role,
		Status:    models.SessionStatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.db.t[session.ID] = session
	r.db.counts[key] = count + 1

	return &models.StartSessionResult{Session: copySession(session), Created: true, DailyCount: count + 1}, nil
}

func (r *LiveSessionRepository) findOpen(batchID, childID string) *models.LiveSession {
	for _, session := range r.db.t {
		if session.BatchID == batchID && session.ChildID == childID && !session.Ended() {
			return session
		}
	}
	return nil
}

// GetByID fetches a session.
func (r *LiveSessionRepository) GetByID(_ context.Context, id string) (*models.LiveSession, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	if session, ok := r.db.t[id]; ok {
		return copySession(session), nil
	}
	return nil, sql.ErrNoRows
}

// FindOpen returns the non-ended session for the pair.
func (r *LiveSessionRepository) FindOpen(_ context.Context, batchID, childID string) (*models.LiveSession, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	if open := r.findOpen(batchID, childID); open != nil {
		return copySession(open), nil
	}
	return nil, sql.ErrNoRows
}

// UpdatePosition writes a changed position, or returns sql.ErrNoRows.
func (r *LiveSessionRepository) UpdatePosition(_ context.Context, id string, pos models.Position, at time.Time) (*models.LiveSession, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	session, ok := r.db.t[id]
	if !ok || session.Ended() || session.AtPosition(pos) {
		return nil, sql.ErrNoRows
	}
	surah, ayah := pos.Surah, pos.Ayah
	session.CurrentSurah = &surah
	session.CurrentAyah = &ayah
	session.Status = models.SessionStatusActive
	session.Version++
	session.UpdatedAt = at.UTC()
	return copySession(session), nil
}

// End terminates an open session, or returns sql.ErrNoRows.
func (r *LiveSessionRepository) End(_ context.Context, id string, at time.Time) (*models.LiveSession, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	session, ok := r.db.t[id]
	if !ok || session.Ended() {
		return nil, sql.ErrNoRows
	}
	endedAt := at.UTC()
	session.Status = models.SessionStatusEnded
	session.EndedAt = &endedAt
	session.UpdatedAt = endedAt
	session.Version++
	return copySession(session), nil
}

// copySession detaches the returned value from the stored pointers.
func copySession(session *models.LiveSession) *models.LiveSession {
	clone := *session
	if session.CurrentSurah != nil {
		surah := *session.CurrentSurah
		clone.CurrentSurah = &surah
	}
	if session.CurrentAyah != nil {
		ayah := *session.CurrentAyah
		clone.CurrentAyah = &ayah
	}
	if session.EndedAt != nil {
		endedAt := *session.EndedAt
		clone.EndedAt = &endedAt
	}
	return &clone
}
