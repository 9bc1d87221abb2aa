package models

import "time"

// SessionStatus tracks a live session through waiting -> active -> ended.
type SessionStatus string

const (
	SessionStatusWaiting SessionStatus = "waiting"
	SessionStatusActive  SessionStatus = "active"
	SessionStatusEnded   SessionStatus = "ended"
)

// Position is a reading position inside the mushaf.
type Position struct {
	Surah int `json:"surah"`
	Ayah  int `json:"ayah"`
}

// LiveSession links a child to a batch for one co-reading run. A nil surah/ayah
// pair means the position is unknown, which is distinct from 1:1.
type LiveSession struct {
	ID           string        `db:"id" json:"id"`
	BatchID      string        `db:"batch_id" json:"batchId"`
	ChildID      string        `db:"child_id" json:"childId"`
	ParentID     string        `db:"parent_id" json:"parentId"`
	Role         UserRole      `db:"role" json:"role"`
	CurrentSurah *int          `db:"current_surah" json:"currentSurah"`
	CurrentAyah  *int          `db:"current_ayah" json:"currentAyah"`
	Status       SessionStatus `db:"status" json:"status"`
	Version      int64         `db:"version" json:"version"`
	CreatedAt    time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updatedAt"`
	EndedAt      *time.Time    `db:"ended_at" json:"endedAt,omitempty"`
}

// Position returns the current position and whether it is known.
func (s *LiveSession) Position() (Position, bool) {
	if s == nil || s.CurrentSurah == nil || s.CurrentAyah == nil {
		return Position{}, false
	}
	return Position{Surah: *s.CurrentSurah, Ayah: *s.CurrentAyah}, true
}

// AtPosition reports whether the session already points at p.
func (s *LiveSession) AtPosition(p Position) bool {
	current, ok := s.Position()
	return ok && current == p
}

// Ended reports whether the session reached its terminal state.
func (s *LiveSession) Ended() bool {
	return s != nil && s.Status == SessionStatusEnded
}

// StartSessionParams carries everything the store needs to start or join atomically.
type StartSessionParams struct {
	BatchID    string
	ChildID    string
	ParentID   string
	Role       UserRole
	Day        time.Time
	DailyLimit int
	Now        time.Time
}

// StartSessionResult reports whether a new session was created.
type StartSessionResult struct {
	Session *LiveSession
	Created bool
	// DailyCount is the child's session count for the day after this call.
	DailyCount int
}

// DailyLimitError is returned by stores when a child has used the day's allowance.
type DailyLimitError struct {
	Limit int
	Count int
}

func (e *DailyLimitError) Error() string {
	return "daily session limit reached"
}
