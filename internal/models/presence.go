package models

import "time"

// ParticipantPresence is the liveness and last-known position of a child in a
// batch. IsActive is never stored; readers derive it from LastSeenAt.
type ParticipantPresence struct {
	BatchID      string    `json:"batchId"`
	ChildID      string    `json:"childId"`
	ChildName    string    `json:"childName"`
	CurrentSurah *int      `json:"surah"`
	CurrentAyah  *int      `json:"ayah"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
	IsActive     bool      `json:"isActive"`
}

// ActiveAt reports liveness at now: true iff now - LastSeenAt < staleAfter.
func (p ParticipantPresence) ActiveAt(now time.Time, staleAfter time.Duration) bool {
	if p.LastSeenAt.IsZero() {
		return false
	}
	return now.Sub(p.LastSeenAt) < staleAfter
}

// Position returns the last reported position and whether one is known.
func (p ParticipantPresence) Position() (Position, bool) {
	if p.CurrentSurah == nil || p.CurrentAyah == nil {
		return Position{}, false
	}
	return Position{Surah: *p.CurrentSurah, Ayah: *p.CurrentAyah}, true
}
