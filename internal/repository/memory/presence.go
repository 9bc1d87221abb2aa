package memory

import (
	"context"
	"sort"
	"time"

	"github.com/noah-isme/tilawah-live-api/internal/models"
	"github.com/noah-isme/tilawah-live-api/internal/repository"
)

// PresenceRepository is the in-memory presence store.
type PresenceRepository struct {
	db *presenceTable
}

// NewPresenceRepository binds the repository to the DB.
func NewPresenceRepository(db *DB) *PresenceRepository {
	return &PresenceRepository{db: db.presence}
}

func (r *PresenceRepository) row(batchID, childID string) *models.ParticipantPresence {
	key := presenceKey{batchID: batchID, childID: childID}
	row, ok := r.db.t[key]
	if !ok {
		row = &models.ParticipantPresence{BatchID: batchID, ChildID: childID}
		r.db.t[key] = row
	}
	return row
}

// Touch records that the participant was seen at the given time.
func (r *PresenceRepository) Touch(_ context.Context, batchID, childID, childName string, at time.Time) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	row := r.row(batchID, childID)
	row.LastSeenAt = at.UTC()
	if childName != "" {
		row.ChildName = childName
	}
	return nil
}

// SetPosition records the position and refreshes lastSeenAt.
func (r *PresenceRepository) SetPosition(_ context.Context, batchID, childID string, pos models.Position, at time.Time) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	row := r.row(batchID, childID)
	surah, ayah := pos.Surah, pos.Ayah
	row.CurrentSurah = &surah
	row.CurrentAyah = &ayah
	row.LastSeenAt = at.UTC()
	return nil
}

// Get returns a participant's presence row.
func (r *PresenceRepository) Get(_ context.Context, batchID, childID string) (*models.ParticipantPresence, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	row, ok := r.db.t[presenceKey{batchID: batchID, childID: childID}]
	if !ok {
		return nil, repository.ErrPresenceNotFound
	}
	clone := copyPresence(row)
	return &clone, nil
}

// Roster returns the batch's participants ordered by child id.
func (r *PresenceRepository) Roster(_ context.Context, batchID string) ([]models.ParticipantPresence, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	roster := make([]models.ParticipantPresence, 0)
	for key, row := range r.db.t {
		if key.batchID == batchID {
			roster = append(roster, copyPresence(row))
		}
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].ChildID < roster[j].ChildID })
	return roster, nil
}

// Remove deletes the participant's row.
func (r *PresenceRepository) Remove(_ context.Context, batchID, childID string) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	delete(r.db.t, presenceKey{batchID: batchID, childID: childID})
	return nil
}

func copyPresence(row *models.ParticipantPresence) models.ParticipantPresence {
	clone := *row
	if row.CurrentSurah != nil {
		surah := *row.CurrentSurah
		clone.CurrentSurah = &surah
	}
	if row.CurrentAyah != nil {
		ayah := *row.CurrentAyah
		clone.CurrentAyah = &ayah
	}
	return clone
}
