package memory

import (
	"context"
	"database/sql"
	"sort"

	"github.com/noah-isme/tilawah-live-api/internal/models"
)

// BatchRepository is the in-memory batch catalogue.
type BatchRepository struct {
	db *batchTable
}

// NewBatchRepository binds the repository to the DB.
func NewBatchRepository(db *DB) *BatchRepository {
	return &BatchRepository{db: db.batches}
}

// Put inserts or replaces a batch. Used for seeding.
func (r *BatchRepository) Put(batch models.Batch) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	r.db.t[batch.ID] = &batch
}

// GetByID fetches a batch.
func (r *BatchRepository) GetByID(_ context.Context, id string) (*models.Batch, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	if batch, ok := r.db.t[id]; ok {
		clone := *batch
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

// ListByScholar returns the scholar's non-archived batches ordered by id.
func (r *BatchRepository) ListByScholar(_ context.Context, scholarID string) ([]models.Batch, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	batches := make([]models.Batch, 0)
	for _, batch := range r.db.t {
		if batch.ScholarID == scholarID && batch.Status != models.BatchStatusArchived {
			batches = append(batches, *batch)
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID < batches[j].ID })
	return batches, nil
}
