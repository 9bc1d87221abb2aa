package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/tilawah-live-api/internal/dto"
	"github.com/noah-isme/tilawah-live-api/internal/models"
	"github.com/noah-isme/tilawah-live-api/internal/repository"
)

// AccessRequestRepository is the in-memory access request store.
type AccessRequestRepository struct {
	db *accessTable
}

// NewAccessRequestRepository binds the repository to the DB.
func NewAccessRequestRepository(db *DB) *AccessRequestRepository {
	return &AccessRequestRepository{db: db.access}
}

// Create inserts a pending request, rejecting a second non-rejected one per user.
func (r *AccessRequestRepository) Create(_ context.Context, req *models.AccessRequest) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	for _, existing := range r.db.t {
		if existing.UserID == req.UserID && existing.Status != models.AccessStatusRejected {
			return repository.ErrDuplicate
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = models.AccessStatusPending
	}
	stored := *req
	r.db.t[req.ID] = &stored
	return nil
}

// GetByID fetches a request.
func (r *AccessRequestRepository) GetByID(_ context.Context, id string) (*models.AccessRequest, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	if req, ok := r.db.t[id]; ok {
		clone := *req
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

// ListByUser returns a user's requests, newest first.
func (r *AccessRequestRepository) ListByUser(_ context.Context, userID string) ([]models.AccessRequest, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	items := make([]models.AccessRequest, 0)
	for _, req := range r.db.t {
		if req.UserID == userID {
			items = append(items, *req)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].RequestedAt.After(items[j].RequestedAt) })
	return items, nil
}

// List returns requests filtered by status, oldest first.
func (r *AccessRequestRepository) List(_ context.Context, filter dto.AccessRequestFilter) ([]models.AccessRequest, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	items := make([]models.AccessRequest, 0)
	for _, req := range r.db.t {
		if filter.Status == "" || req.Status == filter.Status {
			items = append(items, *req)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].RequestedAt.Before(items[j].RequestedAt) })

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Decide moves a pending request to status, or returns sql.ErrNoRows.
func (r *AccessRequestRepository) Decide(_ context.Context, id string, status models.AccessStatus, decidedBy string, at time.Time) (*models.AccessRequest, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	req, ok := r.db.t[id]
	if !ok || !req.IsPending() {
		return nil, sql.ErrNoRows
	}
	decidedAt := at.UTC()
	req.Status = status
	req.DecidedAt = &decidedAt
	req.DecidedBy = &decidedBy
	clone := *req
	return &clone, nil
}
