package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tilawah-live-api/internal/dto"
	"github.com/noah-isme/tilawah-live-api/internal/models"
)

const accessRequestColumns = `id, user_id, display_name, email, status, requested_at, decided_at, decided_by`

// AccessRequestRepository persists access requests in Postgres.
type AccessRequestRepository struct {
	db *sqlx.DB
}

// NewAccessRequestRepository constructs the repository.
func NewAccessRequestRepository(db *sqlx.DB) *AccessRequestRepository {
	return &AccessRequestRepository{db: db}
}

// Create inserts a pending request. The partial unique index on user_id makes a
// second non-rejected request fail with ErrDuplicate.
func (r *AccessRequestRepository) Create(ctx context.Context, req *models.AccessRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = models.AccessStatusPending
	}
	const query = `INSERT INTO access_requests (id, user_id, display_name, email, status, requested_at)
VALUES (:id, :user_id, :display_name, :email, :status, :requested_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create access request: %w", err)
	}
	return nil
}

// GetByID fetches a request, returning sql.ErrNoRows when missing.
func (r *AccessRequestRepository) GetByID(ctx context.Context, id string) (*models.AccessRequest, error) {
	var req models.AccessRequest
	query := `SELECT ` + accessRequestColumns + ` FROM access_requests WHERE id = $1`
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get access request: %w", err)
	}
	return &req, nil
}

// ListByUser returns all of a user's requests, newest first.
func (r *AccessRequestRepository) ListByUser(ctx context.Context, userID string) ([]models.AccessRequest, error) {
	var items []models.AccessRequest
	query := `SELECT ` + accessRequestColumns + ` FROM access_requests WHERE user_id = $1 ORDER BY requested_at DESC`
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, fmt.Errorf("list access requests by user: %w", err)
	}
	return items, nil
}

// List returns requests for the admin console.
func (r *AccessRequestRepository) List(ctx context.Context, filter dto.AccessRequestFilter) ([]models.AccessRequest, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + accessRequestColumns + ` FROM access_requests`)
	args := make([]interface{}, 0, 1)
	if filter.Status != "" {
		args = append(args, filter.Status)
		fmt.Fprintf(&builder, " WHERE status = $%d", len(args))
	}
	builder.WriteString(" ORDER BY requested_at ASC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	fmt.Fprintf(&builder, " LIMIT %d", limit)

	var items []models.AccessRequest
	if err := r.db.SelectContext(ctx, &items, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	return items, nil
}

// Decide moves a pending request to its terminal status. It returns
// sql.ErrNoRows when the request is missing or no longer pending.
func (r *AccessRequestRepository) Decide(ctx context.Context, id string, status models.AccessStatus, decidedBy string, at time.Time) (*models.AccessRequest, error) {
	query := `UPDATE access_requests SET status = $2, decided_at = $3, decided_by = $4
WHERE id = $1 AND status = 'pending'
RETURNING ` + accessRequestColumns

	var req models.AccessRequest
	if err := r.db.GetContext(ctx, &req, query, id, status, at, decidedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("decide access request: %w", err)
	}
	return &req, nil
}
