package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tilawah-live-api/internal/models"
)

// BatchRepository reads batches owned by the scheduling system.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// GetByID fetches a batch, returning sql.ErrNoRows when missing.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*models.Batch, error) {
	var batch models.Batch
	const query = `SELECT id, scholar_id, name, status FROM batches WHERE id = $1`
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &batch, nil
}

// ListByScholar returns the scholar's batches that are not archived.
func (r *BatchRepository) ListByScholar(ctx context.Context, scholarID string) ([]models.Batch, error) {
	var batches []models.Batch
	const query = `SELECT id, scholar_id, name, status FROM batches WHERE scholar_id = $1 AND status <> 'archived' ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &batches, query, scholarID); err != nil {
		return nil, fmt.Errorf("list scholar batches: %w", err)
	}
	return batches, nil
}
