package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/tilawah-live-api/internal/models"
)

// AuditRepository keeps audit rows in memory.
type AuditRepository struct {
	db *auditTable
}

// NewAuditRepository binds the repository to the DB.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db.audit}
}

// CreateAuditLog appends an entry.
func (r *AuditRepository) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	r.db.t = append(r.db.t, *log)
	return nil
}

// Entries returns a snapshot of stored rows.
func (r *AuditRepository) Entries() []models.AuditLog {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	out := make([]models.AuditLog, len(r.db.t))
	copy(out, r.db.t)
	return out
}
