// Package memory holds process-local stores used when STORAGE_DRIVER=memory
// and in integration-style tests. They mirror the Postgres and Redis stores,
// including their sentinel errors.
package memory

import (
	"sync"

	"github.com/noah-isme/tilawah-live-api/internal/models"
)

// DB groups the in-memory tables.
type DB struct {
	access   *accessTable
	batches  *batchTable
	sessions *sessionTable
	presence *presenceTable
	audit    *auditTable
}

type accessTable struct {
	mutex sync.RWMutex
	t     map[string]*models.AccessRequest
}

type batchTable struct {
	mutex sync.RWMutex
	t     map[string]*models.Batch
}

type dailyKey struct {
	childID string
	day     string
}

type sessionTable struct {
	mutex  sync.Mutex
	t      map[string]*models.LiveSession
	counts map[dailyKey]int
}

type presenceKey struct {
	batchID string
	childID string
}

type presenceTable struct {
	mutex sync.RWMutex
	t     map[presenceKey]*models.ParticipantPresence
}

type auditTable struct {
	mutex sync.Mutex
	t     []models.AuditLog
}

// NewDB initialises empty tables.
func NewDB() *DB {
	return &DB{
		access:   &accessTable{t: make(map[string]*models.AccessRequest)},
		batches:  &batchTable{t: make(map[string]*models.Batch)},
		sessions: &sessionTable{t: make(map[string]*models.LiveSession), counts: make(map[dailyKey]int)},
		presence: &presenceTable{t: make(map[presenceKey]*models.ParticipantPresence)},
		audit:    &auditTable{},
	}
}
