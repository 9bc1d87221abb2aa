package models

// BatchStatus is owned by the external scheduling system.
type BatchStatus string

const (
	BatchStatusActive   BatchStatus = "active"
	BatchStatusUpcoming BatchStatus = "upcoming"
	BatchStatusArchived BatchStatus = "archived"
)

// Batch is a scholar-led cohort sharing a live slot. Read only to this service.
type Batch struct {
	ID        string      `db:"id" json:"id"`
	ScholarID string      `db:"scholar_id" json:"scholarId"`
	Name      string      `db:"name" json:"name"`
	Status    BatchStatus `db:"status" json:"status"`
}

// Joinable reports whether students may start sessions in the batch.
func (b *Batch) Joinable() bool {
	return b != nil && b.Status != BatchStatusArchived
}
