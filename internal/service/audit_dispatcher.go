package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tilawah-live-api/internal/models"
	"github.com/noah-isme/tilawah-live-api/pkg/jobs"
)

const auditJobType = "audit_log"

// AuditLogger persists audit entries.
type AuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditDispatcher writes audit rows off the request path through a job queue.
type AuditDispatcher struct {
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// AuditDispatcherConfig sizes the underlying worker queue.
type AuditDispatcherConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

// NewAuditDispatcher wires a queue that persists entries through store.
func NewAuditDispatcher(store AuditLogger, metrics *MetricsService, logger *zap.Logger, cfg AuditDispatcherConfig) *AuditDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		entry, ok := job.Payload.(*models.AuditLog)
		if !ok {
			return fmt.Errorf("unexpected audit payload %T", job.Payload)
		}
		return store.CreateAuditLog(ctx, entry)
	}
	queue := jobs.NewQueue("audit", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return &AuditDispatcher{queue: queue, metrics: metrics, logger: logger}
}

// Start launches the workers.
func (d *AuditDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains queued entries and stops the workers.
func (d *AuditDispatcher) Stop() {
	d.queue.Stop()
}

// CreateAuditLog queues the entry. A full or stopped queue drops the entry
// with a warning instead of failing the caller's request.
func (d *AuditDispatcher) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if err := d.queue.TryEnqueue(jobs.Job{ID: log.ID, Type: auditJobType, Payload: log}); err != nil {
		d.metrics.incAuditDropped()
		d.logger.Warn("audit log dropped", zap.String("action", log.Action), zap.String("resource", log.Resource), zap.Error(err))
	}
	return nil
}
