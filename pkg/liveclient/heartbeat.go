package liveclient

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pinger sends a single heartbeat.
type Pinger interface {
	Ping(ctx context.Context, batchID, childID, childName string) error
}

// Heartbeat pings on a fixed interval. Failures are logged and the loop keeps
// going; the server decides staleness at read time.
type Heartbeat struct {
	pinger    Pinger
	batchID   string
	childID   string
	childName string
	interval  time.Duration
	logger    *zap.Logger
}

// NewHeartbeat builds a heartbeat loop for one child in one batch.
func NewHeartbeat(pinger Pinger, batchID, childID, childName string, interval time.Duration, logger *zap.Logger) *Heartbeat {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Heartbeat{
		pinger:    pinger,
		batchID:   batchID,
		childID:   childID,
		childName: childName,
		interval:  interval,
		logger:    logger,
	}
}

// Run pings immediately, then every interval, until ctx is done.
func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.ping(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.ping(ctx)
		}
	}
}

func (h *Heartbeat) ping(ctx context.Context) {
	if err := h.pinger.Ping(ctx, h.batchID, h.childID, h.childName); err != nil && ctx.Err() == nil {
		h.logger.Warn("heartbeat failed",
			zap.String("batch_id", h.batchID),
			zap.String("child_id", h.childID),
			zap.Error(err))
	}
}
