package liveclient

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PositionWriter persists a position for a session.
type PositionWriter interface {
	UpdatePosition(ctx context.Context, sessionID string, pos Position) error
}

// PositionPublisher collapses bursts of position changes into one write of the
// final value and skips writes equal to the last value sent. The debounce is
// trailing: every change restarts the window. A pending value is still flushed
// once it has waited maxWait (twice the debounce), so a reader scrolling
// without pause keeps publishing. It does nothing until Run is called and
// stops with Run's context.
type PositionPublisher struct {
	writer    PositionWriter
	sessionID string
	debounce  time.Duration
	maxWait   time.Duration
	logger    *zap.Logger

	updates chan Position

	mu      sync.Mutex
	last    Position
	hasLast bool
	writes  int
	lastErr error
}

// NewPositionPublisher builds a publisher for one session.
func NewPositionPublisher(writer PositionWriter, sessionID string, debounce time.Duration, logger *zap.Logger) *PositionPublisher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PositionPublisher{
		writer:    writer,
		sessionID: sessionID,
		debounce:  debounce,
		maxWait:   2 * debounce,
		logger:    logger,
		updates:   make(chan Position, 1),
	}
}

// Set records the latest observed position. It never blocks; an unread older
// value is replaced.
func (p *PositionPublisher) Set(pos Position) {
	for {
		select {
		case p.updates <- pos:
			return
		default:
		}
		select {
		case <-p.updates:
		default:
		}
	}
}

// Seed marks pos as already persisted, e.g. the position returned by a join.
func (p *PositionPublisher) Seed(pos Position) {
	p.mu.Lock()
	p.last, p.hasLast = pos, true
	p.mu.Unlock()
}

// Run drives the debounce timer until ctx is done. A pending unsent value is
// dropped on cancellation.
func (p *PositionPublisher) Run(ctx context.Context) error {
	timer := time.NewTimer(p.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	var (
		pending    Position
		hasPending bool
		deadline   time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pos := <-p.updates:
			if !hasPending {
				deadline = time.Now().Add(p.maxWait)
			}
			pending, hasPending = pos, true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			wait := p.debounce
			if left := time.Until(deadline); left < wait {
				wait = left
			}
			if wait < 0 {
				wait = 0
			}
			timer.Reset(wait)
		case <-timer.C:
			if hasPending {
				p.flush(ctx, pending)
				hasPending = false
			}
		}
	}
}

func (p *PositionPublisher) flush(ctx context.Context, pos Position) {
	p.mu.Lock()
	unchanged := p.hasLast && p.last == pos
	p.mu.Unlock()
	if unchanged {
		return
	}

	err := p.writer.UpdatePosition(ctx, p.sessionID, pos)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err != nil {
		p.logger.Warn("position write failed",
			zap.String("session_id", p.sessionID),
			zap.Stringer("position", pos),
			zap.Error(err))
		return
	}
	p.last, p.hasLast = pos, true
	p.writes++
}

// Sent returns the last position persisted by the publisher.
func (p *PositionPublisher) Sent() (Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// Writes is the number of successful network writes.
func (p *PositionPublisher) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// Err is the result of the most recent write attempt.
func (p *PositionPublisher) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}
