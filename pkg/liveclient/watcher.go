package liveclient

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RosterSource returns a scholar's active participants.
type RosterSource interface {
	ActiveSessions(ctx context.Context, scholarID string) ([]Participant, error)
}

// RosterHandlers receive roster changes. Either callback may be nil.
type RosterHandlers struct {
	// OnUpdate fires when a participant appears or their position changes.
	OnUpdate func(Participant)
	// OnLeave fires when a participant drops out of the active roster.
	OnLeave func(Participant)
}

// RosterWatcher polls the merged roster and reports only differences from the
// previous poll.
type RosterWatcher struct {
	source    RosterSource
	scholarID string
	interval  time.Duration
	handlers  RosterHandlers
	logger    *zap.Logger

	known map[string]Participant
}

// NewRosterWatcher builds a watcher for a scholar.
func NewRosterWatcher(source RosterSource, scholarID string, interval time.Duration, handlers RosterHandlers, logger *zap.Logger) *RosterWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterWatcher{
		source:    source,
		scholarID: scholarID,
		interval:  interval,
		handlers:  handlers,
		logger:    logger,
		known:     make(map[string]Participant),
	}
}

// Run polls immediately, then every interval, until ctx is done.
func (w *RosterWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *RosterWatcher) poll(ctx context.Context) {
	if err := w.Poll(ctx); err != nil && ctx.Err() == nil {
		w.logger.Warn("roster poll failed", zap.String("scholar_id", w.scholarID), zap.Error(err))
	}
}

// Poll fetches the roster once and dispatches changes. A failed fetch leaves
// the cached view untouched.
func (w *RosterWatcher) Poll(ctx context.Context) error {
	roster, err := w.source.ActiveSessions(ctx, w.scholarID)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(roster))
	for _, p := range roster {
		key := rosterKey(p)
		seen[key] = struct{}{}
		prev, ok := w.known[key]
		w.known[key] = p
		if ok && samePosition(prev, p) {
			continue
		}
		if w.handlers.OnUpdate != nil {
			w.handlers.OnUpdate(p)
		}
	}
	for key, p := range w.known {
		if _, ok := seen[key]; ok {
			continue
		}
		delete(w.known, key)
		if w.handlers.OnLeave != nil {
			w.handlers.OnLeave(p)
		}
	}
	return nil
}

func rosterKey(p Participant) string {
	return p.BatchID + "/" + p.ChildID
}

func samePosition(a, b Participant) bool {
	pa, okA := a.Position()
	pb, okB := b.Position()
	return okA == okB && pa == pb
}
