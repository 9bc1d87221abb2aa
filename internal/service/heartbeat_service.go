package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tilawah-live-api/internal/dto"
	"github.com/noah-isme/tilawah-live-api/internal/models"
	appErrors "github.com/noah-isme/tilawah-live-api/pkg/errors"
)

type openSessionFinder interface {
	FindOpen(ctx context.Context, batchID, childID string) (*models.LiveSession, error)
}

// IsActive is the liveness rule every reader applies: a participant is live
// while less than staleAfter has passed since its last heartbeat.
func IsActive(p models.ParticipantPresence, now time.Time, staleAfter time.Duration) bool {
	return p.ActiveAt(now, staleAfter)
}

// HeartbeatService accepts liveness pings. Nothing here ever marks a
// participant inactive; staleness is derived on read.
type HeartbeatService struct {
	presence PresenceStore
	sessions openSessionFinder
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewHeartbeatService builds a HeartbeatService.
func NewHeartbeatService(presence PresenceStore, sessions openSessionFinder, metrics *MetricsService, logger *zap.Logger) *HeartbeatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeartbeatService{
		presence: presence,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Ping upserts lastSeenAt for the child in the batch. The child must hold an
// open session there; the presence row itself is created when missing.
func (s *HeartbeatService) Ping(ctx context.Context, claims *models.JWTClaims, batchID string, req dto.PingRequest) (*models.ParticipantPresence, error) {
	who, err := resolveParticipant(claims, req.ChildID, req.ChildName)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.FindOpen(ctx, batchID, who.childID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no open session in batch")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load live session")
	}
	if !ownsSession(claims, session) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another account")
	}

	now := s.now().UTC()
	if err := s.presence.Touch(ctx, batchID, who.childID, who.childName, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to record heartbeat")
	}
	s.metrics.incHeartbeat()

	return &models.ParticipantPresence{
		BatchID:    batchID,
		ChildID:    who.childID,
		ChildName:  who.childName,
		LastSeenAt: now,
		IsActive:   true,
	}, nil
}
