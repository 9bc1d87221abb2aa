package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tilawah-live-api/internal/dto"
	"github.com/noah-isme/tilawah-live-api/internal/models"
	"github.com/noah-isme/tilawah-live-api/internal/repository"
	appErrors "github.com/noah-isme/tilawah-live-api/pkg/errors"
	"github.com/noah-isme/tilawah-live-api/pkg/quran"
)

const liveSessionResource = "live_session"

// LiveSessionStore persists live sessions and the daily start counters.
type LiveSessionStore interface {
	StartOrJoin(ctx context.Context, params models.StartSessionParams) (*models.StartSessionResult, error)
	GetByID(ctx context.Context, id string) (*models.LiveSession, error)
	FindOpen(ctx context.Context, batchID, childID string) (*models.LiveSession, error)
	UpdatePosition(ctx context.Context, id string, pos models.Position, at time.Time) (*models.LiveSession, error)
	End(ctx context.Context, id string, at time.Time) (*models.LiveSession, error)
}

// PresenceStore keeps one presence row per (batch, child).
type PresenceStore interface {
	Touch(ctx context.Context, batchID, childID, childName string, at time.Time) error
	SetPosition(ctx context.Context, batchID, childID string, pos models.Position, at time.Time) error
	Get(ctx context.Context, batchID, childID string) (*models.ParticipantPresence, error)
	Roster(ctx context.Context, batchID string) ([]models.ParticipantPresence, error)
	Remove(ctx context.Context, batchID, childID string) error
}

type accessChecker interface {
	HasAccess(ctx context.Context, userID string) (bool, error)
}

// SessionServiceConfig tunes daily limits and staleness.
type SessionServiceConfig struct {
	Location   *time.Location
	StaleAfter time.Duration
}

// SessionService owns the live session lifecycle and the server side of
// position sync.
type SessionService struct {
	sessions LiveSessionStore
	batches  BatchReader
	presence PresenceStore
	access   accessChecker
	audit    AuditLogger
	metrics  *MetricsService
	logger   *zap.Logger
	config   SessionServiceConfig
	now      func() time.Time
}

// NewSessionService builds a SessionService.
func NewSessionService(
	sessions LiveSessionStore,
	batches BatchReader,
	presence PresenceStore,
	access accessChecker,
	audit AuditLogger,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg SessionServiceConfig,
) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Second
	}
	return &SessionService{
		sessions: sessions,
		batches:  batches,
		presence: presence,
		access:   access,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
		now:      time.Now,
	}
}

// StartOrJoin returns the child's open session in the batch or creates a new
// waiting one, subject to dailyLimit sessions per child per day (0 disables
// the limit). An existing session is returned unchanged.
func (s *SessionService) StartOrJoin(ctx context.Context, claims *models.JWTClaims, batchID string, req dto.StartSessionRequest, dailyLimit int) (*dto.StartSessionResponse, error) {
	who, err := resolveParticipant(claims, req.ChildID, req.ChildName)
	if err != nil {
		return nil, err
	}
	if err := s.ensureAccess(ctx, claims); err != nil {
		return nil, err
	}
	batch, err := loadBatch(ctx, s.batches, batchID)
	if err != nil {
		return nil, err
	}
	if !batch.Joinable() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "batch is archived")
	}

	now := s.now()
	result, err := s.sessions.StartOrJoin(ctx, models.StartSessionParams{
		BatchID:    batch.ID,
		ChildID:    who.childID,
		ParentID:   claims.UserID,
		Role:       claims.Role,
		Day:        now.In(s.config.Location),
		DailyLimit: dailyLimit,
		Now:        now,
	})
	if err != nil {
		var limitErr *models.DailyLimitError
		switch {
		case errors.As(err, &limitErr):
			s.metrics.incSessionStart(sessionLimited)
			return nil, appErrors.LimitExceeded(limitErr.Limit, limitErr.Count)
		case errors.Is(err, repository.ErrDuplicate):
			// lost a race with a concurrent start for the same pair
			open, findErr := s.sessions.FindOpen(ctx, batch.ID, who.childID)
			if findErr != nil {
				return nil, appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load live session")
			}
			result = &models.StartSessionResult{Session: open}
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start live session")
		}
	}

	if !result.Created && !ownsSession(claims, result.Session) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another account")
	}
	if result.Created {
		s.metrics.incSessionStart(sessionCreated)
	} else {
		s.metrics.incSessionStart(sessionJoined)
	}

	if err := s.presence.Touch(ctx, batch.ID, who.childID, who.childName, now); err != nil {
		s.logger.Warn("failed to register presence on start", zap.String("batch_id", batch.ID), zap.String("child_id", who.childID), zap.Error(err))
	} else if pos, known := result.Session.Position(); known {
		if err := s.presence.SetPosition(ctx, batch.ID, who.childID, pos, now); err != nil {
			s.logger.Warn("failed to restore presence position", zap.String("session_id", result.Session.ID), zap.Error(err))
		}
	}

	return &dto.StartSessionResponse{Session: result.Session, Created: result.Created}, nil
}

// Leave drops the child from the batch roster. With End set the open session
// is ended as well; otherwise it stays open and simply goes stale. Without an
// open session there is nothing to leave.
func (s *SessionService) Leave(ctx context.Context, claims *models.JWTClaims, batchID string, req dto.LeaveRequest) (*models.LiveSession, error) {
	who, err := resolveParticipant(claims, req.ChildID, "")
	if err != nil {
		return nil, err
	}

	open, err := s.sessions.FindOpen(ctx, batchID, who.childID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load live session")
	}
	if !ownsSession(claims, open) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another account")
	}

	if err := s.presence.Remove(ctx, batchID, who.childID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to remove presence")
	}
	if !req.End {
		return nil, nil
	}
	return s.end(ctx, claims, open.ID)
}

// UpdatePosition records the reader's position. Writing the stored position
// again changes nothing. Out-of-range positions are rejected untouched.
func (s *SessionService) UpdatePosition(ctx context.Context, claims *models.JWTClaims, sessionID string, req dto.UpdatePositionRequest) (*models.LiveSession, error) {
	if err := quran.Validate(req.Surah, req.Ayah); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, appErrors.ErrInvalidArgument.Status, err.Error())
	}
	pos := models.Position{Surah: req.Surah, Ayah: req.Ayah}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ownsSession(claims, session) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another account")
	}
	if session.Ended() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "session has ended")
	}
	if session.AtPosition(pos) {
		s.metrics.incPositionWrite(positionUnchanged)
		s.repairPresence(ctx, session, pos)
		return session, nil
	}

	now := s.now()
	updated, err := s.sessions.UpdatePosition(ctx, sessionID, pos, now)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update position")
		}
		// ended or written concurrently since the read above
		current, loadErr := s.loadSession(ctx, sessionID)
		if loadErr != nil {
			return nil, loadErr
		}
		if current.Ended() {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "session has ended")
		}
		s.metrics.incPositionWrite(positionUnchanged)
		return current, nil
	}

	s.metrics.incPositionWrite(positionWritten)
	if err := s.presence.SetPosition(ctx, updated.BatchID, updated.ChildID, pos, now); err != nil {
		s.logger.Warn("failed to mirror position to presence", zap.String("session_id", updated.ID), zap.Error(err))
	}
	return updated, nil
}

// repairPresence rewrites the presence position when an earlier mirror failed.
func (s *SessionService) repairPresence(ctx context.Context, session *models.LiveSession, pos models.Position) {
	presence, err := s.presence.Get(ctx, session.BatchID, session.ChildID)
	if err == nil {
		if current, known := presence.Position(); known && current == pos {
			return
		}
	} else if !errors.Is(err, repository.ErrPresenceNotFound) {
		return
	}
	if err := s.presence.SetPosition(ctx, session.BatchID, session.ChildID, pos, s.now()); err != nil {
		s.logger.Warn("failed to repair presence position", zap.String("session_id", session.ID), zap.Error(err))
	}
}

// Observe returns a session with its presence row, liveness computed now.
func (s *SessionService) Observe(ctx context.Context, claims *models.JWTClaims, sessionID string) (*dto.SessionView, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ownsSession(claims, session) {
		batch, err := loadBatch(ctx, s.batches, session.BatchID)
		if err != nil {
			return nil, err
		}
		if !canSupervise(claims, batch) {
			return nil, appErrors.ErrForbidden
		}
	}

	view := &dto.SessionView{Session: session}
	presence, err := s.presence.Get(ctx, session.BatchID, session.ChildID)
	switch {
	case err == nil:
		presence.IsActive = IsActive(*presence, s.now(), s.config.StaleAfter)
		view.Presence = presence
	case errors.Is(err, repository.ErrPresenceNotFound):
	default:
		s.logger.Warn("failed to load presence", zap.String("session_id", session.ID), zap.Error(err))
	}
	return view, nil
}

// End terminates a session on behalf of its scholar or an admin. Ending an
// already ended session returns it unchanged.
func (s *SessionService) End(ctx context.Context, claims *models.JWTClaims, sessionID string) (*models.LiveSession, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	batch, err := loadBatch(ctx, s.batches, session.BatchID)
	if err != nil {
		return nil, err
	}
	if !canSupervise(claims, batch) {
		return nil, appErrors.ErrForbidden
	}
	if session.Ended() {
		return session, nil
	}
	return s.end(ctx, claims, session.ID)
}

func (s *SessionService) end(ctx context.Context, claims *models.JWTClaims, sessionID string) (*models.LiveSession, error) {
	ended, err := s.sessions.End(ctx, sessionID, s.now())
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end live session")
		}
		return s.loadSession(ctx, sessionID)
	}

	if err := s.presence.Remove(ctx, ended.BatchID, ended.ChildID); err != nil {
		s.logger.Warn("failed to clear presence for ended session", zap.String("session_id", ended.ID), zap.Error(err))
	}
	s.recordEnd(ctx, claims, ended)
	return ended, nil
}

func (s *SessionService) recordEnd(ctx context.Context, claims *models.JWTClaims, session *models.LiveSession) {
	if s.audit == nil || claims == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"batchId": session.BatchID,
		"childId": session.ChildID,
		"status":  session.Status,
	})
	actor := claims.UserID
	resourceID := session.ID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor,
		Action:     models.AuditActionSessionEnd,
		Resource:   liveSessionResource,
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record session end audit log", zap.Error(err))
	}
}

func (s *SessionService) ensureAccess(ctx context.Context, claims *models.JWTClaims) error {
	if claims.IsAdmin() || s.access == nil {
		return nil
	}
	ok, err := s.access.HasAccess(ctx, claims.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "live access has not been approved")
	}
	return nil
}

func (s *SessionService) loadSession(ctx context.Context, id string) (*models.LiveSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "live session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load live session")
	}
	return session, nil
}
