package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tilawah-live-api/internal/dto"
	"github.com/noah-isme/tilawah-live-api/internal/models"
	"github.com/noah-isme/tilawah-live-api/internal/repository"
	appErrors "github.com/noah-isme/tilawah-live-api/pkg/errors"
)

const accessRequestResource = "access_request"

// AccessRequestStore persists access requests.
type AccessRequestStore interface {
	Create(ctx context.Context, req *models.AccessRequest) error
	GetByID(ctx context.Context, id string) (*models.AccessRequest, error)
	ListByUser(ctx context.Context, userID string) ([]models.AccessRequest, error)
	List(ctx context.Context, filter dto.AccessRequestFilter) ([]models.AccessRequest, error)
	Decide(ctx context.Context, id string, status models.AccessStatus, decidedBy string, at time.Time) (*models.AccessRequest, error)
}

// AccessService gates who may ever join a live batch.
type AccessService struct {
	repo      AccessRequestStore
	audit     AuditLogger
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAccessService builds an AccessService with sane defaults.
func NewAccessService(repo AccessRequestStore, audit AuditLogger, validate *validator.Validate, logger *zap.Logger) *AccessService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{
		repo:      repo,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// RequestAccess files a pending request for the user. A user holding a pending
// or approved request gets Conflict.
func (s *AccessService) RequestAccess(ctx context.Context, userID string, req dto.RequestAccessRequest) (*dto.RequestAccessResponse, error) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid access request payload")
	}

	existing, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load access requests")
	}
	for _, item := range existing {
		switch item.Status {
		case models.AccessStatusPending:
			return nil, appErrors.Clone(appErrors.ErrConflict, "access request already pending")
		case models.AccessStatusApproved:
			return nil, appErrors.Clone(appErrors.ErrConflict, "access already granted")
		}
	}

	record := &models.AccessRequest{
		UserID:      userID,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Status:      models.AccessStatusPending,
		RequestedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "access request already pending")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access request")
	}

	s.recordAudit(ctx, userID, models.AuditActionAccessRequest, record.ID, nil, record)
	return &dto.RequestAccessResponse{PendingRequest: true, Request: record}, nil
}

// Decide applies an admin decision to a pending request. Re-submitting the
// decision already stored is a no-op; any other call on a decided request is
// NotFound.
func (s *AccessService) Decide(ctx context.Context, adminID, requestID string, req dto.DecideAccessRequest) (*dto.DecideAccessResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	status, ok := req.Outcome.Status()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown decision outcome")
	}

	decided, err := s.repo.Decide(ctx, requestID, status, adminID, s.now().UTC())
	if err == nil {
		s.recordAudit(ctx, adminID, models.AuditActionAccessDecision, decided.ID,
			map[string]string{"status": string(models.AccessStatusPending)},
			map[string]string{"status": string(decided.Status)})
		return &dto.DecideAccessResponse{Status: decided.Status, Request: decided}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decide access request")
	}

	current, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "access request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load access request")
	}
	if current.Status == status {
		return &dto.DecideAccessResponse{Status: current.Status, Request: current}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "access request already decided")
}

// Status reports the user's gate. hasAccess follows the most recent decided
// request; pendingRequest is set while any request awaits a decision.
func (s *AccessService) Status(ctx context.Context, userID string) (*models.AccessStatusView, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load access status")
	}

	view := &models.AccessStatusView{}
	var latest *models.AccessRequest
	for i := range items {
		item := &items[i]
		if item.IsPending() {
			view.PendingRequest = true
			continue
		}
		if item.DecidedAt == nil {
			continue
		}
		if latest == nil || item.DecidedAt.After(*latest.DecidedAt) {
			latest = item
		}
	}
	view.HasAccess = latest != nil && latest.Status == models.AccessStatusApproved
	return view, nil
}

// HasAccess is a convenience wrapper around Status.
func (s *AccessService) HasAccess(ctx context.Context, userID string) (bool, error) {
	view, err := s.Status(ctx, userID)
	if err != nil {
		return false, err
	}
	return view.HasAccess, nil
}

// List returns requests for the admin console.
func (s *AccessService) List(ctx context.Context, filter dto.AccessRequestFilter) ([]models.AccessRequest, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status filter")
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list access requests")
	}
	return items, nil
}

func (s *AccessService) recordAudit(ctx context.Context, actorID, action, resourceID string, oldValues, newValues interface{}) {
	if s.audit == nil {
		return
	}
	var oldJSON, newJSON []byte
	if oldValues != nil {
		oldJSON, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		newJSON, _ = json.Marshal(newValues)
	}
	actor := actorID
	resource := resourceID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor,
		Action:     action,
		Resource:   accessRequestResource,
		ResourceID: &resource,
		OldValues:  oldJSON,
		NewValues:  newJSON,
	}); err != nil {
		s.logger.Warn("failed to record access audit log", zap.String("action", action), zap.Error(err))
	}
}
