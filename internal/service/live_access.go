package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/noah-isme/tilawah-live-api/internal/models"
	appErrors "github.com/noah-isme/tilawah-live-api/pkg/errors"
)

// BatchReader loads a single batch.
type BatchReader interface {
	GetByID(ctx context.Context, id string) (*models.Batch, error)
}

type participant struct {
	childID   string
	childName string
}

// resolveParticipant works out which child a live call acts for. Students act
// for themselves; parents and admins must name the child.
func resolveParticipant(claims *models.JWTClaims, childID, childName string) (participant, error) {
	if claims == nil {
		return participant{}, appErrors.ErrUnauthorized
	}
	childID = strings.TrimSpace(childID)
	childName = strings.TrimSpace(childName)

	switch claims.Role {
	case models.RoleStudent:
		if childID != "" && childID != claims.UserID {
			return participant{}, appErrors.Clone(appErrors.ErrForbidden, "students may only act for themselves")
		}
		if childName == "" {
			childName = claims.FullName
		}
		return participant{childID: claims.UserID, childName: childName}, nil
	case models.RoleParent, models.RoleAdmin:
		if childID == "" {
			return participant{}, appErrors.Clone(appErrors.ErrValidation, "childId is required")
		}
		return participant{childID: childID, childName: childName}, nil
	default:
		return participant{}, appErrors.Clone(appErrors.ErrForbidden, "role cannot join live sessions")
	}
}

// ownsSession reports whether the caller may write the session: the account
// that started it, the student it belongs to, or an admin.
func ownsSession(claims *models.JWTClaims, session *models.LiveSession) bool {
	if claims == nil || session == nil {
		return false
	}
	switch {
	case claims.IsAdmin():
		return true
	case session.ParentID == claims.UserID:
		return true
	case claims.Role == models.RoleStudent && session.ChildID == claims.UserID:
		return true
	}
	return false
}

func loadBatch(ctx context.Context, batches BatchReader, batchID string) (*models.Batch, error) {
	batch, err := batches.GetByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

// canSupervise reports whether the caller may observe or end sessions of batch.
func canSupervise(claims *models.JWTClaims, batch *models.Batch) bool {
	if claims == nil || batch == nil {
		return false
	}
	return claims.IsAdmin() || (claims.Role == models.RoleScholar && batch.ScholarID == claims.UserID)
}
