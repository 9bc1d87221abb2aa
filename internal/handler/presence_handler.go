package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tilawah-live-api/internal/dto"
	"github.com/noah-isme/tilawah-live-api/internal/models"
	"github.com/noah-isme/tilawah-live-api/pkg/response"
)

type heartbeatService interface {
	Ping(ctx context.Context, claims *models.JWTClaims, batchID string, req dto.PingRequest) (*models.ParticipantPresence, error)
}

// PresenceHandler accepts heartbeats.
type PresenceHandler struct {
	service heartbeatService
}

// NewPresenceHandler builds a new handler.
func NewPresenceHandler(service heartbeatService) *PresenceHandler {
	return &PresenceHandler{service: service}
}

// Ping godoc
// @Summary Heartbeat for a child in a batch
// @Tags Live
// @Accept json
// @Produce json
// @Param batchId path string true "Batch ID"
// @Param payload body dto.PingRequest false "Child identity"
// @Success 200 {object} response.Envelope
// @Router /live/batches/{batchId}/ping [post]
func (h *PresenceHandler) Ping(c *gin.Context) {
	var req dto.PingRequest
	if !bindOptionalJSON(c, &req, "invalid ping payload") {
		return
	}
	presence, err := h.service.Ping(c.Request.Context(), claimsFromContext(c), c.Param("batchId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"ok": true, "lastSeenAt": presence.LastSeenAt})
}
