package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tilawah-live-api/internal/dto"
	"github.com/noah-isme/tilawah-live-api/internal/models"
	appErrors "github.com/noah-isme/tilawah-live-api/pkg/errors"
	"github.com/noah-isme/tilawah-live-api/pkg/response"
)

type sessionService interface {
	StartOrJoin(ctx context.Context, claims *models.JWTClaims, batchID string, req dto.StartSessionRequest, dailyLimit int) (*dto.StartSessionResponse, error)
	Leave(ctx context.Context, claims *models.JWTClaims, batchID string, req dto.LeaveRequest) (*models.LiveSession, error)
	UpdatePosition(ctx context.Context, claims *models.JWTClaims, sessionID string, req dto.UpdatePositionRequest) (*models.LiveSession, error)
	Observe(ctx context.Context, claims *models.JWTClaims, sessionID string) (*dto.SessionView, error)
	End(ctx context.Context, claims *models.JWTClaims, sessionID string) (*models.LiveSession, error)
}

// SessionHandler exposes the live session lifecycle.
type SessionHandler struct {
	service    sessionService
	dailyLimit int
}

// NewSessionHandler builds a handler enforcing dailyLimit starts per child per day.
func NewSessionHandler(service sessionService, dailyLimit int) *SessionHandler {
	return &SessionHandler{service: service, dailyLimit: dailyLimit}
}

// Start godoc
// @Summary Start or join a live session in a batch
// @Tags Live
// @Accept json
// @Produce json
// @Param batchId path string true "Batch ID"
// @Param payload body dto.StartSessionRequest false "Child to start for"
// @Success 200 {object} response.Envelope "joined existing session"
// @Success 201 {object} response.Envelope "created session"
// @Failure 429 {object} response.Envelope
// @Router /live/batches/{batchId}/sessions [post]
func (h *SessionHandler) Start(c *gin.Context) {
	var req dto.StartSessionRequest
	if !bindOptionalJSON(c, &req, "invalid start payload") {
		return
	}
	result, err := h.service.StartOrJoin(c.Request.Context(), claimsFromContext(c), c.Param("batchId"), req, h.dailyLimit)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	response.JSON(c, status, result)
}

// Leave godoc
// @Summary Leave a batch roster
// @Tags Live
// @Accept json
// @Produce json
// @Param batchId path string true "Batch ID"
// @Param payload body dto.LeaveRequest false "Child and whether to end the session"
// @Success 200 {object} response.Envelope
// @Router /live/batches/{batchId}/leave [post]
func (h *SessionHandler) Leave(c *gin.Context) {
	var req dto.LeaveRequest
	if !bindOptionalJSON(c, &req, "invalid leave payload") {
		return
	}
	session, err := h.service.Leave(c.Request.Context(), claimsFromContext(c), c.Param("batchId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload := gin.H{"ok": true}
	if session != nil {
		payload["session"] = session
	}
	response.OK(c, payload)
}

// UpdatePosition godoc
// @Summary Update the reading position of a session
// @Tags Live
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.UpdatePositionRequest true "Surah and ayah"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /live/sessions/{id}/position [put]
func (h *SessionHandler) UpdatePosition(c *gin.Context) {
	var req dto.UpdatePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, http.StatusBadRequest, "invalid position payload"))
		return
	}
	session, err := h.service.UpdatePosition(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"session": session})
}

// Get godoc
// @Summary Observe a live session
// @Tags Live
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /live/sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	view, err := h.service.Observe(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// End godoc
// @Summary End a live session
// @Tags Live
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /live/sessions/{id}/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	session, err := h.service.End(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"session": session})
}
