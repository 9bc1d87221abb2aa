package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tilawah-live-api/internal/dto"
	"github.com/noah-isme/tilawah-live-api/internal/models"
	appErrors "github.com/noah-isme/tilawah-live-api/pkg/errors"
	"github.com/noah-isme/tilawah-live-api/pkg/response"
)

type accessService interface {
	RequestAccess(ctx context.Context, userID string, req dto.RequestAccessRequest) (*dto.RequestAccessResponse, error)
	Decide(ctx context.Context, adminID, requestID string, req dto.DecideAccessRequest) (*dto.DecideAccessResponse, error)
	Status(ctx context.Context, userID string) (*models.AccessStatusView, error)
	List(ctx context.Context, filter dto.AccessRequestFilter) ([]models.AccessRequest, error)
}

// AccessHandler exposes the live access request workflow.
type AccessHandler struct {
	service accessService
}

// NewAccessHandler builds a new handler.
func NewAccessHandler(service accessService) *AccessHandler {
	return &AccessHandler{service: service}
}

// Request godoc
// @Summary Request access to live sessions
// @Tags Access
// @Accept json
// @Produce json
// @Param payload body dto.RequestAccessRequest false "Contact details (defaults to token profile)"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /access/requests [post]
func (h *AccessHandler) Request(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RequestAccessRequest
	if !bindOptionalJSON(c, &req, "invalid access request payload") {
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = claims.FullName
	}
	if req.Email == "" {
		req.Email = claims.Email
	}
	result, err := h.service.RequestAccess(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Status godoc
// @Summary Get live access status
// @Tags Access
// @Produce json
// @Param userId query string false "User to inspect (admin only)"
// @Success 200 {object} response.Envelope
// @Router /access/status [get]
func (h *AccessHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	userID := claims.UserID
	if target := c.Query("userId"); target != "" && target != userID {
		if !claims.IsAdmin() {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		userID = target
	}
	status, err := h.service.Status(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, status)
}

// List godoc
// @Summary List access requests
// @Tags Access
// @Produce json
// @Param status query string false "pending, approved or rejected"
// @Param limit query int false "Maximum rows (default 50)"
// @Success 200 {object} response.Envelope
// @Router /access/requests [get]
func (h *AccessHandler) List(c *gin.Context) {
	filter := dto.AccessRequestFilter{Status: models.AccessStatus(c.Query("status"))}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a number"))
			return
		}
		filter.Limit = limit
	}
	items, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"count": len(items)})
}

// Decide godoc
// @Summary Approve or reject an access request
// @Tags Access
// @Accept json
// @Produce json
// @Param id path string true "Access request ID"
// @Param payload body dto.DecideAccessRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /access/requests/{id}/decision [post]
func (h *AccessHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DecideAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	result, err := h.service.Decide(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
