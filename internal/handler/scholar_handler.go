package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tilawah-live-api/internal/dto"
	"github.com/noah-isme/tilawah-live-api/internal/models"
	"github.com/noah-isme/tilawah-live-api/pkg/response"
)

type aggregatorService interface {
	ListActiveSessions(ctx context.Context, claims *models.JWTClaims, scholarID string) (*dto.ActiveSessionsResult, error)
	ExportActiveSessions(ctx context.Context, claims *models.JWTClaims, scholarID string, format dto.ExportFormat) (*dto.ExportResult, error)
}

// ScholarHandler serves the scholar's merged live roster.
type ScholarHandler struct {
	service      aggregatorService
	pollInterval time.Duration
	staleAfter   time.Duration
}

// NewScholarHandler builds a handler. Both durations are advertised to clients in meta.
func NewScholarHandler(service aggregatorService, pollInterval, staleAfter time.Duration) *ScholarHandler {
	return &ScholarHandler{service: service, pollInterval: pollInterval, staleAfter: staleAfter}
}

// ListActive godoc
// @Summary List active participants across a scholar's batches
// @Tags Scholars
// @Produce json
// @Param scholarId path string true "Scholar ID"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /scholars/{scholarId}/live-sessions [get]
func (h *ScholarHandler) ListActive(c *gin.Context) {
	result, err := h.service.ListActiveSessions(c.Request.Context(), claimsFromContext(c), c.Param("scholarId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{
		"batchCount":     result.BatchCount,
		"failedBatches":  len(result.FailedBatches),
		"pollIntervalMs": h.pollInterval.Milliseconds(),
		"staleAfterMs":   h.staleAfter.Milliseconds(),
	}
	if len(result.FailedBatches) > 0 {
		meta["failedBatchIds"] = result.FailedBatches
	}
	response.JSON(c, http.StatusOK, result.Participants, meta)
}

// Export godoc
// @Summary Export the active roster
// @Tags Scholars
// @Produce text/csv
// @Produce application/pdf
// @Param scholarId path string true "Scholar ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /scholars/{scholarId}/live-sessions/export [get]
func (h *ScholarHandler) Export(c *gin.Context) {
	format := dto.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(dto.ExportFormatCSV))))
	file, err := h.service.ExportActiveSessions(c.Request.Context(), claimsFromContext(c), c.Param("scholarId"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
