package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/tilawah-live-api/internal/dto"
	"github.com/noah-isme/tilawah-live-api/internal/models"
	appErrors "github.com/noah-isme/tilawah-live-api/pkg/errors"
	"github.com/noah-isme/tilawah-live-api/pkg/export"
)

// ScholarBatchLister resolves the batches a scholar teaches.
type ScholarBatchLister interface {
	ListByScholar(ctx context.Context, scholarID string) ([]models.Batch, error)
}

type rosterReader interface {
	Roster(ctx context.Context, batchID string) ([]models.ParticipantPresence, error)
}

// AggregatorConfig tunes the scholar roster fan-out.
type AggregatorConfig struct {
	StaleAfter   time.Duration
	FetchTimeout time.Duration
}

// AggregatorService merges the live rosters of all of a scholar's batches.
type AggregatorService struct {
	batches   ScholarBatchLister
	presence  rosterReader
	renderers map[dto.ExportFormat]export.Renderer
	metrics   *MetricsService
	logger    *zap.Logger
	config    AggregatorConfig
	now       func() time.Time
}

// NewAggregatorService builds an AggregatorService.
func NewAggregatorService(batches ScholarBatchLister, presence rosterReader, metrics *MetricsService, logger *zap.Logger, cfg AggregatorConfig) *AggregatorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 1500 * time.Millisecond
	}
	return &AggregatorService{
		batches:  batches,
		presence: presence,
		renderers: map[dto.ExportFormat]export.Renderer{
			dto.ExportFormatCSV: export.NewCSVExporter(),
			dto.ExportFormatPDF: export.NewPDFExporter(),
		},
		metrics: metrics,
		logger:  logger,
		config:  cfg,
		now:     time.Now,
	}
}

// ListActiveSessions returns every active participant across the scholar's
// batches. A batch whose roster cannot be fetched in time is left out and
// reported in FailedBatches; only failing to list the batches fails the call.
func (s *AggregatorService) ListActiveSessions(ctx context.Context, claims *models.JWTClaims, scholarID string) (*dto.ActiveSessionsResult, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !claims.IsAdmin() && !(claims.Role == models.RoleScholar && claims.UserID == scholarID) {
		return nil, appErrors.ErrForbidden
	}

	batches, err := s.batches.ListByScholar(ctx, scholarID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to resolve scholar batches")
	}

	now := s.now()
	rosters := make([][]dto.ActiveParticipant, len(batches))
	failed := make([]bool, len(batches))

	var g errgroup.Group
	for i := range batches {
		i, batch := i, batches[i]
		g.Go(func() error {
			start := time.Now()
			roster, err := s.fetchRoster(ctx, batch.ID)
			s.metrics.observeRosterFetch(time.Since(start), err != nil)
			if err != nil {
				failed[i] = true
				s.logger.Warn("roster fetch failed",
					zap.String("scholar_id", scholarID),
					zap.String("batch_id", batch.ID),
					zap.Error(err))
				return nil
			}
			rosters[i] = activeParticipants(batch, roster, now, s.config.StaleAfter)
			return nil
		})
	}
	_ = g.Wait()

	result := &dto.ActiveSessionsResult{
		Participants: make([]dto.ActiveParticipant, 0),
		BatchCount:   len(batches),
	}
	for i, batch := range batches {
		if failed[i] {
			result.FailedBatches = append(result.FailedBatches, batch.ID)
			continue
		}
		result.Participants = append(result.Participants, rosters[i]...)
	}
	sort.SliceStable(result.Participants, func(a, b int) bool {
		pa, pb := result.Participants[a], result.Participants[b]
		if pa.BatchID != pb.BatchID {
			return pa.BatchID < pb.BatchID
		}
		return pa.ChildID < pb.ChildID
	})

	s.metrics.setActiveParticipants(len(result.Participants))
	return result, nil
}

// fetchRoster bounds one batch read by FetchTimeout even if the store ignores
// the context.
func (s *AggregatorService) fetchRoster(ctx context.Context, batchID string) ([]models.ParticipantPresence, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	defer cancel()

	type rosterResult struct {
		roster []models.ParticipantPresence
		err    error
	}
	done := make(chan rosterResult, 1)
	go func() {
		roster, err := s.presence.Roster(fetchCtx, batchID)
		done <- rosterResult{roster: roster, err: err}
	}()

	select {
	case res := <-done:
		return res.roster, res.err
	case <-fetchCtx.Done():
		return nil, fmt.Errorf("roster fetch for batch %s: %w", batchID, fetchCtx.Err())
	}
}

func activeParticipants(batch models.Batch, roster []models.ParticipantPresence, now time.Time, staleAfter time.Duration) []dto.ActiveParticipant {
	out := make([]dto.ActiveParticipant, 0, len(roster))
	for _, p := range roster {
		if !IsActive(p, now, staleAfter) {
			continue
		}
		out = append(out, dto.ActiveParticipant{
			BatchID:    batch.ID,
			BatchName:  batch.Name,
			ChildID:    p.ChildID,
			ChildName:  p.ChildName,
			Surah:      p.CurrentSurah,
			Ayah:       p.CurrentAyah,
			LastSeenAt: p.LastSeenAt,
		})
	}
	return out
}

// ExportActiveSessions renders the current roster as a downloadable file.
func (s *AggregatorService) ExportActiveSessions(ctx context.Context, claims *models.JWTClaims, scholarID string, format dto.ExportFormat) (*dto.ExportResult, error) {
	if format == "" {
		format = dto.ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "unsupported export format")
	}

	result, err := s.ListActiveSessions(ctx, claims, scholarID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Batch", "Child", "Surah", "Ayah", "Last Seen"},
		Blank:   "-",
	}
	for _, p := range result.Participants {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Batch":     p.BatchName,
			"Child":     p.ChildName,
			"Surah":     export.OptionalInt(p.Surah),
			"Ayah":      export.OptionalInt(p.Ayah),
			"Last Seen": p.LastSeenAt.UTC().Format(time.RFC3339),
		})
	}

	now := s.now().UTC()
	body, err := renderer.Render(dataset, fmt.Sprintf("Live roster %s", now.Format("2006-01-02 15:04 MST")))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster export")
	}
	return &dto.ExportResult{
		Filename:    fmt.Sprintf("live-roster-%s-%s.%s", scholarID, now.Format("20060102-150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}
