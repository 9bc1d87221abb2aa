package memory

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tilawah-live-api/internal/models"
	"github.com/noah-isme/tilawah-live-api/internal/repository"
)

func TestAccessRequestRepositoryRejectsSecondActive(t *testing.T) {
	repo := NewAccessRequestRepository(NewDB())
	ctx := context.Background()

	first := &models.AccessRequest{UserID: "user-1"}
	require.NoError(t, repo.Create(ctx, first))
	assert.ErrorIs(t, repo.Create(ctx, &models.AccessRequest{UserID: "user-1"}), repository.ErrDuplicate)

	_, err := repo.Decide(ctx, first.ID, models.AccessStatusRejected, "admin-1", time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, &models.AccessRequest{UserID: "user-1"}))

	_, err = repo.Decide(ctx, first.ID, models.AccessStatusApproved, "admin-1", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLiveSessionRepositoryConcurrentStartsAtLimit(t *testing.T) {
	repo := NewLiveSessionRepository(NewDB())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		limited int
	)
	for i := 0; i < 16; i++ {
		batchID := "batch-a"
		if i%2 == 1 {
			batchID = "batch-b"
		}
		wg.Add(1)
		go func(batchID string) {
			defer wg.Done()
			result, err := repo.StartOrJoin(context.Background(), models.StartSessionParams{
				BatchID: batchID, ChildID: "child-1", Day: now, DailyLimit: 1, Now: now,
			})
			mu.Lock()
			defer mu.Unlock()
			var limitErr *models.DailyLimitError
			switch {
			case errors.As(err, &limitErr):
				limited++
			case err == nil && result.Created:
				created++
			}
		}(batchID)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Greater(t, limited, 0)
}

func TestLiveSessionRepositoryJoinKeepsPosition(t *testing.T) {
	repo := NewLiveSessionRepository(NewDB())
	ctx := context.Background()
	now := time.Now()
	params := models.StartSessionParams{BatchID: "batch-1", ChildID: "child-1", Day: now, DailyLimit: 3, Now: now}

	first, err := repo.StartOrJoin(ctx, params)
	require.NoError(t, err)
	_, err = repo.UpdatePosition(ctx, first.Session.ID, models.Position{Surah: 18, Ayah: 10}, now)
	require.NoError(t, err)

	second, err := repo.StartOrJoin(ctx, params)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Session.ID, second.Session.ID)
	assert.True(t, second.Session.AtPosition(models.Position{Surah: 18, Ayah: 10}))
	assert.Equal(t, 1, second.DailyCount)
}

func TestLiveSessionRepositoryUpdatePositionIdempotent(t *testing.T) {
	repo := NewLiveSessionRepository(NewDB())
	ctx := context.Background()
	now := time.Now()

	started, err := repo.StartOrJoin(ctx, models.StartSessionParams{BatchID: "batch-1", ChildID: "child-1", Day: now, Now: now})
	require.NoError(t, err)

	updated, err := repo.UpdatePosition(ctx, started.Session.ID, models.Position{Surah: 2, Ayah: 5}, now)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, updated.Status)
	assert.EqualValues(t, 1, updated.Version)

	_, err = repo.UpdatePosition(ctx, started.Session.ID, models.Position{Surah: 2, Ayah: 5}, now.Add(time.Second))
	assert.ErrorIs(t, err, sql.ErrNoRows)

	stored, err := repo.GetByID(ctx, started.Session.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.Version)
	assert.Equal(t, updated.UpdatedAt, stored.UpdatedAt)
}

func TestPresenceRepositoryMissingRow(t *testing.T) {
	repo := NewPresenceRepository(NewDB())
	_, err := repo.Get(context.Background(), "batch-1", "child-1")
	assert.ErrorIs(t, err, repository.ErrPresenceNotFound)
}
