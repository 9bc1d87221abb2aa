package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tilawah-live-api/internal/dto"
	"github.com/noah-isme/tilawah-live-api/internal/models"
	appErrors "github.com/noah-isme/tilawah-live-api/pkg/errors"
)

func TestSessionServiceStartTwiceReturnsSameSession(t *testing.T) {
	f := newLiveFixture(t)
	f.approve(t, "parent-1")
	ctx := context.Background()
	claims := parentClaims("parent-1")
	req := dto.StartSessionRequest{ChildID: "child-1", ChildName: "Yusuf"}

	first, err := f.svc.StartOrJoin(ctx, claims, "batch-a", req, 3)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, models.SessionStatusWaiting, first.Session.Status)
	assert.Nil(t, first.Session.CurrentSurah)
	assert.Nil(t, first.Session.CurrentAyah)

	_, err = f.svc.UpdatePosition(ctx, claims, first.Session.ID, dto.UpdatePositionRequest{Surah: 36, Ayah: 12})
	require.NoError(t, err)

	second, err := f.svc.StartOrJoin(ctx, claims, "batch-a", req, 3)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Session.ID, second.Session.ID)
	assert.True(t, second.Session.AtPosition(models.Position{Surah: 36, Ayah: 12}))
	assert.Equal(t, models.SessionStatusActive, second.Session.Status)
}

func TestSessionServiceLimitExceededCarriesLimit(t *testing.T) {
	f := newLiveFixture(t)
	f.approve(t, "parent-1")
	ctx := context.Background()
	claims := parentClaims("parent-1")

	_, err := f.svc.StartOrJoin(ctx, claims, "batch-a", dto.StartSessionRequest{ChildID: "child-1"}, 1)
	require.NoError(t, err)

	_, err = f.svc.StartOrJoin(ctx, claims, "batch-b", dto.StartSessionRequest{ChildID: "child-1"}, 1)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrLimitExceeded.Code, appErr.Code)
	assert.Equal(t, 1, appErr.Details["limit"])
	assert.Equal(t, 1, appErr.Details["count"])

	// a new day resets the allowance
	f.clock.Advance(24 * time.Hour)
	_, err = f.svc.StartOrJoin(ctx, claims, "batch-b", dto.StartSessionRequest{ChildID: "child-1"}, 1)
	require.NoError(t, err)
}

func TestSessionServiceConcurrentStartsAtLimit(t *testing.T) {
	f := newLiveFixture(t)
	f.approve(t, "parent-1")
	claims := parentClaims("parent-1")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		limited int
	)
	for _, batchID := range []string{"batch-a", "batch-b", "batch-a", "batch-b", "batch-a", "batch-b"} {
		wg.Add(1)
		go func(batchID string) {
			defer wg.Done()
			resp, err := f.svc.StartOrJoin(context.Background(), claims, batchID, dto.StartSessionRequest{ChildID: "child-1"}, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && resp.Created:
				created++
			case errors.Is(err, appErrors.ErrLimitExceeded):
				limited++
			}
		}(batchID)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 3, limited)
}

func TestSessionServiceStartRequiresApprovedAccess(t *testing.T) {
	f := newLiveFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartOrJoin(ctx, studentClaims("student-1"), "batch-a", dto.StartSessionRequest{}, 3)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	resp, err := f.svc.StartOrJoin(ctx, adminClaims(), "batch-a", dto.StartSessionRequest{ChildID: "child-9"}, 3)
	require.NoError(t, err)
	assert.True(t, resp.Created)
}

func TestSessionServiceStartRejectsUnknownAndArchivedBatch(t *testing.T) {
	f := newLiveFixture(t)
	f.approve(t, "student-1")
	ctx := context.Background()
	claims := studentClaims("student-1")

	_, err := f.svc.StartOrJoin(ctx, claims, "batch-missing", dto.StartSessionRequest{}, 3)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.StartOrJoin(ctx, claims, "batch-old", dto.StartSessionRequest{}, 3)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))

	_, err = f.svc.StartOrJoin(ctx, claims, "batch-a", dto.StartSessionRequest{ChildID: "someone-else"}, 3)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestSessionServiceUpdatePositionRules(t *testing.T) {
	f := newLiveFixture(t)
	f.approve(t, "student-1")
	ctx := context.Background()
	claims := studentClaims("student-1")

	started, err := f.svc.StartOrJoin(ctx, claims, "batch-a", dto.StartSessionRequest{}, 3)
	require.NoError(t, err)
	id := started.Session.ID

	first, err := f.svc.UpdatePosition(ctx, claims, id, dto.UpdatePositionRequest{Surah: 2, Ayah: 5})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, first.Status)

	f.clock.Advance(time.Second)
	same, err := f.svc.UpdatePosition(ctx, claims, id, dto.UpdatePositionRequest{Surah: 2, Ayah: 5})
	require.NoError(t, err)
	assert.Equal(t, first.Version, same.Version)
	assert.Equal(t, first.UpdatedAt, same.UpdatedAt)

	for _, bad := range []dto.UpdatePositionRequest{{Surah: 0, Ayah: 1}, {Surah: 115, Ayah: 1}, {Surah: 1, Ayah: 8}, {Surah: 2, Ayah: 0}} {
		_, err = f.svc.UpdatePosition(ctx, claims, id, bad)
		assert.True(t, errors.Is(err, appErrors.ErrInvalidArgument), "position %+v", bad)
	}
	stored, err := f.sessions.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.AtPosition(models.Position{Surah: 2, Ayah: 5}))
	assert.Equal(t, first.Version, stored.Version)

	presence, err := f.presence.Get(ctx, "batch-a", "student-1")
	require.NoError(t, err)
	pos, known := presence.Position()
	require.True(t, known)
	assert.Equal(t, models.Position{Surah: 2, Ayah: 5}, pos)

	_, err = f.svc.UpdatePosition(ctx, parentClaims("intruder"), id, dto.UpdatePositionRequest{Surah: 2, Ayah: 6})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.UpdatePosition(ctx, claims, "missing", dto.UpdatePositionRequest{Surah: 2, Ayah: 6})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestSessionServiceLeaveAndEnd(t *testing.T) {
	f := newLiveFixture(t)
	f.approve(t, "student-1")
	ctx := context.Background()
	claims := studentClaims("student-1")

	started, err := f.svc.StartOrJoin(ctx, claims, "batch-a", dto.StartSessionRequest{}, 3)
	require.NoError(t, err)

	ended, err := f.svc.Leave(ctx, claims, "batch-a", dto.LeaveRequest{})
	require.NoError(t, err)
	assert.Nil(t, ended)
	roster, err := f.presence.Roster(ctx, "batch-a")
	require.NoError(t, err)
	assert.Empty(t, roster)

	open, err := f.sessions.FindOpen(ctx, "batch-a", "student-1")
	require.NoError(t, err)
	assert.Equal(t, started.Session.ID, open.ID)

	_, err = f.svc.End(ctx, scholarClaims("scholar-2"), started.Session.ID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	ended, err = f.svc.End(ctx, scholarClaims("scholar-1"), started.Session.ID)
	require.NoError(t, err)
	assert.True(t, ended.Ended())

	again, err := f.svc.End(ctx, scholarClaims("scholar-1"), started.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, ended.Version, again.Version)

	_, err = f.svc.UpdatePosition(ctx, claims, started.Session.ID, dto.UpdatePositionRequest{Surah: 1, Ayah: 1})
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
	assert.Contains(t, f.audit.actions(), models.AuditActionSessionEnd)
}

func TestSessionServiceLeaveWithEndEndsSession(t *testing.T) {
	f := newLiveFixture(t)
	f.approve(t, "parent-1")
	ctx := context.Background()
	claims := parentClaims("parent-1")

	started, err := f.svc.StartOrJoin(ctx, claims, "batch-a", dto.StartSessionRequest{ChildID: "child-1"}, 3)
	require.NoError(t, err)

	ended, err := f.svc.Leave(ctx, claims, "batch-a", dto.LeaveRequest{ChildID: "child-1", End: true})
	require.NoError(t, err)
	require.NotNil(t, ended)
	assert.Equal(t, started.Session.ID, ended.ID)
	assert.True(t, ended.Ended())

	next, err := f.svc.StartOrJoin(ctx, claims, "batch-a", dto.StartSessionRequest{ChildID: "child-1"}, 3)
	require.NoError(t, err)
	assert.True(t, next.Created)
	assert.NotEqual(t, started.Session.ID, next.Session.ID)
}

func TestSessionServiceObserveComputesLiveness(t *testing.T) {
	f := newLiveFixture(t)
	f.approve(t, "student-1")
	ctx := context.Background()

	started, err := f.svc.StartOrJoin(ctx, studentClaims("student-1"), "batch-a", dto.StartSessionRequest{}, 3)
	require.NoError(t, err)

	view, err := f.svc.Observe(ctx, scholarClaims("scholar-1"), started.Session.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Presence)
	assert.True(t, view.Presence.IsActive)
	assert.Equal(t, "Student student-1", view.Presence.ChildName)

	f.clock.Advance(31 * time.Second)
	view, err = f.svc.Observe(ctx, scholarClaims("scholar-1"), started.Session.ID)
	require.NoError(t, err)
	assert.False(t, view.Presence.IsActive)

	_, err = f.svc.Observe(ctx, scholarClaims("scholar-2"), started.Session.ID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestSessionServiceRejectsWritesFromOtherAccounts(t *testing.T) {
	f := newLiveFixture(t)
	f.approve(t, "parent-1")
	f.approve(t, "stranger")
	ctx := context.Background()
	owner := parentClaims("parent-1")
	stranger := parentClaims("stranger")

	started, err := f.svc.StartOrJoin(ctx, owner, "batch-a", dto.StartSessionRequest{ChildID: "child-1", ChildName: "Yusuf"}, 3)
	require.NoError(t, err)
	before, err := f.presence.Get(ctx, "batch-a", "child-1")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Second)

	cases := []struct {
		name string
		call func() error
	}{
		{"join", func() error {
			_, err := f.svc.StartOrJoin(ctx, stranger, "batch-a", dto.StartSessionRequest{ChildID: "child-1", ChildName: "Someone"}, 3)
			return err
		}},
		{"leave", func() error {
			_, err := f.svc.Leave(ctx, stranger, "batch-a", dto.LeaveRequest{ChildID: "child-1"})
			return err
		}},
		{"leave and end", func() error {
			_, err := f.svc.Leave(ctx, stranger, "batch-a", dto.LeaveRequest{ChildID: "child-1", End: true})
			return err
		}},
		{"position", func() error {
			_, err := f.svc.UpdatePosition(ctx, stranger, started.Session.ID, dto.UpdatePositionRequest{Surah: 2, Ayah: 5})
			return err
		}},
		{"ping", func() error {
			_, err := f.heartbeat.Ping(ctx, stranger, "batch-a", dto.PingRequest{ChildID: "child-1", ChildName: "Someone"})
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, errors.Is(tc.call(), appErrors.ErrForbidden))

			after, err := f.presence.Get(ctx, "batch-a", "child-1")
			require.NoError(t, err)
			assert.Equal(t, before.ChildName, after.ChildName)
			assert.Equal(t, before.LastSeenAt, after.LastSeenAt)
			_, known := after.Position()
			assert.False(t, known)
		})
	}

	open, err := f.sessions.FindOpen(ctx, "batch-a", "child-1")
	require.NoError(t, err)
	assert.Equal(t, started.Session.ID, open.ID)
	assert.Nil(t, open.CurrentSurah)
}

func TestSessionServiceLeaveWithoutOpenSessionIsNoop(t *testing.T) {
	f := newLiveFixture(t)
	ctx := context.Background()

	ended, err := f.svc.Leave(ctx, parentClaims("parent-1"), "batch-a", dto.LeaveRequest{ChildID: "child-1", End: true})
	require.NoError(t, err)
	assert.Nil(t, ended)
}

func TestSessionServiceStudentWritesSessionStartedByParent(t *testing.T) {
	f := newLiveFixture(t)
	f.approve(t, "parent-1")
	f.approve(t, "child-1")
	ctx := context.Background()
	student := studentClaims("child-1")

	started, err := f.svc.StartOrJoin(ctx, parentClaims("parent-1"), "batch-a", dto.StartSessionRequest{ChildID: "child-1", ChildName: "Yusuf"}, 3)
	require.NoError(t, err)

	joined, err := f.svc.StartOrJoin(ctx, student, "batch-a", dto.StartSessionRequest{}, 3)
	require.NoError(t, err)
	assert.False(t, joined.Created)
	assert.Equal(t, started.Session.ID, joined.Session.ID)

	f.clock.Advance(5 * time.Second)
	_, err = f.heartbeat.Ping(ctx, student, "batch-a", dto.PingRequest{})
	require.NoError(t, err)

	updated, err := f.svc.UpdatePosition(ctx, student, started.Session.ID, dto.UpdatePositionRequest{Surah: 2, Ayah: 5})
	require.NoError(t, err)
	assert.True(t, updated.AtPosition(models.Position{Surah: 2, Ayah: 5}))

	view, err := f.svc.Observe(ctx, student, started.Session.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Presence)
	assert.Equal(t, f.clock.Now(), view.Presence.LastSeenAt)
	assert.True(t, view.Presence.IsActive)

	ended, err := f.svc.Leave(ctx, student, "batch-a", dto.LeaveRequest{End: true})
	require.NoError(t, err)
	require.NotNil(t, ended)
	assert.True(t, ended.Ended())

	// another student cannot act on the session
	_, err = f.svc.Observe(ctx, studentClaims("child-2"), started.Session.ID)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}
