package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tilawah-live-api/internal/dto"
	"github.com/noah-isme/tilawah-live-api/internal/models"
	"github.com/noah-isme/tilawah-live-api/internal/repository/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type auditStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type liveFixture struct {
	clock      *fakeClock
	audit      *auditStub
	batches    *memory.BatchRepository
	sessions   *memory.LiveSessionRepository
	presence   *memory.PresenceRepository
	access     *AccessService
	svc        *SessionService
	heartbeat  *HeartbeatService
	aggregator *AggregatorService
}

func newLiveFixture(t *testing.T) *liveFixture {
	t.Helper()
	db := memory.NewDB()
	f := &liveFixture{
		clock:    newFakeClock(),
		audit:    &auditStub{},
		batches:  memory.NewBatchRepository(db),
		sessions: memory.NewLiveSessionRepository(db),
		presence: memory.NewPresenceRepository(db),
	}
	f.batches.Put(models.Batch{ID: "batch-a", ScholarID: "scholar-1", Name: "Fajr circle", Status: models.BatchStatusActive})
	f.batches.Put(models.Batch{ID: "batch-b", ScholarID: "scholar-1", Name: "Maghrib circle", Status: models.BatchStatusActive})
	f.batches.Put(models.Batch{ID: "batch-old", ScholarID: "scholar-1", Name: "Ramadan 1446", Status: models.BatchStatusArchived})

	f.access = NewAccessService(memory.NewAccessRequestRepository(db), f.audit, nil, nil)
	f.access.now = f.clock.Now
	f.svc = NewSessionService(f.sessions, f.batches, f.presence, f.access, f.audit, nil, nil, SessionServiceConfig{StaleAfter: 30 * time.Second})
	f.svc.now = f.clock.Now
	f.heartbeat = NewHeartbeatService(f.presence, f.sessions, nil, nil)
	f.heartbeat.now = f.clock.Now
	f.aggregator = NewAggregatorService(f.batches, f.presence, nil, nil, AggregatorConfig{StaleAfter: 30 * time.Second, FetchTimeout: time.Second})
	f.aggregator.now = f.clock.Now
	return f
}

func (f *liveFixture) approve(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	resp, err := f.access.RequestAccess(ctx, userID, dto.RequestAccessRequest{DisplayName: "User " + userID, Email: userID + "@example.com"})
	require.NoError(t, err)
	_, err = f.access.Decide(ctx, "admin-1", resp.Request.ID, dto.DecideAccessRequest{Outcome: models.AccessOutcomeApprove})
	require.NoError(t, err)
}

func parentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleParent, FullName: "Parent " + id}
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent, FullName: "Student " + id}
}

func scholarClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleScholar}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}
