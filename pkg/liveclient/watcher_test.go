package liveclient

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRoster struct {
	polls [][]Participant
	errAt int
	calls int
}

func (s *scriptedRoster) ActiveSessions(ctx context.Context, scholarID string) ([]Participant, error) {
	defer func() { s.calls++ }()
	if s.errAt > 0 && s.calls == s.errAt {
		return nil, errors.New("timeout")
	}
	idx := s.calls
	if idx >= len(s.polls) {
		idx = len(s.polls) - 1
	}
	return s.polls[idx], nil
}

func at(batchID, childID string, surah, ayah int) Participant {
	return Participant{BatchID: batchID, ChildID: childID, Surah: &surah, Ayah: &ayah}
}

func TestRosterWatcherFiresOnlyOnChange(t *testing.T) {
	source := &scriptedRoster{polls: [][]Participant{
		{at("batch-a", "child-1", 2, 5)},
		{at("batch-a", "child-1", 2, 5)},
		{at("batch-a", "child-1", 2, 6), at("batch-b", "child-2", 1, 1)},
		{at("batch-b", "child-2", 1, 1)},
	}}
	var updates, leaves []string
	w := NewRosterWatcher(source, "scholar-1", time.Second, RosterHandlers{
		OnUpdate: func(p Participant) {
			pos, _ := p.Position()
			updates = append(updates, p.ChildID+"@"+pos.String())
		},
		OnLeave: func(p Participant) { leaves = append(leaves, p.ChildID) },
	}, nil)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, w.Poll(ctx))
	}

	assert.Equal(t, []string{"child-1@2:5", "child-1@2:6", "child-2@1:1"}, updates)
	assert.Equal(t, []string{"child-1"}, leaves)
}

func TestRosterWatcherKeepsViewOnFailedPoll(t *testing.T) {
	source := &scriptedRoster{
		polls: [][]Participant{{at("batch-a", "child-1", 3, 7)}},
		errAt: 1,
	}
	var leaves int
	var updates int
	w := NewRosterWatcher(source, "scholar-1", time.Second, RosterHandlers{
		OnUpdate: func(Participant) { updates++ },
		OnLeave:  func(Participant) { leaves++ },
	}, nil)

	require.NoError(t, w.Poll(context.Background()))
	require.Error(t, w.Poll(context.Background()))
	require.NoError(t, w.Poll(context.Background()))

	assert.Equal(t, 1, updates)
	assert.Zero(t, leaves)
}

type countingPinger struct {
	calls atomic.Int32
}

func (p *countingPinger) Ping(ctx context.Context, batchID, childID, childName string) error {
	p.calls.Add(1)
	return errors.New("flaky")
}

func TestHeartbeatPingsUntilCancelled(t *testing.T) {
	pinger := &countingPinger{}
	hb := NewHeartbeat(pinger, "batch-a", "child-1", "Aisyah", 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hb.Run(ctx) }()

	require.Eventually(t, func() bool { return pinger.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	stopped := pinger.calls.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, stopped, pinger.calls.Load())
}
