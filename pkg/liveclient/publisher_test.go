package liveclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu     sync.Mutex
	writes []Position
	err    error
}

func (w *recordingWriter) UpdatePosition(ctx context.Context, sessionID string, pos Position) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.writes = append(w.writes, pos)
	return nil
}

func (w *recordingWriter) snapshot() []Position {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Position(nil), w.writes...)
}

func startPublisher(t *testing.T, writer PositionWriter, debounce time.Duration) *PositionPublisher {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	pub := NewPositionPublisher(writer, "session-1", debounce, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return pub
}

func TestPositionPublisherCollapsesBurstToFinalValue(t *testing.T) {
	writer := &recordingWriter{}
	pub := startPublisher(t, writer, 40*time.Millisecond)

	pub.Set(Position{Surah: 2, Ayah: 5})
	pub.Set(Position{Surah: 2, Ayah: 5})
	pub.Set(Position{Surah: 2, Ayah: 6})

	require.Eventually(t, func() bool { return len(writer.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, []Position{{Surah: 2, Ayah: 6}}, writer.snapshot())
}

func TestPositionPublisherFlushesDuringContinuousChanges(t *testing.T) {
	writer := &recordingWriter{}
	pub := startPublisher(t, writer, 40*time.Millisecond)

	// changes arrive faster than the debounce window for well past maxWait
	for ayah := 1; ayah <= 25; ayah++ {
		pub.Set(Position{Surah: 2, Ayah: ayah})
		time.Sleep(15 * time.Millisecond)
	}
	assert.NotEmpty(t, writer.snapshot())

	require.Eventually(t, func() bool {
		sent, ok := pub.Sent()
		return ok && sent == Position{Surah: 2, Ayah: 25}
	}, time.Second, 5*time.Millisecond)
	assert.Less(t, len(writer.snapshot()), 25)
}

func TestPositionPublisherSuppressesUnchangedValue(t *testing.T) {
	writer := &recordingWriter{}
	pub := startPublisher(t, writer, 20*time.Millisecond)

	pub.Set(Position{Surah: 36, Ayah: 1})
	require.Eventually(t, func() bool { return pub.Writes() == 1 }, time.Second, 5*time.Millisecond)

	pub.Set(Position{Surah: 36, Ayah: 1})
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, writer.snapshot(), 1)

	pub.Set(Position{Surah: 36, Ayah: 2})
	require.Eventually(t, func() bool { return pub.Writes() == 2 }, time.Second, 5*time.Millisecond)
	sent, ok := pub.Sent()
	require.True(t, ok)
	assert.Equal(t, Position{Surah: 36, Ayah: 2}, sent)
}

func TestPositionPublisherSeedSuppressesJoinPosition(t *testing.T) {
	writer := &recordingWriter{}
	pub := startPublisher(t, writer, 20*time.Millisecond)
	pub.Seed(Position{Surah: 18, Ayah: 10})

	pub.Set(Position{Surah: 18, Ayah: 10})
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, writer.snapshot())
}

func TestPositionPublisherRetriesAfterFailure(t *testing.T) {
	writer := &recordingWriter{err: errors.New("offline")}
	pub := startPublisher(t, writer, 20*time.Millisecond)

	pub.Set(Position{Surah: 1, Ayah: 3})
	require.Eventually(t, func() bool { return pub.Err() != nil }, time.Second, 5*time.Millisecond)
	_, ok := pub.Sent()
	assert.False(t, ok)

	writer.mu.Lock()
	writer.err = nil
	writer.mu.Unlock()

	pub.Set(Position{Surah: 1, Ayah: 3})
	require.Eventually(t, func() bool { return pub.Writes() == 1 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, pub.Err())
}

func TestPositionPublisherStopsWithContext(t *testing.T) {
	writer := &recordingWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	pub := NewPositionPublisher(writer, "session-1", time.Hour, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- pub.Run(ctx) }()
	pub.Set(Position{Surah: 2, Ayah: 1})
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
	assert.Empty(t, writer.snapshot())
}
