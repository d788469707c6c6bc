package assistant

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu       sync.Mutex
	seen     map[string][]string
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func newRecordingHandler(delay time.Duration) *recordingHandler {
	return &recordingHandler{seen: make(map[string][]string), delay: delay}
}

func (h *recordingHandler) Handle(_ context.Context, msg Message) error {
	n := h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(h.delay)

	h.mu.Lock()
	h.seen[msg.Sender] = append(h.seen[msg.Sender], msg.Text)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) texts(sender string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen[sender]...)
}

func TestQueue_PreservesPerSenderOrder(t *testing.T) {
	h := newRecordingHandler(time.Millisecond)
	q := NewQueue(h, QueueConfig{MaxConcurrency: 4, WorkerBuffer: 64})

	want := map[string][]string{}
	for _, s := range []string{"a", "b", "c"} {
		for i := 0; i < 10; i++ {
			text := s + string(rune('0'+i))
			want[s] = append(want[s], text)
			_, err := q.Enqueue(Message{Sender: s, Text: text})
			require.NoError(t, err)
		}
	}

	require.NoError(t, q.Close(context.Background()))
	for s, texts := range want {
		assert.Equal(t, texts, h.texts(s), "sender %s", s)
	}
}

func TestQueue_BoundsConcurrency(t *testing.T) {
	h := newRecordingHandler(20 * time.Millisecond)
	q := NewQueue(h, QueueConfig{MaxConcurrency: 2})

	for _, s := range []string{"a", "b", "c", "d", "e"} {
		_, err := q.Enqueue(Message{Sender: s, Text: "oi"})
		require.NoError(t, err)
	}

	require.NoError(t, q.Close(context.Background()))
	assert.LessOrEqual(t, h.peak.Load(), int32(2))
}

func TestQueue_AssignsID(t *testing.T) {
	q := NewQueue(newRecordingHandler(0), QueueConfig{})
	defer func() { _ = q.Close(context.Background()) }()

	id, err := q.Enqueue(Message{Sender: "a", Text: "oi"})
	require.NoError(t, err)
	assert.Len(t, id, 36)

	id, err = q.Enqueue(Message{ID: "given", Sender: "a", Text: "oi"})
	require.NoError(t, err)
	assert.Equal(t, "given", id)
}

func TestQueue_IdleWorkerExits(t *testing.T) {
	q := NewQueue(newRecordingHandler(0), QueueConfig{IdleTimeout: 20 * time.Millisecond})
	defer func() { _ = q.Close(context.Background()) }()

	_, err := q.Enqueue(Message{Sender: "a", Text: "oi"})
	require.NoError(t, err)
	assert.Equal(t, 1, q.Active())

	assert.Eventually(t, func() bool { return q.Active() == 0 }, time.Second, 5*time.Millisecond)

	// A new message after the worker exited starts a fresh one.
	_, err = q.Enqueue(Message{Sender: "a", Text: "de novo"})
	require.NoError(t, err)
}

func TestQueue_FullBacklog(t *testing.T) {
	block := make(chan struct{})
	h := HandlerFunc(func(context.Context, Message) error {
		<-block
		return nil
	})
	q := NewQueue(h, QueueConfig{WorkerBuffer: 1})

	// The first message is taken by the worker, the second fills the buffer.
	_, err := q.Enqueue(Message{Sender: "a", Text: "1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := q.Enqueue(Message{Sender: "a", Text: "2"})
		return err == nil
	}, time.Second, time.Millisecond)

	_, err = q.Enqueue(Message{Sender: "a", Text: "3"})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
	require.NoError(t, q.Close(context.Background()))
}

func TestQueue_ClosedRejects(t *testing.T) {
	q := NewQueue(newRecordingHandler(0), QueueConfig{})
	require.NoError(t, q.Close(context.Background()))
	require.NoError(t, q.Close(context.Background()))

	_, err := q.Enqueue(Message{Sender: "a", Text: "oi"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_RecoversFromPanic(t *testing.T) {
	var calls atomic.Int32
	h := HandlerFunc(func(context.Context, Message) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})
	q := NewQueue(h, QueueConfig{})

	_, err := q.Enqueue(Message{Sender: "a", Text: "1"})
	require.NoError(t, err)
	_, err = q.Enqueue(Message{Sender: "a", Text: "2"})
	require.NoError(t, err)

	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
}
