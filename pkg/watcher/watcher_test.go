package watcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/wishliste/donum/pkg/logger"
)

type recorder struct {
	mu     sync.Mutex
	events []*Event
	calls  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{calls: make(chan struct{}, 64)}
}

func (r *recorder) Refetch(_ context.Context, ev *Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.calls <- struct{}{}
	return nil
}

func (r *recorder) wait(t *testing.T, n int) []*Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d refetches", i, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Event(nil), r.events...)
}

func TestNewBuildsChannelURL(t *testing.T) {
	w, err := New("https://wish.example/", "share tok", newRecorder(), logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "wss://wish.example/api/v1/ws/share%20tok", w.url)
	assert.Equal(t, "https://wish.example", w.origin)

	w, err = New("ws://localhost:6532", "7", newRecorder(), logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:6532/api/v1/ws/7", w.url)
	assert.Equal(t, "http://localhost:6532", w.origin)

	_, err = New("ftp://x", "7", newRecorder(), logger.NewNop())
	assert.Error(t, err)
}

func TestRefetchOnConnectAndEvents(t *testing.T) {
	var sessions int32
	var pings int32
	ts := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		n := atomic.AddInt32(&sessions, 1)
		if n == 1 {
			// First session: one event, then drop the connection.
			_ = websocket.JSON.Send(ws, Event{Type: "item_reserved", ListID: 7, ItemID: 3})
			return
		}
		for {
			var msg string
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				return
			}
			if msg == "ping" {
				atomic.AddInt32(&pings, 1)
				_ = websocket.Message.Send(ws, "pong")
			}
		}
	}))
	defer ts.Close()

	rec := newRecorder()
	w, err := New(ts.URL, "7", rec, logger.NewNop(),
		WithBackoff(10*time.Millisecond, 50*time.Millisecond, 3),
		WithPingInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// connect, event, reconnect
	events := rec.wait(t, 3)
	assert.Nil(t, events[0])
	require.NotNil(t, events[1])
	assert.Equal(t, "item_reserved", events[1].Type)
	assert.Equal(t, int64(3), events[1].ItemID)
	assert.Nil(t, events[2])

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&pings) > 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	w, err := New(url, "7", newRecorder(), logger.NewNop(),
		WithBackoff(time.Millisecond, 5*time.Millisecond, 4))
	require.NoError(t, err)

	err = w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 4 attempts")
}
