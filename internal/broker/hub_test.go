package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wishliste/donum/internal/apperrors"
	"github.com/wishliste/donum/internal/models"
	"github.com/wishliste/donum/pkg/logger"
)

type staticResolver map[string]int64

func (r staticResolver) ResolveChannel(_ context.Context, key string) (int64, error) {
	id, ok := r[key]
	if !ok {
		return 0, apperrors.ErrListNotFound
	}
	return id, nil
}

var resolver = staticResolver{"7": 7, "share-seven": 7, "8": 8}

func newHub(buffer int) *Hub {
	return NewHub(resolver, buffer, logger.NewNop(), nil)
}

func receive(t *testing.T, sub models.Subscription) models.InvalidationEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event within a second")
	}
	return models.InvalidationEvent{}
}

func TestAliasesShareOneChannel(t *testing.T) {
	hub := newHub(4)
	ctx := context.Background()

	byID, err := hub.Subscribe(ctx, "7")
	require.NoError(t, err)
	byToken, err := hub.Subscribe(ctx, "share-seven")
	require.NoError(t, err)
	other, err := hub.Subscribe(ctx, "8")
	require.NoError(t, err)

	assert.Equal(t, int64(7), byToken.ListID())
	assert.Equal(t, 2, hub.Subscribers(7))
	assert.Equal(t, 2, hub.Channels())

	event := models.InvalidationEvent{Type: models.EventItemReserved, ListID: 7, ItemID: 1}
	hub.Publish(ctx, event)

	assert.Equal(t, event, receive(t, byID))
	assert.Equal(t, event, receive(t, byToken))
	select {
	case ev := <-other.Events():
		t.Fatalf("list 8 got an event for list 7: %+v", ev)
	default:
	}
}

func TestUnknownChannel(t *testing.T) {
	_, err := newHub(1).Subscribe(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrListNotFound)
}

func TestCloseDiscardsEmptyChannel(t *testing.T) {
	hub := newHub(1)
	sub, err := hub.Subscribe(context.Background(), "7")
	require.NoError(t, err)

	sub.Close()
	sub.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers(7))
	assert.Equal(t, 0, hub.Channels())

	assert.NotPanics(t, func() {
		hub.Publish(context.Background(), models.InvalidationEvent{Type: models.EventItemUpdated, ListID: 7})
	})
}

func TestContextEndsSubscription(t *testing.T) {
	hub := newHub(1)
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := hub.Subscribe(ctx, "7")
	require.NoError(t, err)

	cancel()
	assert.Eventually(t, func() bool { return hub.Subscribers(7) == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	hub := newHub(1)
	ctx := context.Background()
	slow, err := hub.Subscribe(ctx, "7")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.Publish(ctx, models.InvalidationEvent{Type: models.EventItemReserved, ListID: 7, ItemID: int64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	assert.Equal(t, int64(0), receive(t, slow).ItemID)
	select {
	case ev := <-slow.Events():
		t.Fatalf("expected the rest to be dropped, got %+v", ev)
	default:
	}
}

func TestConcurrentPublishAndClose(t *testing.T) {
	hub := newHub(2)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub, err := hub.Subscribe(ctx, "7")
			if err != nil {
				return
			}
			time.Sleep(time.Millisecond)
			sub.Close()
		}()
		go func() {
			defer wg.Done()
			hub.Publish(ctx, models.InvalidationEvent{Type: models.EventItemUnreserved, ListID: 7})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Subscribers(7))
}
