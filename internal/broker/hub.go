// Package broker fans invalidation events out to the live subscribers of a
// wish list. Delivery is best effort: there is no backlog, and a subscriber
// whose buffer is full misses the event and recovers by refetching.
package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/wishliste/donum/internal/metrics"
	"github.com/wishliste/donum/internal/models"
	"github.com/wishliste/donum/pkg/logger"
)

const DefaultBuffer = 16

type Hub struct {
	resolver models.ChannelResolver
	buffer   int
	logger   *logger.Logger
	metrics  *metrics.Metrics

	mu       sync.RWMutex
	channels map[int64]map[*Subscription]struct{}
}

func NewHub(resolver models.ChannelResolver, buffer int, logger *logger.Logger, m *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		resolver: resolver,
		buffer:   buffer,
		logger:   logger.Named("broker"),
		metrics:  m,
		channels: make(map[int64]map[*Subscription]struct{}),
	}
}

// Subscribe joins the channel addressed by key, a list id or a share token.
// The subscription ends on Close or when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, key string) (models.Subscription, error) {
	listID, err := h.resolver.ResolveChannel(ctx, key)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		id:     uuid.NewString(),
		listID: listID,
		events: make(chan models.InvalidationEvent, h.buffer),
		done:   make(chan struct{}),
		hub:    h,
	}

	h.mu.Lock()
	subs, ok := h.channels[listID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.channels[listID] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	h.metrics.SubscriberAdded()
	h.logger.Debug("Subscriber joined", "list_id", listID, "subscriber", sub.id)

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Publish delivers event to every subscriber of its list without blocking.
func (h *Hub) Publish(_ context.Context, event models.InvalidationEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.channels[event.ListID] {
		select {
		case sub.events <- event:
			h.metrics.EventDelivered(string(event.Type))
		default:
			h.metrics.EventDropped()
			h.logger.Warn("Dropped event for slow subscriber", "list_id", event.ListID, "subscriber", sub.id, "type", event.Type)
		}
	}
}

// Subscribers returns the number of live subscribers of a list.
func (h *Hub) Subscribers(listID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[listID])
}

// Channels returns the number of lists with at least one subscriber.
func (h *Hub) Channels() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

func (h *Hub) leave(sub *Subscription) {
	h.mu.Lock()
	subs := h.channels[sub.listID]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.channels, sub.listID)
	}
	close(sub.events)
	h.mu.Unlock()

	h.metrics.SubscriberRemoved()
	h.logger.Debug("Subscriber left", "list_id", sub.listID, "subscriber", sub.id)
}

type Subscription struct {
	id     string
	listID int64
	events chan models.InvalidationEvent
	done   chan struct{}
	once   sync.Once
	hub    *Hub
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan models.InvalidationEvent {
	return s.events
}

func (s *Subscription) ListID() int64 {
	return s.listID
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.leave(s)
	})
}
