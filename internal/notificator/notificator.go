package notificator

import (
	"context"
	"runtime/debug"

	"github.com/wishliste/donum/internal/models"
	"github.com/wishliste/donum/pkg/logger"
)

// Sink receives committed invalidation events.
type Sink interface {
	Publish(ctx context.Context, event models.InvalidationEvent)
}

// Notificator hands committed events to every sink. A panicking sink is
// logged and does not affect the others or the caller, whose mutation is
// already committed.
type Notificator struct {
	logger *logger.Logger
	sinks  []Sink
}

func NewNotificator(logger *logger.Logger, sinks ...Sink) *Notificator {
	return &Notificator{logger: logger.Named("notificator"), sinks: sinks}
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (n *Notificator) Publish(ctx context.Context, event models.InvalidationEvent) {
	n.logger.Debug("Publishing event", "type", event.Type, "list_id", event.ListID, "item_id", event.ItemID)
	for _, sink := range n.sinks {
		sink := sink
		n.safeCall(func() { sink.Publish(ctx, event) }, string(event.Type))
	}
}
