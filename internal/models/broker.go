package models

import "context"

type Subscription interface {
	Events() <-chan InvalidationEvent
	ListID() int64
	Close()
}

type Broker interface {
	Subscribe(ctx context.Context, key string) (Subscription, error)
	Publish(ctx context.Context, event InvalidationEvent)
}
