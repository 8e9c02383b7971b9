// Package watcher follows a wish list's invalidation channel over a
// websocket and tells the caller when to refetch.
//
// Events carry no state and are not replayed. A client that reconnects
// refetches once on connect and converges from there.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/net/websocket"

	"github.com/wishliste/donum/pkg/logger"
)

const (
	DefaultInitialInterval = 3 * time.Second
	DefaultMaxInterval     = 30 * time.Second
	DefaultMultiplier      = 2
	DefaultMaxAttempts     = 10
	DefaultPingInterval    = 30 * time.Second
)

// Event is an invalidation notice for one list.
type Event struct {
	Type   string    `json:"type"`
	ListID int64     `json:"wishlist_id"`
	ItemID int64     `json:"item_id,omitempty"`
	At     time.Time `json:"at"`
}

// Refetcher reloads whatever the caller shows of the list. The event is nil
// when the refetch follows a (re)connect.
type Refetcher interface {
	Refetch(ctx context.Context, ev *Event) error
}

// RefetchFunc adapts a function to Refetcher.
type RefetchFunc func(ctx context.Context, ev *Event) error

func (f RefetchFunc) Refetch(ctx context.Context, ev *Event) error {
	return f(ctx, ev)
}

type Watcher struct {
	url     string
	origin  string
	target  Refetcher
	logger  *logger.Logger
	backoff *backoff.ExponentialBackOff

	maxAttempts  int
	pingInterval time.Duration
}

type Option func(*Watcher)

// WithBackoff overrides the reconnect schedule.
func WithBackoff(initial, max time.Duration, attempts int) Option {
	return func(w *Watcher) {
		w.backoff.InitialInterval = initial
		w.backoff.MaxInterval = max
		w.maxAttempts = attempts
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(w *Watcher) { w.pingInterval = d }
}

// New creates a watcher for the channel key (list id or share token) served
// by the API at baseURL, for example "http://localhost:6532".
func New(baseURL, key string, target Refetcher, log *logger.Logger, opts ...Option) (*Watcher, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	origin := u.Scheme + "://" + u.Host
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		origin = strings.Replace(origin, "ws", "http", 1)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/api/v1/ws/" + key

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultInitialInterval
	b.MaxInterval = DefaultMaxInterval
	b.Multiplier = DefaultMultiplier
	b.RandomizationFactor = 0.2

	w := &Watcher{
		url:          u.String(),
		origin:       origin,
		target:       target,
		logger:       log.Named("watcher"),
		backoff:      b,
		maxAttempts:  DefaultMaxAttempts,
		pingInterval: DefaultPingInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run follows the channel until ctx is done or reconnecting fails
// maxAttempts times in a row. A session that got connected resets the
// schedule.
func (w *Watcher) Run(ctx context.Context) error {
	w.backoff.Reset()
	failures := 0
	for {
		connected, err := w.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			w.backoff.Reset()
			failures = 0
		}
		failures++
		if failures >= w.maxAttempts {
			return fmt.Errorf("giving up on %s after %d attempts: %w", w.url, failures, err)
		}

		wait := w.backoff.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("giving up on %s: %w", w.url, err)
		}
		w.logger.Warn("Channel connection lost, retrying", "url", w.url, "in", wait, "attempt", failures, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// session runs one connection. connected reports whether the handshake
// succeeded.
func (w *Watcher) session(ctx context.Context) (connected bool, err error) {
	cfg, err := websocket.NewConfig(w.url, w.origin)
	if err != nil {
		return false, err
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		ws.Close()
	}()

	w.logger.Debug("Connected to channel", "url", w.url)
	w.refetch(ctx, nil)

	var mu sync.Mutex
	go func() {
		ticker := time.NewTicker(w.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				err := websocket.Message.Send(ws, "ping")
				mu.Unlock()
				if err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			return true, err
		}
		if msg == "pong" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(msg), &ev); err != nil {
			w.logger.Warn("Ignoring malformed event", "error", err)
			continue
		}
		w.refetch(ctx, &ev)
	}
}

func (w *Watcher) refetch(ctx context.Context, ev *Event) {
	if err := w.target.Refetch(ctx, ev); err != nil {
		w.logger.Warn("Refetch failed", "error", err)
	}
}
