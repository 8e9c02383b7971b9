package http_api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/websocket"

	"github.com/wishliste/donum/internal/models"
)

const (
	// socketWriteWait bounds a single frame write to a slow client.
	socketWriteWait = 10 * time.Second
	// socketReadWait drops clients that stay silent longer than this.
	// Clients ping well within it.
	socketReadWait = 90 * time.Second

	sseKeepAlive = 25 * time.Second

	defaultPollTimeout = 25 * time.Second
	maxPollTimeout     = 60 * time.Second
)

// socket is a handler for GET /ws/:key. Invalidation events of the list are
// sent as JSON text frames. A "ping" text frame is answered with "pong" and
// a {"type":"ping"} frame with {"type":"pong"}.
func (s *HTTPServer) socket(c *gin.Context) {
	sub, err := s.donum.Subscribe(c.Request.Context(), c.Param("key"))
	if err != nil {
		s.fail(c, err)
		return
	}
	defer sub.Close()

	server := websocket.Server{
		Handshake: s.checkOrigin,
		Handler: func(ws *websocket.Conn) {
			s.serveSocket(ws, sub)
		},
	}
	server.ServeHTTP(c.Writer, c.Request)
}

// checkOrigin accepts browsers from the allowed origins and clients that
// send no Origin at all.
func (s *HTTPServer) checkOrigin(config *websocket.Config, req *http.Request) error {
	origin, err := websocket.Origin(config, req)
	if err != nil {
		return err
	}
	config.Origin = origin
	if origin == nil {
		return nil
	}
	if !originAllowed(s.config.AllowedOrigins, origin.Scheme+"://"+origin.Host) {
		s.logger.Debug("Rejected websocket origin", "origin", origin.String())
		return fmt.Errorf("origin %s is not allowed", origin)
	}
	return nil
}

func (s *HTTPServer) serveSocket(ws *websocket.Conn, sub models.Subscription) {
	var mu sync.Mutex
	send := func(codec websocket.Codec, v interface{}) error {
		mu.Lock()
		defer mu.Unlock()
		if err := ws.SetWriteDeadline(time.Now().Add(socketWriteWait)); err != nil {
			return err
		}
		return codec.Send(ws, v)
	}

	s.logger.Debug("Websocket subscriber connected", "wishlist_id", sub.ListID())
	defer s.logger.Debug("Websocket subscriber gone", "wishlist_id", sub.ListID())

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if err := ws.SetReadDeadline(time.Now().Add(socketReadWait)); err != nil {
				return
			}
			var msg string
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				return
			}
			if err := answerPing(strings.TrimSpace(msg), send); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := send(websocket.JSON, ev); err != nil {
				s.logger.Debug("Websocket write failed", "wishlist_id", sub.ListID(), "error", err)
				return
			}
		case <-gone:
			return
		case <-s.closing:
			return
		}
	}
}

type socketControl struct {
	Type string `json:"type"`
}

// answerPing replies to both ping forms. Other frames are ignored.
func answerPing(msg string, send func(websocket.Codec, interface{}) error) error {
	if msg == "ping" {
		return send(websocket.Message, "pong")
	}
	if !strings.HasPrefix(msg, "{") {
		return nil
	}
	var ctl socketControl
	if err := json.Unmarshal([]byte(msg), &ctl); err != nil || ctl.Type != "ping" {
		return nil
	}
	return send(websocket.JSON, socketControl{Type: "pong"})
}

// events is a handler for GET /events/:key, the server-sent events
// rendition of the channel.
func (s *HTTPServer) events(c *gin.Context) {
	sub, err := s.donum.Subscribe(c.Request.Context(), c.Param("key"))
	if err != nil {
		s.fail(c, err)
		return
	}
	defer sub.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"wishlist_id": sub.ListID()})
	c.Writer.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-keepAlive.C:
			_, err := io.WriteString(w, ": keepalive\n\n")
			return err == nil
		case <-c.Request.Context().Done():
			return false
		case <-s.closing:
			return false
		}
	})
}

// poll is a handler for GET /poll/:key. It waits for the next event of the
// list and answers 204 when none arrives in time.
func (s *HTTPServer) poll(c *gin.Context) {
	timeout, err := pollTimeout(c.Query("timeout"))
	if err != nil {
		s.fail(c, err)
		return
	}

	sub, err := s.donum.Subscribe(c.Request.Context(), c.Param("key"))
	if err != nil {
		s.fail(c, err)
		return
	}
	defer sub.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev, ok := <-sub.Events():
		if !ok {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "event": ev})
	case <-timer.C:
		c.Status(http.StatusNoContent)
	case <-s.closing:
		c.Status(http.StatusNoContent)
	case <-c.Request.Context().Done():
	}
}

// pollTimeout accepts a Go duration or plain seconds, capped at
// maxPollTimeout.
func pollTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return defaultPollTimeout, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, badRequest("timeout must be a duration such as 25s")
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return 0, badRequest("timeout must be positive")
	}
	if d > maxPollTimeout {
		d = maxPollTimeout
	}
	return d, nil
}
