// Package webui serves the dashboard's HTTP surface.
// This file contains the WebSocket variant of the live update stream.
package webui

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketConfig holds the connection settings of the /ws endpoint.
type WebSocketConfig struct {
	// PongWait is how long to wait for a pong before dropping the client (default: 60s)
	PongWait time.Duration

	// WriteWait is time allowed to write a message (default: 10s)
	WriteWait time.Duration

	// MaxMessageSize is max message size from client (default: 512 bytes)
	MaxMessageSize int64
}

// DefaultWebSocketConfig returns the default configuration.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 512,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin allows connections from any origin (same-origin deployment)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket handles GET /ws?category=<channel>. It runs the same
// session loop as HandleSSE, sending each message as a JSON text frame and
// a ping frame on every tick.
func (h *StreamHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	channel, category, err := channelFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category")
		return
	}

	cfg := h.config.WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sink := &wsSink{conn: conn, writeWait: cfg.WriteWait}

	if h.static[channel] {
		_ = sink.Send(NewStaticMessage(channel))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(cfg.WriteWait))
		return
	}

	ctx, release, err := h.tracker.TrackStream(r.Context(), TransportWebSocket)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server is shutting down"),
			time.Now().Add(cfg.WriteWait))
		return
	}

	// The hijacked connection no longer sees request cancellation, so the
	// read pump ends the session when the client goes away.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn.SetReadLimit(cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	var pump sync.WaitGroup
	pump.Add(1)
	go func() {
		defer pump.Done()
		defer cancel()
		readPump(conn)
	}()

	session := h.newSession(channel, category, sink, release, r)
	session.Run(ctx)

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(cfg.WriteWait))
	conn.Close()
	pump.Wait()
}

// readPump discards client frames; gorilla only processes control frames
// (pong, close) while someone is reading.
func readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// wsSink writes stream messages as WebSocket text frames. The session loop
// is the only writer.
type wsSink struct {
	conn      *websocket.Conn
	writeWait time.Duration
}

func (s *wsSink) Send(msg StreamMessage) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(msg)
}

func (s *wsSink) KeepAlive() error {
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait))
}

func (s *wsSink) Transport() string { return TransportWebSocket }
