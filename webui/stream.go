// Package webui serves the dashboard's HTTP surface.
// This file contains the streaming endpoint and the per-connection poll loop.
package webui

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"realtime_dashboard/dashboard"
	"realtime_dashboard/metrics"
)

// Transport labels used for tracking and metrics.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// StreamTracker registers live connections with the shutdown sequence.
// The returned context ends when parent ends or shutdown begins; release
// must be called once the connection is gone.
//
// shutdown.Manager implements it.
type StreamTracker interface {
	TrackStream(parent context.Context, kind string) (ctx context.Context, release func(), err error)
}

// untracked is used when no tracker is configured.
type untracked struct{}

func (untracked) TrackStream(parent context.Context, _ string) (context.Context, func(), error) {
	ctx, cancel := context.WithCancel(parent)
	return ctx, cancel, nil
}

// StreamConfig configures the streaming endpoint.
type StreamConfig struct {
	// PollInterval is how often each connection reads the store (default: 3s)
	PollInterval time.Duration

	// StaticChannels are answered with a single "static" message instead of
	// a live stream.
	StaticChannels []string

	// WebSocket settings, see websocket.go
	WebSocket WebSocketConfig
}

// DefaultStreamConfig returns the default configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		PollInterval: 3 * time.Second,
		WebSocket:    DefaultWebSocketConfig(),
	}
}

// StreamHandler serves live updates for one channel per connection.
//
// A channel is either a category wire name (or alias) or "lastUpdated".
// Every connection polls the store on its own ticker and pushes a snapshot
// only when it differs from the last one pushed on that connection.
//
// Usage:
//
//	handler := NewStreamHandler(repo, manager, collector, DefaultStreamConfig(), logger)
//	handler.RegisterRoutes(mux)
type StreamHandler struct {
	repo      *dashboard.Repository
	tracker   StreamTracker
	collector *metrics.Collector
	config    StreamConfig
	static    map[string]bool
	logger    *zap.Logger
}

// NewStreamHandler creates a StreamHandler. tracker may be nil.
func NewStreamHandler(
	repo *dashboard.Repository,
	tracker StreamTracker,
	collector *metrics.Collector,
	config StreamConfig,
	logger *zap.Logger,
) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = untracked{}
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultStreamConfig().PollInterval
	}
	if config.WebSocket == (WebSocketConfig{}) {
		config.WebSocket = DefaultWebSocketConfig()
	}

	static := make(map[string]bool, len(config.StaticChannels))
	for _, name := range config.StaticChannels {
		if channel, _, err := parseChannel(name); err == nil {
			static[channel] = true
		}
	}

	return &StreamHandler{
		repo:      repo,
		tracker:   tracker,
		collector: collector,
		config:    config,
		static:    static,
		logger:    logger,
	}
}

// RegisterRoutes registers the stream routes on mux.
func (h *StreamHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/stream", h.HandleSSE)
	mux.HandleFunc("/api/sse", h.HandleSSE)
	mux.HandleFunc("/api/stream", h.HandleSSE)
	mux.HandleFunc("/ws", h.HandleWebSocket)
}

// HandleSSE handles GET /stream?category=<channel>.
func (h *StreamHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	channel, category, err := channelFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	if h.static[channel] {
		setSSEHeaders(w)
		w.WriteHeader(http.StatusOK)
		if err := writeSSE(w, NewStaticMessage(channel)); err == nil {
			flusher.Flush()
		}
		return
	}

	ctx, release, err := h.tracker.TrackStream(r.Context(), TransportSSE)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}

	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := &sseSink{w: w, flusher: flusher}
	session := h.newSession(channel, category, sink, release, r)
	session.Run(ctx)
}

func (h *StreamHandler) newSession(channel string, category dashboard.Category, sink messageSink, release func(), r *http.Request) *StreamSession {
	h.collector.StreamOpened(sink.Transport())
	logger := h.logger.With(
		zap.String("channel", channel),
		zap.String("transport", sink.Transport()),
		zap.String("remote_addr", getClientIP(r)),
	)
	logger.Debug("stream opened")

	return &StreamSession{
		channel:   channel,
		category:  category,
		repo:      h.repo,
		sink:      sink,
		interval:  h.config.PollInterval,
		collector: h.collector,
		logger:    logger,
		release:   release,
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// categoryParam returns the requested channel name. "dataType" is accepted
// for clients of the original dashboard.
func categoryParam(r *http.Request) string {
	q := r.URL.Query()
	if name := q.Get("category"); name != "" {
		return name
	}
	return q.Get("dataType")
}

func channelFromRequest(r *http.Request) (string, dashboard.Category, error) {
	return parseChannel(categoryParam(r))
}

// parseChannel resolves a stream channel. category is empty for the
// lastUpdated channel.
func parseChannel(name string) (channel string, category dashboard.Category, err error) {
	if strings.EqualFold(strings.TrimSpace(name), LastUpdatedChannel) {
		return LastUpdatedChannel, "", nil
	}
	category, err = dashboard.ParseCategory(name)
	if err != nil {
		return "", "", err
	}
	return category.String(), category, nil
}

// messageSink is one transport's way of delivering stream messages.
type messageSink interface {
	Send(msg StreamMessage) error
	KeepAlive() error
	Transport() string
}

// sseSink writes server-sent events to an HTTP response.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(msg StreamMessage) error {
	if err := writeSSE(s.w, msg); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) KeepAlive() error {
	if _, err := s.w.Write([]byte(sseKeepAlive)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Transport() string { return TransportSSE }

// errSessionClosed is returned by send after Close.
var errSessionClosed = errors.New("stream session closed")

// StreamSession is one live connection. It remembers what it last pushed
// so unchanged values are never sent twice.
//
// Run blocks in the request goroutine until the client goes away, a write
// fails or shutdown begins. All exit paths end in Close.
type StreamSession struct {
	channel  string
	category dashboard.Category
	repo     *dashboard.Repository
	sink     messageSink
	interval time.Duration

	collector *metrics.Collector
	logger    *zap.Logger

	lastVersion     int64
	lastSnapshot    string
	lastUpdated     string
	haveSnapshot    bool
	haveLastUpdated bool

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	release   func()
}

// Run sends the connection acknowledgement and the current values, then
// polls every interval until ctx ends.
func (s *StreamSession) Run(ctx context.Context) {
	defer s.Close()

	if err := s.send(NewConnectedMessage()); err != nil {
		return
	}
	if err := s.poll(ctx); err != nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.poll(ctx); err != nil {
				return
			}
			if err := s.keepAlive(); err != nil {
				return
			}
		}
	}
}

// Close marks the session closed and releases its tracking slot. It is safe
// to call more than once.
func (s *StreamSession) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if s.release != nil {
			s.release()
		}
		s.collector.StreamClosed(s.sink.Transport())
		s.logger.Debug("stream closed")
	})
}

// Closed reports whether Close has run.
func (s *StreamSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// poll reads the store once and pushes whatever changed. A store failure is
// reported to the client and is not an error; only write failures are.
func (s *StreamSession) poll(ctx context.Context) error {
	messages, err := s.collect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.collector.StoreError("get")
		s.logger.Warn("failed to fetch updates", zap.Error(err))
		return s.send(NewErrorMessage(fetchErrorMessage))
	}

	for _, msg := range messages {
		if err := s.send(msg); err != nil {
			return err
		}
	}
	return nil
}

// collect reads the channel's values and returns the messages to push. The
// session state only advances when every read succeeded.
func (s *StreamSession) collect(ctx context.Context) ([]StreamMessage, error) {
	var messages []StreamMessage

	version, snapshot, snapshotChanged := s.lastVersion, s.lastSnapshot, false
	if s.category != "" {
		rec, found, err := s.repo.Raw(ctx, s.category)
		if err != nil {
			return nil, err
		}
		if found && (!s.haveSnapshot || rec.Version != s.lastVersion) {
			version = rec.Version
			snapshot = s.canonicalSnapshot(rec.Value)
			snapshotChanged = !s.haveSnapshot || snapshot != s.lastSnapshot
		}
	}

	rec, found, err := s.repo.LastUpdated(ctx)
	if err != nil {
		return nil, err
	}
	timestampChanged := found && (!s.haveLastUpdated || rec.Value != s.lastUpdated)

	if s.category != "" && version != s.lastVersion {
		s.lastVersion = version
		s.haveSnapshot = true
	}
	if snapshotChanged {
		s.lastSnapshot = snapshot
		messages = append(messages, NewSnapshotMessage(s.channel, snapshot))
	}
	if timestampChanged {
		s.lastUpdated = rec.Value
		s.haveLastUpdated = true
		messages = append(messages, NewLastUpdatedMessage(rec.Value))
	}
	return messages, nil
}

// canonicalSnapshot returns the comparable form of a stored value. A value
// that does not decode as its category is replaced by the default snapshot,
// the same way the data endpoint serves it.
func (s *StreamSession) canonicalSnapshot(raw string) string {
	if _, err := dashboard.DecodeSnapshot(s.category, raw); err == nil {
		if canonical, err := dashboard.CanonicalJSON(raw); err == nil {
			return canonical
		}
	} else {
		s.logger.Warn("stored snapshot is malformed, using default", zap.Error(err))
	}

	def, err := dashboard.DefaultSnapshot(s.category, time.Now())
	if err != nil {
		return "null"
	}
	encoded, err := dashboard.EncodeSnapshot(def)
	if err != nil {
		return "null"
	}
	if canonical, err := dashboard.CanonicalJSON(encoded); err == nil {
		return canonical
	}
	return encoded
}

func (s *StreamSession) send(msg StreamMessage) error {
	if s.Closed() {
		return errSessionClosed
	}
	if err := s.sink.Send(msg); err != nil {
		s.logger.Debug("stream write failed", zap.Error(err))
		return err
	}
	s.collector.EventSent(s.channel, msg.Type)
	return nil
}

func (s *StreamSession) keepAlive() error {
	if s.Closed() {
		return errSessionClosed
	}
	return s.sink.KeepAlive()
}
