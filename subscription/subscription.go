// Package subscription keeps a live view of one dashboard category.
//
// A Subscription follows the streaming endpoint, reconnects with
// exponential backoff when the stream drops, and after MaxRetries failed
// reconnections polls the plain data endpoint for the rest of its life.
// A channel the server declares static is polled from the start.
//
// Usage:
//
//	var initial dashboard.KPIMetrics
//	sub, err := subscription.New(subscription.DefaultConfig(url, dashboard.CategoryKPI), initial)
//	sub.Start(ctx)
//	defer sub.Close()
//	for state := range sub.Updates() {
//	    render(state.Data)
//	}
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"realtime_dashboard/dashboard"
)

var errStreamEnded = errors.New("stream ended")

// Config configures a Subscription.
type Config struct {
	// BaseURL of the dashboard server, e.g. http://localhost:3000
	BaseURL string

	// Category to follow
	Category dashboard.Category

	// Mode selects streaming with fallback (default) or polling only
	Mode Mode

	// BaseDelay is the backoff base (default: 1s)
	BaseDelay time.Duration

	// MaxDelay caps the backoff (default: 30s)
	MaxDelay time.Duration

	// MaxRetries is how many reconnections are attempted before falling
	// back to polling (default: 5)
	MaxRetries int

	// PollInterval between polling requests (default: 10s)
	PollInterval time.Duration

	// RequestTimeout bounds a single polling request (default: 10s)
	RequestTimeout time.Duration

	// HTTPClient is used for all requests. It must not set a Timeout,
	// which would cut long-lived streams.
	HTTPClient *http.Client

	// Logger (default: no-op)
	Logger *zap.Logger

	// OnRetry is called before each reconnection wait (optional)
	OnRetry func(attempt int, delay time.Duration)
}

// DefaultConfig returns a streaming Config for category with the default
// backoff and polling settings.
func DefaultConfig(baseURL string, category dashboard.Category) Config {
	return Config{
		BaseURL:        baseURL,
		Category:       category,
		Mode:           ModeStream,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		MaxRetries:     5,
		PollInterval:   10 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// Subscription is a live view of one category. It owns a single worker
// goroutine and at most one open connection.
type Subscription[T any] struct {
	config    Config
	logger    *zap.Logger
	client    *http.Client
	streamURL string
	dataURL   *url.URL

	// notice is the status left in Error after a successful poll
	notice string

	mu      sync.Mutex
	state   State[T]
	closed  bool
	started bool
	cancel  context.CancelFunc
	updates chan State[T]
	done    chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
}

// New creates a Subscription seeded with initial. Call Start to connect.
func New[T any](config Config, initial T) (*Subscription[T], error) {
	if !config.Category.Valid() {
		return nil, fmt.Errorf("subscription: %w: %q", dashboard.ErrUnknownCategory, config.Category)
	}
	base, err := url.Parse(config.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("subscription: invalid base URL %q", config.BaseURL)
	}

	defaults := DefaultConfig(config.BaseURL, config.Category)
	if config.BaseDelay <= 0 {
		config.BaseDelay = defaults.BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	query := url.Values{"category": {config.Category.String()}}
	streamURL := base.JoinPath("stream")
	streamURL.RawQuery = query.Encode()
	dataURL := base.JoinPath("data")
	dataURL.RawQuery = query.Encode()

	phase := PhaseConnecting
	if config.Mode == ModePolling {
		phase = PhasePolling
	}

	return &Subscription[T]{
		config:    config,
		logger:    logger.With(zap.String("category", config.Category.String())),
		client:    client,
		streamURL: streamURL.String(),
		dataURL:   dataURL,
		state: State[T]{
			Data:  initial,
			Phase: phase,
			Mode:  config.Mode,
		},
		updates: make(chan State[T], 1),
		done:    make(chan struct{}),
	}, nil
}

// Start launches the worker. Later calls, and calls after Close, do
// nothing. The worker stops when ctx ends or Close is called.
func (s *Subscription[T]) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		ctx, s.cancel = context.WithCancel(ctx)
		s.started = true
		go s.run(ctx)
	})
}

// State returns the current state.
func (s *Subscription[T]) State() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Updates delivers state changes. It buffers only the latest state, so a
// slow reader skips intermediate ones; the worker never blocks on it. The
// channel is closed by Close after a final PhaseClosed state.
func (s *Subscription[T]) Updates() <-chan State[T] {
	return s.updates
}

// Close stops the worker, closing any open connection and aborting any
// in-flight request, and waits for it to exit. It is safe to call more
// than once.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		cancel, started := s.cancel, s.started
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if started {
			<-s.done
		}

		s.mu.Lock()
		s.state.Connected = false
		s.state.Phase = PhaseClosed
		s.publishLocked()
		close(s.updates)
		s.mu.Unlock()

		s.logger.Debug("subscription closed")
	})
}

// mutate applies fn to the state and publishes it, unless the
// subscription has been closed.
func (s *Subscription[T]) mutate(fn func(*State[T])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	fn(&s.state)
	s.publishLocked()
}

func (s *Subscription[T]) publishLocked() {
	select {
	case <-s.updates:
	default:
	}
	s.updates <- s.state
}

func (s *Subscription[T]) run(ctx context.Context) {
	defer close(s.done)

	if s.config.Mode == ModePolling {
		s.poll(ctx)
		return
	}

	retries := 0
	for {
		res, err := s.stream(ctx)
		if ctx.Err() != nil {
			return
		}
		if res.static {
			s.logger.Info("channel has no live updates, polling instead")
			s.mutate(func(st *State[T]) {
				st.Connected = false
				st.Error = ""
				st.Retries = 0
				st.Phase = PhasePolling
				st.Mode = ModePolling
			})
			s.poll(ctx)
			return
		}
		if res.live {
			retries = 0
		}
		retries++

		if retries > s.config.MaxRetries {
			s.logger.Warn("stream unavailable, falling back to polling",
				zap.Int("attempts", s.config.MaxRetries),
				zap.Error(err))
			s.notice = PollingFallbackMessage
			s.mutate(func(st *State[T]) {
				st.Connected = false
				st.Error = PollingFallbackMessage
				st.Retries = s.config.MaxRetries
				st.Phase = PhasePolling
				st.Mode = ModePolling
			})
			s.poll(ctx)
			return
		}

		delay := Backoff(s.config.BaseDelay, s.config.MaxDelay, retries)
		s.logger.Warn("stream connection lost",
			zap.Int("attempt", retries),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		s.mutate(func(st *State[T]) {
			st.Connected = false
			st.Error = retryMessage(delay)
			st.Retries = retries
			st.Phase = PhaseReconnecting
		})
		if s.config.OnRetry != nil {
			s.config.OnRetry(retries, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// streamResult describes how a stream connection went.
type streamResult struct {
	// live is set once a snapshot or timestamp arrived, or the connection
	// stayed open for at least BaseDelay. Only live connections reset the
	// retry budget.
	live bool

	// static is set when the server declared the channel static.
	static bool
}

// stream opens one connection and reads it until it fails. The returned
// error is never nil.
func (s *Subscription[T]) stream(ctx context.Context) (streamResult, error) {
	var res streamResult

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.streamURL, nil)
	if err != nil {
		return res, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		return res, fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return res, fmt.Errorf("open stream: unexpected status %d", resp.StatusCode)
	}

	opened := time.Now()
	s.logger.Info("stream connected")
	s.mutate(func(st *State[T]) {
		st.Connected = true
		st.Error = ""
		st.Phase = PhaseConnected
	})

	markLive := func() {
		if !res.live {
			res.live = true
			s.mutate(func(st *State[T]) { st.Retries = 0 })
		}
	}

	err = readEvents(resp.Body, func(payload []byte) {
		switch s.handleEvent(payload) {
		case eventSnapshot, eventLastUpdated:
			markLive()
		case eventStatic:
			res.static = true
		}
	})
	if time.Since(opened) >= s.config.BaseDelay {
		markLive()
	}
	if err != nil {
		return res, fmt.Errorf("read stream: %w", err)
	}
	return res, errStreamEnded
}

// handleEvent applies one stream event and reports its kind, or "" when
// the event was dropped. Malformed events are dropped.
func (s *Subscription[T]) handleEvent(payload []byte) string {
	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.logger.Warn("dropping malformed event", zap.Error(err))
		return ""
	}

	switch ev.Type {
	case eventConnected:
		s.mutate(func(st *State[T]) { st.Connected = true })
		return eventConnected

	case s.config.Category.String():
		var data T
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			s.logger.Warn("dropping malformed snapshot", zap.Error(err))
			return ""
		}
		s.mutate(func(st *State[T]) { st.Data = data })
		return eventSnapshot

	case eventLastUpdated:
		var ts string
		if err := json.Unmarshal(ev.Data, &ts); err != nil {
			s.logger.Warn("dropping malformed timestamp", zap.Error(err))
			return ""
		}
		s.mutate(func(st *State[T]) { st.LastUpdated = &ts })
		return eventLastUpdated

	case eventStatic:
		return eventStatic

	case eventError:
		s.logger.Warn("server reported a stream error", zap.String("message", ev.Message))
		return eventError

	default:
		s.logger.Debug("ignoring event", zap.String("type", ev.Type))
		return ""
	}
}

// poll fetches once immediately and then every PollInterval until ctx ends.
func (s *Subscription[T]) poll(ctx context.Context) {
	s.fetch(ctx)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fetch(ctx)
		}
	}
}

func (s *Subscription[T]) fetch(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	data, lastUpdated, err := s.fetchData(reqCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("polling request failed", zap.Error(err))
		s.mutate(func(st *State[T]) { st.Error = FetchErrorMessage })
		return
	}

	s.mutate(func(st *State[T]) {
		st.Data = data
		st.LastUpdated = lastUpdated
		st.Error = s.notice
	})
}

// fetchData reads the data endpoint once. The _t parameter defeats caches.
func (s *Subscription[T]) fetchData(ctx context.Context) (T, *string, error) {
	var body struct {
		Data        T       `json:"data"`
		LastUpdated *string `json:"lastUpdated"`
	}

	u := *s.dataURL
	query := u.Query()
	query.Set("_t", strconv.FormatInt(time.Now().UnixNano(), 10))
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return body.Data, nil, fmt.Errorf("build data request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		return body.Data, nil, fmt.Errorf("fetch data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return body.Data, nil, fmt.Errorf("fetch data: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return body.Data, nil, fmt.Errorf("decode data: %w", err)
	}
	return body.Data, body.LastUpdated, nil
}
