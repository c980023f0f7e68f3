package webui

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"realtime_dashboard/dashboard"
	"realtime_dashboard/db"
	"realtime_dashboard/metrics"
)

var errStoreDown = errors.New("store down")

// fakeStore wraps a MemoryStore, counts reads and fails them on demand.
type fakeStore struct {
	*db.MemoryStore

	mu      sync.Mutex
	gets    int
	getErr  error
	setErr  error
	pingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryStore: db.NewMemoryStore()}
}

func (s *fakeStore) Get(ctx context.Context, key string) (db.Entry, error) {
	s.mu.Lock()
	s.gets++
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return db.Entry{}, err
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *fakeStore) Set(ctx context.Context, key, value string) (db.Entry, error) {
	s.mu.Lock()
	err := s.setErr
	s.mu.Unlock()
	if err != nil {
		return db.Entry{}, err
	}
	return s.MemoryStore.Set(ctx, key, value)
}

func (s *fakeStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	err := s.pingErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.Ping(ctx)
}

func (s *fakeStore) failGets(err error) {
	s.mu.Lock()
	s.getErr = err
	s.mu.Unlock()
}

func (s *fakeStore) failSets(err error) {
	s.mu.Lock()
	s.setErr = err
	s.mu.Unlock()
}

func (s *fakeStore) failPings(err error) {
	s.mu.Lock()
	s.pingErr = err
	s.mu.Unlock()
}

func (s *fakeStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

// testEnv bundles a repository, a deterministic writer and a collector.
type testEnv struct {
	store     *fakeStore
	repo      *dashboard.Repository
	writer    *dashboard.Writer
	collector *metrics.Collector
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	repo := dashboard.NewRepository(store, nil)
	counter := 0
	var mu sync.Mutex
	writer := dashboard.NewWriter(repo, nil,
		dashboard.WithRand(rand.New(rand.NewSource(7))),
		dashboard.WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			counter++
			return "ann-" + strconv.Itoa(counter)
		}),
	)
	return &testEnv{
		store:     store,
		repo:      repo,
		writer:    writer,
		collector: metrics.NewCollector(),
	}
}

func (e *testEnv) simulate(t *testing.T, c dashboard.Category) {
	t.Helper()
	if _, err := e.writer.Simulate(context.Background(), c); err != nil {
		t.Fatalf("Simulate(%s) error = %v", c, err)
	}
}

func testStreamConfig() StreamConfig {
	cfg := DefaultStreamConfig()
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

// streamClient reads SSE messages from a live response.
type streamClient struct {
	messages   <-chan StreamMessage
	keepAlives *atomic.Int32
	done       <-chan struct{}
	cancel     context.CancelFunc
	resp       *http.Response
}

// openStream issues GET url and parses "data:" lines until the body ends.
// Keep-alive comments are counted.
func openStream(t *testing.T, url string) *streamClient {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("GET %s error = %v", url, err)
	}

	messages := make(chan StreamMessage, 64)
	keepAlives := new(atomic.Int32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if line == strings.TrimSpace(sseKeepAlive) {
				keepAlives.Add(1)
				continue
			}
			payload, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}
			var msg StreamMessage
			if err := json.Unmarshal([]byte(payload), &msg); err != nil {
				continue
			}
			select {
			case messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	c := &streamClient{messages: messages, keepAlives: keepAlives, done: done, cancel: cancel, resp: resp}
	t.Cleanup(c.close)
	return c
}

func (c *streamClient) close() {
	c.cancel()
	<-c.done
}

func (c *streamClient) next(t *testing.T) StreamMessage {
	t.Helper()
	select {
	case msg := <-c.messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a stream message")
		return StreamMessage{}
	}
}

// nextOfType skips messages until one of typ arrives.
func (c *streamClient) nextOfType(t *testing.T, typ string) StreamMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.messages:
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a %q message", typ)
			return StreamMessage{}
		}
	}
}

func (c *streamClient) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-c.messages:
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(d):
	}
}

func (c *streamClient) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end")
	}
}

func newStreamServer(t *testing.T, env *testEnv, tracker StreamTracker, cfg StreamConfig) *httptest.Server {
	t.Helper()
	handler := NewStreamHandler(env.repo, tracker, env.collector, cfg, nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// simulateUntilPushed repeats simulated updates of c until the stream
// pushes a snapshot; a random perturbation can leave a table unchanged.
func simulateUntilPushed(t *testing.T, env *testEnv, stream *streamClient, c dashboard.Category) StreamMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		env.simulate(t, c)
		deadline := time.After(100 * time.Millisecond)
	wait:
		for {
			select {
			case msg := <-stream.messages:
				if msg.Type == c.String() {
					return msg
				}
			case <-deadline:
				break wait
			}
		}
	}
	t.Fatalf("no %s snapshot pushed after 20 updates", c)
	return StreamMessage{}
}
