package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"realtime_dashboard/core"
)

// Manager coordinates graceful shutdown. It composes:
//   - OperationTracker: open live connections
//   - ShutdownRegistry: ordered cleanup functions
//   - SignalCounter: second signal forces exit
//
// Usage:
//
//	manager := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
//	manager.Register("http-server", shutdown.PriorityHTTPServer, shutdown.HTTPServer(srv))
//	manager.Register("store", shutdown.PriorityStore, shutdown.Closer(store))
//	manager.Start()
//
//	<-manager.Context().Done()
//	err := manager.Shutdown()
type Manager struct {
	logger  *zap.Logger
	timeout time.Duration

	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *ShutdownRegistry
	signals  *SignalCounter
	sigChan  chan os.Signal

	forceExit func(code int)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout bounds the whole shutdown sequence. Default is 30 seconds.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// WithForceExit replaces os.Exit for the forced exit on a second signal.
func WithForceExit(exit func(code int)) ManagerOption {
	return func(m *Manager) {
		m.forceExit = exit
	}
}

// NewManager creates a Manager. Its context stays live until a signal
// arrives or Trigger is called.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:    logger,
		timeout:   30 * time.Second,
		ctx:       ctx,
		cancel:    cancel,
		tracker:   NewOperationTracker(),
		registry:  NewShutdownRegistry(),
		sigChan:   make(chan os.Signal, 1),
		forceExit: os.Exit,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("Received second signal, forcing immediate shutdown")
		m.forceExit(core.ExitCodeError)
	})
	return m
}

// Context is cancelled as soon as shutdown is initiated.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup function; see the Priority constants.
func (m *Manager) Register(name string, priority int, fn core.ShutdownFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("Registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority),
	)
}

// Start listens for SIGINT and SIGTERM. Calling it again is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			m.HandleSignal(sig)
		}
	}()
}

// Trigger initiates shutdown without a signal, e.g. from a service manager.
func (m *Manager) Trigger() {
	m.cancel()
}

// TrackStream registers a live connection of kind and returns a context
// that ends when either parent ends or shutdown begins. The caller must
// call release when the connection is gone.
func (m *Manager) TrackStream(parent context.Context, kind string) (ctx context.Context, release func(), err error) {
	if !m.tracker.Start(kind) {
		return nil, nil, ErrTrackerClosed
	}

	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(m.ctx, cancel)

	var once sync.Once
	release = func() {
		once.Do(func() {
			stop()
			cancel()
			m.tracker.Done(kind)
		})
	}
	return ctx, release, nil
}

// Shutdown runs the shutdown sequence once:
//  1. cancel the context so live streams end
//  2. reject new streams and wait for open ones
//  3. run cleanup functions in priority order
//
// The whole sequence is bounded by the configured timeout; cleanup always
// gets at least one second.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	m.mu.Unlock()

	start := time.Now()
	m.cancel()
	m.tracker.Close()

	m.logger.Info("Initiating graceful shutdown",
		zap.Duration("timeout", m.timeout),
		zap.Int("open_streams", m.tracker.ActiveCount()),
	)

	waitCtx, cancelWait := context.WithTimeout(context.Background(), m.timeout)
	if err := m.tracker.Wait(waitCtx); err != nil {
		m.logger.Warn("Timeout waiting for open streams",
			zap.Any("remaining", m.tracker.ActiveByKind()),
		)
	}
	cancelWait()

	remaining := max(m.timeout-time.Since(start), time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	var errs []error
	for _, result := range m.registry.Run(ctx) {
		if result.Err != nil {
			m.logger.Error("Cleanup function failed", zap.String("name", result.Name), zap.Error(result.Err))
			errs = append(errs, result.Err)
		}
	}

	m.mu.Lock()
	if m.started {
		signal.Stop(m.sigChan)
		close(m.sigChan)
	}
	m.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown had %d errors: %w", len(errs), errors.Join(errs...))
	}

	m.logger.Info("Graceful shutdown completed", zap.Duration("duration", time.Since(start)))
	return nil
}

// ActiveStreams returns the number of tracked live connections.
func (m *Manager) ActiveStreams() int {
	return m.tracker.ActiveCount()
}

// IsShuttingDown returns true once shutdown has been initiated.
func (m *Manager) IsShuttingDown() bool {
	return m.ctx.Err() != nil
}

// RegisteredHandlers returns cleanup names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}

// HandleSignal feeds sig through the same path as an OS signal. It exists
// for tests and for platforms where signals arrive another way.
func (m *Manager) HandleSignal(sig os.Signal) {
	if m.signals.Increment() == 1 {
		m.logger.Info("Received shutdown signal, initiating graceful shutdown",
			zap.String("signal", sig.String()),
		)
		m.cancel()
	}
}
