// Package webui serves the dashboard's HTTP surface.
// This file contains the StoreHealthMonitor that tracks key-value store reachability.
package webui

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"realtime_dashboard/metrics"
)

// Pinger is anything that can report whether the store is reachable.
// dashboard.Repository implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreStatus is the result of the latest health check.
type StoreStatus struct {
	Up        bool          `json:"up"`
	Latency   time.Duration `json:"-"`
	LatencyMS int64         `json:"latencyMs"`
	CheckedAt time.Time     `json:"checkedAt"`
	Error     string        `json:"error,omitempty"`
}

// HealthMonitorConfig configures the StoreHealthMonitor behavior.
type HealthMonitorConfig struct {
	// CheckInterval is how often to ping the store (default: 30s)
	CheckInterval time.Duration
	// PingTimeout bounds a single ping (default: 5s)
	PingTimeout time.Duration
	// OnStatusChange is called when the store goes up or down
	OnStatusChange func(up bool)
}

// DefaultHealthMonitorConfig returns a default configuration.
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		CheckInterval: 30 * time.Second,
		PingTimeout:   5 * time.Second,
	}
}

// StoreHealthMonitor periodically pings the store, exports the result as
// metrics and keeps the latest status for /health.
//
// Usage:
//
//	monitor := NewStoreHealthMonitor(repo, collector, DefaultHealthMonitorConfig(), logger)
//	go monitor.Start(ctx)
//	status, checked := monitor.Status()
type StoreHealthMonitor struct {
	mu        sync.RWMutex
	status    StoreStatus
	checked   bool
	store     Pinger
	collector *metrics.Collector
	config    HealthMonitorConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewStoreHealthMonitor creates a monitor for store.
func NewStoreHealthMonitor(store Pinger, collector *metrics.Collector, config HealthMonitorConfig, logger *zap.Logger) *StoreHealthMonitor {
	defaults := DefaultHealthMonitorConfig()
	if config.CheckInterval <= 0 {
		config.CheckInterval = defaults.CheckInterval
	}
	if config.PingTimeout <= 0 {
		config.PingTimeout = defaults.PingTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}

	return &StoreHealthMonitor{
		store:     store,
		collector: collector,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Start runs an immediate check and then one per interval until ctx is
// cancelled. It blocks.
func (m *StoreHealthMonitor) Start(ctx context.Context) {
	m.CheckNow(ctx)

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("store health monitor stopping")
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow pings the store once and records the result.
func (m *StoreHealthMonitor) CheckNow(ctx context.Context) StoreStatus {
	pingCtx, cancel := context.WithTimeout(ctx, m.config.PingTimeout)
	defer cancel()

	start := m.now()
	err := m.store.Ping(pingCtx)
	latency := m.now().Sub(start)

	status := StoreStatus{
		Up:        err == nil,
		Latency:   latency,
		LatencyMS: latency.Milliseconds(),
		CheckedAt: start,
	}
	if err != nil {
		status.Error = err.Error()
	}

	m.mu.Lock()
	prev, hadPrev := m.status, m.checked
	m.status = status
	m.checked = true
	m.mu.Unlock()

	m.collector.StoreChecked(status.Up, latency)
	if !status.Up {
		m.collector.StoreError("ping")
	}

	if !hadPrev || prev.Up != status.Up {
		if status.Up {
			m.logger.Info("store is reachable", zap.Duration("latency", latency))
		} else {
			m.logger.Warn("store is unreachable", zap.Error(err))
		}
		if m.config.OnStatusChange != nil {
			m.config.OnStatusChange(status.Up)
		}
	}
	return status
}

// Status returns the latest result. checked is false before the first ping.
func (m *StoreHealthMonitor) Status() (status StoreStatus, checked bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.checked
}
