package subscription

import (
	"fmt"
	"strconv"
	"time"
)

// Phase is where a Subscription is in its connection lifecycle.
//
//	Connecting -> Connected <-> Reconnecting -> Connected
//	                            Reconnecting -> Polling (after MaxRetries)
//
// Polling is one-way: a subscription that falls back never reopens the
// stream. Every phase moves to Closed on Close.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseConnected
	PhaseReconnecting
	PhasePolling
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseReconnecting:
		return "reconnecting"
	case PhasePolling:
		return "polling"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Mode selects how updates are received.
type Mode int

const (
	// ModeStream follows the streaming endpoint and falls back to polling.
	ModeStream Mode = iota
	// ModePolling only polls the data endpoint.
	ModePolling
)

func (m Mode) String() string {
	if m == ModePolling {
		return "polling"
	}
	return "stream"
}

// User-facing status messages.
const (
	// PollingFallbackMessage is the persistent notice after the stream
	// could not be re-established.
	PollingFallbackMessage = "Real-time updates unavailable, using polling for updates"

	// FetchErrorMessage is set when a polling request fails.
	FetchErrorMessage = "Failed to fetch data"
)

// State is a snapshot of what a subscriber should render.
type State[T any] struct {
	// Data is the latest snapshot, seeded with the initial value
	Data T

	// LastUpdated is the global last-updated timestamp, nil until received
	LastUpdated *string

	// Connected is true while a stream is open
	Connected bool

	// Error is a human-readable status, empty when all is well
	Error string

	// Retries counts reconnection attempts since the last successful open
	Retries int

	Phase Phase
	Mode  Mode
}

// Backoff returns min(base * 2^retry, maxDelay).
func Backoff(base, maxDelay time.Duration, retry int) time.Duration {
	delay := base
	for i := 0; i < retry && delay < maxDelay; i++ {
		delay *= 2
	}
	return min(delay, maxDelay)
}

// retryMessage is the status shown while waiting to reconnect.
func retryMessage(delay time.Duration) string {
	return "Connection lost. Retrying in " + strconv.FormatFloat(delay.Seconds(), 'f', -1, 64) + "s..."
}
