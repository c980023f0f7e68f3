package shutdown

import (
	"context"
	"errors"
	"io"
	"net/http"
	"syscall"

	"go.uber.org/zap"

	"realtime_dashboard/core"
)

// HTTPServer returns a cleanup function that stops srv from accepting
// connections and waits for idle ones, bounded by the shutdown context.
//
// Priority recommendation: PriorityHTTPServer
func HTTPServer(srv *http.Server) core.ShutdownFunc {
	return func(ctx context.Context) error {
		err := srv.Shutdown(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			// Streams that ignored cancellation are cut off.
			return srv.Close()
		}
		return err
	}
}

// Closer adapts an io.Closer such as the key-value store.
//
// Priority recommendation: PriorityStore
func Closer(c io.Closer) core.ShutdownFunc {
	return func(context.Context) error {
		return c.Close()
	}
}

// SyncLogger flushes buffered log entries. Errors from syncing a terminal
// are ignored, since stdout and stderr do not support fsync on every platform.
//
// Priority recommendation: PriorityLogger
func SyncLogger(logger *zap.Logger) core.ShutdownFunc {
	return func(context.Context) error {
		err := logger.Sync()
		if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
			return nil
		}
		return err
	}
}
