package core

import (
	"context"
)

// ShutdownFunc releases one resource during graceful shutdown. It should
// honour ctx's deadline and be safe to call more than once.
//
//	var closeStore ShutdownFunc = func(ctx context.Context) error {
//	    return store.Close()
//	}
type ShutdownFunc func(ctx context.Context) error
