package signalhandler

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"perceptive/logging"
)

// Context returns a copy of parent that is cancelled on SIGINT or SIGTERM.
// Cancelling instead of exiting lets deferred cleanup, such as removing
// downloaded temp files, run. A second signal exits immediately.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	stopped := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(stopped)
			cancel()
		})
	}

	go func() {
		select {
		case sig := <-sigChan:
			logging.LogWarning("Received %v, shutting down", sig)
			cancel()
		case <-stopped:
			return
		}

		select {
		case <-sigChan:
			os.Exit(130)
		case <-stopped:
		}
	}()

	return ctx, stop
}
