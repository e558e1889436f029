package shutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// WithSignals returns a context cancelled on SIGINT/SIGTERM. A second signal
// exits the process immediately.
func WithSignals(ctx context.Context, log *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-ch
		log.Info("shutdown signal received", "signal", sig.String())
		cancel()

		<-ch
		log.Warn("second signal received, exiting")
		os.Exit(1)
	}()

	return ctx, cancel
}

// Drain runs fn with a fresh context bounded by timeout; used for cleanup
// after the root context has been cancelled.
func Drain(timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx)
}
