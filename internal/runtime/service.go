package runtime

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/lessonplanner/internal/logger"
)

// WaitForShutdown blocks until ctx is cancelled or SIGINT/SIGTERM arrives, and
// reports which one ended the wait.
func WaitForShutdown(ctx context.Context, log *logger.Logger, service string) string {
	if service == "" {
		service = "service"
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		log.Info("context cancelled, shutting down", "service", service)
		return "context"
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "service", service, "signal", sig.String())
		return sig.String()
	}
}
