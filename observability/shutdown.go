package observability

import (
	"context"
	"fmt"
	"time"
)

// DefaultShutdownTimeout bounds Shutdown when no positive timeout is given.
const DefaultShutdownTimeout = 10 * time.Second

// Shutdown flushes and stops provider, giving up after timeout or when ctx
// is done, whichever comes first. A nil provider is a no-op.
func Shutdown(ctx context.Context, provider Provider, timeout time.Duration) error {
	if provider == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down telemetry providers: %w", err)
	}
	return nil
}
