package valuation

import (
	"context"
	"time"
)

// RunPeriodic recomputes every interval until ctx ends. With onStart set the
// first pass runs immediately. Failed passes are logged by Recompute and do
// not stop the loop. A zero interval runs at most the initial pass and then
// waits for cancellation.
func (e *Engine) RunPeriodic(ctx context.Context, interval time.Duration, onStart bool) error {
	if onStart {
		_, _ = e.Recompute(ctx)
	}
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Periodic recomputation stopped")
			return nil
		case <-ticker.C:
			_, _ = e.Recompute(ctx)
		}
	}
}
