package session

import (
	"context"
	"time"
)

// Run ticks the controller every interval until ctx is cancelled or the
// attempt is submitted. Only one countdown is ever active, so a single
// ticker drives both the audio time and the grace period.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.log.Debug().Dur("interval", interval).Msg("Session timer started")
	defer c.log.Debug().Msg("Session timer stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
			if c.Done() {
				return
			}
		}
	}
}
