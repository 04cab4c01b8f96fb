package coordinator

import (
	"context"
	"time"
)

// SetSleep replaces the wait used before IUAM submissions.
func SetSleep(c *Coordinator, f func(ctx context.Context, d time.Duration) error) {
	c.sleep = f
}
