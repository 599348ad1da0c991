package quantmap

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/quantmap/quantmap/pkg/errors"
)

// syncRunTimeout bounds a single periodic sync run.
const syncRunTimeout = 30 * time.Minute

// AutoSyncOn begins periodic syncs at the configured interval. Calling
// it again restarts the ticker.
func (c *client) AutoSyncOn() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.options.autoSyncInterval <= 0 {
		return &errors.ValidationError{
			Field:   "autoSyncInterval",
			Value:   c.options.autoSyncInterval,
			Message: "sync interval must be positive",
		}
	}

	c.stopLocked()
	c.stopCh = make(chan struct{})
	c.syncTicker = time.NewTicker(c.options.autoSyncInterval)

	ctx, cancel := context.WithCancel(context.Background())
	c.syncCancel = cancel

	go func(parentCtx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
		for {
			select {
			case <-ticker.C:
				runCtx, runCancel := context.WithTimeout(parentCtx, syncRunTimeout)
				_, err := c.Sync(runCtx)
				runCancel()

				if err != nil {
					if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
						return
					}
					c.logger.Error().Err(err).Msg("Periodic sync failed")
				}
			case <-parentCtx.Done():
				return
			case <-stop:
				return
			}
		}
	}(ctx, c.syncTicker, c.stopCh)

	return nil
}

// AutoSyncOff stops periodic syncs. Safe to call when none are running.
func (c *client) AutoSyncOff() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	return nil
}

// stopLocked tears down the ticker and signals the sync goroutine.
// Callers must hold c.mu.
func (c *client) stopLocked() {
	if c.syncTicker != nil {
		c.syncTicker.Stop()
		c.syncTicker = nil
	}
	if c.syncCancel != nil {
		c.syncCancel()
		c.syncCancel = nil
	}
	if c.stopCh != nil {
		select {
		case <-c.stopCh:
		default:
			close(c.stopCh)
		}
	}
}
