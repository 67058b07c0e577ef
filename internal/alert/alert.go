package alert

import (
	"sync"
	"time"

	"storefront-client/internal/util"
)

const (
	// DefaultDuration is how long a message stays visible.
	DefaultDuration = 5 * time.Second
	// fadeDuration is the fade-out phase between hiding and clearing,
	// matching the UI transition so the banner never snaps away.
	fadeDuration = 300 * time.Millisecond
)

// Channel is a single-slot, time-boxed notification. Showing a new message
// while one is visible replaces it and restarts the clock; messages are
// never queued. Dismissal is two-phase: the message turns invisible first
// and is cleared after the fade window.
type Channel struct {
	mu       sync.Mutex
	message  string
	visible  bool
	gen      uint64
	duration time.Duration
	dismiss  *time.Timer
	clear    *time.Timer
}

// NewChannel creates an alert channel with the given display duration.
func NewChannel(duration time.Duration) *Channel {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Channel{duration: duration}
}

// Show replaces the current message and resets the dismiss timer. Safe to
// call from any goroutine; a Show racing a pending dismissal always wins
// because stale timer fires are discarded by generation.
func (c *Channel) Show(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimersLocked()
	c.gen++
	gen := c.gen
	c.message = message
	c.visible = true
	util.AlertsShownTotal.Inc()

	c.dismiss = time.AfterFunc(c.duration, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen {
			return
		}
		c.visible = false
		c.clear = time.AfterFunc(fadeDuration, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.gen != gen {
				return
			}
			c.message = ""
		})
	})
}

// Current returns the active message and whether it is visible. A non-empty
// message with visible=false is in its fade-out phase.
func (c *Channel) Current() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message, c.visible
}

// Dismiss hides and clears the current message immediately.
func (c *Channel) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimersLocked()
	c.gen++
	c.message = ""
	c.visible = false
}

func (c *Channel) stopTimersLocked() {
	if c.dismiss != nil {
		c.dismiss.Stop()
		c.dismiss = nil
	}
	if c.clear != nil {
		c.clear.Stop()
		c.clear = nil
	}
}
