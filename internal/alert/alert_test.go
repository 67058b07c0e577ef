package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShowAndCurrent(t *testing.T) {
	c := NewChannel(time.Minute)

	msg, visible := c.Current()
	assert.Empty(t, msg)
	assert.False(t, visible)

	c.Show("Quantity updated")
	msg, visible = c.Current()
	assert.Equal(t, "Quantity updated", msg)
	assert.True(t, visible)
}

func TestShowReplacesCurrentMessage(t *testing.T) {
	c := NewChannel(time.Minute)

	c.Show("first")
	c.Show("second")

	msg, visible := c.Current()
	assert.Equal(t, "second", msg, "single slot, no queue")
	assert.True(t, visible)
}

func TestAutoDismissTwoPhase(t *testing.T) {
	c := NewChannel(30 * time.Millisecond)

	c.Show("Item removed from cart")

	// Phase one: hidden but not yet cleared during the fade window.
	assert.Eventually(t, func() bool {
		msg, visible := c.Current()
		return !visible && msg == "Item removed from cart"
	}, time.Second, 5*time.Millisecond)

	// Phase two: cleared after the fade.
	assert.Eventually(t, func() bool {
		msg, _ := c.Current()
		return msg == ""
	}, time.Second, 10*time.Millisecond)
}

func TestShowDuringPendingDismissWins(t *testing.T) {
	c := NewChannel(30 * time.Millisecond)

	c.Show("first")
	time.Sleep(20 * time.Millisecond)
	c.Show("second")

	// The first message's dismiss timer must not take down the second.
	time.Sleep(20 * time.Millisecond)
	msg, visible := c.Current()
	assert.Equal(t, "second", msg)
	assert.True(t, visible)
}

func TestDismiss(t *testing.T) {
	c := NewChannel(time.Minute)

	c.Show("message")
	c.Dismiss()

	msg, visible := c.Current()
	assert.Empty(t, msg)
	assert.False(t, visible)

	// Dismissing an empty channel is harmless.
	c.Dismiss()
}

func TestZeroDurationFallsBackToDefault(t *testing.T) {
	c := NewChannel(0)
	c.Show("message")
	msg, visible := c.Current()
	assert.Equal(t, "message", msg)
	assert.True(t, visible)
}
