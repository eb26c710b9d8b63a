package rpio

import (
	"errors"
	"time"
)

// pollInterval is the pause between two level reads while timing a pulse.
const pollInterval = 100 * time.Nanosecond

// ErrTimeout is returned by TimePulse when no complete pulse was seen in time.
var ErrTimeout = errors.New("rpio: pulse timeout")

// TimePulse measures the length of the next pulse of the given level on pin:
// it waits for a pulse in progress to end, then for the level to start, and
// returns how long it lasted. The whole measurement is bounded by maxWait.
func (c *Chip) TimePulse(pin int, level bool, maxWait time.Duration) (time.Duration, error) {
	if err := c.checkPin(pin); err != nil {
		return 0, err
	}
	deadline := time.Now().Add(maxWait)

	// previous pulse
	if err := c.waitLevel(pin, !level, deadline); err != nil {
		return 0, err
	}
	// rising edge of the pulse
	if err := c.waitLevel(pin, level, deadline); err != nil {
		return 0, err
	}
	start := time.Now()
	if err := c.waitLevel(pin, !level, deadline); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func (c *Chip) waitLevel(pin int, level bool, deadline time.Time) error {
	for {
		v := c.readPin(pin)
		time.Sleep(pollInterval)
		if v == level {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
	}
}
