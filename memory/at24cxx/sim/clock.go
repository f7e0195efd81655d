package sim

import (
	"sync"
	"time"
)

// ManualClock is a deterministic eeprom.Clock. Every Millis call advances it
// by Step, so busy-wait loops terminate without real time passing.
type ManualClock struct {
	mx   sync.Mutex
	now  int64
	Step int64
}

func NewManualClock(step time.Duration) *ManualClock {
	return &ManualClock{Step: step.Milliseconds()}
}

func (c *ManualClock) Millis() int64 {
	c.mx.Lock()
	defer c.mx.Unlock()
	v := c.now
	c.now += c.Step
	return v
}

// Sleep advances the clock by d rounded up to whole milliseconds.
func (c *ManualClock) Sleep(d time.Duration) {
	c.Advance(d)
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.now += int64((d + time.Millisecond - 1) / time.Millisecond)
}

// Now reads the clock without advancing it.
func (c *ManualClock) Now() int64 {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.now
}
