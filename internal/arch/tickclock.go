package arch

import (
	"sync/atomic"
	"time"
)

// TickClock is the periodic timer source. Every tick it raises the
// configured interrupt vector against the machine and counts the tick
// atomically.
type TickClock struct {
	machine *Machine
	vector  uint8
	count   atomic.Int64
	stop    chan struct{}
	done    chan struct{}
}

// NewTickClock creates a clock wired to the given machine and vector but
// does not start it.
func NewTickClock(machine *Machine, vector uint8) *TickClock {
	return &TickClock{
		machine: machine,
		vector:  vector,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins raising timer interrupts at the given interval.
func (c *TickClock) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		defer close(c.done)
		for {
			select {
			case <-ticker.C:
				c.count.Add(1)
				c.machine.Raise(c.vector)
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop signals the clock to stop and waits for the tick goroutine to exit.
func (c *TickClock) Stop() {
	close(c.stop)
	<-c.done
}

// Count returns the number of ticks raised so far.
func (c *TickClock) Count() int64 {
	return c.count.Load()
}
