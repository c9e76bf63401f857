// Package clock keeps the system tick counter driven by the programmable
// interval timer.
package clock

import "sync/atomic"

// TicksPerSecond is the frequency the interval timer is programmed with.
const TicksPerSecond = 100

var ticks uint64

// Tick advances the tick counter. It is invoked by the timer interrupt handler.
func Tick() {
	atomic.AddUint64(&ticks, 1)
}

// Ticks returns the number of timer ticks since boot.
func Ticks() uint64 {
	return atomic.LoadUint64(&ticks)
}
