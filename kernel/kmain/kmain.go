package kmain

import (
	"github.com/RusFjord/eduOS/device/apic"
	"github.com/RusFjord/eduOS/kernel"
	"github.com/RusFjord/eduOS/kernel/clock"
	"github.com/RusFjord/eduOS/kernel/cpu"
	"github.com/RusFjord/eduOS/kernel/gate"
	"github.com/RusFjord/eduOS/kernel/hal"
	"github.com/RusFjord/eduOS/kernel/kfmt"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// The following functions are mocked by tests.
	detectHardwareFn   = hal.DetectHardware
	handleInterruptFn  = gate.HandleInterrupt
	enableInterruptsFn = cpu.EnableInterrupts
	calibrateFn        = apic.Calibrate
	panicFn            = kfmt.Panic
)

// Kmain is invoked by the rt0 assembly code once the GDT, the page tables
// and a minimal g0 have been set up.
//
// The interval timer drives the tick counter while the local APIC timer is
// calibrated against it; afterwards the tick source moves to the APIC timer
// vector.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain() {
	detectHardwareFn()

	handleInterruptFn(gate.TimerIRQ, 0, tick)
	enableInterruptsFn()

	if err := calibrateFn(); err != nil {
		panicFn(err)
		return
	}

	handleInterruptFn(gate.InterruptNumber(apic.TimerVector), 0, tick)

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating it as dead-code and eliminating it.
	panicFn(errKmainReturned)
}

func tick(_ *gate.Registers) {
	clock.Tick()
}
