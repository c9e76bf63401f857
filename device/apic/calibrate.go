package apic

import (
	"github.com/RusFjord/eduOS/kernel"
	"github.com/RusFjord/eduOS/kernel/kfmt"
)

// Calibrate measures the local APIC timer against the kernel clock and
// switches interrupt delivery from the legacy PICs to the IO-APIC. The clock
// must be ticking when Calibrate is called; without a ticking clock it never
// returns. Calibrate completes the bring-up started by DriverInit and
// releases secondary cores waiting in SecondaryInit.
func Calibrate() *kernel.Error {
	c := active
	if c == nil {
		return errNotPresent
	}
	if c.initialized {
		return errAlreadyCalibrated
	}

	c.calibrate()
	bootLock.Release()
	return nil
}

func (c *Controller) calibrate() {
	// Wait for a tick edge so the measurement spans whole ticks.
	start := clockTicksFn()
	for clockTicksFn() == start {
		haltFn()
	}
	start = clockTicksFn()

	flags := disableInterruptsFn()
	c.lapic.write(regTimerDivide, timerDivideBy1)
	c.lapic.write(regLVTTimer, lvtPeriodic|TimerVector)
	c.lapic.write(regTimerInitialCount, timerMaxCount)
	restoreInterruptsFn(flags)

	for clockTicksFn()-start < calibrationTicks {
		haltFn()
	}

	c.timerCount = (timerMaxCount - c.lapic.read(regTimerCurrentCount)) / calibrationTicks

	flags = disableInterruptsFn()
	c.reset()
	restoreInterruptsFn(flags)

	portWriteByteFn(picSlaveData, picMaskAll)
	portWriteByteFn(picMasterData, picMaskAll)

	kfmt.Printf("[apic] calibration determines an ICR of 0x%x\n", c.timerCount)

	flags = disableInterruptsFn()
	if c.ioapic != nil {
		dest := c.bootDestination()

		last := c.MaxRedirectionEntry()
		if last > maxIOAPICLine {
			last = maxIOAPICLine
		}

		for line := uint8(0); line <= last; line++ {
			if line != pitCascadeLine {
				_ = c.setLine(line, dest, false)
			}
		}
		_ = c.setLine(pitCascadeLine, dest, true)
	}
	c.initialized = true
	restoreInterruptsFn(flags)
}

// bootDestination returns the APIC id IO-APIC lines are routed to: the boot
// processor from the configuration table or, if the table does not flag one,
// the executing core.
func (c *Controller) bootDestination() uint8 {
	if id, ok := c.topology.BootAPICID(); ok {
		return id
	}
	return uint8(c.apicID())
}
