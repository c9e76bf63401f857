package apic

import (
	"github.com/RusFjord/eduOS/kernel"
	"github.com/RusFjord/eduOS/kernel/gate"
	"github.com/RusFjord/eduOS/kernel/kfmt"
)

// Version returns the local APIC version.
func (c *Controller) Version() uint8 {
	return uint8(c.lapic.read(regVersion))
}

// LVTEntries returns the LVT size field of the version register, which is
// the index of the last LVT entry.
func (c *Controller) LVTEntries() uint8 {
	return uint8(c.lapic.read(regVersion) >> 16)
}

// reset programs the local APIC of the executing core. Until the timer is
// calibrated its LVT entry stays masked.
func (c *Controller) reset() {
	c.lapic.write(regSVR, svrEnable|SpuriousVector)
	c.lapic.write(regTPR, 0)

	if c.timerCount != 0 {
		c.armTimer()
	} else {
		c.lapic.write(regLVTTimer, lvtMasked)
	}

	lvt := c.LVTEntries()
	if lvt >= 4 {
		c.lapic.write(regLVTThermal, lvtMasked)
	}
	if lvt >= 5 {
		c.lapic.write(regLVTPerf, lvtMasked)
	}

	c.lapic.write(regLVTLINT0, LINT0Vector)
	c.lapic.write(regLVTLINT1, LINT1Vector)
	c.lapic.write(regLVTError, ErrorVector)
}

// armTimer starts the timer in periodic mode with the calibrated count.
func (c *Controller) armTimer() {
	c.lapic.write(regTimerDivide, timerDivideBy1)
	c.lapic.write(regLVTTimer, lvtPeriodic|TimerVector)
	c.lapic.write(regTimerInitialCount, c.timerCount)
}

// apicID returns the id of the local APIC of the executing core: the top 8
// bits of the ID register in xAPIC mode, the whole register in x2APIC mode.
func (c *Controller) apicID() uint32 {
	id := c.lapic.read(regID)
	if c.lapic.mode == accessX2APIC {
		return id
	}
	return id >> 24
}

// handleError reports the contents of the error status register.
func (c *Controller) handleError(_ *gate.Registers) {
	kfmt.Printf("[apic] got APIC error 0x%x\n", c.lapic.read(regESR))
}

// EndOfInterrupt signals the local APIC that the current interrupt has been
// serviced. It is a no-op if no local APIC is present.
func EndOfInterrupt() {
	if c := active; c != nil {
		c.lapic.write(regEOI, 0)
	}
}

// irqEpilogue acknowledges an external interrupt. Until calibration hands
// delivery over to the APICs the line is raised by the legacy PICs, which
// need their own end of interrupt command.
func irqEpilogue() {
	if IsEnabled() {
		EndOfInterrupt()
		return
	}

	portWriteByteFn(picSlaveCommand, picEOI)
	portWriteByteFn(picMasterCommand, picEOI)
}

// CPUID returns the local APIC id of the executing core. In xAPIC mode this
// is the top 8 bits of the ID register; in x2APIC mode it is the full 32-bit
// register. It returns 0 until the timer has been calibrated.
func CPUID() uint32 {
	if !IsEnabled() {
		return 0
	}
	return active.apicID()
}

// EnableTimer starts the periodic local APIC timer.
func EnableTimer() *kernel.Error {
	if !IsEnabled() {
		return errNotInitialized
	}

	c := active
	if c.timerCount == 0 {
		return errNotCalibrated
	}

	c.armTimer()
	return nil
}

// DisableTimer masks the local APIC timer.
func DisableTimer() *kernel.Error {
	if !IsEnabled() {
		return errNotInitialized
	}

	active.lapic.write(regLVTTimer, lvtMasked)
	return nil
}
