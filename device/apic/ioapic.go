package apic

import (
	"github.com/RusFjord/eduOS/device/mptable"
	"github.com/RusFjord/eduOS/kernel"
)

// RedirectionEntry is an IO-APIC redirection table entry. The low word holds
// the routing parameters and the high word the destination:
//
//	bits  0-7   vector
//	bits  8-10  delivery mode (0 = fixed)
//	bit   11    destination mode (0 = physical, 1 = logical)
//	bit   12    delivery status (read only)
//	bit   13    pin polarity (0 = active high)
//	bit   14    remote IRR (read only)
//	bit   15    trigger mode (0 = edge)
//	bit   16    mask
//	bits 56-63  destination APIC id
type RedirectionEntry uint64

const (
	redirDeliveryShift    = 8
	redirLogicalDest      = 1 << 11
	redirDeliveryPending  = 1 << 12
	redirActiveLow        = 1 << 13
	redirRemoteIRR        = 1 << 14
	redirLevelTriggered   = 1 << 15
	redirMasked           = 1 << 16
	redirDestinationShift = 56
)

// newRedirectionEntry returns a fixed delivery, edge triggered, active high
// entry that targets a single APIC id in physical destination mode.
func newRedirectionEntry(vector, dest uint8, masked bool) RedirectionEntry {
	e := RedirectionEntry(vector) | RedirectionEntry(dest)<<redirDestinationShift
	if masked {
		e |= redirMasked
	}
	return e
}

// Vector returns the interrupt vector raised by the entry.
func (e RedirectionEntry) Vector() uint8 { return uint8(e) }

// DeliveryMode returns the 3-bit delivery mode.
func (e RedirectionEntry) DeliveryMode() uint8 { return uint8(e>>redirDeliveryShift) & 0x7 }

// LogicalDestination returns true if the destination is a logical APIC id.
func (e RedirectionEntry) LogicalDestination() bool { return e&redirLogicalDest != 0 }

// Pending returns true if delivery of the interrupt is in progress.
func (e RedirectionEntry) Pending() bool { return e&redirDeliveryPending != 0 }

// ActiveLow returns true if the input pin is active low.
func (e RedirectionEntry) ActiveLow() bool { return e&redirActiveLow != 0 }

// RemoteIRR returns the remote IRR bit of a level triggered entry.
func (e RedirectionEntry) RemoteIRR() bool { return e&redirRemoteIRR != 0 }

// LevelTriggered returns true for level triggered entries.
func (e RedirectionEntry) LevelTriggered() bool { return e&redirLevelTriggered != 0 }

// Masked returns true if the line is masked.
func (e RedirectionEntry) Masked() bool { return e&redirMasked != 0 }

// Destination returns the destination APIC id.
func (e RedirectionEntry) Destination() uint8 { return uint8(e >> redirDestinationShift) }

// Low returns the low register of the entry.
func (e RedirectionEntry) Low() uint32 { return uint32(e) }

// High returns the high register of the entry.
func (e RedirectionEntry) High() uint32 { return uint32(e >> 32) }

var (
	newIOAPICWindowFn = func(base uintptr) registerWindow {
		return mmioWindow{base: base}
	}
)

// IOAPICVersion returns the version reported by the IO-APIC or 0 if the
// controller has no IO-APIC.
func (c *Controller) IOAPICVersion() uint8 {
	if c.ioapic == nil {
		return 0
	}
	return uint8(c.ioapic.read(ioapicRegVersion))
}

// MaxRedirectionEntry returns the index of the last IO-APIC redirection
// entry or 0 if the controller has no IO-APIC.
func (c *Controller) MaxRedirectionEntry() uint8 {
	if c.ioapic == nil {
		return 0
	}
	return uint8(c.ioapic.read(ioapicRegVersion) >> 16)
}

// Redirection reads back the redirection entry programmed for line.
func (c *Controller) Redirection(line uint8) (RedirectionEntry, *kernel.Error) {
	if line > maxIOAPICLine {
		return 0, errInvalidLine
	}
	if c.ioapic == nil {
		return 0, errNoIOAPIC
	}

	reg := c.redirectionRegister(line)
	return RedirectionEntry(c.ioapic.read(reg)) | RedirectionEntry(c.ioapic.read(reg+1))<<32, nil
}

// setLine overwrites both registers of the redirection entry for line. Lines
// below 16 are ISA lines and go through the redirect table.
func (c *Controller) setLine(line, dest uint8, masked bool) *kernel.Error {
	if line > maxIOAPICLine {
		return errInvalidLine
	}
	if c.ioapic == nil {
		return errNoIOAPIC
	}

	e := newRedirectionEntry(irqVectorBase+line, dest, masked)
	reg := c.redirectionRegister(line)
	c.ioapic.write(reg, e.Low())
	c.ioapic.write(reg+1, e.High())
	return nil
}

func (c *Controller) redirectionRegister(line uint8) uint32 {
	pin := uint32(line)
	if line < mptable.LegacyIRQCount {
		pin = uint32(c.topology.IRQRedirect[line])
	}
	return ioapicRegRedirectTable + 2*pin
}

// InterruptOn unmasks IO-APIC line and routes it to the local APIC with the
// supplied id. The line raises vector 0x20+line.
func InterruptOn(line, apicID uint8) *kernel.Error {
	return setLine(line, apicID, false)
}

// InterruptOff masks IO-APIC line.
func InterruptOff(line, apicID uint8) *kernel.Error {
	return setLine(line, apicID, true)
}

func setLine(line, apicID uint8, masked bool) *kernel.Error {
	if line > maxIOAPICLine {
		return errInvalidLine
	}

	c := active
	if c == nil {
		return errNoIOAPIC
	}
	return c.setLine(line, apicID, masked)
}
