package apic

import (
	"sync/atomic"
	"unsafe"
)

// accessMode selects how local APIC registers are reached.
type accessMode uint8

const (
	// accessMMIO reaches registers through the mapped register page.
	accessMMIO accessMode = iota

	// accessX2APIC reaches registers through model specific registers.
	accessX2APIC
)

func (m accessMode) String() string {
	if m == accessX2APIC {
		return "x2APIC"
	}
	return "xAPIC"
}

// registerAccess reads and writes local APIC registers. The mode is chosen
// once when the driver initializes and never changes afterwards.
type registerAccess struct {
	mode accessMode

	// base is the virtual address of the register page in accessMMIO mode.
	base uintptr
}

// x2APICRegister returns the MSR that maps the local APIC register at offset.
func x2APICRegister(offset uint32) uint32 {
	return x2APICRegisterBase + offset>>4
}

func (a registerAccess) read(offset uint32) uint32 {
	if a.mode == accessX2APIC {
		return uint32(readMSRFn(x2APICRegister(offset)))
	}

	return atomic.LoadUint32((*uint32)(unsafe.Pointer(a.base + uintptr(offset))))
}

// write stores value to the register at offset. In MMIO mode the register is
// loaded before the store; some Pentium parts lose APIC writes that are not
// preceded by a read.
func (a registerAccess) write(offset, value uint32) {
	if a.mode == accessX2APIC {
		writeMSRFn(x2APICRegister(offset), uint64(value))
		return
	}

	reg := (*uint32)(unsafe.Pointer(a.base + uintptr(offset)))
	atomic.LoadUint32(reg)
	atomic.StoreUint32(reg, value)
}

// registerWindow is an indirect register file reached through a select and
// a data register, as used by the IO-APIC.
type registerWindow interface {
	read(reg uint32) uint32
	write(reg, value uint32)
}

// mmioWindow is the memory mapped registerWindow implementation.
type mmioWindow struct {
	base uintptr
}

func (w mmioWindow) read(reg uint32) uint32 {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(w.base+ioRegSel)), reg)
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(w.base + ioWin)))
}

func (w mmioWindow) write(reg, value uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(w.base+ioRegSel)), reg)
	atomic.StoreUint32((*uint32)(unsafe.Pointer(w.base+ioWin)), value)
}
