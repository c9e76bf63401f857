package cpu

const (
	// CPUID leaf 1 feature bits used by the interrupt controller code.
	featureEDXAPIC   = 1 << 9
	featureECXX2APIC = 1 << 21

	// flagInterruptEnable is the IF bit in RFLAGS.
	flagInterruptEnable = 1 << 9
)

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// SaveAndDisableInterrupts disables interrupt handling and returns the
// RFLAGS value that was active before the call. The returned value can be
// passed to RestoreInterrupts to re-enable interrupts only if they were
// enabled to begin with.
func SaveAndDisableInterrupts() uint64

// RestoreInterrupts loads the RFLAGS value returned by a previous call to
// SaveAndDisableInterrupts.
func RestoreInterrupts(flags uint64)

// InterruptsEnabled returns true if the supplied RFLAGS value has the
// interrupt enable flag set.
func InterruptsEnabled(flags uint64) bool {
	return flags&flagInterruptEnable != 0
}

// Halt stops instruction execution until the next interrupt arrives.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}

// HasAPIC returns true if the processor reports an on-chip local APIC.
func HasAPIC() bool {
	_, _, _, edx := cpuidFn(1)
	return edx&featureEDXAPIC != 0
}

// HasX2APIC returns true if the processor supports accessing its local APIC
// through model-specific registers (x2APIC mode).
func HasX2APIC() bool {
	_, _, ecx, _ := cpuidFn(1)
	return ecx&featureECXX2APIC != 0
}

// ReadMSR returns the contents of the requested model-specific register.
func ReadMSR(msr uint32) uint64

// WriteMSR stores value to the requested model-specific register.
func WriteMSR(msr uint32, value uint64)

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8
