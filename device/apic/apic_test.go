package apic

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/RusFjord/eduOS/device/mptable"
	"github.com/RusFjord/eduOS/kernel"
	"github.com/RusFjord/eduOS/kernel/gate"
	"github.com/RusFjord/eduOS/kernel/mm"
	"github.com/RusFjord/eduOS/kernel/mm/vmm"
)

const (
	testTablePhys  = 0xf5a40
	testIOAPICPhys = 0xfec00000
)

// regWrite records a register write together with the interrupt state at
// the time of the write.
type regWrite struct {
	reg      uint32
	value    uint64
	disabled bool
}

// fakeIOAPIC emulates the indirect IO-APIC register file.
type fakeIOAPIC struct {
	version uint32
	redir   [2 * (maxIOAPICLine + 1)]uint32
	writes  []regWrite

	// disabled and trace point to the interrupt state and the access
	// trace of the owning testHarness.
	disabled *bool
	trace    *[]string
}

func newFakeIOAPIC(maxEntry uint8) *fakeIOAPIC {
	return &fakeIOAPIC{version: uint32(maxEntry)<<16 | 0x20, disabled: new(bool), trace: new([]string)}
}

func (f *fakeIOAPIC) read(reg uint32) uint32 {
	switch {
	case reg == ioapicRegVersion:
		return f.version
	case reg >= ioapicRegRedirectTable && reg < ioapicRegRedirectTable+uint32(len(f.redir)):
		return f.redir[reg-ioapicRegRedirectTable]
	}
	return 0
}

func (f *fakeIOAPIC) write(reg, value uint32) {
	f.writes = append(f.writes, regWrite{reg: reg, value: uint64(value), disabled: *f.disabled})
	*f.trace = append(*f.trace, "ioapic")
	if reg >= ioapicRegRedirectTable && reg < ioapicRegRedirectTable+uint32(len(f.redir)) {
		f.redir[reg-ioapicRegRedirectTable] = value
	}
}

func (f *fakeIOAPIC) entry(pin int) RedirectionEntry {
	return RedirectionEntry(f.redir[2*pin]) | RedirectionEntry(f.redir[2*pin+1])<<32
}

// testHarness replaces every collaborator of the package with a fake. The
// local APIC register page is backed by a Go array.
type testHarness struct {
	lapic  *[1024]uint32
	ioapic *fakeIOAPIC

	x2apic    bool
	msrs      map[uint32]uint64
	msrWrites []regWrite

	ticks    uint64
	halts    int
	disabled bool

	// timerRate is the number of timer counts that elapse per clock tick
	// once the initial count has been set to its maximum.
	timerRate  uint32
	armedTicks uint32

	portWrites []regWrite

	// trace lists the kinds of side effects in the order they happened.
	trace []string

	handlers   map[gate.InterruptNumber]func(*gate.Registers)
	epilogue   func()
	mapped     []mm.Frame

	// firmware keeps the buffers standing in for physical memory alive
	// while the scan windows refer to them by address.
	firmware [][]byte
}

func newTestHarness() (*testHarness, func()) {
	h := &testHarness{
		lapic:    new([1024]uint32),
		ioapic:   newFakeIOAPIC(23),
		msrs:     make(map[uint32]uint64),
		handlers: make(map[gate.InterruptNumber]func(*gate.Registers)),
	}
	h.ioapic.disabled = &h.disabled
	h.ioapic.trace = &h.trace

	// Version 0x14 with 6 LVT entries.
	h.lapic[regVersion/4] = 0x00050014
	h.lapic[regID/4] = 2 << 24
	h.msrs[x2APICRegister(regVersion)] = 0x00050014
	h.msrs[x2APICRegister(regID)] = 2

	restore := saveCollaborators()

	mapFn = func(_ mm.Page, frame mm.Frame, _ vmm.PageTableEntryFlag) *kernel.Error {
		h.mapped = append(h.mapped, frame)
		return nil
	}
	unmapFn = func(_ mm.Page) *kernel.Error { return nil }
	identityMapRegionFn = func(_ mm.Frame, _ uintptr, _ vmm.PageTableEntryFlag) (mm.Page, *kernel.Error) {
		return 0, &kernel.Error{Module: "test", Message: "unexpected identity mapping"}
	}
	handleInterruptFn = func(num gate.InterruptNumber, _ uint8, handler func(*gate.Registers)) {
		h.handlers[num] = handler
	}
	setIRQEpilogueFn = func(fn func()) { h.epilogue = fn }
	clockTicksFn = func() uint64 { return h.ticks }
	haltFn = h.halt
	hasAPICFn = func() bool { return true }
	hasX2APICFn = func() bool { return h.x2apic }
	readMSRFn = func(msr uint32) uint64 { return h.msrs[msr] }
	writeMSRFn = func(msr uint32, value uint64) {
		h.msrWrites = append(h.msrWrites, regWrite{reg: msr, value: value, disabled: h.disabled})
		h.trace = append(h.trace, "msr")
		h.msrs[msr] = value
	}
	portWriteByteFn = func(port uint16, value uint8) {
		h.portWrites = append(h.portWrites, regWrite{reg: uint32(port), value: uint64(value), disabled: h.disabled})
		h.trace = append(h.trace, "port")
	}
	disableInterruptsFn = func() uint64 {
		prev := h.disabled
		h.disabled = true
		if prev {
			return 0
		}
		return 1
	}
	restoreInterruptsFn = func(flags uint64) { h.disabled = flags == 0 }
	newIOAPICWindowFn = func(_ uintptr) registerWindow { return h.ioapic }
	lapicVirtAddr = uintptr(unsafe.Pointer(&h.lapic[0]))
	scanWindows = nil

	return h, restore
}

// saveCollaborators returns a function that restores every package variable
// the tests override.
func saveCollaborators() func() {
	var (
		origMap, origUnmap, origIdentityMap = mapFn, unmapFn, identityMapRegionFn
		origHandle, origEpilogue            = handleInterruptFn, setIRQEpilogueFn
		origTicks, origHalt                 = clockTicksFn, haltFn
		origHasAPIC, origHasX2APIC          = hasAPICFn, hasX2APICFn
		origReadMSR, origWriteMSR           = readMSRFn, writeMSRFn
		origPortWrite                       = portWriteByteFn
		origDisable, origRestore            = disableInterruptsFn, restoreInterruptsFn
		origWindow                          = newIOAPICWindowFn
		origLAPICVirt, origIOAPICVirt       = lapicVirtAddr, ioapicVirtAddr
		origScanWindows                     = scanWindows
	)

	return func() {
		mapFn, unmapFn, identityMapRegionFn = origMap, origUnmap, origIdentityMap
		handleInterruptFn, setIRQEpilogueFn = origHandle, origEpilogue
		clockTicksFn, haltFn = origTicks, origHalt
		hasAPICFn, hasX2APICFn = origHasAPIC, origHasX2APIC
		readMSRFn, writeMSRFn = origReadMSR, origWriteMSR
		portWriteByteFn = origPortWrite
		disableInterruptsFn, restoreInterruptsFn = origDisable, origRestore
		newIOAPICWindowFn = origWindow
		lapicVirtAddr, ioapicVirtAddr = origLAPICVirt, origIOAPICVirt
		scanWindows = origScanWindows

		active = nil
		bootLock.Release()
	}
}

// halt advances the clock by one tick and, while the timer runs with the
// maximum initial count, counts the timer down by timerRate.
func (h *testHarness) halt() {
	h.halts++
	h.ticks++
	h.trace = append(h.trace, "halt")

	if h.lapicReg(regTimerInitialCount) == timerMaxCount {
		h.armedTicks++
		h.setLAPICReg(regTimerCurrentCount, timerMaxCount-h.timerRate*h.armedTicks)
	}
}

func (h *testHarness) lapicReg(offset uint32) uint32 {
	if h.x2apic {
		return uint32(h.msrs[x2APICRegister(offset)])
	}
	return h.lapic[offset/4]
}

func (h *testHarness) setLAPICReg(offset, value uint32) {
	if h.x2apic {
		h.msrs[x2APICRegister(offset)] = uint64(value)
		return
	}
	h.lapic[offset/4] = value
}

// installFirmware places fp at fpOffset inside a scan window and makes table
// reachable at physical address testTablePhys.
func (h *testHarness) installFirmware(fp []byte, fpOffset int, table []byte) {
	window := make([]byte, 512)
	copy(window[fpOffset:], fp)
	start := uintptr(unsafe.Pointer(&window[0]))
	scanWindows = []scanWindow{{start: start, end: start + uintptr(len(window))}}
	h.firmware = append(h.firmware, window)

	mem := make([]byte, 4*mm.PageSize)
	base := (uintptr(unsafe.Pointer(&mem[0])) + mm.PageSize - 1) &^ (mm.PageSize - 1)
	dst := unsafe.Slice((*byte)(unsafe.Pointer(base+mm.PageOffset(testTablePhys))), len(table))
	copy(dst, table)
	h.firmware = append(h.firmware, mem)

	identityMapRegionFn = func(frame mm.Frame, size uintptr, _ vmm.PageTableEntryFlag) (mm.Page, *kernel.Error) {
		if frame != mm.FrameFromAddress(testTablePhys) || size > 3*mm.PageSize {
			return 0, &kernel.Error{Module: "test", Message: "unexpected identity mapping"}
		}
		return mm.PageFromAddress(base), nil
	}
}

// standardTable returns the table of a single core system with an ISA bus at
// entry 1, an IO-APIC and a timer override from ISA IRQ 0 to pin 2.
func standardTable() *mptable.Builder {
	b := mptable.NewBuilder("EDUOS", "TEST", mptable.DefaultLocalAPICBase)
	b.AddProcessor(2, 0x14, true, true, 0x663, 0x781abfd)
	b.AddBus(0, "ISA")
	b.AddIOAPIC(1, 0x20, true, testIOAPICPhys)
	b.AddIOInterrupt(0, 0, 1, 0, 1, 2)
	return b
}

// initController runs discovery and DriverInit against the firmware
// installed in the harness.
func initController(t *testing.T) *Controller {
	t.Helper()

	drv := probeForAPIC()
	if drv == nil {
		t.Fatal("expected probe to detect a local APIC")
	}

	var buf bytes.Buffer
	if err := drv.DriverInit(&buf); err != nil {
		t.Fatalf("unexpected DriverInit error: %v\n%s", err, buf.String())
	}

	return drv.(*Controller)
}
