// Package apic drives the local APIC of each core and the IO-APIC that
// routes external interrupts. The platform topology is read from the MP
// configuration table.
//
// Bring-up happens in two phases. DriverInit, invoked by the hal package,
// maps the controllers and resets the local APIC of the boot core with its
// timer masked. Calibrate then measures the timer against the kernel clock,
// hands interrupt delivery over from the legacy PICs and marks the subsystem
// as enabled.
package apic

import (
	"io"

	"github.com/RusFjord/eduOS/device"
	"github.com/RusFjord/eduOS/device/mptable"
	"github.com/RusFjord/eduOS/kernel"
	"github.com/RusFjord/eduOS/kernel/clock"
	"github.com/RusFjord/eduOS/kernel/cpu"
	"github.com/RusFjord/eduOS/kernel/gate"
	"github.com/RusFjord/eduOS/kernel/kfmt"
	"github.com/RusFjord/eduOS/kernel/mm"
	"github.com/RusFjord/eduOS/kernel/mm/vmm"
	"github.com/RusFjord/eduOS/kernel/sync"
)

var (
	errNotPresent        = &kernel.Error{Module: "apic", Message: "no local APIC present", Kind: kernel.KindNotPresent}
	errNoIOAPIC          = &kernel.Error{Module: "apic", Message: "no IO-APIC present", Kind: kernel.KindNotPresent}
	errExternalAPIC      = &kernel.Error{Module: "apic", Message: "external 82489DX APICs are not supported", Kind: kernel.KindNotPresent}
	errLVTTooSmall       = &kernel.Error{Module: "apic", Message: "local vector table has too few entries", Kind: kernel.KindNotPresent}
	errInvalidLine       = &kernel.Error{Module: "apic", Message: "IO-APIC line out of range", Kind: kernel.KindInvalidArgument}
	errNotInitialized    = &kernel.Error{Module: "apic", Message: "APIC is not initialized", Kind: kernel.KindInvalidState}
	errNotCalibrated     = &kernel.Error{Module: "apic", Message: "timer calibration yielded a zero count", Kind: kernel.KindInvalidState}
	errAlreadyCalibrated = &kernel.Error{Module: "apic", Message: "timer is already calibrated", Kind: kernel.KindInvalidState}

	mapFn               = vmm.Map
	unmapFn             = vmm.Unmap
	identityMapRegionFn = vmm.IdentityMapRegion

	handleInterruptFn = gate.HandleInterrupt
	setIRQEpilogueFn  = gate.SetIRQEpilogue

	clockTicksFn        = clock.Ticks
	haltFn              = cpu.Halt
	hasAPICFn           = cpu.HasAPIC
	hasX2APICFn         = cpu.HasX2APIC
	readMSRFn           = cpu.ReadMSR
	writeMSRFn          = cpu.WriteMSR
	portWriteByteFn     = cpu.PortWriteByte
	disableInterruptsFn = cpu.SaveAndDisableInterrupts
	restoreInterruptsFn = cpu.RestoreInterrupts

	// Virtual addresses of the pages the local APIC and IO-APIC register
	// files are remapped to.
	lapicVirtAddr  uintptr = 0x90000
	ioapicVirtAddr uintptr = 0x91000

	// active is the controller initialized by DriverInit.
	active *Controller

	// bootLock is held from DriverInit until Calibrate completes so that
	// secondary cores do not start before the shared state is final.
	bootLock sync.Spinlock
)

// Controller is the driver for the local APIC and IO-APIC pair.
type Controller struct {
	disc     *discovery
	topology *mptable.Topology

	lapic  registerAccess
	ioapic registerWindow

	// timerCount is the calibrated initial count of the timer; 0 until
	// Calibrate runs.
	timerCount uint32

	// initialized is set once calibration completes.
	initialized bool
}

// DriverName returns the name of this driver.
func (*Controller) DriverName() string {
	return "APIC"
}

// DriverVersion returns the version of this driver.
func (*Controller) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit maps the IO-APIC and the local APIC, selects the register
// access mode and resets the local APIC of the boot core.
func (c *Controller) DriverInit(w io.Writer) *kernel.Error {
	c.printDiscovery(w)

	if ioapic := c.topology.IOAPIC; ioapic != nil {
		base, err := mapDevicePage(ioapicVirtAddr, uintptr(ioapic.Address()))
		if err != nil {
			return err
		}
		c.ioapic = newIOAPICWindowFn(base)
		kfmt.Fprintf(w, "IO-APIC %d (version 0x%x) at 0x%x mapped to 0x%x\n", ioapic.ID(), c.IOAPICVersion(), ioapic.Address(), base)
	}

	base, err := mapDevicePage(lapicVirtAddr, c.disc.lapicBase)
	if err != nil {
		return err
	}
	c.lapic = registerAccess{mode: accessMMIO, base: base}
	kfmt.Fprintf(w, "local APIC at 0x%x mapped to 0x%x\n", c.disc.lapicBase, base)

	if hasX2APICFn() {
		writeMSRFn(msrAPICBase, uint64(lapicVirtAddr)|x2APICEnable)
		c.lapic = registerAccess{mode: accessX2APIC}
	}
	kfmt.Fprintf(w, "using %s mode\n", c.lapic.mode.String())

	if c.Version()>>4 == 0 {
		return errExternalAPIC
	}
	if c.LVTEntries() < minLVTEntries {
		return errLVTTooSmall
	}

	c.reset()

	handleInterruptFn(gate.InterruptNumber(ErrorVector), 0, c.handleError)
	setIRQEpilogueFn(irqEpilogue)

	if id, ok := c.topology.BootAPICID(); ok {
		kfmt.Fprintf(w, "boot processor %d (APIC id %d)\n", c.topology.BootProcessor, id)
	} else {
		kfmt.Fprintf(w, "no processor entry carries the boot flag\n")
	}

	bootLock.Acquire()
	active = c
	return nil
}

func (c *Controller) printDiscovery(w io.Writer) {
	d := c.disc
	fp := mptable.FloatingPointer(d.fp[:])
	if d.status != tableNotFound {
		kfmt.Fprintf(w, "MP floating pointer at 0x%x (spec revision 1.%d, features 0x%2x 0x%2x)\n",
			d.fpAddr, fp.Revision(), fp.Features()[0], fp.Features()[1])
	}

	switch d.status {
	case tableNotFound:
		kfmt.Fprintf(w, "no MP configuration found; assuming a uniprocessor system\n")
	case tableDegraded:
		kfmt.Fprintf(w, "ignoring MP configuration (%s); assuming a uniprocessor system\n", d.err.Message)
	case tableFound:
		kfmt.Fprintf(w, "MP configuration table at 0x%x with %d entries\n", fp.TablePointer(), d.topology.Visited)
	}

	for line, pin := range d.topology.IRQRedirect {
		if int(pin) != line {
			kfmt.Fprintf(w, "ISA IRQ %d is routed to IO-APIC pin %d\n", line, pin)
		}
	}

	kfmt.Fprintf(w, "found %d cores\n", d.topology.ProcessorCount)
}

// mapDevicePage maps the page holding physAddr to the page at virtAddr with
// caching disabled and returns the virtual address of physAddr.
func mapDevicePage(virtAddr, physAddr uintptr) (uintptr, *kernel.Error) {
	if err := mapFn(mm.PageFromAddress(virtAddr), mm.FrameFromAddress(physAddr), vmm.DeviceMappingFlags); err != nil {
		return 0, err
	}
	return virtAddr + mm.PageOffset(physAddr), nil
}

// SecondaryInit resets the local APIC of an application processor. It blocks
// until the boot core has finished calibration.
func SecondaryInit() *kernel.Error {
	c := active
	if c == nil {
		return errNotPresent
	}

	bootLock.Acquire()
	defer bootLock.Release()

	if c.lapic.mode == accessX2APIC {
		writeMSRFn(msrAPICBase, uint64(lapicVirtAddr)|x2APICEnable)
	}

	flags := disableInterruptsFn()
	c.reset()
	restoreInterruptsFn(flags)
	return nil
}

// IsEnabled returns true once the local APIC is initialized and calibrated.
func IsEnabled() bool {
	return active != nil && active.initialized
}

// NumCores returns the number of processors described by the firmware.
func NumCores() int {
	if active == nil || active.topology.ProcessorCount == 0 {
		return 1
	}
	return active.topology.ProcessorCount
}

func probeForAPIC() device.Driver {
	d := discover()
	if d.lapicBase == 0 {
		return nil
	}

	return &Controller{
		disc:     d,
		topology: d.topology,
	}
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForAPIC,
	})
}
