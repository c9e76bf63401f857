package apic

import (
	"unsafe"

	"github.com/RusFjord/eduOS/device/mptable"
	"github.com/RusFjord/eduOS/kernel"
	"github.com/RusFjord/eduOS/kernel/mm"
	"github.com/RusFjord/eduOS/kernel/mm/vmm"
)

// tableStatus is the outcome of the firmware table discovery.
type tableStatus uint8

const (
	// tableNotFound means no acceptable floating pointer exists.
	tableNotFound tableStatus = iota

	// tableFound means the configuration table was parsed successfully.
	tableFound

	// tableDegraded means a floating pointer was found but the table it
	// references could not be used; the system runs as a uniprocessor.
	tableDegraded
)

func (s tableStatus) String() string {
	switch s {
	case tableFound:
		return "found"
	case tableDegraded:
		return "degraded"
	default:
		return "not found"
	}
}

// discovery holds everything learned about the platform before the local
// APIC is touched.
type discovery struct {
	status tableStatus

	// fpAddr and fp describe the floating pointer when status is not
	// tableNotFound.
	fpAddr uintptr
	fp     [mptable.FloatingPointerSize]byte

	// topology is never nil; without a usable table it describes a single
	// core without an IO-APIC.
	topology *mptable.Topology

	// lapicBase is the physical address of the local APIC or 0 if the
	// system has none.
	lapicBase uintptr

	// err records why discovery degraded.
	err *kernel.Error
}

// discover locates and parses the MP configuration table. Configuration
// errors never fail discovery; they are recorded and the uniprocessor
// topology is used instead.
func discover() *discovery {
	d := &discovery{
		status:   tableNotFound,
		topology: mptable.Uniprocessor(),
	}

	addr, fp, found, err := locateFloatingPointer()
	switch {
	case err != nil:
		d.status, d.err = tableDegraded, err
	case found:
		d.fpAddr, d.fp = addr, fp
		if topology, err := parseTable(mptable.FloatingPointer(d.fp[:])); err != nil {
			d.status, d.err = tableDegraded, err
		} else {
			d.status, d.topology = tableFound, topology
		}
	}

	switch {
	case d.status == tableFound:
		d.lapicBase = uintptr(d.topology.Header.LocalAPICBase())
	case hasAPICFn():
		d.lapicBase = mptable.DefaultLocalAPICBase
	}

	return d
}

// parseTable maps the configuration table referenced by fp and parses it.
func parseTable(fp mptable.FloatingPointer) (*mptable.Topology, *kernel.Error) {
	var table []byte

	if fp.Features()[0] == 0 && fp.TablePointer() != 0 {
		var err *kernel.Error
		if table, err = mapConfigTable(uintptr(fp.TablePointer())); err != nil {
			return nil, err
		}
	}

	return mptable.Parse(fp, table)
}

// mapConfigTable identity maps the table header to learn the base table
// length and then extends the mapping to cover the whole base table. The
// mapping is kept as the parsed topology refers to the table contents.
func mapConfigTable(tableAddr uintptr) ([]byte, *kernel.Error) {
	table, err := mapPhysRegion(tableAddr, mptable.ConfigHeaderSize)
	if err != nil {
		return nil, err
	}

	hdr := mptable.ConfigHeader(table)
	if !hdr.HasSignature() || int(hdr.BaseTableLength()) <= mptable.ConfigHeaderSize {
		return table, nil
	}

	return mapPhysRegion(tableAddr, uintptr(hdr.BaseTableLength()))
}

// mapPhysRegion identity maps size bytes starting at physAddr and returns
// them as a byte slice.
func mapPhysRegion(physAddr, size uintptr) ([]byte, *kernel.Error) {
	page, err := identityMapRegionFn(mm.FrameFromAddress(physAddr), mm.PageOffset(physAddr)+size, vmm.FlagPresent)
	if err != nil {
		return nil, err
	}

	ptr := (*byte)(unsafe.Pointer(page.Address() + mm.PageOffset(physAddr)))
	return unsafe.Slice(ptr, size), nil
}
