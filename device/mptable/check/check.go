// Package check validates MP floating pointer structures and configuration
// tables. Unlike the kernel parser, which stops at the first problem and
// falls back to a uniprocessor setup, the checks here report every problem
// they find.
package check

import (
	"github.com/hashicorp/go-multierror"

	"github.com/RusFjord/eduOS/device/mptable"
)

// allIOAPICs is the destination id that addresses every IO-APIC.
const allIOAPICs = 0xff

// FloatingPointer checks the signature, length, checksum, revision and
// feature bytes of a floating pointer structure.
func FloatingPointer(fp mptable.FloatingPointer) error {
	if len(fp) < mptable.FloatingPointerSize {
		return &ErrLength{Structure: "floating pointer", Declared: mptable.FloatingPointerSize, Available: len(fp)}
	}

	var result *multierror.Error
	if !fp.HasSignature() {
		result = multierror.Append(result, &ErrSignature{Structure: "floating pointer", Expected: "_MP_", Got: fp[:4]})
	}
	if declared := int(fp.Length()) * 16; declared != mptable.FloatingPointerSize {
		result = multierror.Append(result, &ErrLength{Structure: "floating pointer", Declared: declared, Available: mptable.FloatingPointerSize})
	}
	if sum := mptable.Checksum(fp[:mptable.FloatingPointerSize]); sum != 0 {
		result = multierror.Append(result, &ErrChecksum{Structure: "floating pointer", Sum: sum})
	}
	if fp.Revision() > mptable.MaxRevision {
		result = multierror.Append(result, &ErrRevision{Structure: "floating pointer", Revision: fp.Revision()})
	}
	if cfg := fp.Features()[0]; cfg != 0 {
		result = multierror.Append(result, &ErrDefaultConfig{Config: cfg})
	}

	return result.ErrorOrNil()
}

// ConfigTable checks a configuration table: header signature and checksum,
// base and extended table bounds, the entry stream, the boot processor flag,
// the registry capacity, the ISA bus position and the references of
// interrupt assignment entries.
// The table slice may extend past the base table to include the extended
// entries.
func ConfigTable(table []byte) error {
	if len(table) < mptable.ConfigHeaderSize {
		return &ErrLength{Structure: "config table header", Declared: mptable.ConfigHeaderSize, Available: len(table)}
	}

	var (
		result  *multierror.Error
		hdr     = mptable.ConfigHeader(table)
		baseLen = int(hdr.BaseTableLength())
	)

	if !hdr.HasSignature() {
		result = multierror.Append(result, &ErrSignature{Structure: "config table", Expected: "PCMP", Got: table[:4]})
	}
	if hdr.Revision() > mptable.MaxRevision {
		result = multierror.Append(result, &ErrRevision{Structure: "config table", Revision: hdr.Revision()})
	}

	if baseLen < mptable.ConfigHeaderSize || baseLen > len(table) {
		result = multierror.Append(result, &ErrLength{Structure: "config table", Declared: baseLen, Available: len(table)})
	} else {
		if sum := mptable.Checksum(table[:baseLen]); sum != 0 {
			result = multierror.Append(result, &ErrChecksum{Structure: "config table", Sum: sum})
		}

		if extLen := int(hdr.ExtendedTableLength()); extLen > 0 {
			if baseLen+extLen > len(table) {
				result = multierror.Append(result, &ErrLength{Structure: "extended table", Declared: extLen, Available: len(table) - baseLen})
			} else if sum := mptable.Checksum(table[baseLen:baseLen+extLen]) + hdr.ExtendedTableChecksum(); sum != 0 {
				result = multierror.Append(result, &ErrChecksum{Structure: "extended table", Sum: sum})
			}
		}
	}

	if err := entries(table); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// Validate runs all floating pointer and configuration table checks.
func Validate(fp mptable.FloatingPointer, table []byte) error {
	var result *multierror.Error
	if err := FloatingPointer(fp); err != nil {
		result = multierror.Append(result, err)
	}
	if err := ConfigTable(table); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// entries checks the entry stream and the cross references between entries.
func entries(table []byte) error {
	var (
		result     *multierror.Error
		processors int
		boot       int
		buses      = map[uint8]bool{}
		ioapics    = map[uint8]bool{}
		routes     []mptable.IOInterruptEntry
		routeIndex []int
		isaErrs    []error
	)

	visited, offset, err := mptable.Walk(table, func(index int, e mptable.Entry) {
		switch e.Type() {
		case mptable.EntryProcessor:
			processors++
			if mptable.ProcessorEntry(e).BootProcessor() {
				boot++
			}
		case mptable.EntryBus:
			bus := mptable.BusEntry(e)
			buses[bus.BusID()] = true
			if bus.IsISA() && int(bus.BusID()) != index {
				isaErrs = append(isaErrs, &ErrISABusPosition{EntryIndex: index, BusID: bus.BusID()})
			}
		case mptable.EntryIOAPIC:
			ioapics[mptable.IOAPICEntry(e).ID()] = true
		case mptable.EntryIOInterrupt:
			routes = append(routes, mptable.IOInterruptEntry(e))
			routeIndex = append(routeIndex, index)
		}
	})
	if err != nil {
		result = multierror.Append(result, &ErrEntryStream{
			Declared: int(mptable.ConfigHeader(table).EntryCount()),
			Visited:  visited,
			Offset:   offset,
		})
	}

	if boot != 1 {
		result = multierror.Append(result, &ErrBootProcessor{Count: boot})
	}
	if processors > mptable.MaxCores {
		result = multierror.Append(result, &ErrTooManyProcessors{Count: processors, Capacity: mptable.MaxCores})
	}
	for _, isaErr := range isaErrs {
		result = multierror.Append(result, isaErr)
	}

	for i, route := range routes {
		if !buses[route.SourceBus()] {
			result = multierror.Append(result, &ErrUnknownBus{EntryIndex: routeIndex[i], BusID: route.SourceBus()})
		}
		if id := route.DestIOAPIC(); id != allIOAPICs && !ioapics[id] {
			result = multierror.Append(result, &ErrUnknownIOAPIC{EntryIndex: routeIndex[i], ID: id})
		}
	}

	return result.ErrorOrNil()
}
