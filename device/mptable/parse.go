package mptable

import "github.com/RusFjord/eduOS/kernel"

// Topology is the system description derived from a configuration table.
type Topology struct {
	// Header is a view over the configuration table header.
	Header ConfigHeader

	// Processors holds a view for every usable processor; slots of unusable
	// processors stay nil.
	Processors [MaxCores]ProcessorEntry

	// BootProcessor is the registry index of the bootstrap processor or
	// MaxCores if no entry carries the boot flag.
	BootProcessor int

	// ProcessorCount is the number of processor entries in the table,
	// usable or not.
	ProcessorCount int

	// ISABus is the position of the ISA bus entry in the entry stream or -1
	// if the table lists none. Interrupt assignment entries name their source
	// bus by this position, not by the bus id field.
	ISABus int

	// IOAPIC is a view over the first IO-APIC entry or nil.
	IOAPIC IOAPICEntry

	// IRQRedirect maps each legacy ISA line to an IO-APIC input pin.
	IRQRedirect [LegacyIRQCount]uint8

	// Visited is the number of entries walked by the last pass and
	// Consumed the offset right after the last visited entry.
	Visited  int
	Consumed int
}

// Uniprocessor returns the topology of a system without a usable
// configuration table: a single implicit core without an IO-APIC.
func Uniprocessor() *Topology {
	t := &Topology{
		BootProcessor:  MaxCores,
		ProcessorCount: 1,
		ISABus:         -1,
	}
	t.resetRedirects()
	return t
}

// HasBootProcessor returns true if one of the registry slots was flagged as
// the bootstrap processor.
func (t *Topology) HasBootProcessor() bool {
	return t.BootProcessor < MaxCores
}

// BootAPICID returns the local APIC id of the bootstrap processor. The
// second return value is false when the boot processor is unknown.
func (t *Topology) BootAPICID() (uint8, bool) {
	if !t.HasBootProcessor() || t.Processors[t.BootProcessor] == nil {
		return 0, false
	}
	return t.Processors[t.BootProcessor].APICID(), true
}

func (t *Topology) resetRedirects() {
	for i := range t.IRQRedirect {
		t.IRQRedirect[i] = uint8(i)
	}
}

// Walk invokes fn for each entry of the base table stream in order. The
// stream must hold exactly EntryCount entries within the base table length;
// an entry extending past it yields ErrTruncated. Walk returns the number of
// visited entries and the offset just past the last one.
func Walk(table []byte, fn func(index int, entry Entry)) (visited, consumed int, err *kernel.Error) {
	hdr := ConfigHeader(table)
	limit := int(hdr.BaseTableLength())
	if limit > len(table) {
		limit = len(table)
	}

	offset := ConfigHeaderSize
	for count := int(hdr.EntryCount()); visited < count; visited++ {
		if offset >= limit {
			return visited, offset, ErrTruncated
		}

		size := EntryType(table[offset]).Size()
		if offset+size > limit {
			return visited, offset, ErrTruncated
		}

		fn(visited, Entry(table[offset:offset+size]))
		offset += size
	}

	return visited, offset, nil
}

// Parse decodes the configuration table referenced by fp. The first pass over
// the entry stream records the position of the ISA bus entry. The second
// fills the processor registry, records the first IO-APIC and applies the
// ISA interrupt overrides to the redirect table.
//
// A table describing more than MaxCores processors is rejected as a whole
// with ErrTooManyCores. All errors are configuration errors; callers are
// expected to fall back to Uniprocessor.
func Parse(fp FloatingPointer, table []byte) (*Topology, *kernel.Error) {
	if fp.Features()[0] != 0 {
		return nil, ErrDefaultConfig
	}

	if fp.TablePointer() == 0 {
		return nil, ErrNoConfigTable
	}

	if len(table) < ConfigHeaderSize {
		return nil, ErrTruncated
	}

	hdr := ConfigHeader(table)
	if !hdr.HasSignature() {
		return nil, ErrBadSignature
	}

	t := &Topology{
		Header:        hdr,
		BootProcessor: MaxCores,
		ISABus:        -1,
	}
	t.resetRedirects()

	_, _, err := Walk(table, func(index int, e Entry) {
		if e.Type() == EntryBus && BusEntry(e).IsISA() {
			t.ISABus = index
		}
	})
	if err != nil {
		return nil, err
	}

	t.Visited, t.Consumed, err = Walk(table, t.visit)
	if err != nil {
		return nil, err
	}

	if t.ProcessorCount > MaxCores {
		return nil, ErrTooManyCores
	}

	return t, nil
}

// visit applies a single entry during the second pass.
func (t *Topology) visit(_ int, e Entry) {
	switch e.Type() {
	case EntryProcessor:
		if index := t.ProcessorCount; index < MaxCores {
			proc := ProcessorEntry(e)
			if proc.Usable() {
				t.Processors[index] = proc
				if proc.BootProcessor() {
					t.BootProcessor = index
				}
			}
		}
		t.ProcessorCount++
	case EntryIOAPIC:
		if t.IOAPIC == nil {
			t.IOAPIC = IOAPICEntry(e)
		}
	case EntryIOInterrupt:
		irq := IOInterruptEntry(e)
		if t.ISABus >= 0 && int(irq.SourceBus()) == t.ISABus && irq.SourceIRQ() < LegacyIRQCount {
			t.IRQRedirect[irq.SourceIRQ()] = irq.DestPin()
		}
	}
}
