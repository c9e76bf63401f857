// Package mptable decodes the MultiProcessor Specification tables that the
// firmware leaves in low memory: the floating pointer structure and the
// configuration table it references.
//
// All table types are views over the raw firmware bytes. Accessors decode
// fields on demand, so a view that outlives the call that produced it keeps
// referencing firmware memory rather than a copy.
//
// The package is shared by the kernel APIC driver and the host tools.
package mptable

import (
	"encoding/binary"

	"github.com/RusFjord/eduOS/kernel"
)

const (
	// FloatingPointerSize is the size of the floating pointer structure.
	FloatingPointerSize = 16

	// ConfigHeaderSize is the size of the fixed configuration table header;
	// the entry stream starts right after it.
	ConfigHeaderSize = 44

	// ProcessorEntrySize is the size of a processor entry.
	ProcessorEntrySize = 20

	// EntrySize is the size of every other entry kind, including kinds this
	// package does not know about.
	EntrySize = 8

	// MaxCores is the capacity of the processor registry.
	MaxCores = 8

	// MaxRevision is the highest specification revision accepted when
	// scanning for the floating pointer.
	MaxRevision = 4

	// LegacyIRQCount is the number of ISA interrupt lines that can be
	// redirected by interrupt assignment entries.
	LegacyIRQCount = 16

	// DefaultLocalAPICBase is the architectural local APIC base address used
	// when no configuration table is available.
	DefaultLocalAPICBase = 0xfee00000
)

var (
	floatingPointerSignature = [4]byte{'_', 'M', 'P', '_'}
	configTableSignature     = [4]byte{'P', 'C', 'M', 'P'}
)

var (
	// ErrDefaultConfig is returned when the floating pointer requests one of
	// the default configurations instead of describing the system with a
	// configuration table.
	ErrDefaultConfig = &kernel.Error{Module: "mptable", Message: "default MP configurations are not supported", Kind: kernel.KindInvalidConfig}

	// ErrNoConfigTable is returned when the floating pointer does not
	// reference a configuration table.
	ErrNoConfigTable = &kernel.Error{Module: "mptable", Message: "floating pointer does not reference a config table", Kind: kernel.KindInvalidConfig}

	// ErrBadSignature is returned when the configuration table signature is
	// not "PCMP".
	ErrBadSignature = &kernel.Error{Module: "mptable", Message: "invalid MP config table signature", Kind: kernel.KindInvalidConfig}

	// ErrTruncated is returned when the entry stream runs past the end of
	// the base table.
	ErrTruncated = &kernel.Error{Module: "mptable", Message: "entry stream exceeds the base table length", Kind: kernel.KindInvalidConfig}

	// ErrTooManyCores is returned when the table describes more processors
	// than the registry can hold.
	ErrTooManyCores = &kernel.Error{Module: "mptable", Message: "too many processors; increase MaxCores", Kind: kernel.KindInvalidConfig}
)

// EntryType identifies the kind of a configuration table entry.
type EntryType uint8

// The entry kinds defined by the base table.
const (
	EntryProcessor EntryType = iota
	EntryBus
	EntryIOAPIC
	EntryIOInterrupt
	EntryLocalInterrupt
)

// FloatingPointer is a view over the 16-byte MP floating pointer structure.
type FloatingPointer []byte

// HasSignature returns true if the view starts with "_MP_".
func (fp FloatingPointer) HasSignature() bool {
	return len(fp) >= FloatingPointerSize && hasPrefix(fp, floatingPointerSignature)
}

// TablePointer returns the physical address of the configuration table or
// 0 if the system uses a default configuration.
func (fp FloatingPointer) TablePointer() uint32 { return binary.LittleEndian.Uint32(fp[4:]) }

// Length returns the structure length in 16-byte units.
func (fp FloatingPointer) Length() uint8 { return fp[8] }

// Revision returns the MP specification revision (1 for 1.1, 4 for 1.4).
func (fp FloatingPointer) Revision() uint8 { return fp[9] }

// Checksum returns the checksum byte of the structure.
func (fp FloatingPointer) Checksum() uint8 { return fp[10] }

// Features returns the five feature information bytes. A non-zero first byte
// selects one of the default configurations.
func (fp FloatingPointer) Features() []byte { return fp[11:16] }

// Acceptable returns true if the structure carries a supported revision and
// describes the system with a configuration table.
func (fp FloatingPointer) Acceptable() bool {
	return fp.HasSignature() && fp.Revision() <= MaxRevision && fp.Features()[0] == 0
}

// ConfigHeader is a view over the fixed configuration table header.
type ConfigHeader []byte

// HasSignature returns true if the view starts with "PCMP".
func (h ConfigHeader) HasSignature() bool {
	return len(h) >= ConfigHeaderSize && hasPrefix(h, configTableSignature)
}

// BaseTableLength returns the length of the header plus the entry stream.
func (h ConfigHeader) BaseTableLength() uint16 { return binary.LittleEndian.Uint16(h[4:]) }

// Revision returns the specification revision of the table.
func (h ConfigHeader) Revision() uint8 { return h[6] }

// Checksum returns the base table checksum byte.
func (h ConfigHeader) Checksum() uint8 { return h[7] }

// OEMID returns the space padded OEM identifier.
func (h ConfigHeader) OEMID() []byte { return h[8:16] }

// ProductID returns the space padded product family identifier.
func (h ConfigHeader) ProductID() []byte { return h[16:28] }

// OEMTablePointer returns the physical address of the optional OEM table.
func (h ConfigHeader) OEMTablePointer() uint32 { return binary.LittleEndian.Uint32(h[28:]) }

// OEMTableSize returns the size of the optional OEM table.
func (h ConfigHeader) OEMTableSize() uint16 { return binary.LittleEndian.Uint16(h[32:]) }

// EntryCount returns the number of entries in the base table.
func (h ConfigHeader) EntryCount() uint16 { return binary.LittleEndian.Uint16(h[34:]) }

// LocalAPICBase returns the physical address of the local APIC registers.
func (h ConfigHeader) LocalAPICBase() uint32 { return binary.LittleEndian.Uint32(h[36:]) }

// ExtendedTableLength returns the length of the extended entries that follow
// the base table.
func (h ConfigHeader) ExtendedTableLength() uint16 { return binary.LittleEndian.Uint16(h[40:]) }

// ExtendedTableChecksum returns the checksum of the extended entries.
func (h ConfigHeader) ExtendedTableChecksum() uint8 { return h[42] }

// Entry is a view over a single entry of the base table stream.
type Entry []byte

// Type returns the entry kind.
func (e Entry) Type() EntryType { return EntryType(e[0]) }

// Size returns the number of bytes occupied by an entry of kind t. Kinds
// other than processors are assumed to occupy EntrySize bytes.
func (t EntryType) Size() int {
	if t == EntryProcessor {
		return ProcessorEntrySize
	}
	return EntrySize
}

// ProcessorEntry is a view over a processor entry.
type ProcessorEntry []byte

// APICID returns the local APIC id of the processor.
func (e ProcessorEntry) APICID() uint8 { return e[1] }

// APICVersion returns the local APIC version of the processor.
func (e ProcessorEntry) APICVersion() uint8 { return e[2] }

// Flags returns the raw CPU flags byte.
func (e ProcessorEntry) Flags() uint8 { return e[3] }

// Usable returns true if the firmware marked the processor as usable.
func (e ProcessorEntry) Usable() bool { return e[3]&0x1 != 0 }

// BootProcessor returns true if this is the bootstrap processor.
func (e ProcessorEntry) BootProcessor() bool { return e[3]&0x2 != 0 }

// Signature returns the CPU signature (stepping, model and family).
func (e ProcessorEntry) Signature() uint32 { return binary.LittleEndian.Uint32(e[4:]) }

// FeatureFlags returns the CPUID feature flags reported by the firmware.
func (e ProcessorEntry) FeatureFlags() uint32 { return binary.LittleEndian.Uint32(e[8:]) }

// BusEntry is a view over a bus entry.
type BusEntry []byte

// BusID returns the bus id.
func (e BusEntry) BusID() uint8 { return e[1] }

// TypeString returns the space padded 6-character bus type.
func (e BusEntry) TypeString() []byte { return e[2:8] }

// IsISA returns true if the bus type starts with "ISA".
func (e BusEntry) IsISA() bool { return e[2] == 'I' && e[3] == 'S' && e[4] == 'A' }

// IOAPICEntry is a view over an IO-APIC entry.
type IOAPICEntry []byte

// ID returns the IO-APIC id.
func (e IOAPICEntry) ID() uint8 { return e[1] }

// Version returns the IO-APIC version.
func (e IOAPICEntry) Version() uint8 { return e[2] }

// Usable returns true if the firmware marked the IO-APIC as usable.
func (e IOAPICEntry) Usable() bool { return e[3]&0x1 != 0 }

// Address returns the physical address of the IO-APIC registers.
func (e IOAPICEntry) Address() uint32 { return binary.LittleEndian.Uint32(e[4:]) }

// IOInterruptEntry is a view over an IO interrupt assignment entry.
type IOInterruptEntry []byte

// InterruptType returns the interrupt type (0 INT, 1 NMI, 2 SMI, 3 ExtINT).
func (e IOInterruptEntry) InterruptType() uint8 { return e[1] }

// Flags returns the polarity and trigger mode flags.
func (e IOInterruptEntry) Flags() uint16 { return binary.LittleEndian.Uint16(e[2:]) }

// SourceBus returns the id of the bus the interrupt originates from.
func (e IOInterruptEntry) SourceBus() uint8 { return e[4] }

// SourceIRQ returns the interrupt line on the source bus.
func (e IOInterruptEntry) SourceIRQ() uint8 { return e[5] }

// DestIOAPIC returns the id of the IO-APIC the line is wired to.
func (e IOInterruptEntry) DestIOAPIC() uint8 { return e[6] }

// DestPin returns the IO-APIC input pin the line is wired to.
func (e IOInterruptEntry) DestPin() uint8 { return e[7] }

// LocalInterruptEntry is a view over a local interrupt assignment entry.
type LocalInterruptEntry []byte

// InterruptType returns the interrupt type (0 INT, 1 NMI, 2 SMI, 3 ExtINT).
func (e LocalInterruptEntry) InterruptType() uint8 { return e[1] }

// Flags returns the polarity and trigger mode flags.
func (e LocalInterruptEntry) Flags() uint16 { return binary.LittleEndian.Uint16(e[2:]) }

// SourceBus returns the id of the bus the interrupt originates from.
func (e LocalInterruptEntry) SourceBus() uint8 { return e[4] }

// SourceIRQ returns the interrupt line on the source bus.
func (e LocalInterruptEntry) SourceIRQ() uint8 { return e[5] }

// DestLocalAPIC returns the destination local APIC id; 0xff means all.
func (e LocalInterruptEntry) DestLocalAPIC() uint8 { return e[6] }

// DestLINT returns the destination LINTn pin.
func (e LocalInterruptEntry) DestLINT() uint8 { return e[7] }

func hasPrefix(b []byte, sig [4]byte) bool {
	return b[0] == sig[0] && b[1] == sig[1] && b[2] == sig[2] && b[3] == sig[3]
}

// Checksum returns the 8-bit sum of b. Valid tables sum to zero.
func Checksum(b []byte) uint8 {
	var sum uint8
	for _, v := range b {
		sum += v
	}
	return sum
}
