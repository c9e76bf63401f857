package check

import (
	"fmt"
)

// ErrSignature means a structure does not start with its expected signature.
type ErrSignature struct {
	Structure string
	Expected  string
	Got       []byte
}

func (err *ErrSignature) Error() string {
	return fmt.Sprintf("%s: invalid signature %q, expected %q", err.Structure, err.Got, err.Expected)
}

// ErrChecksum means the bytes of a structure do not sum to zero.
type ErrChecksum struct {
	Structure string
	Sum       uint8
}

func (err *ErrChecksum) Error() string {
	return fmt.Sprintf("%s: checksum mismatch, bytes sum to 0x%02x", err.Structure, err.Sum)
}

// ErrRevision means the specification revision is not supported.
type ErrRevision struct {
	Structure string
	Revision  uint8
}

func (err *ErrRevision) Error() string {
	return fmt.Sprintf("%s: unsupported specification revision %d", err.Structure, err.Revision)
}

// ErrLength means a length field disagrees with the available data.
type ErrLength struct {
	Structure string
	Declared  int
	Available int
}

func (err *ErrLength) Error() string {
	return fmt.Sprintf("%s: declared length %d, %d bytes available", err.Structure, err.Declared, err.Available)
}

// ErrDefaultConfig means the floating pointer selects a default
// configuration instead of referencing a configuration table.
type ErrDefaultConfig struct {
	Config uint8
}

func (err *ErrDefaultConfig) Error() string {
	return fmt.Sprintf("floating pointer selects default configuration %d", err.Config)
}

// ErrEntryStream means the entry stream cannot be walked to the declared
// entry count.
type ErrEntryStream struct {
	Declared int
	Visited  int
	Offset   int
}

func (err *ErrEntryStream) Error() string {
	return fmt.Sprintf("entry stream ends after %d of %d entries at offset %d", err.Visited, err.Declared, err.Offset)
}

// ErrBootProcessor means the table does not flag exactly one bootstrap
// processor.
type ErrBootProcessor struct {
	Count int
}

func (err *ErrBootProcessor) Error() string {
	return fmt.Sprintf("expected exactly one boot processor, found %d", err.Count)
}

// ErrTooManyProcessors means the table describes more processors than the
// kernel registry can hold.
type ErrTooManyProcessors struct {
	Count    int
	Capacity int
}

func (err *ErrTooManyProcessors) Error() string {
	return fmt.Sprintf("%d processors exceed the registry capacity of %d", err.Count, err.Capacity)
}

// ErrUnknownIOAPIC means an interrupt assignment targets an IO-APIC id that
// has no IO-APIC entry.
type ErrUnknownIOAPIC struct {
	EntryIndex int
	ID         uint8
}

func (err *ErrUnknownIOAPIC) Error() string {
	return fmt.Sprintf("entry %d: interrupt routed to unknown IO-APIC id %d", err.EntryIndex, err.ID)
}

// ErrUnknownBus means an interrupt assignment originates from a bus id that
// has no bus entry.
type ErrUnknownBus struct {
	EntryIndex int
	BusID      uint8
}

func (err *ErrUnknownBus) Error() string {
	return fmt.Sprintf("entry %d: interrupt originates from unknown bus id %d", err.EntryIndex, err.BusID)
}

// ErrISABusPosition means the ISA bus entry carries a bus id that differs
// from its position in the entry stream. The kernel matches interrupt
// assignments against the position, so routes naming the bus id are lost.
type ErrISABusPosition struct {
	EntryIndex int
	BusID      uint8
}

func (err *ErrISABusPosition) Error() string {
	return fmt.Sprintf("entry %d: ISA bus id %d differs from its entry position", err.EntryIndex, err.BusID)
}
