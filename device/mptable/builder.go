package mptable

import (
	"bytes"
	"encoding/binary"
)

// Processor flag bits.
const (
	ProcessorUsable = 1 << 0
	ProcessorBoot   = 1 << 1
)

type floatingPointerRecord struct {
	Signature [4]byte
	PhysPtr   uint32
	Length    uint8
	Revision  uint8
	Checksum  uint8
	Features  [5]uint8
}

type configHeaderRecord struct {
	Signature        [4]byte
	Length           uint16
	Revision         uint8
	Checksum         uint8
	OEMID            [8]byte
	ProductID        [12]byte
	OEMTablePointer  uint32
	OEMTableSize     uint16
	EntryCount       uint16
	LocalAPICBase    uint32
	ExtendedLength   uint16
	ExtendedChecksum uint8
	_                uint8
}

type processorRecord struct {
	Type        uint8
	APICID      uint8
	APICVersion uint8
	Flags       uint8
	Signature   uint32
	Features    uint32
	_           [8]uint8
}

type busRecord struct {
	Type       uint8
	BusID      uint8
	TypeString [6]byte
}

type ioapicRecord struct {
	Type    uint8
	ID      uint8
	Version uint8
	Flags   uint8
	Address uint32
}

type interruptRecord struct {
	Type          uint8
	InterruptType uint8
	Flags         uint16
	SourceBus     uint8
	SourceIRQ     uint8
	Dest          uint8
	DestPin       uint8
}

// Builder assembles a configuration table entry by entry. The zero value is
// not usable; create builders with NewBuilder.
type Builder struct {
	// OEMID and ProductID are space padded to their field width and
	// truncated if longer.
	OEMID     string
	ProductID string

	LocalAPICBase uint32
	Revision      uint8

	entries bytes.Buffer
	count   uint16
}

// NewBuilder returns a builder for a revision 1.4 table.
func NewBuilder(oemID, productID string, localAPICBase uint32) *Builder {
	return &Builder{
		OEMID:         oemID,
		ProductID:     productID,
		LocalAPICBase: localAPICBase,
		Revision:      MaxRevision,
	}
}

// AddProcessor appends a processor entry.
func (b *Builder) AddProcessor(apicID, apicVersion uint8, usable, boot bool, signature, features uint32) {
	var flags uint8
	if usable {
		flags |= ProcessorUsable
	}
	if boot {
		flags |= ProcessorBoot
	}

	b.put(&processorRecord{
		Type:        uint8(EntryProcessor),
		APICID:      apicID,
		APICVersion: apicVersion,
		Flags:       flags,
		Signature:   signature,
		Features:    features,
	})
}

// AddBus appends a bus entry.
func (b *Builder) AddBus(busID uint8, typ string) {
	rec := busRecord{Type: uint8(EntryBus), BusID: busID}
	padCopy(rec.TypeString[:], typ)
	b.put(&rec)
}

// AddIOAPIC appends an IO-APIC entry.
func (b *Builder) AddIOAPIC(id, version uint8, usable bool, address uint32) {
	var flags uint8
	if usable {
		flags = 1
	}

	b.put(&ioapicRecord{
		Type:    uint8(EntryIOAPIC),
		ID:      id,
		Version: version,
		Flags:   flags,
		Address: address,
	})
}

// AddIOInterrupt appends an IO interrupt assignment entry routing srcIRQ on
// srcBus to pin dstPin of IO-APIC dstID.
func (b *Builder) AddIOInterrupt(intType uint8, flags uint16, srcBus, srcIRQ, dstID, dstPin uint8) {
	b.put(&interruptRecord{
		Type:          uint8(EntryIOInterrupt),
		InterruptType: intType,
		Flags:         flags,
		SourceBus:     srcBus,
		SourceIRQ:     srcIRQ,
		Dest:          dstID,
		DestPin:       dstPin,
	})
}

// AddLocalInterrupt appends a local interrupt assignment entry routing srcIRQ
// on srcBus to LINTn pin dstLINT of local APIC dstID.
func (b *Builder) AddLocalInterrupt(intType uint8, flags uint16, srcBus, srcIRQ, dstID, dstLINT uint8) {
	b.put(&interruptRecord{
		Type:          uint8(EntryLocalInterrupt),
		InterruptType: intType,
		Flags:         flags,
		SourceBus:     srcBus,
		SourceIRQ:     srcIRQ,
		Dest:          dstID,
		DestPin:       dstLINT,
	})
}

// AddRaw appends an entry verbatim and counts it towards the entry count.
func (b *Builder) AddRaw(entry []byte) {
	b.entries.Write(entry)
	b.count++
}

// EntryCount returns the number of entries added so far.
func (b *Builder) EntryCount() int { return int(b.count) }

// Bytes returns the checksummed base table.
func (b *Builder) Bytes() []byte {
	hdr := configHeaderRecord{
		Signature:     configTableSignature,
		Length:        uint16(ConfigHeaderSize + b.entries.Len()),
		Revision:      b.Revision,
		EntryCount:    b.count,
		LocalAPICBase: b.LocalAPICBase,
	}
	padCopy(hdr.OEMID[:], b.OEMID)
	padCopy(hdr.ProductID[:], b.ProductID)

	var out bytes.Buffer
	out.Grow(int(hdr.Length))
	binary.Write(&out, binary.LittleEndian, &hdr)
	out.Write(b.entries.Bytes())

	table := out.Bytes()
	table[7] = -Checksum(table)
	return table
}

// NewFloatingPointer returns a checksummed floating pointer structure that
// references a configuration table at tablePhysAddr.
func NewFloatingPointer(tablePhysAddr uint32, revision uint8) []byte {
	rec := floatingPointerRecord{
		Signature: floatingPointerSignature,
		PhysPtr:   tablePhysAddr,
		Length:    1,
		Revision:  revision,
	}

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, &rec)

	fp := out.Bytes()
	fp[10] = -Checksum(fp)
	return fp
}

// put serializes a fixed-size entry record. Writes to a bytes.Buffer never
// fail.
func (b *Builder) put(rec interface{}) {
	binary.Write(&b.entries, binary.LittleEndian, rec)
	b.count++
}

// padCopy copies s into dst padding the remainder with spaces.
func padCopy(dst []byte, s string) {
	n := copy(dst, s)
	for ; n < len(dst); n++ {
		dst[n] = ' '
	}
}
