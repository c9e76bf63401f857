package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/RusFjord/eduOS/device/mptable"
	"github.com/RusFjord/eduOS/device/mptable/check"
)

// physAddr is a 32-bit physical address flag accepting any Go integer
// literal syntax.
type physAddr uint32

// UnmarshalFlag implements flags.Unmarshaler.
func (a *physAddr) UnmarshalFlag(value string) error {
	v, err := strconv.ParseUint(value, 0, 32)
	if err != nil {
		return fmt.Errorf("invalid physical address %q: %w", value, err)
	}

	*a = physAddr(v)
	return nil
}

// Ranges scanned for the floating pointer at boot.
var scanRanges = [][2]uint64{
	{0xf0000, 0x100000},
	{0x9f000, 0xa0000},
}

var errUnaligned = errors.New("the image base must be 16-byte aligned")

type image struct {
	data []byte

	// warnings lists problems that do not prevent writing the image but
	// make the kernel ignore or misread the tables.
	warnings []error
}

// buildImage lays out the floating pointer at base and the configuration
// table right after it. A zero size fits the image to the tables.
func buildImage(topo *topology, base uint32, size int) (*image, error) {
	if base%mptable.FloatingPointerSize != 0 {
		return nil, errUnaligned
	}

	table, err := topo.table()
	if err != nil {
		return nil, err
	}

	need := mptable.FloatingPointerSize + len(table)
	if size == 0 {
		size = need
	}
	if size < need {
		return nil, fmt.Errorf("image size %d is too small for the tables (%d bytes)", size, need)
	}
	if uint64(base)+uint64(size) > 1<<32 {
		return nil, fmt.Errorf("image at 0x%x does not fit in 32-bit physical memory", base)
	}

	fp := mptable.NewFloatingPointer(base+mptable.FloatingPointerSize, topo.Revision)

	img := &image{data: make([]byte, size)}
	copy(img.data, fp)
	copy(img.data[mptable.FloatingPointerSize:], table)

	if !inScanRange(uint64(base)) {
		img.warnings = append(img.warnings, fmt.Errorf("floating pointer at 0x%x lies outside the ranges scanned at boot", base))
	}

	if err := check.Validate(fp, table); err != nil {
		if merr, ok := err.(*multierror.Error); ok {
			img.warnings = append(img.warnings, merr.Errors...)
		} else {
			img.warnings = append(img.warnings, err)
		}
	}

	return img, nil
}

func inScanRange(addr uint64) bool {
	for _, r := range scanRanges {
		if addr >= r[0] && addr+mptable.FloatingPointerSize <= r[1] {
			return true
		}
	}
	return false
}
