package vmm

import "math"

const (
	// pageLevels indicates the number of page levels supported by the amd64 architecture.
	pageLevels = 4

	// ptePhysPageMask extracts the physical frame address (bits 12-51)
	// from a page table entry.
	ptePhysPageMask = uintptr(0x000ffffffffff000)
)

var (
	// pdtVirtualAddr exploits the recursive mapping installed in the last
	// P4 entry: with all index bits set to 1 the MMU keeps following the
	// last P4 entry and lands on the P4 table itself.
	pdtVirtualAddr = uintptr(math.MaxUint64 &^ ((1 << 12) - 1))

	// pageLevelBits defines the number of virtual address bits used to
	// index the table at each page level.
	pageLevelBits = [pageLevels]uint8{9, 9, 9, 9}

	// pageLevelShifts defines the shift required to access each page
	// table component of a virtual address.
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
)

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and
	// write-back caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set. Pages
	// backed by device registers must always set it.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set when using 2Mb pages instead of 4K pages.
	FlagHugePage

	// FlagGlobal prevents the TLB entry for this page from being flushed
	// when CR3 is reloaded.
	FlagGlobal

	// FlagNoExecute if set, indicates that a page contains non-executable code.
	FlagNoExecute = 1 << 63
)

// DeviceMappingFlags is the flag set used for pages that expose memory-mapped
// hardware registers or firmware tables.
const DeviceMappingFlags = FlagPresent | FlagRW | FlagDoNotCache | FlagGlobal
