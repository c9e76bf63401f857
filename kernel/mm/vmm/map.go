// Package vmm manages the active page directory. Device drivers use it to
// expose memory-mapped registers and firmware tables to the kernel.
package vmm

import (
	"unsafe"

	"github.com/RusFjord/eduOS/kernel"
	"github.com/RusFjord/eduOS/kernel/cpu"
	"github.com/RusFjord/eduOS/kernel/mm"
)

var (
	// mapFn is used by IdentityMapRegion; tests override it to avoid
	// touching real page tables.
	mapFn = Map

	// nextAddrFn is used by used by tests to override the nextTableAddr
	// calculations used by Map.
	nextAddrFn = func(entryAddr uintptr) uintptr {
		return entryAddr
	}

	// flushTLBEntryFn is used by tests to override calls to flushTLBEntry
	// which will cause a fault if called in user-mode.
	flushTLBEntryFn = cpu.FlushTLBEntry

	// ErrInvalidMapping is returned when trying to unmap a page that is
	// not backed by a page table.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page", Kind: kernel.KindInvalidArgument}

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported", Kind: kernel.KindInvalidState}
)

// Map establishes a mapping between a virtual page and a physical memory frame
// using the currently active page directory table. Missing page tables at each
// paging level are allocated with mm.AllocFrame and cleared.
//
// Mapping a page that is already mapped overwrites the previous mapping.
func Map(page mm.Page, frame mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags)
			flushTLBEntryFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		if !pte.HasFlags(FlagPresent) {
			var newTableFrame mm.Frame
			newTableFrame, err = mm.AllocFrame()
			if err != nil {
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW)

			nextTableAddr := (uintptr(unsafe.Pointer(pte)) << pageLevelBits[pteLevel+1])
			clearPage(nextAddrFn(nextTableAddr))
		}

		return true
	})

	return err
}

// IdentityMapRegion establishes an identity mapping to the physical memory
// region which starts at the given frame and ends at frame + pages(size). The
// size argument is always rounded up to the nearest page boundary.
// IdentityMapRegion returns back the Page that corresponds to the region
// start.
func IdentityMapRegion(startFrame mm.Frame, size uintptr, flags PageTableEntryFlag) (mm.Page, *kernel.Error) {
	startPage := mm.Page(startFrame)
	pageCount := mm.Page(((size + (mm.PageSize - 1)) &^ (mm.PageSize - 1)) >> mm.PageShift)

	for curPage := startPage; curPage < startPage+pageCount; curPage++ {
		if err := mapFn(curPage, mm.Frame(curPage), flags); err != nil {
			return 0, err
		}
	}

	return startPage, nil
}

// Unmap removes a mapping previously installed via a call to Map.
func Unmap(page mm.Page) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			pte.ClearFlags(FlagPresent)
			flushTLBEntryFn(page.Address())
			return true
		}

		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	return err
}

// clearPage zeroes the page starting at addr.
func clearPage(addr uintptr) {
	words := (*[mm.PageSize >> mm.PointerShift]uintptr)(unsafe.Pointer(addr))
	for i := range words {
		words[i] = 0
	}
}
