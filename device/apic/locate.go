package apic

import (
	"unsafe"

	"github.com/RusFjord/eduOS/device/mptable"
	"github.com/RusFjord/eduOS/kernel"
	"github.com/RusFjord/eduOS/kernel/mm"
	"github.com/RusFjord/eduOS/kernel/mm/vmm"
)

// scanWindow is a half-open physical address range searched for the MP
// floating pointer.
type scanWindow struct {
	start, end uintptr
}

var (
	// The floating pointer lives either in the BIOS ROM area or in the last
	// KiB of base memory. Windows are searched in order.
	scanWindows = []scanWindow{
		{start: 0xf0000, end: 0x100000},
		{start: 0x9f000, end: 0xa0000},
	}
)

// pageCursor reads physical memory through a single identity mapped page.
// Touching an address on a different page unmaps the current page before
// mapping the new one. A candidate straddling a page boundary therefore maps
// the next page and the scan maps the previous one again right after; at most
// one page is mapped at any time.
type pageCursor struct {
	page   mm.Page
	mapped bool
}

func (c *pageCursor) byteAt(addr uintptr) (byte, *kernel.Error) {
	if page := mm.PageFromAddress(addr); !c.mapped || page != c.page {
		c.release()
		if err := mapFn(page, mm.Frame(page), vmm.FlagPresent); err != nil {
			return 0, err
		}
		c.page, c.mapped = page, true
	}

	return *(*byte)(unsafe.Pointer(addr)), nil
}

// release unmaps the page held by the cursor, if any.
func (c *pageCursor) release() {
	if c.mapped {
		_ = unmapFn(c.page)
		c.mapped = false
	}
}

// locateFloatingPointer scans the windows in scanWindows byte by byte for an
// acceptable MP floating pointer. It returns the physical address of the
// structure and a copy of its contents. A missing pointer is reported with
// found set to false; err is only set if a scan page could not be mapped.
func locateFloatingPointer() (addr uintptr, fp [mptable.FloatingPointerSize]byte, found bool, err *kernel.Error) {
	var cursor pageCursor
	defer cursor.release()

	for _, window := range scanWindows {
		for cur := window.start; cur+mptable.FloatingPointerSize <= window.end; cur++ {
			var b byte
			if b, err = cursor.byteAt(cur); err != nil {
				return 0, fp, false, err
			}

			if b != '_' {
				continue
			}

			for i := range fp {
				if fp[i], err = cursor.byteAt(cur + uintptr(i)); err != nil {
					return 0, fp, false, err
				}
			}

			if mptable.FloatingPointer(fp[:]).Acceptable() {
				return cur, fp, true, nil
			}
		}
	}

	return 0, [mptable.FloatingPointerSize]byte{}, false, nil
}
