package vmm

import (
	"runtime"
	"testing"
	"unsafe"

	"github.com/RusFjord/eduOS/kernel"
	"github.com/RusFjord/eduOS/kernel/mm"
)

func TestNextAddrFn(t *testing.T) {
	if exp, got := uintptr(123), nextAddrFn(uintptr(123)); exp != got {
		t.Fatalf("expected nextAddrFn to return %v; got %v", exp, got)
	}
}

func TestPageTableEntryFlags(t *testing.T) {
	var (
		pte   pageTableEntry
		flag1 = PageTableEntryFlag(1 << 10)
		flag2 = PageTableEntryFlag(1 << 21)
	)

	if pte.HasFlags(flag1) {
		t.Fatal("expected HasFlags to return false")
	}

	pte.SetFlags(flag1 | flag2)
	if !pte.HasFlags(flag1 | flag2) {
		t.Fatal("expected HasFlags to return true")
	}

	pte.ClearFlags(flag1)
	if pte.HasFlags(flag1) || !pte.HasFlags(flag2) {
		t.Fatal("expected ClearFlags to only clear flag1")
	}

	pte.SetFrame(mm.Frame(0xfee00))
	if got := pte.Frame(); got != mm.Frame(0xfee00) {
		t.Fatalf("expected frame 0xfee00; got 0x%x", got)
	}
	if !pte.HasFlags(flag2) {
		t.Fatal("expected SetFrame to preserve the entry flags")
	}
}

func TestMapAmd64(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("test requires amd64 runtime; skipping")
	}

	defer func(origPtePtr func(uintptr) unsafe.Pointer, origNextAddrFn func(uintptr) uintptr, origFlushTLBEntryFn func(uintptr)) {
		ptePtrFn = origPtePtr
		nextAddrFn = origNextAddrFn
		flushTLBEntryFn = origFlushTLBEntryFn
		mm.SetFrameAllocator(nil)
	}(ptePtrFn, nextAddrFn, flushTLBEntryFn)

	var physPages [pageLevels][mm.PageSize >> mm.PointerShift]pageTableEntry
	nextPhysPage := 0

	// allocFn returns pages from index 1; we keep index 0 for the P4 entry
	mm.SetFrameAllocator(func() (mm.Frame, *kernel.Error) {
		nextPhysPage++
		pageAddr := unsafe.Pointer(&physPages[nextPhysPage][0])
		return mm.Frame(uintptr(pageAddr) >> mm.PageShift), nil
	})

	pteCallCount := 0
	ptePtrFn = func(entry uintptr) unsafe.Pointer {
		pteCallCount++
		pteIndex := (entry & uintptr(mm.PageSize-1)) >> mm.PointerShift
		return unsafe.Pointer(&physPages[pteCallCount-1][pteIndex])
	}

	nextAddrFn = func(entry uintptr) uintptr {
		return uintptr(unsafe.Pointer(&physPages[nextPhysPage][0]))
	}

	var flushedAddr uintptr
	flushTLBEntryCallCount := 0
	flushTLBEntryFn = func(addr uintptr) {
		flushedAddr = addr
		flushTLBEntryCallCount++
	}

	// The local APIC remap address 0x90000 breaks down to:
	// p4 index: 0
	// p3 index: 0
	// p2 index: 0
	// p1 index: 0x90
	var (
		page         = mm.PageFromAddress(0x90000)
		frame        = mm.FrameFromAddress(0xfee00000)
		levelIndices = []uint{0, 0, 0, 0x90}
	)

	if err := Map(page, frame, DeviceMappingFlags); err != nil {
		t.Fatal(err)
	}

	for level, physPage := range physPages {
		pte := physPage[levelIndices[level]]
		if !pte.HasFlags(FlagPresent | FlagRW) {
			t.Errorf("[pte at level %d] expected entry to have FlagPresent and FlagRW set", level)
		}

		switch {
		case level < pageLevels-1:
			if exp, got := mm.Frame(uintptr(unsafe.Pointer(&physPages[level+1][0]))>>mm.PageShift), pte.Frame(); got != exp {
				t.Errorf("[pte at level %d] expected entry frame to be %d; got %d", level, exp, got)
			}
		default:
			if got := pte.Frame(); got != frame {
				t.Errorf("[pte at level %d] expected entry frame to be %d; got %d", level, frame, got)
			}
			if !pte.HasFlags(FlagDoNotCache | FlagGlobal) {
				t.Errorf("[pte at level %d] expected device mapping flags to be set", level)
			}
		}
	}

	if exp := 1; flushTLBEntryCallCount != exp {
		t.Errorf("expected flushTLBEntry to be called %d times; got %d", exp, flushTLBEntryCallCount)
	}
	if flushedAddr != page.Address() {
		t.Errorf("expected flushTLBEntry to be called with 0x%x; got 0x%x", page.Address(), flushedAddr)
	}
}

func TestMapErrorsAmd64(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("test requires amd64 runtime; skipping")
	}

	defer func(origPtePtr func(uintptr) unsafe.Pointer, origNextAddrFn func(uintptr) uintptr, origFlushTLBEntryFn func(uintptr)) {
		ptePtrFn = origPtePtr
		nextAddrFn = origNextAddrFn
		flushTLBEntryFn = origFlushTLBEntryFn
		mm.SetFrameAllocator(nil)
	}(ptePtrFn, nextAddrFn, flushTLBEntryFn)

	var physPages [pageLevels][mm.PageSize >> mm.PointerShift]pageTableEntry

	ptePtrFn = func(entry uintptr) unsafe.Pointer {
		pteIndex := (entry & uintptr(mm.PageSize-1)) >> mm.PointerShift
		return unsafe.Pointer(&physPages[0][pteIndex])
	}
	flushTLBEntryFn = func(uintptr) {}

	t.Run("encounter huge page", func(t *testing.T) {
		physPages[0][0].SetFlags(FlagPresent | FlagHugePage)
		defer func() { physPages[0][0] = 0 }()

		if err := Map(mm.PageFromAddress(0), mm.Frame(1), FlagRW); err != errNoHugePageSupport {
			t.Fatalf("expected to get errNoHugePageSupport; got %v", err)
		}
	})

	t.Run("frame allocation fails", func(t *testing.T) {
		expErr := &kernel.Error{Module: "test", Message: "out of memory"}
		mm.SetFrameAllocator(func() (mm.Frame, *kernel.Error) {
			return mm.InvalidFrame, expErr
		})

		if err := Map(mm.PageFromAddress(0), mm.Frame(1), FlagRW); err != expErr {
			t.Fatalf("expected to get %v; got %v", expErr, err)
		}
	})

	t.Run("no frame allocator", func(t *testing.T) {
		mm.SetFrameAllocator(nil)

		err := Map(mm.PageFromAddress(0), mm.Frame(1), FlagRW)
		if !err.HasKind(kernel.KindInvalidState) {
			t.Fatalf("expected an invalid state error; got %v", err)
		}
	})
}

func TestIdentityMapRegion(t *testing.T) {
	defer func() {
		mapFn = Map
	}()

	t.Run("success", func(t *testing.T) {
		var mapped []mm.Page
		mapFn = func(page mm.Page, frame mm.Frame, flags PageTableEntryFlag) *kernel.Error {
			if uintptr(page) != uintptr(frame) {
				t.Errorf("expected identity mapping; got page %d -> frame %d", page, frame)
			}
			mapped = append(mapped, page)
			return nil
		}

		startPage, err := IdentityMapRegion(mm.FrameFromAddress(0xf0000), 4097, DeviceMappingFlags)
		if err != nil {
			t.Fatal(err)
		}

		if exp := mm.PageFromAddress(0xf0000); startPage != exp {
			t.Errorf("expected start page %d; got %d", exp, startPage)
		}

		if exp := 2; len(mapped) != exp {
			t.Errorf("expected Map to be called %d time(s); got %d", exp, len(mapped))
		}
	})

	t.Run("Map fails", func(t *testing.T) {
		expErr := &kernel.Error{Module: "test", Message: "map failed"}

		mapFn = func(_ mm.Page, _ mm.Frame, flags PageTableEntryFlag) *kernel.Error {
			return expErr
		}

		if _, err := IdentityMapRegion(mm.Frame(0xdf0000), 128000, FlagPresent|FlagRW); err != expErr {
			t.Fatalf("expected error: %v; got %v", expErr, err)
		}
	})
}

func TestUnmapAmd64(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("test requires amd64 runtime; skipping")
	}

	defer func(origPtePtr func(uintptr) unsafe.Pointer, origFlushTLBEntryFn func(uintptr)) {
		ptePtrFn = origPtePtr
		flushTLBEntryFn = origFlushTLBEntryFn
	}(ptePtrFn, flushTLBEntryFn)

	var (
		physPages [pageLevels][mm.PageSize >> mm.PointerShift]pageTableEntry
		frame     = mm.Frame(123)
	)

	// Emulate a page mapped to virtAddr 0 across all page levels
	for level := 0; level < pageLevels; level++ {
		physPages[level][0].SetFlags(FlagPresent | FlagRW)
		if level < pageLevels-1 {
			physPages[level][0].SetFrame(mm.Frame(uintptr(unsafe.Pointer(&physPages[level+1][0])) >> mm.PageShift))
		} else {
			physPages[level][0].SetFrame(frame)
		}
	}

	pteCallCount := 0
	ptePtrFn = func(entry uintptr) unsafe.Pointer {
		pteCallCount++
		return unsafe.Pointer(&physPages[pteCallCount-1][0])
	}

	flushTLBEntryCallCount := 0
	flushTLBEntryFn = func(uintptr) {
		flushTLBEntryCallCount++
	}

	if err := Unmap(mm.PageFromAddress(0)); err != nil {
		t.Fatal(err)
	}

	for level, physPage := range physPages {
		pte := physPage[0]

		switch {
		case level < pageLevels-1:
			if !pte.HasFlags(FlagPresent) {
				t.Errorf("[pte at level %d] expected entry to retain FlagPresent", level)
			}
		default:
			if pte.HasFlags(FlagPresent) {
				t.Errorf("[pte at level %d] expected entry not to have FlagPresent set", level)
			}
			if got := pte.Frame(); got != frame {
				t.Errorf("[pte at level %d] expected entry frame to be %d; got %d", level, frame, got)
			}
		}
	}

	if exp := 1; flushTLBEntryCallCount != exp {
		t.Errorf("expected flushTLBEntry to be called %d times; got %d", exp, flushTLBEntryCallCount)
	}
}

func TestUnmapErrorsAmd64(t *testing.T) {
	if runtime.GOARCH != "amd64" {
		t.Skip("test requires amd64 runtime; skipping")
	}

	defer func(origPtePtr func(uintptr) unsafe.Pointer) {
		ptePtrFn = origPtePtr
	}(ptePtrFn)

	var physPages [pageLevels][mm.PageSize >> mm.PointerShift]pageTableEntry

	ptePtrFn = func(entry uintptr) unsafe.Pointer {
		pteIndex := (entry & uintptr(mm.PageSize-1)) >> mm.PointerShift
		return unsafe.Pointer(&physPages[0][pteIndex])
	}

	t.Run("encounter huge page", func(t *testing.T) {
		physPages[0][0].SetFlags(FlagPresent | FlagHugePage)

		if err := Unmap(mm.PageFromAddress(0)); err != errNoHugePageSupport {
			t.Fatalf("expected to get errNoHugePageSupport; got %v", err)
		}
	})

	t.Run("virtual address not mapped", func(t *testing.T) {
		physPages[0][0].ClearFlags(FlagPresent)

		if err := Unmap(mm.PageFromAddress(0)); err != ErrInvalidMapping {
			t.Fatalf("expected to get ErrInvalidMapping; got %v", err)
		}
	})
}
