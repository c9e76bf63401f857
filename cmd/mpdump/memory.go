package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// window is a physical address range [start, end) searched for the
// floating pointer.
type window struct {
	start, end int64
}

// biosWindows are the ranges the kernel scans at boot.
var biosWindows = []window{
	{0xf0000, 0x100000},
	{0x9f000, 0xa0000},
}

// imageMemory serves reads from a firmware image whose first byte sits at
// physical address base.
type imageMemory struct {
	base int64
	data []byte
}

// ReadAt implements io.ReaderAt over physical addresses.
func (m *imageMemory) ReadAt(p []byte, phys int64) (int, error) {
	off := phys - m.base
	if off < 0 || off >= int64(len(m.data)) {
		return 0, fmt.Errorf("physical address 0x%x is outside the image (0x%x-0x%x)", phys, m.base, m.base+int64(len(m.data)))
	}

	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// devMem reads physical memory by mapping the requested range of /dev/mem.
type devMem struct {
	f *os.File
}

func openDevMem() (*devMem, error) {
	f, err := os.Open("/dev/mem")
	if err != nil {
		return nil, fmt.Errorf("unable to open physical memory: %w", err)
	}
	return &devMem{f: f}, nil
}

// ReadAt implements io.ReaderAt over physical addresses.
func (m *devMem) ReadAt(p []byte, phys int64) (int, error) {
	pageSize := int64(unix.Getpagesize())
	start := phys &^ (pageSize - 1)

	mem, err := unix.Mmap(int(m.f.Fd()), start, int(phys-start)+len(p), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return 0, fmt.Errorf("mmap /dev/mem at 0x%x: %w", start, err)
	}
	defer unix.Munmap(mem)

	return copy(p, mem[phys-start:]), nil
}

func (m *devMem) Close() error {
	return m.f.Close()
}
