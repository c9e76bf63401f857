// mpdump prints the MultiProcessor Specification tables left in low memory
// by the firmware.
//
// Synopsis:
//	mpdump
//	mpdump --image FILE [--base ADDR]
//
// Without arguments mpdump maps the BIOS scan windows from /dev/mem, which
// usually requires root privileges. With --image it reads a raw memory image
// whose first byte sits at physical address ADDR (default 0xf0000), such as
// the ones written by mpgen.
//
// After the raw tables, mpdump shows the topology the kernel derives from
// them and every problem found while validating the tables.
package main

import (
	"io"
	"log"
	"os"

	flag "github.com/spf13/pflag"
)

var (
	image = flag.StringP("image", "i", "", "read a memory image instead of /dev/mem")
	base  = flag.Uint64P("base", "b", 0xf0000, "physical address of the first image byte")
)

func main() {
	flag.Parse()

	if flag.NArg() != 0 {
		log.Fatal("Usage: mpdump [--image FILE [--base ADDR]]")
	}

	if err := run(os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(w io.Writer) error {
	if *image != "" {
		data, err := os.ReadFile(*image)
		if err != nil {
			return err
		}

		mem := &imageMemory{base: int64(*base), data: data}
		return dump(w, mem, []window{{mem.base, mem.base + int64(len(data))}})
	}

	mem, err := openDevMem()
	if err != nil {
		return err
	}
	defer mem.Close()

	return dump(w, mem, biosWindows)
}
