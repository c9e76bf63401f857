// mpgen writes a memory image holding an MP floating pointer and the
// configuration table described by a YAML topology file.
//
// Synopsis:
//
//	mpgen -o IMAGE [--base ADDR] [--size BYTES] TOPOLOGY
//
// The image represents physical memory starting at ADDR (default 0xf0000).
// The floating pointer is placed at the start of the image and the
// configuration table right after it. The result can be inspected with
// mpdump --image IMAGE --base ADDR.
//
// Entries are emitted in the order processors, buses, IO-APICs, interrupts
// and local interrupts. The kernel matches the source bus of an interrupt
// against the position of the ISA bus entry, so its id should equal that
// position. An example topology:
//
//	oem: EDUOS
//	product: QEMU
//	processors:
//	  - {apic_id: 0, version: 0x14, boot: true}
//	  - {apic_id: 1, version: 0x14}
//	buses:
//	  - {id: 2, type: ISA}
//	ioapics:
//	  - {id: 2, version: 0x11, address: 0xfec00000}
//	interrupts:
//	  - {bus: 2, irq: 0, ioapic: 2, pin: 2}
package main

import (
	"log"
	"os"

	"github.com/jessevdk/go-flags"
)

type options struct {
	Output string   `short:"o" long:"output" description:"path of the image to write" required:"true"`
	Base   physAddr `short:"b" long:"base" description:"physical address of the first image byte" default:"0xf0000"`
	Size   int      `short:"s" long:"size" description:"image size in bytes; 0 sizes the image to fit the tables" default:"0"`

	Args struct {
		Topology string `positional-arg-name:"TOPOLOGY" description:"YAML topology file"`
	} `positional-args:"true" required:"true"`
}

func main() {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if err := run(&opts); err != nil {
		log.Fatal(err)
	}
}

func run(opts *options) error {
	topo, err := loadTopology(opts.Args.Topology)
	if err != nil {
		return err
	}

	img, err := buildImage(topo, uint32(opts.Base), opts.Size)
	if err != nil {
		return err
	}

	for _, warning := range img.warnings {
		log.Printf("warning: %v", warning)
	}

	return os.WriteFile(opts.Output, img.data, 0o644)
}
