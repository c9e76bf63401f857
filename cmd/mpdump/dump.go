package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/RusFjord/eduOS/device/mptable"
	"github.com/RusFjord/eduOS/device/mptable/check"
)

var errNotFound = errors.New("no MP floating pointer found")

// locate scans the windows in order and returns the physical address and
// contents of the first acceptable floating pointer.
func locate(mem io.ReaderAt, windows []window) (int64, mptable.FloatingPointer, error) {
	for _, w := range windows {
		buf := make([]byte, w.end-w.start)
		n, err := mem.ReadAt(buf, w.start)
		if err != nil && err != io.EOF {
			return 0, nil, fmt.Errorf("unable to read window 0x%x-0x%x: %w", w.start, w.end, err)
		}

		if off, ok := mptable.Scan(buf[:n]); ok {
			return w.start + int64(off), mptable.FloatingPointer(buf[off : off+mptable.FloatingPointerSize]), nil
		}
	}

	return 0, nil, errNotFound
}

// readTable reads the configuration table at phys including its extended
// entries. A table that runs past the readable memory is returned truncated.
func readTable(mem io.ReaderAt, phys int64) ([]byte, error) {
	hdr := make([]byte, mptable.ConfigHeaderSize)
	if _, err := mem.ReadAt(hdr, phys); err != nil {
		return nil, fmt.Errorf("unable to read the config table header at 0x%x: %w", phys, err)
	}

	size := int(mptable.ConfigHeader(hdr).BaseTableLength()) + int(mptable.ConfigHeader(hdr).ExtendedTableLength())
	if size <= mptable.ConfigHeaderSize {
		return hdr, nil
	}

	table := make([]byte, size)
	n, err := mem.ReadAt(table, phys)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("unable to read the config table at 0x%x: %w", phys, err)
	}
	return table[:n], nil
}

// dump locates, prints and validates the MP tables. It returns the
// validation problems, if any, after everything has been printed.
func dump(w io.Writer, mem io.ReaderAt, windows []window) error {
	fpAddr, fp, err := locate(mem, windows)
	if err != nil {
		if err == errNotFound {
			fmt.Fprintln(w, "no MP floating pointer found; the kernel assumes a uniprocessor system")
		}
		return err
	}

	printFloatingPointer(w, fpAddr, fp)

	if fp.TablePointer() == 0 {
		fmt.Fprintln(w, "no config table referenced; the kernel assumes a uniprocessor system")
		return check.FloatingPointer(fp)
	}

	tbl, err := readTable(mem, int64(fp.TablePointer()))
	if err != nil {
		return err
	}

	if len(tbl) > mptable.ConfigHeaderSize {
		printHeader(w, fp.TablePointer(), tbl)
		printEntries(w, tbl)
	}
	printTopology(w, fp, tbl)

	return printProblems(w, check.Validate(fp, tbl))
}

func printFloatingPointer(w io.Writer, addr int64, fp mptable.FloatingPointer) {
	t := newTable(w, "MP Floating Pointer")
	t.AppendHeader(table.Row{"Address", "Config Table", "Revision", "Checksum", "Features"})
	t.AppendRow(table.Row{
		fmt.Sprintf("0x%x", addr),
		fmt.Sprintf("0x%x", fp.TablePointer()),
		fmt.Sprintf("1.%d", fp.Revision()),
		fmt.Sprintf("0x%02x", fp.Checksum()),
		fmt.Sprintf("% x", fp.Features()),
	})
	t.Render()
}

func printHeader(w io.Writer, addr uint32, tbl []byte) {
	hdr := mptable.ConfigHeader(tbl)

	t := newTable(w, "MP Config Table")
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"Address", fmt.Sprintf("0x%x", addr)},
		{"OEM ID", string(bytes.TrimRight(hdr.OEMID(), " \x00"))},
		{"Product ID", string(bytes.TrimRight(hdr.ProductID(), " \x00"))},
		{"Revision", fmt.Sprintf("1.%d", hdr.Revision())},
		{"Base Table Length", sizeString(int(hdr.BaseTableLength()))},
		{"Entries", hdr.EntryCount()},
		{"Local APIC", fmt.Sprintf("0x%x", hdr.LocalAPICBase())},
		{"OEM Table", fmt.Sprintf("0x%x (%s)", hdr.OEMTablePointer(), sizeString(int(hdr.OEMTableSize())))},
		{"Extended Table Length", sizeString(int(hdr.ExtendedTableLength()))},
	})
	t.Render()
}

func printEntries(w io.Writer, tbl []byte) {
	var (
		procs  = newTable(w, "Processors")
		buses  = newTable(w, "Buses")
		ioapic = newTable(w, "IO-APICs")
		ioints = newTable(w, "I/O Interrupt Assignments")
		lints  = newTable(w, "Local Interrupt Assignments")
		other  int
	)

	procs.AppendHeader(table.Row{"#", "APIC ID", "Version", "Usable", "Boot", "Signature", "Features"})
	buses.AppendHeader(table.Row{"#", "Bus ID", "Type"})
	ioapic.AppendHeader(table.Row{"#", "ID", "Version", "Usable", "Address"})
	ioints.AppendHeader(table.Row{"#", "Type", "Flags", "Bus", "IRQ", "IO-APIC", "Pin"})
	lints.AppendHeader(table.Row{"#", "Type", "Flags", "Bus", "IRQ", "Local APIC", "LINT"})

	mptable.Walk(tbl, func(index int, e mptable.Entry) {
		switch e.Type() {
		case mptable.EntryProcessor:
			p := mptable.ProcessorEntry(e)
			procs.AppendRow(table.Row{index, p.APICID(), fmt.Sprintf("0x%02x", p.APICVersion()), p.Usable(), p.BootProcessor(),
				fmt.Sprintf("0x%x", p.Signature()), fmt.Sprintf("0x%08x", p.FeatureFlags())})
		case mptable.EntryBus:
			b := mptable.BusEntry(e)
			buses.AppendRow(table.Row{index, b.BusID(), string(bytes.TrimRight(b.TypeString(), " \x00"))})
		case mptable.EntryIOAPIC:
			a := mptable.IOAPICEntry(e)
			ioapic.AppendRow(table.Row{index, a.ID(), fmt.Sprintf("0x%02x", a.Version()), a.Usable(), fmt.Sprintf("0x%x", a.Address())})
		case mptable.EntryIOInterrupt:
			i := mptable.IOInterruptEntry(e)
			ioints.AppendRow(table.Row{index, interruptTypeName(i.InterruptType()), fmt.Sprintf("0x%x", i.Flags()),
				i.SourceBus(), i.SourceIRQ(), i.DestIOAPIC(), i.DestPin()})
		case mptable.EntryLocalInterrupt:
			l := mptable.LocalInterruptEntry(e)
			lints.AppendRow(table.Row{index, interruptTypeName(l.InterruptType()), fmt.Sprintf("0x%x", l.Flags()),
				l.SourceBus(), l.SourceIRQ(), l.DestLocalAPIC(), l.DestLINT()})
		default:
			other++
		}
	})

	for _, t := range []table.Writer{procs, buses, ioapic, ioints, lints} {
		if t.Length() > 0 {
			t.Render()
		}
	}

	if other > 0 {
		fmt.Fprintf(w, "%d entries of unknown type skipped\n", other)
	}
}

// printTopology shows what the kernel parser derives from the tables.
func printTopology(w io.Writer, fp mptable.FloatingPointer, tbl []byte) {
	topo, kerr := mptable.Parse(fp, tbl)
	if kerr != nil {
		fmt.Fprintf(w, "the kernel ignores this table (%s) and assumes a uniprocessor system\n", kerr.Message)
		return
	}

	boot := "none"
	if id, ok := topo.BootAPICID(); ok {
		boot = fmt.Sprintf("%d (APIC id %d)", topo.BootProcessor, id)
	}

	isa := "none"
	if topo.ISABus >= 0 {
		isa = fmt.Sprintf("%d", topo.ISABus)
	}

	ioapic := "none"
	if topo.IOAPIC != nil {
		ioapic = fmt.Sprintf("%d at 0x%x", topo.IOAPIC.ID(), topo.IOAPIC.Address())
	}

	t := newTable(w, "Kernel View")
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"Cores", topo.ProcessorCount},
		{"Boot Processor", boot},
		{"ISA Bus Entry", isa},
		{"IO-APIC", ioapic},
	})
	t.Render()

	hdr, row := table.Row{"ISA IRQ"}, table.Row{"IO-APIC Pin"}
	for irq, pin := range topo.IRQRedirect {
		hdr = append(hdr, irq)
		row = append(row, pin)
	}

	r := newTable(w, "ISA IRQ Redirects")
	r.AppendHeader(hdr)
	r.AppendRow(row)
	r.Render()
}

// printProblems lists every validation problem and passes err through.
func printProblems(w io.Writer, err error) error {
	if err == nil {
		fmt.Fprintln(w, "no problems found")
		return nil
	}

	t := newTable(w, "Problems")
	t.AppendHeader(table.Row{"#", "Problem"})

	var merr *multierror.Error
	if errors.As(err, &merr) {
		for i, e := range merr.Errors {
			t.AppendRow(table.Row{i, e.Error()})
		}
	} else {
		t.AppendRow(table.Row{0, err.Error()})
	}
	t.Render()

	return err
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	return t
}

func sizeString(n int) string {
	return fmt.Sprintf("%d (%s)", n, humanize.IBytes(uint64(n)))
}

var interruptTypes = []string{"INT", "NMI", "SMI", "ExtINT"}

func interruptTypeName(typ uint8) string {
	if int(typ) < len(interruptTypes) {
		return interruptTypes[typ]
	}
	return fmt.Sprintf("unknown (%d)", typ)
}
