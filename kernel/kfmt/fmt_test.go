package kfmt

import (
	"bytes"
	"io"
	"testing"
)

func TestPrintf(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	// mute vet warnings about malformed printf formatting strings
	printfn := Printf

	specs := []struct {
		fn        func()
		expOutput string
	}{
		{
			func() { printfn("no args") },
			"no args",
		},
		{
			func() { printfn("%t %t", true, false) },
			"true false",
		},
		{
			func() { printfn("%s arg", "STRING") },
			"STRING arg",
		},
		{
			func() { printfn("%s arg", []byte("BYTE SLICE")) },
			"BYTE SLICE arg",
		},
		{
			func() { printfn("'%4s' arg with padding", "ABC") },
			"' ABC' arg with padding",
		},
		{
			func() { printfn("uint arg: %d", uint8(10)) },
			"uint arg: 10",
		},
		{
			func() { printfn("uint arg: %o", uint16(0777)) },
			"uint arg: 777",
		},
		{
			func() { printfn("ICR of 0x%x", uint32(0xbadf00d)) },
			"ICR of 0xbadf00d",
		},
		{
			func() { printfn("APIC at 0x%8x", uintptr(0x90000)) },
			"APIC at 0x00090000",
		},
		{
			func() { printfn("'%10d'", uint64(123)) },
			"'       123'",
		},
		{
			func() { printfn("'%5d'", -12) },
			"'  -12'",
		},
		{
			func() { printfn("'%d'", int64(-1234)) },
			"'-1234'",
		},
		{
			func() { printfn("'%4x'", int32(-1)) },
			"'-0001'",
		},
		{
			func() { printfn("100%%") },
			"100%",
		},
		// errors
		{
			func() { printfn("missing %d") },
			"missing (MISSING)",
		},
		{
			func() { printfn("wrong %d", "type") },
			"wrong %!(WRONGTYPE)",
		},
		{
			func() { printfn("wrong %t", 1) },
			"wrong %!(WRONGTYPE)",
		},
		{
			func() { printfn("wrong %s", 1) },
			"wrong %!(WRONGTYPE)",
		},
		{
			func() { printfn("no verb %4") },
			"no verb %!(NOVERB)",
		},
		{
			func() { printfn("bad verb %y.") },
			"bad verb %!(NOVERB).",
		},
		{
			func() { printfn("extra", 1, 2) },
			"extra%!(EXTRA)%!(EXTRA)",
		},
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	for specIndex, spec := range specs {
		buf.Reset()
		spec.fn()

		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected to get %q; got %q", specIndex, spec.expOutput, got)
		}
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "Found %d cores", 4)

	if exp, got := "Found 4 cores", buf.String(); got != exp {
		t.Fatalf("expected to get %q; got %q", exp, got)
	}
}

func TestPrintfToRingBuffer(t *testing.T) {
	defer func() {
		outputSink = nil
		earlyPrintBuffer = ringBuffer{}
	}()

	outputSink = nil
	earlyPrintBuffer = ringBuffer{}

	Printf("early %s", "output")

	if got := GetOutputSink(); got != nil {
		t.Fatalf("expected no output sink; got %v", got)
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if exp, got := "early output", buf.String(); got != exp {
		t.Fatalf("expected SetOutputSink to flush %q; got %q", exp, got)
	}

	if got := GetOutputSink(); got != io.Writer(&buf) {
		t.Fatal("expected GetOutputSink to return the attached sink")
	}
}
