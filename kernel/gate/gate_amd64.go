package gate

import (
	"io"

	"github.com/RusFjord/eduOS/kernel/kfmt"
)

// Registers contains a snapshot of all register values when an exception,
// interrupt or syscall occurs.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// Info contains the exception code for exceptions or the vector
	// number for HW interrupts.
	Info uint64

	// The return frame used by IRETQ
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", r.RIP, r.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", r.RSP, r.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", r.RFlags)
}

// InterruptNumber describes an x86 interrupt/exception/trap slot.
type InterruptNumber uint8

const (
	// DoubleFault occurs when an unhandled exception occurs or when an
	// exception occurs within a running exception handler.
	DoubleFault = InterruptNumber(8)

	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException occurs when a page directory table (PDT) or one
	// of its entries is not present or when a privilege and/or RW
	// protection check fails.
	PageFaultException = InterruptNumber(14)

	// IRQBase is the first vector used by hardware interrupt lines. Legacy
	// ISA line n is delivered on IRQBase+n.
	IRQBase = InterruptNumber(32)

	// TimerIRQ is the vector of the programmable interval timer.
	TimerIRQ = IRQBase
)

var (
	handlers [256]func(*Registers)

	// irqEpilogue runs after the handler of every hardware interrupt; the
	// interrupt controller driver uses it to signal end of interrupt.
	irqEpilogue func()
)

// HandleInterrupt ensures that the provided handler will be invoked when a
// particular interrupt number occurs. The value of the istOffset argument
// specifies the offset in the interrupt stack table (if 0 then IST is not
// used). Installing a handler replaces any previous one.
func HandleInterrupt(intNumber InterruptNumber, istOffset uint8, handler func(*Registers)) {
	handlers[intNumber] = handler
}

// SetIRQEpilogue registers fn to run after every interrupt at or above
// IRQBase has been handled.
func SetIRQEpilogue(fn func()) {
	irqEpilogue = fn
}

// DispatchInterrupt is invoked by the interrupt gate entrypoints to route an
// incoming interrupt to the selected handler. The vector number is read from
// regs.Info. It returns false if no handler is installed for the vector.
func DispatchInterrupt(regs *Registers) bool {
	intNumber := InterruptNumber(regs.Info)

	handler := handlers[intNumber]
	if handler != nil {
		handler(regs)
	}

	if intNumber >= IRQBase && irqEpilogue != nil {
		irqEpilogue()
	}

	return handler != nil
}
