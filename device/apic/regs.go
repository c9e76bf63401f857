package apic

// Local APIC register offsets.
const (
	regID                = 0x20
	regVersion           = 0x30
	regTPR               = 0x80
	regEOI               = 0xb0
	regSVR               = 0xf0
	regESR               = 0x280
	regLVTTimer          = 0x320
	regLVTThermal        = 0x330
	regLVTPerf           = 0x340
	regLVTLINT0          = 0x350
	regLVTLINT1          = 0x360
	regLVTError          = 0x370
	regTimerInitialCount = 0x380
	regTimerCurrentCount = 0x390
	regTimerDivide       = 0x3e0
)

// Interrupt vectors reserved by the local APIC.
const (
	TimerVector    = 123
	LINT0Vector    = 124
	LINT1Vector    = 125
	ErrorVector    = 126
	SpuriousVector = 127
)

const (
	// svrEnable software-enables the local APIC.
	svrEnable = 1 << 8

	lvtMasked   = 1 << 16
	lvtPeriodic = 1 << 17

	// timerDivideBy1 makes the timer count at the bus clock rate.
	timerDivideBy1 = 0xb

	timerMaxCount = 0xffffffff

	// minLVTEntries is the smallest LVT size the driver can work with.
	minLVTEntries = 3
)

// Model specific registers used for x2APIC mode.
const (
	msrAPICBase = 0x1b

	// x2APICEnable sets the global enable and x2APIC enable bits of the
	// APIC base MSR.
	x2APICEnable = 0xd00

	x2APICRegisterBase = 0x800
)

// IO-APIC registers. Offsets of ioRegSel and ioWin are relative to the
// IO-APIC base address; the rest are indices written to ioRegSel.
const (
	ioRegSel = 0x00
	ioWin    = 0x10

	ioapicRegVersion       = 0x01
	ioapicRegRedirectTable = 0x10

	// maxIOAPICLine is the highest line InterruptOn and InterruptOff accept.
	maxIOAPICLine = 24

	// irqVectorBase is the vector assigned to IO-APIC line 0.
	irqVectorBase = 0x20

	// pitCascadeLine is the line the legacy timer is wired to; it stays
	// masked once the local APIC timer takes over.
	pitCascadeLine = 2
)

// Legacy 8259 PIC ports and commands.
const (
	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xa0
	picSlaveData     = 0xa1
	picMaskAll       = 0xff
	picEOI           = 0x20
)

// calibrationTicks is the number of clock ticks the timer is measured over.
const calibrationTicks = 3
