package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/RusFjord/eduOS/device/mptable"
)

// topology describes the system that the generated configuration table
// advertises.
type topology struct {
	OEMID         string `yaml:"oem"`
	ProductID     string `yaml:"product"`
	LocalAPICBase uint32 `yaml:"local_apic"`
	Revision      uint8  `yaml:"revision"`

	Processors      []processor      `yaml:"processors"`
	Buses           []bus            `yaml:"buses"`
	IOAPICs         []ioapic         `yaml:"ioapics"`
	Interrupts      []interrupt      `yaml:"interrupts"`
	LocalInterrupts []localInterrupt `yaml:"local_interrupts"`
}

// processor is a processor entry. Processors are usable unless disabled.
type processor struct {
	APICID    uint8  `yaml:"apic_id"`
	Version   uint8  `yaml:"version"`
	Boot      bool   `yaml:"boot"`
	Disabled  bool   `yaml:"disabled"`
	Signature uint32 `yaml:"signature"`
	Features  uint32 `yaml:"features"`
}

type bus struct {
	ID   uint8  `yaml:"id"`
	Type string `yaml:"type"`
}

type ioapic struct {
	ID       uint8  `yaml:"id"`
	Version  uint8  `yaml:"version"`
	Address  uint32 `yaml:"address"`
	Disabled bool   `yaml:"disabled"`
}

// interrupt routes an IRQ of a bus to an IO-APIC pin.
type interrupt struct {
	Type   string `yaml:"type"`
	Flags  uint16 `yaml:"flags"`
	Bus    uint8  `yaml:"bus"`
	IRQ    uint8  `yaml:"irq"`
	IOAPIC uint8  `yaml:"ioapic"`
	Pin    uint8  `yaml:"pin"`
}

// localInterrupt routes an IRQ of a bus to a LINT pin of a local APIC.
type localInterrupt struct {
	Type      string `yaml:"type"`
	Flags     uint16 `yaml:"flags"`
	Bus       uint8  `yaml:"bus"`
	IRQ       uint8  `yaml:"irq"`
	LocalAPIC uint8  `yaml:"local_apic"`
	LINT      uint8  `yaml:"lint"`
}

var interruptTypes = map[string]uint8{
	"":       0,
	"INT":    0,
	"NMI":    1,
	"SMI":    2,
	"ExtINT": 3,
}

// loadTopology reads a topology description from a YAML file.
func loadTopology(path string) (*topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology file: %w", err)
	}

	return parseTopology(data)
}

// parseTopology decodes a YAML topology description and applies defaults.
func parseTopology(data []byte) (*topology, error) {
	var topo topology
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("parsing topology file: %w", err)
	}

	if topo.LocalAPICBase == 0 {
		topo.LocalAPICBase = mptable.DefaultLocalAPICBase
	}
	if topo.Revision == 0 {
		topo.Revision = mptable.MaxRevision
	}

	return &topo, nil
}

// table assembles the checksummed configuration table.
func (topo *topology) table() ([]byte, error) {
	b := mptable.NewBuilder(topo.OEMID, topo.ProductID, topo.LocalAPICBase)
	b.Revision = topo.Revision

	for _, p := range topo.Processors {
		b.AddProcessor(p.APICID, p.Version, !p.Disabled, p.Boot, p.Signature, p.Features)
	}
	for _, bs := range topo.Buses {
		b.AddBus(bs.ID, bs.Type)
	}
	for _, a := range topo.IOAPICs {
		b.AddIOAPIC(a.ID, a.Version, !a.Disabled, a.Address)
	}
	for i, irq := range topo.Interrupts {
		typ, ok := interruptTypes[irq.Type]
		if !ok {
			return nil, fmt.Errorf("interrupt %d: unknown interrupt type %q", i, irq.Type)
		}
		b.AddIOInterrupt(typ, irq.Flags, irq.Bus, irq.IRQ, irq.IOAPIC, irq.Pin)
	}
	for i, irq := range topo.LocalInterrupts {
		typ, ok := interruptTypes[irq.Type]
		if !ok {
			return nil, fmt.Errorf("local interrupt %d: unknown interrupt type %q", i, irq.Type)
		}
		b.AddLocalInterrupt(typ, irq.Flags, irq.Bus, irq.IRQ, irq.LocalAPIC, irq.LINT)
	}

	return b.Bytes(), nil
}
