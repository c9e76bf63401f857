// Package hal probes the registered device drivers and keeps track of the
// ones that were successfully initialized.
package hal

import (
	"bytes"
	"sort"

	"github.com/RusFjord/eduOS/device"
	"github.com/RusFjord/eduOS/kernel/kfmt"
)

var (
	// activeDrivers tracks all initialized device drivers.
	activeDrivers []device.Driver

	strBuf bytes.Buffer
)

// ActiveDrivers returns the drivers initialized by DetectHardware in the
// order they were initialized.
func ActiveDrivers() []device.Driver {
	return activeDrivers
}

// DetectHardware probes for hardware devices and initializes the appropriate
// drivers.
func DetectHardware() {
	// Get driver list and sort by detection priority
	drivers := device.DriverList()
	sort.Sort(drivers)

	probe(drivers)
}

// probe executes the probe function for each driver and initializes the
// drivers whose hardware is present.
func probe(driverInfoList device.DriverInfoList) {
	var w = kfmt.PrefixWriter{Sink: kfmt.GetOutputSink()}
	if w.Sink == nil {
		w.Sink = earlySink{}
	}

	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&w, "initialized\n")
		activeDrivers = append(activeDrivers, drv)
	}
}

// earlySink forwards driver output to kfmt.Printf so that it ends up in the
// early print buffer while no output sink is attached.
type earlySink struct{}

func (earlySink) Write(p []byte) (int, error) {
	kfmt.Printf("%s", p)
	return len(p), nil
}
