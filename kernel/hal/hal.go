// Package hal brings up the machine's devices and attaches the kernel log
// to the console.
package hal

import (
	"bytes"
	"rvos/device"
	"rvos/device/console"
	"rvos/kernel/kfmt"
	"sort"
)

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	activeConsole console.Device

	// activeDrivers tracks all initialized device drivers.
	activeDrivers []device.Driver
}

var (
	devices managedDevices
	strBuf  bytes.Buffer

	// logPrefix tags every kernel log line written to the console.
	logPrefix = []byte("[kernel] ")
)

// kfmtWriter forwards writes to kfmt.Printf so driver init output reaches
// the early buffer when no console is attached yet.
type kfmtWriter struct{}

func (kfmtWriter) Write(p []byte) (int, error) {
	kfmt.Printf("%s", p)
	return len(p), nil
}

// ActiveConsole returns the currently active console.
func ActiveConsole() console.Device {
	return devices.activeConsole
}

// DetectHardware probes the supplied drivers in detection order and
// initializes the ones that are present. Any previously detected devices are
// forgotten.
func DetectHardware(drivers device.DriverInfoList) {
	devices = managedDevices{}

	sorted := append(device.DriverInfoList(nil), drivers...)
	sort.Stable(sorted)

	probe(sorted)
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(driverInfoList device.DriverInfoList) {
	var w = kfmt.PrefixWriter{Sink: kfmtWriter{}}

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

		onDriverInit(drv)
		kfmt.Fprintf(&w, "initialized\n")
		devices.activeDrivers = append(devices.activeDrivers, drv)
	}
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized.
func onDriverInit(drv device.Driver) {
	switch drvImpl := drv.(type) {
	case console.Device:
		onConsoleInit(drvImpl)
	}
}

// onConsoleInit makes the first initialized console the active one and
// redirects the kernel log to it.
func onConsoleInit(cons console.Device) {
	if devices.activeConsole != nil {
		return
	}

	devices.activeConsole = cons
	kfmt.SetOutputSink(&kfmt.PrefixWriter{Sink: cons, Prefix: logPrefix})
}
