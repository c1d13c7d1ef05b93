package device

import (
	"io"
	"rvos/kernel"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprint.
	DriverInit(io.Writer) *kernel.Error
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it.
type ProbeFn func() Driver

// DetectOrder specifies when a driver is probed relative to the others.
type DetectOrder int8

// Supported detection stages.
const (
	// DetectOrderEarly is used by drivers whose output is needed by the
	// rest of the boot sequence, such as the console.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderNormal is the default stage.
	DetectOrderNormal DetectOrder = 0

	// DetectOrderLast is used by drivers that depend on other devices.
	DetectOrderLast DetectOrder = 127
)

// DriverInfo pairs a probe function with its detection stage.
type DriverInfo struct {
	Order DetectOrder
	Probe ProbeFn
}

// DriverInfoList is a list of drivers sortable by detection order.
type DriverInfoList []*DriverInfo

func (l DriverInfoList) Len() int           { return len(l) }
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }
func (l DriverInfoList) Swap(i, j int)      { l[i], l[j] = l[j], l[i] }
