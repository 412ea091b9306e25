package internal

import (
	"os"
	"os/exec"
	"runtime"
)

// Device is the accelerator hint sent to the model server.
type Device string

const (
	// DeviceAuto defers the choice to OpenLibrary, which checks the host.
	DeviceAuto Device = "auto"
	DeviceMPS  Device = "mps"
	DeviceCUDA Device = "cuda"
	DeviceCPU  Device = "cpu"
)

// Known reports whether d is empty or one of the named devices.
func (d Device) Known() bool {
	switch d {
	case "", DeviceAuto, DeviceMPS, DeviceCUDA, DeviceCPU:
		return true
	}
	return false
}

// Resolve turns an empty or auto device into the accelerator found on this
// host. Explicit devices are returned as given.
func (d Device) Resolve() Device {
	if d == "" || d == DeviceAuto {
		return DetectHardware()
	}
	return d
}

// DetectHardware picks the first accelerator available on this host.
func DetectHardware() Device {
	switch {
	case hasMPS():
		return DeviceMPS
	case hasCUDA():
		return DeviceCUDA
	}
	return DeviceCPU
}

func hasMPS() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}

func hasCUDA() bool {
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	_, err := exec.LookPath("nvidia-smi")
	return err == nil
}

// DefaultLoadWorkers is the number of photos decoded concurrently per batch.
func DefaultLoadWorkers() int {
	return min(max(runtime.NumCPU(), 2), 16)
}
