// Package hga defines the thin host-GPU abstraction that the command
// processor core speaks to. It is deliberately narrow: resource
// creation, queue submission, fences, descriptor tables and the
// handful of command-list opcodes the core needs to record. A
// concrete implementation (Direct3D 12, Vulkan, or any API exposing
// explicit barriers and fences) lives outside this module and
// registers itself with Register.
package hga

import (
	"errors"
	"log"
	"sync"
)

// Driver loads and unloads a concrete backend.
type Driver interface {
	// Open initializes the driver. Further calls on an already-open
	// Driver have no effect and return the same GPU.
	Open() (GPU, error)

	// Name identifies the driver. It must not open it.
	Name() string

	// Close deinitializes the driver. Closing a driver that is not
	// open has no effect.
	Close()
}

// Sentinel errors a Driver may return from Open.
var (
	ErrNotInstalled  = errors.New("hga: required host library not present")
	ErrNoDevice      = errors.New("hga: no suitable device found")
	ErrNoHostMemory  = errors.New("hga: out of host memory")
	ErrNoDeviceMemory = errors.New("hga: out of device memory")

	// ErrDeviceRemoved means the backend is in an unrecoverable
	// state. The command processor sets its sticky device-removed
	// flag when any call returns this error.
	ErrDeviceRemoved = errors.New("hga: device removed")
)

var (
	mu      sync.Mutex
	drivers []Driver
)

// Drivers returns the registered drivers.
func Drivers() []Driver {
	mu.Lock()
	defer mu.Unlock()
	out := make([]Driver, len(drivers))
	copy(out, drivers)
	return out
}

// Register registers a Driver, replacing any previous registration
// under the same name. Backend packages call this from an init
// function.
func Register(drv Driver) {
	mu.Lock()
	defer mu.Unlock()
	for i := range drivers {
		if drivers[i].Name() == drv.Name() {
			drivers[i] = drv
			log.Printf("hga: driver %q replaced", drv.Name())
			return
		}
	}
	drivers = append(drivers, drv)
}

// Destroyer is implemented by types backed by external memory that
// the garbage collector does not manage; Destroy must be called
// explicitly.
type Destroyer interface {
	Destroy()
}
