// Package gpuctx holds the single hga.Driver/hga.GPU pair that
// every component of the command-processor core resolves against.
//
// The core never selects or opens a backend itself; the host GPU API
// is always an external collaborator. The outer emulator picks a
// driver (from hga.Drivers, or by constructing one directly) and
// calls Use before the command processor is created.
package gpuctx

import (
	"errors"
	"strings"
	"sync"

	"github.com/xenosgpu/gpucore/hga"
)

var (
	mu     sync.Mutex
	drv    hga.Driver
	gpu    hga.GPU
	limits hga.Limits
)

var errNoDriver = errors.New("gpuctx: no matching driver registered")

// Use installs drv as the active driver, opening it if it has not
// been opened already. Subsequent calls replace the active driver;
// callers are responsible for having torn down any state bound to
// the previous one.
func Use(drv hga.Driver) error {
	gpu, err := drv.Open()
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	setLocked(drv, gpu)
	return nil
}

// Load scans hga.Drivers for one whose name contains the given
// substring (case-sensitive; the empty string matches any driver)
// and opens the first one that succeeds.
func Load(name string) error {
	drivers := hga.Drivers()
	err := errNoDriver
	for _, d := range drivers {
		if !strings.Contains(d.Name(), name) {
			continue
		}
		var u hga.GPU
		if u, err = d.Open(); err != nil {
			continue
		}
		mu.Lock()
		setLocked(d, u)
		mu.Unlock()
		return nil
	}
	return err
}

func setLocked(d hga.Driver, u hga.GPU) {
	drv = d
	gpu = u
	limits = u.Limits()
}

// Driver returns the active hga.Driver, or nil if none is installed.
func Driver() hga.Driver {
	mu.Lock()
	defer mu.Unlock()
	return drv
}

// GPU returns the active hga.GPU, or nil if none is installed.
func GPU() hga.GPU {
	mu.Lock()
	defer mu.Unlock()
	return gpu
}

// Limits returns the implementation limits of the active GPU.
// The returned value is a snapshot taken when the driver was opened;
// it must not be mutated by callers.
func Limits() *hga.Limits {
	mu.Lock()
	defer mu.Unlock()
	return &limits
}
