// Package registry models the process-wide linker map registry as an
// explicit LoaderContext passed by reference to every core operation,
// instead of a hard-coded absolute address. BootstrapAddress documents
// where a bootstrap shim would still write this data at process start;
// nothing in this module dereferences it.
package registry

import "sync"

// BootstrapAddress is the well-known absolute address a bootstrap shim
// writes a serialized LoaderContext to during initial process setup,
// before any Go code runs. It is kept only as documentation of that
// contract — every operation in this module takes a *LoaderContext
// explicitly instead of reading this address.
const BootstrapAddress uintptr = 0x6e4ff000

// MapEntry records a well-known mapping's placement once established.
type MapEntry struct {
	Addr uintptr
	Size uintptr
}

// LoaderContext is the process-wide registry of well-known address-space
// regions, extended by each loader that runs in the process. The first
// loader to run initialises it; subsequent loaders read and extend it.
// Loads themselves are assumed to be serialised by the caller; the mutex
// here only guards concurrent reads from collaborators that are not
// themselves serialising loads (e.g. a diagnostics tool inspecting state
// mid-load).
type LoaderContext struct {
	mu sync.Mutex

	PreLinker  MapEntry
	HostLinker MapEntry
	GuestLinker MapEntry
	GuestLibc  MapEntry
	HostLibs   MapEntry

	// LastAddr is the cursor past the highest well-known mapping placed so
	// far; SeccompInstaller's Stage A trusted-region check is
	// [PreLinker.Addr, LastAddr).
	LastAddr uintptr

	// seccompInstalled is set once SeccompInstaller succeeds; later
	// WellKnownName reservations read it and skip reinstalling, since the
	// filter is meant to be attached at most once per process.
	seccompInstalled bool
}

// New returns an empty LoaderContext. Call sites that have a bootstrap
// shim populate PreLinker/HostLinker themselves before the first load;
// this constructor never reads BootstrapAddress.
func New() *LoaderContext {
	return &LoaderContext{}
}

// SetGuestLibc records the guest libc's actual placement after a
// WellKnownName("libc.so") reservation succeeds, and advances LastAddr if
// the new mapping extends past it.
func (c *LoaderContext) SetGuestLibc(addr, size uintptr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GuestLibc = MapEntry{Addr: addr, Size: size}
	if end := addr + size; end > c.LastAddr {
		c.LastAddr = end
	}
}

// GuestLibcHint returns the current guest libc placement hint, used by
// Reserver as the WellKnownName("libc.so") target address.
func (c *LoaderContext) GuestLibcHint() MapEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.GuestLibc
}

// SeccompInstalled reports whether SeccompInstaller has already run in
// this process.
func (c *LoaderContext) SeccompInstalled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seccompInstalled
}

// MarkSeccompInstalled records that SeccompInstaller has run. Idempotent.
func (c *LoaderContext) MarkSeccompInstalled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seccompInstalled = true
}

// TrustedRegion returns the [start, end) address range Stage A of the
// seccomp filter whitelists unconditionally: the pre-linker/host-linker/
// guest-linker/guest-libc/host-libs region the bootstrap shim and prior
// loaders have already placed.
func (c *LoaderContext) TrustedRegion() (start, end uintptr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PreLinker.Addr, c.LastAddr
}
