package vmspace

import (
	"strings"

	"golang.org/x/sys/unix"

	"github.com/xyproto/elfload/elferr"
	"github.com/xyproto/elfload/filewindow"
	"github.com/xyproto/elfload/registry"
	"github.com/xyproto/elfload/seccomp"
)

// ReservationPolicyKind is the closed set of placement strategies a
// collaborator can ask Reserve for.
type ReservationPolicyKind int

const (
	None ReservationPolicyKind = iota
	Hint
	Fixed
	WellKnownName
)

// ReservationPolicy selects where Reserve places the anonymous PROT_NONE
// reservation.
type ReservationPolicy struct {
	Kind ReservationPolicyKind
	Addr uintptr // Hint, Fixed
	Size uintptr // Fixed: size of the caller's space; must be >= the layout size
	Name string  // WellKnownName
}

// Reservation is the anonymous PROT_NONE mapping Reserve produced.
type Reservation struct {
	Base uintptr
	Size uintptr
	Bias int64
}

// Reserve selects a target address per policy, performs the anonymous
// PROT_NONE mapping, computes the load bias, and — if the WellKnownName
// rule fired — updates the registry and installs the seccomp filter
// exactly once per process.
func Reserve(name string, ctx *registry.LoaderContext, layout Layout, policy ReservationPolicy) (*Reservation, error) {
	loadSize := uintptr(layout.Size)

	var targetAddr uintptr
	var wellKnownFired bool

	switch policy.Kind {
	case Fixed:
		if policy.Size < loadSize {
			return nil, &elferr.LoadError{Name: name, Kind: elferr.ReservationTooSmall,
				Have: uint64(policy.Size), Need: uint64(loadSize)}
		}
		targetAddr = policy.Addr
	case Hint:
		targetAddr = policy.Addr
	case WellKnownName:
		// Matches on a substring, not a suffix, so "libc.so" also fires for
		// a name like "libc.so.6"; flip to strings.HasSuffix here if a
		// stricter match is ever needed.
		if strings.Contains(policy.Name, "libc.so") {
			wellKnownFired = true
			hint := ctx.GuestLibcHint()
			targetAddr = hint.Addr
		}
	case None:
		targetAddr = 0
	}

	base, err := reserveAt(targetAddr, loadSize, policy.Kind == Fixed)
	if err != nil {
		return nil, elferr.Wrap(name, "mmap(reserve)", err)
	}

	bias := int64(base) - int64(layout.Start)

	if wellKnownFired {
		ctx.SetGuestLibc(base, loadSize)
		if !ctx.SeccompInstalled() {
			if err := seccomp.Install(ctx); err != nil {
				return nil, &elferr.LoadError{Name: name, Kind: elferr.SeccompInstallFailed, Errno: err}
			}
			ctx.MarkSeccompInstalled()
		}
	}

	return &Reservation{Base: base, Size: loadSize, Bias: bias}, nil
}

// reserveAt places an anonymous PROT_NONE mapping. When mustFit is true
// (the Fixed policy) the mapping uses MAP_FIXED at addr and any kernel
// refusal is a hard failure; otherwise addr is only a hint, and both the
// Hint and WellKnownName policies fall back to letting the kernel choose
// an address when honoring the hint isn't possible.
func reserveAt(addr uintptr, size uintptr, mustFit bool) (uintptr, error) {
	flags := unix.MAP_ANONYMOUS | unix.MAP_PRIVATE
	if mustFit {
		return filewindow.MmapAnon(addr, size, unix.PROT_NONE, flags|unix.MAP_FIXED)
	}
	if addr != 0 {
		if got, err := filewindow.MmapAnon(addr, size, unix.PROT_NONE, flags|unix.MAP_FIXED_NOREPLACE); err == nil {
			return got, nil
		}
	}
	return filewindow.MmapAnon(0, size, unix.PROT_NONE, flags)
}

// Release unmaps the entire reservation as a single operation.
func (r *Reservation) Release() error {
	return filewindow.Munmap(r.Base, r.Size)
}
