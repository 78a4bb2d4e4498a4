package seccomp

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/xyproto/elfload/registry"
)

// prctl(2)/seccomp(2) constants, per <linux/seccomp.h> and <linux/prctl.h>.
// Never change.
const (
	prSetSeccomp     = 22
	prSetNoNewPrivs  = 38
	seccompModeFilter = 2
)

// Install builds the two-stage BPF filter (buildProgram) from ctx's current
// trusted region and attaches it to the calling thread via prctl(2). Each
// SECCOMP_MODE_FILTER install stacks another filter on top of the last, so
// this is meant to run at most once per process; ctx tracks whether it has
// already run so a WellKnownName("libc.so") reservation later in the same
// process does not attempt to reinstall it.
//
// PR_SET_NO_NEW_PRIVS is set first since the kernel refuses
// PR_SET_SECCOMP(SECCOMP_MODE_FILTER) for an unprivileged caller otherwise.
func Install(ctx *registry.LoaderContext) error {
	if ctx.SeccompInstalled() {
		return nil
	}

	filter, err := buildProgram(ctx)
	if err != nil {
		return fmt.Errorf("build seccomp filter: %w", err)
	}

	if _, _, errno := unix.Syscall(unix.SYS_PRCTL, prSetNoNewPrivs, 1, 0); errno != 0 {
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", errno)
	}

	prog := unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}

	if _, _, errno := unix.Syscall(unix.SYS_PRCTL, prSetSeccomp, seccompModeFilter, uintptr(unsafe.Pointer(&prog))); errno != 0 {
		return fmt.Errorf("prctl(PR_SET_SECCOMP): %w", errno)
	}

	ctx.MarkSeccompInstalled()
	return nil
}
