package seccomp

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/xyproto/elfload/registry"
)

// AUDIT_ARCH_* values, per <linux/audit.h>. Never change.
const (
	auditArchX86_64  uint32 = 0xc000003e
	auditArchI386    uint32 = 0x40000003
	auditArchAARCH64 uint32 = 0xc00000b7
	auditArchARM     uint32 = 0x40000028
)

// archConstant returns the AUDIT_ARCH_* value the kernel reports in
// seccomp_data.arch for the running process's own architecture.
func archConstant() uint32 {
	switch runtime.GOARCH {
	case "amd64":
		return auditArchX86_64
	case "386":
		return auditArchI386
	case "arm64":
		return auditArchAARCH64
	case "arm":
		return auditArchARM
	default:
		return 0
	}
}

// Classic BPF (cBPF) instruction encoding, per <linux/filter.h> and
// <linux/bpf_common.h>. Never change.
const (
	bpfLd  uint16 = 0x00
	bpfW   uint16 = 0x00
	bpfAbs uint16 = 0x20

	bpfJmp uint16 = 0x05
	bpfJeq uint16 = 0x10
	bpfJge uint16 = 0x30
	bpfJa  uint16 = 0x00

	bpfRet uint16 = 0x06
	bpfK   uint16 = 0x00

	bpfMaxInsns = 4096
)

// seccomp_data field offsets, per <linux/seccomp.h>'s struct seccomp_data:
//
//	struct seccomp_data {
//		int nr;
//		__u32 arch;
//		__u64 instruction_pointer;
//		__u64 args[6];
//	};
const (
	seccompDataNr   uint32 = 0
	seccompDataArch uint32 = 4
	seccompDataIP   uint32 = 8
)

// SECCOMP_RET_* actions, per <linux/seccomp.h>. Never change.
const (
	seccompRetAllow uint32 = 0x7fff0000
	seccompRetTrap  uint32 = 0x00030000
)

// ipHiOffset/ipLoOffset are the abs-load offsets for the two 32-bit halves of
// instruction_pointer, assuming a little-endian target (the only endianness
// header.Read accepts).
const (
	ipLoOffset = seccompDataIP
	ipHiOffset = seccompDataIP + 4
)

// asmInsn is a symbolic BPF instruction: jt/jf reference labels instead of
// raw relative offsets, resolved once the full program length is known. This
// avoids hand-computing byte offsets every time an earlier stage grows.
type asmInsn struct {
	code     uint16
	k        uint32
	jt, jf   string // label names; empty means "fall through" (offset 0)
	isJump   bool
	label    string // this instruction's own label, if jumped to from elsewhere
}

func ld(k uint32) asmInsn       { return asmInsn{code: bpfLd | bpfW | bpfAbs, k: k} }
func ret(k uint32) asmInsn      { return asmInsn{code: bpfRet | bpfK, k: k} }
func jeq(k uint32, jt, jf string) asmInsn {
	return asmInsn{code: bpfJmp | bpfJeq | bpfK, k: k, jt: jt, jf: jf, isJump: true}
}
func jge(k uint32, jt, jf string) asmInsn {
	return asmInsn{code: bpfJmp | bpfJge | bpfK, k: k, jt: jt, jf: jf, isJump: true}
}
// assemble resolves labelled jumps into a flat []unix.SockFilter. Every jt/jf
// label must name either another instruction's label or "" (fall through).
func assemble(insns []asmInsn) ([]unix.SockFilter, error) {
	labelIdx := make(map[string]int, len(insns))
	for i, in := range insns {
		if in.label != "" {
			labelIdx[in.label] = i
		}
	}
	out := make([]unix.SockFilter, len(insns))
	for i, in := range insns {
		if !in.isJump {
			out[i] = unix.SockFilter{Code: in.code, K: in.k}
			continue
		}
		jt, err := relOffset(i, in.jt, labelIdx)
		if err != nil {
			return nil, err
		}
		jf, err := relOffset(i, in.jf, labelIdx)
		if err != nil {
			return nil, err
		}
		if in.code == bpfJmp|bpfJa|bpfK {
			// BPF_JA's displacement is carried in K, not jt/jf.
			out[i] = unix.SockFilter{Code: in.code, K: uint32(jt)}
			continue
		}
		out[i] = unix.SockFilter{Code: in.code, K: in.k, Jt: uint8(jt), Jf: uint8(jf)}
	}
	return out, nil
}

func relOffset(from int, label string, labelIdx map[string]int) (int, error) {
	if label == "" {
		return 0, nil
	}
	to, ok := labelIdx[label]
	if !ok {
		return 0, fmt.Errorf("seccomp: undefined BPF label %q", label)
	}
	off := to - from - 1
	if off < 0 || off > 255 {
		return 0, fmt.Errorf("seccomp: BPF jump to %q out of range (%d)", label, off)
	}
	return off, nil
}

// withLabel returns in with its label set, for use at the definition site of
// a jump target.
func withLabel(label string, in asmInsn) asmInsn {
	in.label = label
	return in
}

// buildProgram assembles a two-stage classic-BPF filter: first an
// instruction-pointer check, then a closed list of trapped syscalls.
//
// Stage A admits any syscall whose instruction pointer falls inside the
// trusted region (registry.LoaderContext.TrustedRegion) or below
// lowAddressThreshold. A syscall from a foreign instruction-set architecture
// is never this process's own concern to police, so it is allowed outright
// rather than trapped — a mismatched seccomp_data.arch means the kernel is
// running a different ABI's syscall table than the one TrappedSyscalls was
// built for, and this filter has nothing meaningful to say about it. The
// 64-bit instruction-pointer compares are built from two 32-bit abs loads,
// following the high-word/low-word pattern seccomp filter generators use for
// 64-bit argument comparisons.
//
// Stage B traps a closed list of syscalls (TrappedSyscalls) for every
// instruction pointer that didn't already match Stage A, defaulting to allow.
func buildProgram(ctx *registry.LoaderContext) ([]unix.SockFilter, error) {
	start, end := ctx.TrustedRegion()
	startHi, startLo := uint32(uint64(start)>>32), uint32(start)
	endHi, endLo := uint32(uint64(end)>>32), uint32(end)
	threshold := lowAddressThreshold()

	trapped := TrappedSyscalls()

	prog := []asmInsn{
		ld(seccompDataArch),
		jeq(archConstant(), "", "allow"),

		// Trusted-region check: ip_hi compared against [startHi, endHi].
		ld(ipHiOffset),
		jge(startHi, "", "lowaddr"), // ip_hi < startHi -> definitely outside
		ld(ipHiOffset),
		jge(endHi+1, "lowaddr", ""), // ip_hi > endHi -> outside; else fall through

		// ip_hi is within [startHi, endHi]; narrow on the low word. This
		// assumes the common case where the trusted region's bound check on
		// the low word alone is sufficient once the high word matches,
		// which holds whenever startHi == endHi (the trusted region does
		// not itself straddle a 4 GiB boundary).
		ld(ipLoOffset),
		jge(startLo, "", "lowaddr"),
		ld(ipLoOffset),
		jge(endLo, "lowaddr", "allow"),

		withLabel("lowaddr", ld(ipHiOffset)),
		jeq(0, "", "trap_check"), // nonzero high word below the region: never "low"
		ld(ipLoOffset),
		jge(uint32(threshold), "trap_check", "allow"),

		withLabel("trap_check", ld(seccompDataNr)),
	}

	for i, nr := range trapped {
		fall := "allow"
		if i < len(trapped)-1 {
			fall = fmt.Sprintf("nr_%d", i+1)
		}
		in := jeq(uint32(nr), "trap", fall)
		if i > 0 {
			in = withLabel(fmt.Sprintf("nr_%d", i), in)
		}
		prog = append(prog, in)
	}

	prog = append(prog, withLabel("allow", ret(seccompRetAllow)))
	prog = append(prog, withLabel("trap", ret(seccompRetTrap)))

	if len(prog) > bpfMaxInsns {
		return nil, fmt.Errorf("seccomp: program length %d exceeds kernel limit %d", len(prog), bpfMaxInsns)
	}
	return assemble(prog)
}
