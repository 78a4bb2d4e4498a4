// Package filewindow owns page-aligned read-only (or read-write) mappings
// of a sub-range of a file descriptor. A FileWindow may request a
// non-page-aligned (offset, size) pair; the window maps the enclosing page
// range and exposes only the requested sub-range to callers.
package filewindow

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/xyproto/elfload/elfclass"
)

// FileWindow is a mapping descriptor: (userPtr, userSize) is the caller's
// requested sub-range; (rawPtr, rawSize) is the page-aligned range the OS
// actually holds mapped. Invariant: rawPtr <= userPtr < rawPtr+rawSize and
// userPtr+userSize <= rawPtr+rawSize.
type FileWindow struct {
	userPtr  uintptr
	userSize uintptr
	rawPtr   uintptr
	rawSize  uintptr
}

// Open maps the page range covering [offset, offset+size) from fd
// read-only and private, and returns a window exposing exactly
// [offset, offset+size).
func Open(fd int, offset int64, size uintptr) (*FileWindow, error) {
	return open(fd, offset, size, unix.PROT_READ, unix.MAP_PRIVATE)
}

// OpenWritable is Open but maps the page range read-write (still private,
// so writes never reach the file).
func OpenWritable(fd int, offset int64, size uintptr) (*FileWindow, error) {
	return open(fd, offset, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE)
}

func open(fd int, offset int64, size uintptr, prot, flags int) (*FileWindow, error) {
	if size == 0 {
		return &FileWindow{}, nil
	}
	pageOff := uintptr(offset) & (elfclass.PageSize - 1)
	rawOffset := offset - int64(pageOff)
	rawSize := alignUp(uintptr(pageOff) + size)

	rawPtr, err := mmapAt(0, rawSize, prot, flags, fd, rawOffset)
	if err != nil {
		return nil, err
	}
	return &FileWindow{
		userPtr:  rawPtr + pageOff,
		userSize: size,
		rawPtr:   rawPtr,
		rawSize:  rawSize,
	}, nil
}

func alignUp(n uintptr) uintptr {
	return (n + elfclass.PageSize - 1) &^ (elfclass.PageSize - 1)
}

// Ptr returns the usable base address of the window's requested range.
func (w *FileWindow) Ptr() uintptr { return w.userPtr }

// Size returns the size of the window's requested range.
func (w *FileWindow) Size() uintptr { return w.userSize }

// Bytes views the window's requested range as a byte slice. The slice is
// only valid while the window is open.
func (w *FileWindow) Bytes() []byte {
	if w.userSize == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(w.userPtr)), int(w.userSize))
}

// Release unmaps the raw (page-aligned, outer) range — never just the
// caller's requested sub-range, since that's what mmap actually mapped.
// Release is a no-op on a zero-size window.
func (w *FileWindow) Release() error {
	if w.rawSize == 0 {
		return nil
	}
	err := munmapAt(w.rawPtr, w.rawSize)
	*w = FileWindow{}
	return err
}

// mmapAt and munmapAt wrap the raw mmap(2)/munmap(2) syscalls instead of
// golang.org/x/sys/unix's slice-oriented Mmap/Munmap helpers, because
// those helpers always let the kernel choose the address (they pass addr=0
// internally) and this loader's Reserver and SegmentMapper both need
// MAP_FIXED placement at a caller-chosen address. The raw-syscall approach
// mirrors how the example pack's BPF/perf syscall wrappers are built
// (errno-checked RawSyscall/Syscall6 around a kernel ABI call) rather than
// reaching for a higher-level abstraction that cannot express MAP_FIXED.
func mmapAt(addr, length uintptr, prot, flags, fd int, offset int64) (uintptr, error) {
	ret, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, length,
		uintptr(prot), uintptr(flags), uintptr(fd), uintptr(offset))
	if errno != 0 {
		return 0, errno
	}
	return ret, nil
}

func munmapAt(addr, length uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, addr, length, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// mprotectAt wraps the raw mprotect(2) syscall for the same reason as
// mmapAt: ProtectionManager needs to protect arbitrary in-reservation
// ranges that are not necessarily backed by a Go-visible slice.
func mprotectAt(addr, length uintptr, prot int) error {
	_, _, errno := unix.Syscall(unix.SYS_MPROTECT, addr, length, uintptr(prot))
	if errno != 0 {
		return errno
	}
	return nil
}

// MmapFixed performs a MAP_FIXED mapping at addr and returns the resulting
// address (always addr on success). Exported for vmspace's Reserver and
// SegmentMapper.
func MmapFixed(addr uintptr, length uintptr, prot, flags, fd int, offset int64) (uintptr, error) {
	return mmapAt(addr, length, prot, flags|unix.MAP_FIXED, fd, offset)
}

// MmapAnon performs an anonymous mapping, at addr if addr != 0 and flags
// includes MAP_FIXED, or at a kernel-chosen address (used as a hint if
// addr != 0 and MAP_FIXED is not set) otherwise.
func MmapAnon(addr uintptr, length uintptr, prot, flags int) (uintptr, error) {
	return mmapAt(addr, length, prot, flags|unix.MAP_ANONYMOUS, -1, 0)
}

// Munmap unmaps [addr, addr+length).
func Munmap(addr, length uintptr) error { return munmapAt(addr, length) }

// Mprotect changes protection on [addr, addr+length).
func Mprotect(addr, length uintptr, prot int) error { return mprotectAt(addr, length, prot) }

// ZeroFill stores zero bytes at [addr, addr+length) via direct writes. Only
// valid when addr is within a private, writable mapping this process owns —
// writing through it never touches the backing file or another process.
func ZeroFill(addr, length uintptr) {
	if length == 0 {
		return
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length))
	for i := range b {
		b[i] = 0
	}
}

// Pread reads up to len(p) bytes from fd at offset, retrying on EINTR.
func Pread(fd int, p []byte, offset int64) (int, error) {
	total := 0
	for total < len(p) {
		n, err := unix.Pread(fd, p[total:], offset+int64(total))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// Write writes all of p to fd, retrying on EINTR.
func Write(fd int, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := unix.Write(fd, p[total:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return total, err
		}
		total += n
	}
	return total, nil
}
