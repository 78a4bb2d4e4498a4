package vmspace

import (
	"golang.org/x/sys/unix"

	"github.com/xyproto/elfload/elfclass"
	"github.com/xyproto/elfload/elferr"
	"github.com/xyproto/elfload/filewindow"
	"github.com/xyproto/elfload/phdr"
)

// ProtectSegments restores the protection implied by p_flags for every
// PT_LOAD segment whose write bit is clear. Tie-break: when a segment
// shares a page with a later segment, the
// mapping for that page was last written by SegmentMapper processing the
// later segment, so its flags win — callers must not rely on the earlier
// segment's flags applying to a shared page.
func ProtectSegments(name string, loadable []phdr.Entry, bias int64) error {
	for _, seg := range loadable {
		if seg.Flags&elfclass.PF_W != 0 {
			continue
		}
		if err := protectRange(seg, bias, protFlags(seg.Flags)); err != nil {
			return elferr.Wrap(name, "mprotect", err)
		}
	}
	return nil
}

// UnprotectSegments OR's in write permission on the same set of segments,
// to allow a relocation collaborator to rewrite them.
func UnprotectSegments(name string, loadable []phdr.Entry, bias int64) error {
	for _, seg := range loadable {
		if seg.Flags&elfclass.PF_W != 0 {
			continue
		}
		if err := protectRange(seg, bias, protFlags(seg.Flags)|unix.PROT_WRITE); err != nil {
			return elferr.Wrap(name, "mprotect", err)
		}
	}
	return nil
}

func protectRange(seg phdr.Entry, bias int64, prot int) error {
	segStart := uintptr(int64(seg.Vaddr) + bias)
	segEnd := segStart + uintptr(seg.Memsz)
	pageStart := uintptr(elfclass.PageStart(uint64(segStart)))
	pageEnd := uintptr(elfclass.PageEnd(uint64(segEnd)))
	return filewindow.Mprotect(pageStart, pageEnd-pageStart, prot)
}

// ProtectRelro mprotects every PT_GNU_RELRO segment's page range read-only.
// Deliberately over-protects whole pages when the RELRO range is not
// page-aligned.
func ProtectRelro(name string, relro []phdr.Entry, bias int64) error {
	for _, seg := range relro {
		start := uintptr(elfclass.PageStart(uint64(int64(seg.Vaddr) + bias)))
		end := uintptr(elfclass.PageEnd(uint64(int64(seg.Vaddr) + bias + int64(seg.Memsz))))
		if err := filewindow.Mprotect(start, end-start, unix.PROT_READ); err != nil {
			return elferr.Wrap(name, "mprotect(relro)", err)
		}
	}
	return nil
}

// SerializeRelro writes each PT_GNU_RELRO segment's page-range bytes to fd
// in order, then remaps those same pages read-only private from fd at the
// offset just written. After success the process's RELRO pages are backed
// by fd, so a sibling process can later MapRelro the same fd and get
// bitwise-identical pages mapped from disk.
func SerializeRelro(name string, relro []phdr.Entry, bias int64, fd int) error {
	var fileOffset int64
	for _, seg := range relro {
		start := uintptr(elfclass.PageStart(uint64(int64(seg.Vaddr) + bias)))
		end := uintptr(elfclass.PageEnd(uint64(int64(seg.Vaddr) + bias + int64(seg.Memsz))))
		length := end - start

		b := sliceAt(start, length)
		if _, err := filewindow.Write(fd, b); err != nil {
			return elferr.Wrap(name, "write(relro)", err)
		}

		if _, err := filewindow.MmapFixed(start, length, unix.PROT_READ, unix.MAP_PRIVATE, fd, fileOffset); err != nil {
			return elferr.Wrap(name, "mmap(relro-serialize)", err)
		}
		fileOffset += int64(length)
	}
	return nil
}

// MapRelro is the inverse consumer: it temporarily maps the entirety of fd
// read-only, then for each PT_GNU_RELRO segment walks page by page
// comparing in-memory pages against the file's pages. Every maximal run of
// equal consecutive pages is replaced by a MAP_FIXED|MAP_PRIVATE mapping
// from fd at the matching offset; unequal pages are left as private dirty
// memory. If fd is shorter than the current segment's extent the loop
// stops — later segments are not attempted. The temporary comparison
// mapping is always released, even on a mid-loop failure.
func MapRelro(name string, relro []phdr.Entry, bias int64, fd int) error {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return elferr.Wrap(name, "fstat(relro)", err)
	}
	fileSize := uintptr(st.Size)
	if fileSize == 0 {
		return nil
	}

	tmp, err := filewindow.Open(fd, 0, fileSize)
	if err != nil {
		return elferr.Wrap(name, "mmap(relro-tmp)", err)
	}
	defer tmp.Release()
	tmpBase := tmp.Ptr()

	var fileOffset uintptr
	for _, seg := range relro {
		start := uintptr(elfclass.PageStart(uint64(int64(seg.Vaddr) + bias)))
		end := uintptr(elfclass.PageEnd(uint64(int64(seg.Vaddr) + bias + int64(seg.Memsz))))

		segErr := remapEqualRuns(start, end, tmpBase, fileSize, &fileOffset, fd)
		if segErr != nil {
			return elferr.Wrap(name, "mmap(relro-restore)", segErr)
		}
	}
	return nil
}

// remapEqualRuns walks [start, end) page by page; fileOffset tracks the
// position in fd consumed so far across all segments (SerializeRelro
// writes segments back to back, so MapRelro must read them back to back
// too). It stops without error once fd is exhausted.
func remapEqualRuns(start, end, tmpBase, fileSize uintptr, fileOffset *uintptr, fd int) error {
	page := uintptr(elfclass.PageSize)
	runStart := uintptr(0)
	runLen := uintptr(0)
	runFileOff := *fileOffset

	flush := func() error {
		if runLen == 0 {
			return nil
		}
		_, err := filewindow.MmapFixed(runStart, runLen, unix.PROT_READ, unix.MAP_PRIVATE, fd, int64(runFileOff))
		runLen = 0
		return err
	}

	for addr := start; addr < end; addr += page {
		if *fileOffset+page > fileSize {
			return flush()
		}
		mem := sliceAt(addr, page)
		file := sliceAt(tmpBase+*fileOffset, page)
		equal := true
		for i := range mem {
			if mem[i] != file[i] {
				equal = false
				break
			}
		}
		if equal {
			if runLen == 0 {
				runStart = addr
				runFileOff = *fileOffset
			}
			runLen += page
		} else {
			if err := flush(); err != nil {
				return err
			}
		}
		*fileOffset += page
	}
	return flush()
}

func sliceAt(addr, length uintptr) []byte {
	if length == 0 {
		return nil
	}
	return unsafeSlice(addr, length)
}
