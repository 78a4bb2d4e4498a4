package vmspace

import (
	"golang.org/x/sys/unix"

	"github.com/xyproto/elfload/elfclass"
	"github.com/xyproto/elfload/elferr"
	"github.com/xyproto/elfload/filewindow"
	"github.com/xyproto/elfload/phdr"
)

// MapSegments maps every PT_LOAD segment at seg.Vaddr+bias. Any individual
// mmap failure aborts with MapFailed{segmentIndex, errno}.
func MapSegments(name string, fd int, fileOffset int64, loadable []phdr.Entry, bias int64) error {
	for i, seg := range loadable {
		if err := mapOne(fd, fileOffset, seg, bias); err != nil {
			return &elferr.LoadError{Name: name, Kind: elferr.MapFailed, SegmentIndex: i, Errno: err}
		}
	}
	return nil
}

func mapOne(fd int, fileOffset int64, seg phdr.Entry, bias int64) error {
	segStart := uintptr(int64(seg.Vaddr) + bias)
	segEnd := segStart + uintptr(seg.Memsz)
	segFileEnd := segStart + uintptr(seg.Filesz)

	segPageStart := uintptr(elfclass.PageStart(uint64(segStart)))
	segPageEnd := uintptr(elfclass.PageEnd(uint64(segEnd)))

	prot := protFlags(seg.Flags)

	if seg.Filesz != 0 {
		filePageStart := elfclass.PageStart(seg.Off)
		mapLen := (segFileEnd - segPageStart)
		off := fileOffset + int64(filePageStart)
		if _, err := filewindow.MmapFixed(segPageStart, mapLen, prot, unix.MAP_PRIVATE, fd, off); err != nil {
			return err
		}
	}

	// Zero the tail of a writable segment whose file data does not end on
	// a page boundary: mmap backs that tail with whatever garbage already
	// sits in the file's last partial page, and a writable segment must not
	// expose it.
	if seg.Flags&elfclass.PF_W != 0 {
		tailEnd := elfclass.PageEnd(uint64(segFileEnd))
		if tailEnd != uint64(segFileEnd) && seg.Filesz != 0 {
			filewindow.ZeroFill(segFileEnd, uintptr(tailEnd)-segFileEnd)
		}
	}

	// Pure-bss gap: anonymous pages beyond the file-backed tail. When
	// p_filesz is 0 there is no file-backed tail at all, so the gap starts
	// at the segment's first page rather than at PAGE_END(segFileEnd)
	// (segStart need not be page-aligned when there is no file mapping to
	// anchor it).
	var fileBackedPageEnd uint64
	if seg.Filesz == 0 {
		fileBackedPageEnd = uint64(segPageStart)
	} else {
		fileBackedPageEnd = elfclass.PageEnd(uint64(segFileEnd))
	}
	if uintptr(fileBackedPageEnd) < segPageEnd {
		gapLen := segPageEnd - uintptr(fileBackedPageEnd)
		if _, err := filewindow.MmapAnon(uintptr(fileBackedPageEnd), gapLen, prot,
			unix.MAP_PRIVATE|unix.MAP_FIXED); err != nil {
			return err
		}
	}

	return nil
}

func protFlags(pflags uint32) int {
	var prot int
	if pflags&elfclass.PF_R != 0 {
		prot |= unix.PROT_READ
	}
	if pflags&elfclass.PF_W != 0 {
		prot |= unix.PROT_WRITE
	}
	if pflags&elfclass.PF_X != 0 {
		prot |= unix.PROT_EXEC
	}
	return prot
}
