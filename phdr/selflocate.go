package phdr

import (
	"encoding/binary"
	"unsafe"

	"github.com/xyproto/elfload/elfclass"
	"github.com/xyproto/elfload/elferr"
	"github.com/xyproto/elfload/header"
)

// LocateSelf finds the in-memory phdr pointer after segments are mapped.
// t's entries still hold their unbiased p_vaddr; bias is added here, so
// callers pass the raw Table entries plus the bias separately.
func LocateSelf(name string, t *Table, h *header.Header, bias int64) (uintptr, error) {
	var cand uintptr

	if phdrEnt, ok := t.Find(elfclass.PT_PHDR); ok {
		cand = uintptr(int64(phdrEnt.Vaddr) + bias)
	} else {
		loadable := t.Loadable()
		if len(loadable) == 0 {
			return 0, &elferr.LoadError{Name: name, Kind: elferr.NoLoadable}
		}
		first := loadable[0]
		if first.Off != 0 {
			return 0, &elferr.LoadError{Name: name, Kind: elferr.PhdrNotLocatable}
		}
		// The in-memory ELF header at p_vaddr+bias carries its own e_phoff;
		// re-read it from the live mapping rather than trusting the file
		// header, since a loader could in principle have remapped it.
		base := uintptr(int64(first.Vaddr) + bias)
		ehdrBytes := unsafe.Slice((*byte)(unsafe.Pointer(base)), elfclass.SizeofHeader64)
		var phoff uint64
		if h.Class == elfclass.Elf32 {
			phoff = uint64(binary.LittleEndian.Uint32(ehdrBytes[0x1c:0x20]))
		} else {
			phoff = binary.LittleEndian.Uint64(ehdrBytes[0x20:0x28])
		}
		cand = base + uintptr(phoff)
	}

	entsize := entrySize(h.Class)
	span := uintptr(h.Phnum) * uintptr(entsize)

	for _, e := range t.Loadable() {
		segStart := uintptr(int64(e.Vaddr) + bias)
		segFileEnd := segStart + uintptr(e.Filesz)
		if cand >= segStart && cand+span <= segFileEnd {
			return cand, nil
		}
	}
	return 0, &elferr.LoadError{Name: name, Kind: elferr.PhdrNotLocatable}
}
