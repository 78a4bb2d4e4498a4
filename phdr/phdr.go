// Package phdr maps the program header table into a private window and
// exposes an indexable view over its PT_LOAD (and other recognised)
// entries.
package phdr

import (
	"encoding/binary"

	"github.com/xyproto/elfload/elfclass"
	"github.com/xyproto/elfload/elferr"
	"github.com/xyproto/elfload/filewindow"
	"github.com/xyproto/elfload/header"
)

const maxPhdrTableBytes = 64 * 1024 // refuse to map an implausibly large phdr table

// Entry is the class-erased view of one program header entry.
type Entry struct {
	Type   uint32
	Flags  uint32
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// Table is a mapped, parsed program header table. Entries is a decoded
// copy, so it stays valid after Release unmaps the window.
type Table struct {
	window  *filewindow.FileWindow
	Entries []Entry
}

// Load maps and parses the program header table named by h, read from fd.
// Rejects e_phnum < 1 or a table larger than 64 KiB.
func Load(name string, fd int, h *header.Header) (*Table, error) {
	if h.Phnum < 1 {
		return nil, &elferr.LoadError{Name: name, Kind: elferr.BadPhdrCount, Got: uint64(h.Phnum)}
	}
	entsize := entrySize(h.Class)
	total := uint64(h.Phnum) * uint64(entsize)
	if total > maxPhdrTableBytes {
		return nil, &elferr.LoadError{Name: name, Kind: elferr.BadPhdrCount, Got: uint64(h.Phnum)}
	}

	w, err := filewindow.Open(fd, int64(h.Phoff), uintptr(total))
	if err != nil {
		return nil, elferr.Wrap(name, "mmap(phdr)", err)
	}

	entries := make([]Entry, h.Phnum)
	buf := w.Bytes()
	for i := range entries {
		off := i * entsize
		entries[i] = decodeEntry(h.Class, buf[off:off+entsize])
	}

	return &Table{window: w, Entries: entries}, nil
}

// Release unmaps the temporary phdr window. Called once LocateSelf has
// found the in-segment copy; the table's own window is no longer needed
// after that.
func (t *Table) Release() error {
	if t.window == nil {
		return nil
	}
	return t.window.Release()
}

func entrySize(c elfclass.Class) int {
	if c == elfclass.Elf32 {
		return elfclass.SizeofPhdr32
	}
	return elfclass.SizeofPhdr64
}

func decodeEntry(c elfclass.Class, b []byte) Entry {
	le := binary.LittleEndian
	if c == elfclass.Elf32 {
		return Entry{
			Type:   le.Uint32(b[0:4]),
			Off:    uint64(le.Uint32(b[4:8])),
			Vaddr:  uint64(le.Uint32(b[8:12])),
			Paddr:  uint64(le.Uint32(b[12:16])),
			Filesz: uint64(le.Uint32(b[16:20])),
			Memsz:  uint64(le.Uint32(b[20:24])),
			Flags:  le.Uint32(b[24:28]),
			Align:  uint64(le.Uint32(b[28:32])),
		}
	}
	return Entry{
		Type:   le.Uint32(b[0:4]),
		Flags:  le.Uint32(b[4:8]),
		Off:    le.Uint64(b[8:16]),
		Vaddr:  le.Uint64(b[16:24]),
		Paddr:  le.Uint64(b[24:32]),
		Filesz: le.Uint64(b[32:40]),
		Memsz:  le.Uint64(b[40:48]),
		Align:  le.Uint64(b[48:56]),
	}
}

// Loadable returns every PT_LOAD entry, in file order.
func (t *Table) Loadable() []Entry {
	var out []Entry
	for _, e := range t.Entries {
		if e.Type == elfclass.PT_LOAD {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the first entry of the given type, if any.
func (t *Table) Find(typ uint32) (Entry, bool) {
	for _, e := range t.Entries {
		if e.Type == typ {
			return e, true
		}
	}
	return Entry{}, false
}

// FindAll returns every entry of the given type, in file order.
func (t *Table) FindAll(typ uint32) []Entry {
	var out []Entry
	for _, e := range t.Entries {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
