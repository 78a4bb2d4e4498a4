// Package dynsec locates SHT_DYNAMIC via the section header table, follows
// its sh_link to the string table, and maps both. It is an optional step:
// a collaborator only calls into this package when it needs the .dynamic
// section ahead of full segment mapping.
package dynsec

import (
	"encoding/binary"

	"github.com/xyproto/elfload/elfclass"
	"github.com/xyproto/elfload/elferr"
	"github.com/xyproto/elfload/filewindow"
	"github.com/xyproto/elfload/header"
)

// shdrEntry is the class-erased view of one section header.
type shdrEntry struct {
	Name, Type        uint32
	Link, Info        uint32
	Offset, Size      uint64
}

// DynamicView exposes the parsed .dynamic tags and the companion string
// table.
type DynamicView struct {
	dynWindow    *filewindow.FileWindow
	strWindow    *filewindow.FileWindow
	Tags         []Dyn
	StrtabSize   uint64
}

// Dyn is a class-erased (tag, value) pair from SHT_DYNAMIC.
type Dyn struct {
	Tag int64
	Val uint64
}

// Read locates SHT_DYNAMIC, validates its string-table link, and maps both
// sections. Fails with NoDynamic if e_shnum == 0 or no SHT_DYNAMIC entry is
// found. The e_shnum==0 case is treated as "dynamic section unavailable"
// rather than fatal; the ShnumZero detail field on the returned error lets
// elferr.IsDynamicUnavailable make exactly that distinction without
// changing the Kind.
func Read(name string, fd int, h *header.Header) (*DynamicView, error) {
	if h.Shnum == 0 {
		return nil, &elferr.LoadError{Name: name, Kind: elferr.NoDynamic, ShnumZero: true}
	}

	entsize := shdrEntrySize(h.Class)
	shTableSize := uintptr(h.Shnum) * uintptr(entsize)
	shWindow, err := filewindow.Open(fd, int64(h.Shoff), shTableSize)
	if err != nil {
		return nil, elferr.Wrap(name, "mmap(shdr)", err)
	}
	defer shWindow.Release()

	buf := shWindow.Bytes()
	entries := make([]shdrEntry, h.Shnum)
	for i := range entries {
		entries[i] = decodeShdr(h.Class, buf[i*entsize:(i+1)*entsize])
	}

	dynIdx := -1
	for i, e := range entries {
		if e.Type == elfclass.SHT_DYNAMIC {
			dynIdx = i
			break
		}
	}
	if dynIdx < 0 {
		return nil, &elferr.LoadError{Name: name, Kind: elferr.NoDynamic}
	}
	dyn := entries[dynIdx]

	if dyn.Link >= uint32(h.Shnum) {
		return nil, &elferr.LoadError{Name: name, Kind: elferr.BadDynamicLink}
	}
	str := entries[dyn.Link]
	if str.Type != elfclass.SHT_STRTAB {
		return nil, &elferr.LoadError{Name: name, Kind: elferr.BadStrtabType}
	}

	dynWindow, err := filewindow.Open(fd, int64(dyn.Offset), uintptr(dyn.Size))
	if err != nil {
		return nil, elferr.Wrap(name, "mmap(.dynamic)", err)
	}
	strWindow, err := filewindow.Open(fd, int64(str.Offset), uintptr(str.Size))
	if err != nil {
		dynWindow.Release()
		return nil, elferr.Wrap(name, "mmap(.dynstr)", err)
	}

	dynEntSize := dynEntrySize(h.Class)
	count := int(dyn.Size) / dynEntSize
	tags := make([]Dyn, 0, count)
	dbuf := dynWindow.Bytes()
	for i := 0; i < count; i++ {
		tags = append(tags, decodeDyn(h.Class, dbuf[i*dynEntSize:(i+1)*dynEntSize]))
	}

	return &DynamicView{
		dynWindow:  dynWindow,
		strWindow:  strWindow,
		Tags:       tags,
		StrtabSize: str.Size,
	}, nil
}

// Release unmaps the .dynamic and .dynstr windows.
func (v *DynamicView) Release() {
	if v == nil {
		return
	}
	if v.dynWindow != nil {
		v.dynWindow.Release()
	}
	if v.strWindow != nil {
		v.strWindow.Release()
	}
}

// GetString returns the NUL-terminated string at index into the string
// table. Panics if index >= strtab size.
func (v *DynamicView) GetString(index uint32) string {
	buf := v.strWindow.Bytes()
	if uint64(index) >= uint64(len(buf)) {
		panic("dynsec: string index out of range")
	}
	end := index
	for end < uint32(len(buf)) && buf[end] != 0 {
		end++
	}
	return string(buf[index:end])
}

func shdrEntrySize(c elfclass.Class) int {
	if c == elfclass.Elf32 {
		return elfclass.SizeofShdr32
	}
	return elfclass.SizeofShdr64
}

func dynEntrySize(c elfclass.Class) int {
	if c == elfclass.Elf32 {
		return elfclass.SizeofDyn32
	}
	return elfclass.SizeofDyn64
}

func decodeShdr(c elfclass.Class, b []byte) shdrEntry {
	le := binary.LittleEndian
	if c == elfclass.Elf32 {
		return shdrEntry{
			Name:   le.Uint32(b[0:4]),
			Type:   le.Uint32(b[4:8]),
			Offset: uint64(le.Uint32(b[16:20])),
			Size:   uint64(le.Uint32(b[20:24])),
			Link:   le.Uint32(b[24:28]),
			Info:   le.Uint32(b[28:32]),
		}
	}
	return shdrEntry{
		Name:   le.Uint32(b[0:4]),
		Type:   le.Uint32(b[4:8]),
		Offset: le.Uint64(b[24:32]),
		Size:   le.Uint64(b[32:40]),
		Link:   le.Uint32(b[40:44]),
		Info:   le.Uint32(b[44:48]),
	}
}

func decodeDyn(c elfclass.Class, b []byte) Dyn {
	le := binary.LittleEndian
	if c == elfclass.Elf32 {
		return Dyn{Tag: int64(int32(le.Uint32(b[0:4]))), Val: uint64(le.Uint32(b[4:8]))}
	}
	return Dyn{Tag: int64(le.Uint64(b[0:8])), Val: le.Uint64(b[8:16])}
}
