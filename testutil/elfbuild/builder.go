// Package elfbuild assembles minimal, byte-exact little-endian ELF64 ET_DYN
// shared objects for use as test fixtures by the rest of this module. Its
// header/phdr/shdr/dynamic writer mirrors elf_sections.go/elf_static.go/
// elf_complete.go, run in the opposite direction: assembling a loadable
// fixture instead of a compiler's final executable.
package elfbuild

import (
	"bytes"
	"encoding/binary"

	"github.com/xyproto/elfload/elfclass"
)

// Segment describes one program header entry and its file-backed contents.
// Offset is computed by Build so it stays congruent with Vaddr modulo
// Align; callers only choose the logical placement.
type Segment struct {
	Type   uint32
	Flags  uint32
	Vaddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
	Data   []byte // file contents; must not be longer than Filesz
}

// DynTag is one SHT_DYNAMIC (tag, value) entry.
type DynTag struct {
	Tag int64
	Val uint64
}

// Builder accumulates segments (and, optionally, a dynamic section) before
// Build assembles them into a single file image.
type Builder struct {
	Machine uint16
	Entry   uint64

	segments []Segment

	haveDyn     bool
	dynVaddr    uint64
	dynTags     []DynTag
	strtabVaddr uint64
	strtab      []byte
}

// New returns a Builder defaulting to the host's own machine type, so the
// fixtures it produces pass header.Read's machine check without every
// caller repeating elfclass.HostMachine().
func New() *Builder {
	return &Builder{Machine: elfclass.HostMachine()}
}

// AddSegment appends one program header entry. Align defaults to the page
// size when left zero.
func (b *Builder) AddSegment(seg Segment) *Builder {
	if seg.Align == 0 {
		seg.Align = elfclass.PageSize
	}
	b.segments = append(b.segments, seg)
	return b
}

// SetDynamic records a PT_DYNAMIC segment at dynVaddr holding tags, plus a
// companion string table at strtabVaddr, and arranges for Build to also
// emit a section header table (SHT_DYNAMIC + SHT_STRTAB) pointing at them
// the way dynsec.Read expects to find it. strtab's first byte must be NUL,
// per the ELF string-table convention — Build does not insert it.
func (b *Builder) SetDynamic(dynVaddr uint64, tags []DynTag, strtabVaddr uint64, strtab []byte) *Builder {
	b.haveDyn = true
	b.dynVaddr = dynVaddr
	b.dynTags = tags
	b.strtabVaddr = strtabVaddr
	b.strtab = strtab
	return b
}

// Build assembles the full little-endian ELF64 file image: header, phdr
// table, every added segment's file contents, and (if SetDynamic was
// called) a trailing section header table.
func (b *Builder) Build() []byte {
	segments := append([]Segment(nil), b.segments...)

	var dynIdx, strIdx int = -1, -1
	if b.haveDyn {
		dynBytes := encodeDyn(b.dynTags)
		segments = append(segments, Segment{
			Type: elfclass.PT_DYNAMIC, Flags: elfclass.PF_R | elfclass.PF_W,
			Vaddr: b.dynVaddr, Filesz: uint64(len(dynBytes)), Memsz: uint64(len(dynBytes)),
			Align: 8, Data: dynBytes,
		})
		dynIdx = len(segments) - 1

		segments = append(segments, Segment{
			Type: elfclass.PT_LOAD, Flags: elfclass.PF_R,
			Vaddr: b.strtabVaddr, Filesz: uint64(len(b.strtab)), Memsz: uint64(len(b.strtab)),
			Align: 8, Data: b.strtab,
		})
		strIdx = len(segments) - 1
	}

	headerSize := uint64(elfclass.SizeofHeader64)
	phdrTableSize := uint64(len(segments)) * uint64(elfclass.SizeofPhdr64)

	buf := make([]byte, headerSize+phdrTableSize)
	cursor := uint64(len(buf))

	offsets := make([]uint64, len(segments))
	for i, seg := range segments {
		off := alignOffsetTo(cursor, seg.Vaddr, seg.Align)
		offsets[i] = off
		end := off + seg.Filesz
		buf = growTo(buf, end)
		copy(buf[off:], seg.Data)
		cursor = end
	}

	var shoff uint64
	var shnum uint16
	if b.haveDyn {
		shoff = alignOffsetTo(cursor, 0, 8)
		shdrs := buildShdrs(offsets[dynIdx], segments[dynIdx].Filesz, offsets[strIdx], segments[strIdx].Filesz)
		buf = growTo(buf, shoff+uint64(len(shdrs)))
		copy(buf[shoff:], shdrs)
		shnum = 3
	}

	phdrBuf := new(bytes.Buffer)
	for i, seg := range segments {
		ph := elfclass.Phdr64{
			Type: seg.Type, Flags: seg.Flags, Off: offsets[i], Vaddr: seg.Vaddr,
			Paddr: seg.Vaddr, Filesz: seg.Filesz, Memsz: seg.Memsz, Align: seg.Align,
		}
		binary.Write(phdrBuf, binary.LittleEndian, &ph)
	}
	copy(buf[headerSize:headerSize+phdrTableSize], phdrBuf.Bytes())

	hdr := elfclass.Header64{
		Type: elfclass.ET_DYN, Machine: b.Machine, Version: uint32(elfclass.EV_CURRENT),
		Entry: b.Entry, Phoff: headerSize, Shoff: shoff,
		Ehsize: uint16(headerSize), Phentsize: uint16(elfclass.SizeofPhdr64),
		Phnum: uint16(len(segments)), Shentsize: uint16(elfclass.SizeofShdr64), Shnum: shnum,
	}
	hdr.Ident[0], hdr.Ident[1], hdr.Ident[2], hdr.Ident[3] = 0x7f, 'E', 'L', 'F'
	hdr.Ident[elfclass.EI_CLASS] = elfclass.ELFCLASS64
	hdr.Ident[elfclass.EI_DATA] = elfclass.ELFDATA2LSB
	hdr.Ident[elfclass.EI_VERSION] = byte(elfclass.EV_CURRENT)

	hdrBuf := new(bytes.Buffer)
	binary.Write(hdrBuf, binary.LittleEndian, &hdr)
	copy(buf[0:headerSize], hdrBuf.Bytes())

	return buf
}

// growTo extends buf with zero bytes until it is at least n bytes long.
func growTo(buf []byte, n uint64) []byte {
	if uint64(len(buf)) >= n {
		return buf
	}
	grown := make([]byte, n)
	copy(grown, buf)
	return grown
}

// alignOffsetTo returns the smallest offset >= cursor with
// offset % align == vaddr % align, the file/memory congruence every PT_LOAD
// (and, by convention here, every other segment) must satisfy.
func alignOffsetTo(cursor, vaddr, align uint64) uint64 {
	if align == 0 {
		align = 1
	}
	want := vaddr % align
	cur := cursor % align
	if cur == want {
		return cursor
	}
	if cur < want {
		return cursor + (want - cur)
	}
	return cursor + (align - cur + want)
}

// encodeDyn packs tags as consecutive Elf64_Dyn entries, matching
// dynsec.decodeDyn's field order exactly.
func encodeDyn(tags []DynTag) []byte {
	buf := new(bytes.Buffer)
	for _, t := range tags {
		d := elfclass.Dyn64{Tag: t.Tag, Val: t.Val}
		binary.Write(buf, binary.LittleEndian, &d)
	}
	return buf.Bytes()
}

// buildShdrs emits the section header table dynsec.Read expects: index 0 is
// the mandatory null section, index 1 is SHT_STRTAB, index 2 is SHT_DYNAMIC
// linked to index 1.
func buildShdrs(dynOff, dynSize, strOff, strSize uint64) []byte {
	buf := new(bytes.Buffer)
	null := elfclass.Shdr64{}
	str := elfclass.Shdr64{Type: elfclass.SHT_STRTAB, Offset: strOff, Size: strSize}
	dyn := elfclass.Shdr64{Type: elfclass.SHT_DYNAMIC, Offset: dynOff, Size: dynSize, Link: 1, Entsize: elfclass.SizeofDyn64}
	binary.Write(buf, binary.LittleEndian, &null)
	binary.Write(buf, binary.LittleEndian, &str)
	binary.Write(buf, binary.LittleEndian, &dyn)
	return buf.Bytes()
}
