package phdr

import (
	"testing"
	"unsafe"

	"github.com/xyproto/elfload/elfclass"
	"github.com/xyproto/elfload/header"
	"github.com/xyproto/elfload/testutil/elfbuild"
)

// fakeMapped returns buf's own Go-heap address, to be used as the bias for
// hand-built Tables whose Vaddrs are offsets into buf. This lets
// LocateSelf's unsafe.Pointer reads walk real memory without an actual mmap.
func fakeMapped(t *testing.T, buf []byte, h *header.Header) uintptr {
	t.Helper()
	return uintptr(unsafe.Pointer(&buf[0]))
}

func TestLocateSelfViaPTPHDR(t *testing.T) {
	b := elfbuild.New()
	buf := b.AddSegment(elfbuild.Segment{Type: elfclass.PT_LOAD, Flags: elfclass.PF_R, Vaddr: 0, Filesz: 256, Memsz: 256, Align: 8, Data: make([]byte, 256)}).
		Build()

	base := fakeMapped(t, buf, nil)

	h, err := headerFromBytes(buf)
	if err != nil {
		t.Fatalf("headerFromBytes: %v", err)
	}

	// Build a table whose single PT_LOAD entry describes exactly the
	// in-memory span buf occupies, plus a synthetic PT_PHDR pointing at the
	// real phdr table offset within it.
	tbl := &Table{Entries: []Entry{
		{Type: elfclass.PT_LOAD, Off: 0, Vaddr: 0, Filesz: uint64(len(buf)), Memsz: uint64(len(buf))},
		{Type: elfclass.PT_PHDR, Vaddr: h.Phoff},
	}}

	got, err := LocateSelf("fixture.so", tbl, h, int64(base))
	if err != nil {
		t.Fatalf("LocateSelf: %v", err)
	}
	want := base + uintptr(h.Phoff)
	if got != want {
		t.Errorf("LocateSelf() = 0x%x, want 0x%x", got, want)
	}
}

func TestLocateSelfWithoutPTPHDR(t *testing.T) {
	b := elfbuild.New()
	buf := b.AddSegment(elfbuild.Segment{Type: elfclass.PT_LOAD, Flags: elfclass.PF_R, Vaddr: 0, Filesz: 256, Memsz: 256, Align: 8, Data: make([]byte, 256)}).
		Build()

	base := fakeMapped(t, buf, nil)

	h, err := headerFromBytes(buf)
	if err != nil {
		t.Fatalf("headerFromBytes: %v", err)
	}

	tbl := &Table{Entries: []Entry{
		{Type: elfclass.PT_LOAD, Off: 0, Vaddr: 0, Filesz: uint64(len(buf)), Memsz: uint64(len(buf))},
	}}

	got, err := LocateSelf("fixture.so", tbl, h, int64(base))
	if err != nil {
		t.Fatalf("LocateSelf: %v", err)
	}
	want := base + uintptr(h.Phoff)
	if got != want {
		t.Errorf("LocateSelf() = 0x%x, want 0x%x", got, want)
	}
}

func TestLocateSelfFailsWhenNotInAnySegment(t *testing.T) {
	b := elfbuild.New()
	buf := b.AddSegment(elfbuild.Segment{Type: elfclass.PT_LOAD, Flags: elfclass.PF_R, Vaddr: 0, Filesz: 64, Memsz: 64, Align: 8, Data: make([]byte, 64)}).
		Build()

	base := fakeMapped(t, buf, nil)
	h, err := headerFromBytes(buf)
	if err != nil {
		t.Fatalf("headerFromBytes: %v", err)
	}

	// A PT_LOAD span far too small to contain the phdr table this header
	// actually has, so LocateSelf must fail rather than return a bogus
	// pointer.
	tbl := &Table{Entries: []Entry{
		{Type: elfclass.PT_LOAD, Off: 0, Vaddr: 0, Filesz: 4, Memsz: 4},
	}}

	if _, err := LocateSelf("fixture.so", tbl, h, int64(base)); err == nil {
		t.Fatal("expected PhdrNotLocatable when the candidate falls outside every PT_LOAD span")
	}
}

// headerFromBytes decodes just enough of a little-endian ELF64 header to
// build a header.Header, independent of header.Read (which wants a real fd
// rather than raw bytes).
func headerFromBytes(buf []byte) (*header.Header, error) {
	le := func(b []byte) uint64 {
		var v uint64
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v
	}
	le16 := func(b []byte) uint16 { return uint16(le(b)) }

	return &header.Header{
		Class:     elfclass.HostClass(),
		Phoff:     le(buf[0x20:0x28]),
		Shoff:     le(buf[0x28:0x30]),
		Phentsize: le16(buf[0x36:0x38]),
		Phnum:     le16(buf[0x38:0x3a]),
		Shentsize: le16(buf[0x3a:0x3c]),
		Shnum:     le16(buf[0x3c:0x3e]),
	}, nil
}
