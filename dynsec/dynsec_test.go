package dynsec

import (
	"os"
	"testing"

	"github.com/xyproto/elfload/elfclass"
	"github.com/xyproto/elfload/header"
	"github.com/xyproto/elfload/testutil/elfbuild"
)

// readFixture returns the open *os.File alongside the header, so callers
// keep a live reference to it (an *os.File's finalizer closes its fd once
// unreachable, which would otherwise race the test).
func readFixture(t *testing.T, buf []byte) (*header.Header, *os.File) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "fixture-*.so")
	if err != nil {
		t.Fatalf("create temp fixture: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	if _, err := f.Write(buf); err != nil {
		t.Fatalf("write temp fixture: %v", err)
	}
	h, err := header.Read("fixture.so", int(f.Fd()), 0)
	if err != nil {
		t.Fatalf("header.Read: %v", err)
	}
	return h, f
}

func TestReadDynamicTagsAndStrings(t *testing.T) {
	strtab := []byte{0, 'l', 'i', 'b', 'c', '.', 's', 'o', 0}
	tags := []elfbuild.DynTag{
		{Tag: elfclass.DT_NEEDED, Val: 1},
		{Tag: elfclass.DT_STRSZ, Val: uint64(len(strtab))},
		{Tag: elfclass.DT_NULL, Val: 0},
	}
	buf := elfbuild.New().
		AddSegment(elfbuild.Segment{Type: elfclass.PT_LOAD, Flags: elfclass.PF_R | elfclass.PF_X, Vaddr: 0x1000, Filesz: 16, Memsz: 16, Data: make([]byte, 16)}).
		SetDynamic(0x4000, tags, 0x5000, strtab).
		Build()

	h, f := readFixture(t, buf)

	view, err := Read("fixture.so", int(f.Fd()), h)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer view.Release()

	if len(view.Tags) != len(tags) {
		t.Fatalf("got %d tags, want %d", len(view.Tags), len(tags))
	}
	for i, want := range tags {
		if view.Tags[i].Tag != want.Tag || view.Tags[i].Val != want.Val {
			t.Errorf("tag %d = %+v, want %+v", i, view.Tags[i], want)
		}
	}

	if got := view.GetString(1); got != "libc.so" {
		t.Errorf("GetString(1) = %q, want %q", got, "libc.so")
	}
}

func TestReadNoDynamicWhenShnumZero(t *testing.T) {
	buf := elfbuild.New().
		AddSegment(elfbuild.Segment{Type: elfclass.PT_LOAD, Filesz: 1, Memsz: 1, Data: []byte{0}}).
		Build()
	h, f := readFixture(t, buf)

	_, err := Read("fixture.so", int(f.Fd()), h)
	if err == nil {
		t.Fatal("expected NoDynamic when the object carries no section headers")
	}
}

func TestReadBadDynamicLink(t *testing.T) {
	strtab := []byte{0}
	buf := elfbuild.New().
		AddSegment(elfbuild.Segment{Type: elfclass.PT_LOAD, Filesz: 1, Memsz: 1, Data: []byte{0}}).
		SetDynamic(0x4000, []elfbuild.DynTag{{Tag: elfclass.DT_NULL}}, 0x5000, strtab).
		Build()
	h, f := readFixture(t, buf)

	// Corrupt SHT_DYNAMIC's sh_link (index 2, field at relative offset 40
	// within Shdr64) to point past the end of the section header table.
	shdrStart := int(h.Shoff) + 2*elfclass.SizeofShdr64
	if _, err := f.WriteAt([]byte{0xff}, int64(shdrStart+40)); err != nil {
		t.Fatalf("corrupt fixture: %v", err)
	}

	if _, err := Read("fixture.so", int(f.Fd()), h); err == nil {
		t.Fatal("expected BadDynamicLink when sh_link is out of range")
	}
}
