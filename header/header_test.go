package header

import (
	"os"
	"testing"

	"github.com/xyproto/elfload/elfclass"
	"github.com/xyproto/elfload/testutil/elfbuild"
)

func writeFixture(t *testing.T, buf []byte) (fd int, cleanup func()) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "fixture-*.so")
	if err != nil {
		t.Fatalf("create temp fixture: %v", err)
	}
	if _, err := f.Write(buf); err != nil {
		t.Fatalf("write temp fixture: %v", err)
	}
	return int(f.Fd()), func() { f.Close() }
}

func TestReadValidHeader(t *testing.T) {
	buf := elfbuild.New().
		AddSegment(elfbuild.Segment{Type: elfclass.PT_LOAD, Flags: elfclass.PF_R | elfclass.PF_X, Vaddr: 0x1000, Filesz: 16, Memsz: 16, Data: make([]byte, 16)}).
		Build()

	fd, cleanup := writeFixture(t, buf)
	defer cleanup()

	h, err := Read("fixture.so", fd, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if h.Class != elfclass.HostClass() {
		t.Errorf("Class = %v, want %v", h.Class, elfclass.HostClass())
	}
	if h.Type != elfclass.ET_DYN {
		t.Errorf("Type = %d, want ET_DYN", h.Type)
	}
	if h.Machine != elfclass.HostMachine() {
		t.Errorf("Machine = %d, want %d", h.Machine, elfclass.HostMachine())
	}
	if h.Phnum != 1 {
		t.Errorf("Phnum = %d, want 1", h.Phnum)
	}
}

func TestReadBadMagic(t *testing.T) {
	buf := elfbuild.New().
		AddSegment(elfbuild.Segment{Type: elfclass.PT_LOAD, Filesz: 1, Memsz: 1, Data: []byte{0}}).
		Build()
	buf[0] = 0x00 // corrupt the magic number

	fd, cleanup := writeFixture(t, buf)
	defer cleanup()

	if _, err := Read("fixture.so", fd, 0); err == nil {
		t.Fatal("expected an error for a corrupted magic number")
	}
}

func TestReadShortFile(t *testing.T) {
	fd, cleanup := writeFixture(t, []byte{0x7f, 'E', 'L', 'F'})
	defer cleanup()

	if _, err := Read("short.so", fd, 0); err == nil {
		t.Fatal("expected an error for a truncated header")
	}
}

func TestReadBadType(t *testing.T) {
	b := elfbuild.New()
	buf := b.AddSegment(elfbuild.Segment{Type: elfclass.PT_LOAD, Filesz: 1, Memsz: 1, Data: []byte{0}}).Build()
	// e_type lives right after e_ident (offset 0x10), little-endian uint16.
	buf[0x10] = 0x02 // ET_EXEC instead of ET_DYN
	buf[0x11] = 0x00

	fd, cleanup := writeFixture(t, buf)
	defer cleanup()

	if _, err := Read("exec.so", fd, 0); err == nil {
		t.Fatal("expected an error for a non-ET_DYN object")
	}
}

func TestReadAtNonzeroOffset(t *testing.T) {
	buf := elfbuild.New().
		AddSegment(elfbuild.Segment{Type: elfclass.PT_LOAD, Filesz: 1, Memsz: 1, Data: []byte{0}}).
		Build()
	padded := append(make([]byte, 512), buf...)

	fd, cleanup := writeFixture(t, padded)
	defer cleanup()

	h, err := Read("fixture.so", fd, 512)
	if err != nil {
		t.Fatalf("Read at offset 512: %v", err)
	}
	if h.Phnum != 1 {
		t.Errorf("Phnum = %d, want 1", h.Phnum)
	}
}
