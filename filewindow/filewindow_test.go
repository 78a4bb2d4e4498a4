package filewindow

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestPreadReadsExactBytes(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "pread-*.bin")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer f.Close()

	want := []byte("some file contents")
	if _, err := f.Write(want); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := make([]byte, len(want))
	n, err := Pread(int(f.Fd()), got, 0)
	if err != nil {
		t.Fatalf("Pread: %v", err)
	}
	if n != len(want) || string(got) != string(want) {
		t.Errorf("Pread = %q (%d bytes), want %q", got, n, want)
	}
}

func TestWriteWritesAllBytes(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "write-*.bin")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer f.Close()

	want := []byte("written by filewindow.Write")
	n, err := Write(int(f.Fd()), want)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(want) {
		t.Errorf("Write returned %d, want %d", n, len(want))
	}

	got, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("file contents = %q, want %q", got, want)
	}
}

func TestOpenExposesExactRequestedRange(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "window-*.bin")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer f.Close()

	data := make([]byte, 8192)
	copy(data[100:], []byte("needle"))
	if _, err := f.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}

	w, err := Open(int(f.Fd()), 100, 6)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Release()

	if w.Size() != 6 {
		t.Errorf("Size() = %d, want 6", w.Size())
	}
	if string(w.Bytes()) != "needle" {
		t.Errorf("Bytes() = %q, want %q", w.Bytes(), "needle")
	}
}

func TestOpenZeroSizeIsNoop(t *testing.T) {
	w, err := Open(-1, 0, 0)
	if err != nil {
		t.Fatalf("Open(size=0): %v", err)
	}
	if w.Size() != 0 || w.Bytes() != nil {
		t.Error("expected a zero-size window to be inert")
	}
	if err := w.Release(); err != nil {
		t.Errorf("Release on zero-size window: %v", err)
	}
}

func TestMmapFixedAndMprotect(t *testing.T) {
	size := uintptr(unix.Getpagesize())
	addr, err := MmapAnon(0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		t.Fatalf("MmapAnon: %v", err)
	}
	defer Munmap(addr, size)

	got, err := MmapFixed(addr, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS, -1, 0)
	if err != nil {
		t.Fatalf("MmapFixed: %v", err)
	}
	if got != addr {
		t.Errorf("MmapFixed returned 0x%x, want 0x%x", got, addr)
	}

	ZeroFill(addr, size)

	if err := Mprotect(addr, size, unix.PROT_READ); err != nil {
		t.Fatalf("Mprotect: %v", err)
	}
}
