// Package header reads and validates the fixed ELF header at a file
// offset.
package header

import (
	"bytes"
	"encoding/binary"

	"github.com/xyproto/elfload/elfclass"
	"github.com/xyproto/elfload/elferr"
	"github.com/xyproto/elfload/filewindow"
)

var elfMagic = [4]byte{0x7f, 'E', 'L', 'F'}

// Header is the validated, class-erased view of an ELF header: every field
// the rest of the loader needs, widened to 64 bits regardless of the
// object's actual class.
type Header struct {
	Class     elfclass.Class
	Type      uint16
	Machine   uint16
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// Read reads sizeof(Header) bytes at fileOffset and validates them in
// order: magic, class, endianness, type, version, machine. The first
// failing check short-circuits the load.
func Read(name string, fd int, fileOffset int64) (*Header, error) {
	// Read the widest possible header (64-bit); a 32-bit object only needs
	// the first SizeofHeader32 bytes of this, which is still >= the bytes
	// actually required to find e_ident.
	buf := make([]byte, elfclass.SizeofHeader64)
	n, err := filewindow.Pread(fd, buf, fileOffset)
	if err != nil {
		return nil, elferr.Wrap(name, "pread", err)
	}
	if n < elfclass.SizeofHeader32 {
		return nil, &elferr.LoadError{Name: name, Kind: elferr.ShortRead,
			Expected: elfclass.SizeofHeader32, Got: uint64(n)}
	}

	if !bytes.Equal(buf[0:4], elfMagic[:]) {
		return nil, &elferr.LoadError{Name: name, Kind: elferr.BadMagic}
	}

	classByte := buf[elfclass.EI_CLASS]
	var class elfclass.Class
	switch classByte {
	case elfclass.ELFCLASS32:
		class = elfclass.Elf32
	case elfclass.ELFCLASS64:
		class = elfclass.Elf64
	default:
		return nil, &elferr.LoadError{Name: name, Kind: elferr.BadClass,
			Got: uint64(classByte)}
	}
	host := elfclass.HostClass()
	if class != host {
		return nil, &elferr.LoadError{Name: name, Kind: elferr.BadClass,
			Expected: uint64(host.WordSize() * 8), Got: uint64(class.WordSize() * 8)}
	}

	if buf[elfclass.EI_DATA] != elfclass.ELFDATA2LSB {
		return nil, &elferr.LoadError{Name: name, Kind: elferr.BadEndianness}
	}

	h := &Header{Class: class}
	var version uint32
	if class == elfclass.Elf64 {
		if n < elfclass.SizeofHeader64 {
			return nil, &elferr.LoadError{Name: name, Kind: elferr.ShortRead,
				Expected: elfclass.SizeofHeader64, Got: uint64(n)}
		}
		var raw elfclass.Header64
		decode64(buf, &raw)
		h.Type = raw.Type
		h.Machine = raw.Machine
		h.Entry = raw.Entry
		h.Phoff = raw.Phoff
		h.Shoff = raw.Shoff
		h.Phentsize = raw.Phentsize
		h.Phnum = raw.Phnum
		h.Shentsize = raw.Shentsize
		h.Shnum = raw.Shnum
		h.Shstrndx = raw.Shstrndx
		version = raw.Version
	} else {
		var raw elfclass.Header32
		decode32(buf, &raw)
		h.Type = raw.Type
		h.Machine = raw.Machine
		h.Entry = uint64(raw.Entry)
		h.Phoff = uint64(raw.Phoff)
		h.Shoff = uint64(raw.Shoff)
		h.Phentsize = raw.Phentsize
		h.Phnum = raw.Phnum
		h.Shentsize = raw.Shentsize
		h.Shnum = raw.Shnum
		h.Shstrndx = raw.Shstrndx
		version = raw.Version
	}

	if h.Type != elfclass.ET_DYN {
		return nil, &elferr.LoadError{Name: name, Kind: elferr.BadType}
	}

	if version != elfclass.EV_CURRENT {
		return nil, &elferr.LoadError{Name: name, Kind: elferr.BadVersion}
	}

	wantMachine := elfclass.HostMachine()
	if h.Machine != wantMachine {
		return nil, &elferr.LoadError{Name: name, Kind: elferr.BadMachine,
			Expected: uint64(wantMachine), Got: uint64(h.Machine)}
	}

	return h, nil
}

func decode64(buf []byte, h *elfclass.Header64) {
	copy(h.Ident[:], buf[0:elfclass.EI_NIDENT])
	r := bytes.NewReader(buf[elfclass.EI_NIDENT:])
	binary.Read(r, binary.LittleEndian, &h.Type)
	binary.Read(r, binary.LittleEndian, &h.Machine)
	binary.Read(r, binary.LittleEndian, &h.Version)
	binary.Read(r, binary.LittleEndian, &h.Entry)
	binary.Read(r, binary.LittleEndian, &h.Phoff)
	binary.Read(r, binary.LittleEndian, &h.Shoff)
	binary.Read(r, binary.LittleEndian, &h.Flags)
	binary.Read(r, binary.LittleEndian, &h.Ehsize)
	binary.Read(r, binary.LittleEndian, &h.Phentsize)
	binary.Read(r, binary.LittleEndian, &h.Phnum)
	binary.Read(r, binary.LittleEndian, &h.Shentsize)
	binary.Read(r, binary.LittleEndian, &h.Shnum)
	binary.Read(r, binary.LittleEndian, &h.Shstrndx)
}

func decode32(buf []byte, h *elfclass.Header32) {
	copy(h.Ident[:], buf[0:elfclass.EI_NIDENT])
	r := bytes.NewReader(buf[elfclass.EI_NIDENT:])
	binary.Read(r, binary.LittleEndian, &h.Type)
	binary.Read(r, binary.LittleEndian, &h.Machine)
	binary.Read(r, binary.LittleEndian, &h.Version)
	binary.Read(r, binary.LittleEndian, &h.Entry)
	binary.Read(r, binary.LittleEndian, &h.Phoff)
	binary.Read(r, binary.LittleEndian, &h.Shoff)
	binary.Read(r, binary.LittleEndian, &h.Flags)
	binary.Read(r, binary.LittleEndian, &h.Ehsize)
	binary.Read(r, binary.LittleEndian, &h.Phentsize)
	binary.Read(r, binary.LittleEndian, &h.Phnum)
	binary.Read(r, binary.LittleEndian, &h.Shentsize)
	binary.Read(r, binary.LittleEndian, &h.Shnum)
	binary.Read(r, binary.LittleEndian, &h.Shstrndx)
}
