package loader

import (
	"github.com/xyproto/elfload/dynsec"
	"github.com/xyproto/elfload/elfclass"
	"github.com/xyproto/elfload/elferr"
	"github.com/xyproto/elfload/header"
	"github.com/xyproto/elfload/phdr"
	"github.com/xyproto/elfload/registry"
	"github.com/xyproto/elfload/vmspace"
)

// ElfReader drives the control flow of a load: read and validate the
// header, load the phdr table, optionally read the dynamic section, then
// (on Load) plan the address-space layout, reserve it, map every PT_LOAD
// segment, and locate the image's own phdr table in the mapped result.
type ElfReader struct {
	ctx        *registry.LoaderContext
	name       string
	fd         int
	fileOffset int64

	header *header.Header
	phdrs  *phdr.Table
}

// NewReader reads and validates the ELF header and program header table at
// fileOffset on fd. Nothing is mapped into the caller's address space yet;
// that happens in Load.
func NewReader(ctx *registry.LoaderContext, name string, fd int, fileOffset int64) (*ElfReader, error) {
	h, err := header.Read(name, fd, fileOffset)
	if err != nil {
		return nil, err
	}
	t, err := phdr.Load(name, fd, h)
	if err != nil {
		return nil, err
	}
	return &ElfReader{ctx: ctx, name: name, fd: fd, fileOffset: fileOffset, header: h, phdrs: t}, nil
}

// ReadDynamic locates and maps SHT_DYNAMIC and its string table. Safe to
// call before or after Load; it opens its own file-backed windows
// independent of the segment mapping Load performs.
func (r *ElfReader) ReadDynamic() (*dynsec.DynamicView, error) {
	return dynsec.Read(r.name, r.fd, r.header)
}

// Load plans the address-space layout, reserves it per policy, maps every
// PT_LOAD segment at the resulting bias, and locates the image's own phdr
// table in the mapped result. On any failure after the reservation
// succeeds, every window opened so far is released before returning.
func (r *ElfReader) Load(policy vmspace.ReservationPolicy) (*Image, error) {
	loadable := r.phdrs.Loadable()
	if len(loadable) == 0 {
		return nil, elferr.New(r.name, elferr.NoLoadable)
	}

	layout := vmspace.Plan(r.phdrs)
	reservation, err := vmspace.Reserve(r.name, r.ctx, layout, policy)
	if err != nil {
		return nil, err
	}

	img := &Image{
		name:        r.name,
		fd:          r.fd,
		fileOffset:  r.fileOffset,
		Header:      r.header,
		Phdrs:       r.phdrs,
		Reservation: reservation,
		Bias:        reservation.Bias,
		relro:       r.phdrs.FindAll(elfclass.PT_GNU_RELRO),
	}

	if err := vmspace.MapSegments(r.name, r.fd, r.fileOffset, loadable, img.Bias); err != nil {
		img.release()
		return nil, err
	}

	if _, err := phdr.LocateSelf(r.name, r.phdrs, r.header, img.Bias); err != nil {
		img.release()
		return nil, err
	}
	_ = r.phdrs.Release()

	return img, nil
}
