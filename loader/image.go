// Package loader aggregates filewindow, header, phdr, dynsec, and vmspace's
// planning/reservation/mapping/protection machinery into the top-level
// ElfReader/Image API.
package loader

import (
	"github.com/xyproto/elfload/elfclass"
	"github.com/xyproto/elfload/header"
	"github.com/xyproto/elfload/phdr"
	"github.com/xyproto/elfload/vmspace"
)

// Image is the fully loaded object: its validated header, phdr table,
// computed bias, and reservation, ready for protection-management calls.
type Image struct {
	name       string
	fd         int
	fileOffset int64

	Header *header.Header
	Phdrs  *phdr.Table

	Reservation *vmspace.Reservation
	Bias        int64

	relro []phdr.Entry // PT_GNU_RELRO entries, cached for the Protect*/*Relro calls
}

// ProtectSegments applies each PT_LOAD segment's final protection flags.
func (img *Image) ProtectSegments() error {
	return vmspace.ProtectSegments(img.name, img.Phdrs.Loadable(), img.Bias)
}

// UnprotectSegments makes every PT_LOAD segment writable, for a collaborator
// performing relocations after Load.
func (img *Image) UnprotectSegments() error {
	return vmspace.UnprotectSegments(img.name, img.Phdrs.Loadable(), img.Bias)
}

// ProtectRelro applies PT_GNU_RELRO's final read-only protection in place.
// A no-op if the image has no PT_GNU_RELRO segment.
func (img *Image) ProtectRelro() error {
	if len(img.relro) == 0 {
		return nil
	}
	return vmspace.ProtectRelro(img.name, img.relro, img.Bias)
}

// SerializeRelro writes the image's current RELRO contents to fd so a
// sibling process can later share them via MapRelro.
func (img *Image) SerializeRelro(fd int) error {
	if len(img.relro) == 0 {
		return nil
	}
	return vmspace.SerializeRelro(img.name, img.relro, img.Bias, fd)
}

// MapRelro remaps the image's RELRO region from fd wherever its contents
// already match, sharing physical pages with whatever process wrote fd via
// SerializeRelro.
func (img *Image) MapRelro(fd int) error {
	if len(img.relro) == 0 {
		return nil
	}
	return vmspace.MapRelro(img.name, img.relro, img.Bias, fd)
}

// ARMExidx returns the image's PT_ARM_EXIDX table, biased into the mapped
// address space. Always (0, 0, false) on non-ARM builds.
func (img *Image) ARMExidx() (ptr uintptr, count int, ok bool) {
	return img.Phdrs.ARMExidx(img.Bias)
}

// DynamicSection returns the mapped, biased address of the image's
// PT_DYNAMIC segment, if any, for a collaborator that wants the in-memory
// view instead of the file-backed dynsec.DynamicView.
func (img *Image) DynamicSection() (ptr uintptr, flags uint32, ok bool) {
	entry, found := img.Phdrs.Find(elfclass.PT_DYNAMIC)
	if !found {
		return 0, 0, false
	}
	return uintptr(int64(entry.Vaddr) + img.Bias), entry.Flags, true
}

// release unmaps the phdr window (if still open) and then the reservation.
// Called by ElfReader.Load on any failure path after the reservation
// succeeded; it is unexported, so code outside this package cannot call it.
func (img *Image) release() {
	if img.Phdrs != nil {
		_ = img.Phdrs.Release()
	}
	if img.Reservation != nil {
		_ = img.Reservation.Release()
	}
}

