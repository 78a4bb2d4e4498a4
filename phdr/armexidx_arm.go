//go:build arm

package phdr

import "github.com/xyproto/elfload/elfclass"

// ARMExidx returns the biased pointer and entry count of the PT_ARM_EXIDX
// segment, when present. Only meaningful on 32-bit ARM.
func (t *Table) ARMExidx(bias int64) (ptr uintptr, count int, ok bool) {
	e, found := t.Find(elfclass.PT_ARM_EXIDX)
	if !found {
		return 0, 0, false
	}
	const exidxEntrySize = 8 // two 32-bit words per unwind table entry
	return uintptr(int64(e.Vaddr) + bias), int(e.Memsz / exidxEntrySize), true
}
