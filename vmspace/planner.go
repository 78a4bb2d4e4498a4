// Package vmspace computes virtual address layout, performs the anonymous
// reservation, maps PT_LOAD segments at the right bias, and manages
// segment/RELRO protection.
package vmspace

import (
	"github.com/xyproto/elfload/elfclass"
	"github.com/xyproto/elfload/phdr"
)

// Layout is the result of AddressSpacePlanner: the page-aligned virtual
// extent across every PT_LOAD segment.
type Layout struct {
	Start uint64 // PAGE_START(min_vaddr)
	End   uint64 // PAGE_END(max_vaddr)
	Size  uint64 // End - Start; the reservation size
}

// Plan computes the minimum/maximum virtual address extent across all
// PT_LOAD segments. If no PT_LOAD exists, min_vaddr is treated as 0;
// callers still see Size == 0 in that case because End also collapses to
// PAGE_END(0) == 0.
func Plan(t *phdr.Table) Layout {
	loadable := t.Loadable()
	if len(loadable) == 0 {
		return Layout{}
	}

	minVaddr := loadable[0].Vaddr
	maxVaddr := loadable[0].Vaddr + loadable[0].Memsz
	for _, e := range loadable[1:] {
		if e.Vaddr < minVaddr {
			minVaddr = e.Vaddr
		}
		if end := e.Vaddr + e.Memsz; end > maxVaddr {
			maxVaddr = end
		}
	}

	start := elfclass.PageStart(minVaddr)
	end := elfclass.PageEnd(maxVaddr)
	return Layout{Start: start, End: end, Size: end - start}
}
