//go:build !arm

package phdr

// ARMExidx is meaningless on every target except 32-bit ARM. It statically
// returns ok=false here rather than being compiled out, so collaborators
// can call it unconditionally.
func (t *Table) ARMExidx(bias int64) (ptr uintptr, count int, ok bool) {
	return 0, 0, false
}
