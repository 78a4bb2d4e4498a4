package vmspace

import "unsafe"

func unsafeSlice(addr, length uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length))
}
