//go:build windows

package process

import (
	"os"
	"testing"
	"unsafe"

	"golang.org/x/sys/windows"

	"wcscan/pkg/memscan"
)

func openSelf(t *testing.T) *Process {
	t.Helper()
	p, err := Open(uint32(os.Getpid()))
	if err != nil {
		t.Fatalf("open self: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// allocRW commits a fresh private read-write region and returns it as a slice.
func allocRW(t *testing.T, size uintptr) (uintptr, []byte) {
	t.Helper()
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil || addr == 0 {
		t.Fatalf("VirtualAlloc: %v", err)
	}
	t.Cleanup(func() { _ = windows.VirtualFree(addr, 0, windows.MEM_RELEASE) })
	return addr, unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}

func containsAddress(found []memscan.FoundAddress, target uint64) bool {
	for _, f := range found {
		if f.Address == target {
			return true
		}
	}
	return false
}
