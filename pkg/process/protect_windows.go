//go:build windows

package process

import (
	"golang.org/x/sys/windows"

	"wcscan/pkg/memscan"
)

const (
	memMapped = 0x40000
	memImage  = 0x1000000
)

func protection(protect uint32) memscan.Protection {
	if protect&windows.PAGE_GUARD != 0 {
		return memscan.ProtNone
	}
	switch protect & 0xFF { // mask out modifier flags
	case windows.PAGE_READONLY:
		return memscan.ProtReadOnly
	case windows.PAGE_READWRITE:
		return memscan.ProtReadWrite
	case windows.PAGE_WRITECOPY, windows.PAGE_EXECUTE_WRITECOPY:
		return memscan.ProtCopyOnWrite
	case windows.PAGE_EXECUTE:
		return memscan.ProtExecute
	case windows.PAGE_EXECUTE_READ:
		return memscan.ProtExecuteRead
	case windows.PAGE_EXECUTE_READWRITE:
		return memscan.ProtExecuteReadWrite
	default:
		return memscan.ProtNone
	}
}

func state(s uint32) memscan.State {
	switch s {
	case windows.MEM_COMMIT:
		return memscan.StateCommitted
	case windows.MEM_RESERVE:
		return memscan.StateReserved
	default:
		return memscan.StateFree
	}
}

func kind(t uint32) memscan.Kind {
	switch t {
	case memImage:
		return memscan.KindImage
	case memMapped:
		return memscan.KindMapped
	default:
		return memscan.KindPrivate
	}
}

func regionFromMBI(mbi *windows.MemoryBasicInformation) memscan.MemoryRegion {
	return memscan.MemoryRegion{
		BaseAddress: uint64(mbi.BaseAddress),
		Size:        uint64(mbi.RegionSize),
		Protection:  protection(mbi.Protect),
		State:       state(mbi.State),
		Kind:        kind(mbi.Type),
	}
}
