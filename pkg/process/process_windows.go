//go:build windows

package process

import (
	"context"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"wcscan/pkg/memscan"
)

// STILL_ACTIVE exit code.
const stillActive = 259

type Process struct {
	Handle windows.Handle
	pid    uint32
}

func Open(pid uint32) (*Process, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, pid)
	if err != nil {
		return nil, fmt.Errorf("%w: open pid %d: %w", memscan.ErrProcessUnavailable, pid, err)
	}
	return &Process{Handle: h, pid: pid}, nil
}

func (p *Process) Close() error {
	if p == nil || p.Handle == 0 {
		return nil
	}
	err := windows.CloseHandle(p.Handle)
	p.Handle = 0
	return err
}

func (p *Process) PID() uint32 { return p.pid }

func (p *Process) QueryRegion(ctx context.Context, addr uint64) (memscan.MemoryRegion, error) {
	if err := ctx.Err(); err != nil {
		return memscan.MemoryRegion{}, err
	}
	if p == nil || p.Handle == 0 {
		return memscan.MemoryRegion{}, memscan.ErrProcessUnavailable
	}
	var mbi windows.MemoryBasicInformation
	if err := windows.VirtualQueryEx(p.Handle, uintptr(addr), &mbi, unsafe.Sizeof(mbi)); err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return memscan.MemoryRegion{}, memscan.ErrNoMoreRegions
		}
		return memscan.MemoryRegion{}, memscan.NewMemoryAccessError("query", addr, 0, err)
	}
	return regionFromMBI(&mbi), nil
}

func (p *Process) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	if err := checkSize(addr, size); err != nil {
		return nil, err
	}
	if p == nil || p.Handle == 0 {
		return nil, memscan.ErrProcessUnavailable
	}
	buf := make([]byte, size)
	err := readChunks(ctx, addr, buf, func(at uint64, b []byte) (int, error) {
		var read uintptr
		err := windows.ReadProcessMemory(p.Handle, uintptr(at), &b[0], uintptr(len(b)), &read)
		return int(read), err
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *Process) Alive() error {
	if p == nil || p.Handle == 0 {
		return memscan.ErrProcessUnavailable
	}
	var code uint32
	if err := windows.GetExitCodeProcess(p.Handle, &code); err != nil {
		return fmt.Errorf("%w: pid %d: %w", memscan.ErrProcessUnavailable, p.pid, err)
	}
	if code != stillActive {
		return fmt.Errorf("%w: pid %d exited with code %d", memscan.ErrProcessUnavailable, p.pid, code)
	}
	return nil
}
