//go:build linux

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"wcscan/pkg/memscan"
)

// Process is an opened target. The region layout is read from
// /proc/<pid>/maps; a query at address zero refreshes it, so each
// enumeration sees a fresh snapshot.
type Process struct {
	pid int

	mu      sync.Mutex
	regions []memscan.MemoryRegion
}

func Open(pid uint32) (*Process, error) {
	p := &Process{pid: int(pid)}
	if err := p.Alive(); err != nil {
		return nil, err
	}
	if err := p.refresh(); err != nil {
		return nil, fmt.Errorf("%w: pid %d: %w", memscan.ErrProcessUnavailable, pid, err)
	}
	return p, nil
}

func (p *Process) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	p.regions = nil
	p.mu.Unlock()
	return nil
}

func (p *Process) PID() uint32 { return uint32(p.pid) }

func (p *Process) refresh() error {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", p.pid))
	if err != nil {
		return err
	}
	defer f.Close()
	maps, err := parseMaps(f)
	if err != nil {
		return err
	}
	regions := mapsToRegions(maps)
	p.mu.Lock()
	p.regions = regions
	p.mu.Unlock()
	return nil
}

func (p *Process) QueryRegion(ctx context.Context, addr uint64) (memscan.MemoryRegion, error) {
	if err := ctx.Err(); err != nil {
		return memscan.MemoryRegion{}, err
	}
	p.mu.Lock()
	stale := addr == 0 || p.regions == nil
	p.mu.Unlock()
	if stale {
		if err := p.refresh(); err != nil {
			return memscan.MemoryRegion{}, memscan.NewMemoryAccessError("query", addr, 0, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return regionAt(p.regions, addr)
}

func (p *Process) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	if err := checkSize(addr, size); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	err := readChunks(ctx, addr, buf, func(at uint64, b []byte) (int, error) {
		local := []unix.Iovec{{Base: &b[0]}}
		local[0].SetLen(len(b))
		remote := []unix.RemoteIovec{{Base: uintptr(at), Len: len(b)}}
		return unix.ProcessVMReadv(p.pid, local, remote, 0)
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *Process) Alive() error {
	err := unix.Kill(p.pid, 0)
	switch {
	case err == nil, errors.Is(err, unix.EPERM):
		return nil
	default:
		return fmt.Errorf("%w: pid %d: %w", memscan.ErrProcessUnavailable, p.pid, err)
	}
}
