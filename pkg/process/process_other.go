//go:build !windows && !linux

package process

import (
	"context"
	"fmt"
	"runtime"

	"wcscan/pkg/memscan"
)

type Process struct {
	pid uint32
}

func Open(pid uint32) (*Process, error) {
	return nil, fmt.Errorf("%w: memory access is not supported on %s", memscan.ErrProcessUnavailable, runtime.GOOS)
}

func (p *Process) Close() error { return nil }

func (p *Process) PID() uint32 { return p.pid }

func (p *Process) QueryRegion(context.Context, uint64) (memscan.MemoryRegion, error) {
	return memscan.MemoryRegion{}, memscan.ErrProcessUnavailable
}

func (p *Process) ReadMemory(context.Context, uint64, int) ([]byte, error) {
	return nil, memscan.ErrProcessUnavailable
}

func (p *Process) Alive() error { return memscan.ErrProcessUnavailable }
