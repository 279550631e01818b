package memscan

import (
	"context"
	"errors"
	"sort"
	"sync"
)

type fakeRegion struct {
	MemoryRegion
	data []byte
}

// fakeTarget is an in-memory address space. Regions must not overlap.
type fakeTarget struct {
	mu      sync.Mutex
	regions []fakeRegion
	failAt  map[uint64]error
	dead    error
	reads   []uint64
	queries int
}

func newFakeTarget(regions ...fakeRegion) *fakeTarget {
	sort.Slice(regions, func(i, j int) bool { return regions[i].BaseAddress < regions[j].BaseAddress })
	return &fakeTarget{regions: regions, failAt: map[uint64]error{}}
}

func privateRW(base uint64, data []byte) fakeRegion {
	return fakeRegion{
		MemoryRegion: MemoryRegion{
			BaseAddress: base,
			Size:        uint64(len(data)),
			Protection:  ProtReadWrite,
			State:       StateCommitted,
			Kind:        KindPrivate,
		},
		data: data,
	}
}

func (f *fakeTarget) Alive() error { return f.dead }

func (f *fakeTarget) QueryRegion(_ context.Context, addr uint64) (MemoryRegion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	for _, r := range f.regions {
		if r.End() > addr {
			return r.MemoryRegion, nil
		}
	}
	return MemoryRegion{}, ErrNoMoreRegions
}

func (f *fakeTarget) ReadMemory(_ context.Context, addr uint64, size int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, addr)
	if err, ok := f.failAt[addr]; ok {
		return nil, NewMemoryAccessError("read", addr, size, err)
	}
	for _, r := range f.regions {
		if r.Contains(addr) {
			off := addr - r.BaseAddress
			if off+uint64(size) > uint64(len(r.data)) {
				return nil, ShortReadError(addr, size, len(r.data)-int(off))
			}
			return append([]byte(nil), r.data[off:off+uint64(size)]...), nil
		}
	}
	return nil, NewMemoryAccessError("read", addr, size, errors.New("unmapped"))
}

func (f *fakeTarget) write(addr uint64, b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.regions {
		if r.Contains(addr) {
			copy(r.data[addr-r.BaseAddress:], b)
			return
		}
	}
}

func (f *fakeTarget) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reads)
}

// memReader serves reads from a flat map of little blocks.
type memReader map[uint64][]byte

func (m memReader) ReadMemory(_ context.Context, addr uint64, size int) ([]byte, error) {
	for base, b := range m {
		if addr >= base && addr+uint64(size) <= base+uint64(len(b)) {
			off := addr - base
			return append([]byte(nil), b[off:off+uint64(size)]...), nil
		}
	}
	return nil, NewMemoryAccessError("read", addr, size, errors.New("unmapped"))
}

var wc3GameState = ScanPattern{
	Name:    "GameState",
	Pattern: []byte{0x8B, 0x0D, 0x00, 0x00, 0x00, 0x00, 0x85, 0xC9},
	Mask:    []bool{true, true, false, false, false, false, true, true},
	Type:    GameState,
}

func filled(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
