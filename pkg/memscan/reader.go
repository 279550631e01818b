package memscan

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
)

// Reader reads exactly size bytes at addr or fails with a MemoryAccessError.
// Implementations never zero-pad and never retry.
type Reader interface {
	ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error)
}

// RegionQuerier returns the region containing addr, or the next region above
// it. It returns ErrNoMoreRegions once nothing lies at or above addr.
type RegionQuerier interface {
	QueryRegion(ctx context.Context, addr uint64) (MemoryRegion, error)
}

// Target is an attached process as seen by the scanner. The scanner never
// opens, closes or elevates it.
type Target interface {
	Reader
	RegionQuerier
	Alive() error
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, addr uint64, size int) ([]byte, error)

func (f ReaderFunc) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	return f(ctx, addr, size)
}

// readExact guards against readers that return fewer bytes than asked or
// report failures without a MemoryAccessError.
func readExact(ctx context.Context, r Reader, addr uint64, size int) ([]byte, error) {
	buf, err := r.ReadMemory(ctx, addr, size)
	if err != nil {
		if !errors.Is(err, ErrMemoryAccess) {
			err = NewMemoryAccessError("read", addr, size, err)
		}
		return nil, err
	}
	if len(buf) < size {
		return nil, ShortReadError(addr, size, len(buf))
	}
	return buf[:size], nil
}

func ReadBytes(ctx context.Context, r Reader, addr uint64, size int) ([]byte, error) {
	return readExact(ctx, r, addr, size)
}

func ReadUint32(ctx context.Context, r Reader, addr uint64) (uint32, error) {
	buf, err := readExact(ctx, r, addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func ReadInt32(ctx context.Context, r Reader, addr uint64) (int32, error) {
	v, err := ReadUint32(ctx, r, addr)
	return int32(v), err
}

func ReadUint64(ctx context.Context, r Reader, addr uint64) (uint64, error) {
	buf, err := readExact(ctx, r, addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func ReadFloat32(ctx context.Context, r Reader, addr uint64) (float32, error) {
	v, err := ReadUint32(ctx, r, addr)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}
