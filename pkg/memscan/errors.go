package memscan

import (
	"errors"
	"fmt"
)

var (
	ErrMemoryAccess       = errors.New("memory access failed")
	ErrInvalidPattern     = errors.New("invalid pattern")
	ErrProcessUnavailable = errors.New("process unavailable")
	ErrNoMoreRegions      = errors.New("no more regions")
	ErrUnknownPattern     = errors.New("unknown pattern")
)

// MemoryAccessError reports a failed query or read against the target.
type MemoryAccessError struct {
	Op      string
	Address uint64
	Size    int
	Err     error
}

func (e *MemoryAccessError) Error() string {
	msg := fmt.Sprintf("%s at 0x%X", e.Op, e.Address)
	if e.Size > 0 {
		msg = fmt.Sprintf("%s (%d bytes)", msg, e.Size)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *MemoryAccessError) Unwrap() error { return e.Err }

func (e *MemoryAccessError) Is(target error) bool {
	return target == ErrMemoryAccess
}

// NewMemoryAccessError is a convenience for backends.
func NewMemoryAccessError(op string, addr uint64, size int, err error) error {
	return &MemoryAccessError{Op: op, Address: addr, Size: size, Err: err}
}

type InvalidPatternError struct {
	Name   string
	Reason string
}

func (e *InvalidPatternError) Error() string {
	if e.Name == "" {
		return "invalid pattern: " + e.Reason
	}
	return fmt.Sprintf("invalid pattern %q: %s", e.Name, e.Reason)
}

func (e *InvalidPatternError) Is(target error) bool {
	return target == ErrInvalidPattern
}

// ShortReadError is returned by backends when the OS transferred fewer bytes
// than requested.
func ShortReadError(addr uint64, want, got int) error {
	return &MemoryAccessError{
		Op:      "read",
		Address: addr,
		Size:    want,
		Err:     fmt.Errorf("short read: %d", got),
	}
}
