package memscan

import (
	"fmt"
)

// MaxUserAddress bounds region enumeration for 64-bit targets.
const MaxUserAddress uint64 = 0x7FFF_FFFF_FFFF

type Protection uint8

const (
	ProtNone Protection = iota
	ProtReadOnly
	ProtReadWrite
	ProtExecute
	ProtExecuteRead
	ProtExecuteReadWrite
	ProtCopyOnWrite
)

var protectionNames = [...]string{
	ProtNone:             "none",
	ProtReadOnly:         "read_only",
	ProtReadWrite:        "read_write",
	ProtExecute:          "execute",
	ProtExecuteRead:      "execute_read",
	ProtExecuteReadWrite: "execute_read_write",
	ProtCopyOnWrite:      "copy_on_write",
}

func (p Protection) String() string {
	if int(p) < len(protectionNames) {
		return protectionNames[p]
	}
	return fmt.Sprintf("protection(%d)", uint8(p))
}

func (p Protection) Readable() bool {
	switch p {
	case ProtReadOnly, ProtReadWrite, ProtExecuteRead, ProtExecuteReadWrite, ProtCopyOnWrite:
		return true
	default:
		return false
	}
}

// Writable reports ReadWrite or broader; copy-on-write pages accept writes too.
func (p Protection) Writable() bool {
	switch p {
	case ProtReadWrite, ProtExecuteReadWrite, ProtCopyOnWrite:
		return true
	default:
		return false
	}
}

func (p Protection) Executable() bool {
	switch p {
	case ProtExecute, ProtExecuteRead, ProtExecuteReadWrite:
		return true
	default:
		return false
	}
}

func (p Protection) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Protection) UnmarshalText(b []byte) error {
	for i, name := range protectionNames {
		if name == string(b) {
			*p = Protection(i)
			return nil
		}
	}
	return fmt.Errorf("unknown protection %q", b)
}

type State uint8

const (
	StateCommitted State = iota
	StateReserved
	StateFree
)

var stateNames = [...]string{
	StateCommitted: "committed",
	StateReserved:  "reserved",
	StateFree:      "free",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

type Kind uint8

const (
	KindPrivate Kind = iota
	KindMapped
	KindImage
)

var kindNames = [...]string{
	KindPrivate: "private",
	KindMapped:  "mapped",
	KindImage:   "image",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown kind %q", b)
}

// MemoryRegion is a point-in-time snapshot of one contiguous span of the
// target's address space.
type MemoryRegion struct {
	BaseAddress uint64     `json:"base_address"`
	Size        uint64     `json:"size"`
	Protection  Protection `json:"protection"`
	State       State      `json:"state"`
	Kind        Kind       `json:"kind"`
}

func (r MemoryRegion) End() uint64 {
	return r.BaseAddress + r.Size
}

func (r MemoryRegion) Contains(addr uint64) bool {
	return addr >= r.BaseAddress && addr < r.End()
}

func (r MemoryRegion) String() string {
	return fmt.Sprintf("0x%012X-0x%012X %s %s %s", r.BaseAddress, r.End(), r.Protection, r.State, r.Kind)
}
