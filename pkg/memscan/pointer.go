package memscan

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// PointerChain navigates from a stable base to a dynamically allocated
// structure: read a 32-bit pointer, add the next offset, repeat.
type PointerChain struct {
	Base    uint64   `json:"base"`
	Offsets []uint64 `json:"offsets"`
}

func (c PointerChain) Resolve(ctx context.Context, r Reader) (uint64, error) {
	return ResolvePointerChain(ctx, r, c.Base, c.Offsets)
}

func (c PointerChain) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "0x%X", c.Base)
	for _, off := range c.Offsets {
		fmt.Fprintf(&sb, " -> +0x%X", off)
	}
	return sb.String()
}

// ResolvePointerChain reads a little-endian 32-bit pointer at the current
// address for every offset. Nothing is cached between calls.
func ResolvePointerChain(ctx context.Context, r Reader, base uint64, offsets []uint64) (uint64, error) {
	cur := base
	for i, off := range offsets {
		ptr, err := ReadUint32(ctx, r, cur)
		if err != nil {
			return 0, fmt.Errorf("pointer chain step %d: %w", i, err)
		}
		cur = uint64(ptr) + off
	}
	return cur, nil
}

// ParseAddress accepts "0x1234", "1234h" or bare hex.
func ParseAddress(s string) (uint64, error) {
	hex := strings.TrimSpace(strings.ToLower(s))
	hex = strings.TrimPrefix(hex, "0x")
	hex = strings.TrimSuffix(hex, "h")
	hex = strings.ReplaceAll(hex, "_", "")
	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return v, nil
}
