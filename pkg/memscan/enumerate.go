package memscan

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// Enumerate walks the target's address space from 0 upwards, one query per
// yielded region. The sequence re-queries the OS every time it is ranged
// over. A query error is yielded once and ends the sequence.
func Enumerate(ctx context.Context, q RegionQuerier) iter.Seq2[MemoryRegion, error] {
	return func(yield func(MemoryRegion, error) bool) {
		var cursor uint64
		for cursor <= MaxUserAddress {
			if err := ctx.Err(); err != nil {
				yield(MemoryRegion{}, err)
				return
			}

			r, err := q.QueryRegion(ctx, cursor)
			if errors.Is(err, ErrNoMoreRegions) {
				return
			}
			if err != nil {
				var mae *MemoryAccessError
				if !errors.As(err, &mae) {
					err = NewMemoryAccessError("query", cursor, 0, err)
				}
				yield(MemoryRegion{}, err)
				return
			}

			if r.Size == 0 {
				yield(MemoryRegion{}, NewMemoryAccessError("query", cursor, 0, errors.New("zero-size region")))
				return
			}
			next := r.End()
			if r.BaseAddress < cursor || next <= r.BaseAddress {
				yield(MemoryRegion{}, NewMemoryAccessError("query", cursor, 0,
					fmt.Errorf("region 0x%X+0x%X does not advance cursor", r.BaseAddress, r.Size)))
				return
			}
			if r.BaseAddress > MaxUserAddress {
				return
			}

			if !yield(r, nil) {
				return
			}
			cursor = next
		}
	}
}

// CollectRegions materializes Enumerate.
func CollectRegions(ctx context.Context, q RegionQuerier) ([]MemoryRegion, error) {
	var regions []MemoryRegion
	for r, err := range Enumerate(ctx, q) {
		if err != nil {
			return regions, err
		}
		regions = append(regions, r)
	}
	return regions, nil
}
