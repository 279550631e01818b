package process

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wcscan/pkg/memscan"
)

const sampleMaps = `
55d0c8a00000-55d0c8a22000 r--p 00000000 08:02 173521     /opt/war2/war2
55d0c8a22000-55d0c8a80000 r-xp 00022000 08:02 173521     /opt/war2/war2
55d0c8a80000-55d0c8a90000 rw-p 00080000 08:02 173521     /opt/war2/war2
55d0c9000000-55d0c9100000 rw-p 00000000 00:00 0          [heap]
7f1c00000000-7f1c00021000 rw-p 00000000 00:00 0
7f1c10000000-7f1c10010000 r--p 00000000 08:02 99         /usr/share/fonts/My Font.ttf
7f1c20000000-7f1c20001000 rw-s 00000000 00:05 42         /dev/shm/pulse
7ffd5a000000-7ffd5a021000 rw-p 00000000 00:00 0          [stack]
7ffd5a1fe000-7ffd5a200000 r-xp 00000000 00:00 0          [vdso]
`

func TestParseMapsLine(t *testing.T) {
	m, err := parseMapsLine("7f1c10000000-7f1c10010000 r--p 00000000 08:02 99 /usr/share/fonts/My Font.ttf")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x7f1c10000000), m.Start)
	assert.Equal(t, uint64(0x7f1c10010000), m.End)
	assert.Equal(t, "/usr/share/fonts/My Font.ttf", m.Path)
	assert.True(t, m.read())
	assert.False(t, m.write())

	for _, bad := range []string{
		"garbage",
		"1000 rw-p 0 0 0",
		"zz-1000 rw-p 0 0 0",
		"2000-1000 rw-p 0 0 0",
		"1000-2000 rw 0 0 0",
	} {
		_, err := parseMapsLine(bad)
		assert.Error(t, err, bad)
	}
}

func TestMapsToRegions(t *testing.T) {
	maps, err := parseMaps(strings.NewReader(sampleMaps))
	require.NoError(t, err)
	regions := mapsToRegions(maps)

	// contiguous from zero
	var cursor uint64
	for _, r := range regions {
		require.Equal(t, cursor, r.BaseAddress)
		cursor = r.End()
	}

	byBase := map[uint64]memscan.MemoryRegion{}
	for _, r := range regions {
		byBase[r.BaseAddress] = r
	}

	free := byBase[0]
	assert.Equal(t, memscan.StateFree, free.State)
	assert.Equal(t, uint64(0x55d0c8a00000), free.Size)

	text := byBase[0x55d0c8a22000]
	assert.Equal(t, memscan.ProtExecuteRead, text.Protection)
	assert.Equal(t, memscan.KindImage, text.Kind)

	data := byBase[0x55d0c8a80000]
	assert.Equal(t, memscan.ProtCopyOnWrite, data.Protection)
	assert.Equal(t, memscan.KindImage, data.Kind)
	assert.False(t, memscan.IsCandidate(data))

	heap := byBase[0x55d0c9000000]
	assert.Equal(t, memscan.ProtReadWrite, heap.Protection)
	assert.Equal(t, memscan.KindPrivate, heap.Kind)
	assert.Equal(t, memscan.StateCommitted, heap.State)
	assert.True(t, memscan.IsCandidate(heap))

	assert.True(t, memscan.IsCandidate(byBase[0x7f1c00000000]))

	font := byBase[0x7f1c10000000]
	assert.Equal(t, memscan.KindMapped, font.Kind)
	assert.Equal(t, memscan.ProtReadOnly, font.Protection)

	shm := byBase[0x7f1c20000000]
	assert.Equal(t, memscan.KindMapped, shm.Kind)
	assert.Equal(t, memscan.ProtReadWrite, shm.Protection)

	assert.Equal(t, memscan.KindPrivate, byBase[0x7ffd5a000000].Kind)
	assert.Equal(t, memscan.KindImage, byBase[0x7ffd5a1fe000].Kind)
}

type regionList []memscan.MemoryRegion

func (l regionList) QueryRegion(_ context.Context, addr uint64) (memscan.MemoryRegion, error) {
	return regionAt(l, addr)
}

func TestMapsRegionsEnumerate(t *testing.T) {
	maps, err := parseMaps(strings.NewReader(sampleMaps))
	require.NoError(t, err)
	regions := mapsToRegions(maps)

	got, err := memscan.CollectRegions(context.Background(), regionList(regions))
	require.NoError(t, err)
	assert.Equal(t, regions, got)

	var candidates int
	for _, r := range got {
		if memscan.IsCandidate(r) {
			candidates++
		}
	}
	// heap, anonymous block and stack
	assert.Equal(t, 3, candidates)
}

func TestRegionAt(t *testing.T) {
	regions := []memscan.MemoryRegion{
		{BaseAddress: 0, Size: 0x1000},
		{BaseAddress: 0x1000, Size: 0x1000},
	}
	r, err := regionAt(regions, 0x1800)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000), r.BaseAddress)

	_, err = regionAt(regions, 0x2000)
	assert.ErrorIs(t, err, memscan.ErrNoMoreRegions)
}
