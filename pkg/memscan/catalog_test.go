package memscan

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range DefaultCatalog() {
		require.NoError(t, p.Validate(), p.Name)
		assert.False(t, seen[p.Name], "duplicate %s", p.Name)
		seen[p.Name] = true
		assert.NotEmpty(t, p.Description)
	}
	assert.True(t, seen["GameState"])
	assert.True(t, seen["wc2_resources"])
}

const catalogYAML = `
patterns:
  - name: GameState
    bytes: "8B 0D ?? ?? ?? ?? 85 C9"
    type: game_state
    description: Game state structure pointer
  - name: Roster
    bytes: "02 45 33 D2 4D 8B"
    mask: "xx??xx"
    expected_offset: 3
`

func TestLoadCatalog(t *testing.T) {
	ps, err := LoadCatalog(strings.NewReader(catalogYAML))
	require.NoError(t, err)
	require.Len(t, ps, 2)

	assert.Equal(t, wc3GameState.Pattern, ps[0].Pattern)
	assert.Equal(t, wc3GameState.Mask, ps[0].Mask)
	assert.Equal(t, GameState, ps[0].Type)

	assert.Equal(t, "02 45 ?? ?? 4D 8B", ps[1].String())
	assert.Equal(t, 3, ps[1].ExpectedOffset)
	assert.Equal(t, Unknown, ps[1].Type)
}

func TestLoadCatalogErrors(t *testing.T) {
	cases := map[string]string{
		"bad hex":        "patterns:\n  - name: x\n    bytes: \"GG\"\n",
		"mask mismatch":  "patterns:\n  - name: x\n    bytes: \"01 02 03\"\n    mask: \"xx\"\n",
		"missing name":   "patterns:\n  - bytes: \"01\"\n",
		"duplicate name": "patterns:\n  - name: x\n    bytes: \"01\"\n  - name: x\n    bytes: \"02\"\n",
		"bad type":       "patterns:\n  - name: x\n    bytes: \"01\"\n    type: orc\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCatalog(strings.NewReader(src))
			assert.ErrorIs(t, err, ErrInvalidPattern)
		})
	}

	_, err := LoadCatalog(strings.NewReader("patterns:\n  - name: x\n    bogus: 1\n"))
	assert.Error(t, err)

	ps, err := LoadCatalog(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o644))
	ps, err := LoadCatalogFile(path)
	require.NoError(t, err)
	assert.Len(t, ps, 2)

	_, err = LoadCatalogFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestReportRoundTrip(t *testing.T) {
	target := newFakeTarget(privateRW(0x10000, regionWith(0x1000, 0x40, gameStateBytes)))
	s := newTestScanner(t)
	_, err := s.Scan(context.Background(), target)
	require.NoError(t, err)

	rep := NewReport(4242, fixedNow, s, nil)
	assert.Equal(t, []MemoryRegion{target.regions[0].MemoryRegion}, rep.Regions)

	var buf bytes.Buffer
	require.NoError(t, rep.WriteJSON(&buf))
	assert.Contains(t, buf.String(), `"pattern_name": "GameState"`)
	assert.Contains(t, buf.String(), `"protection": "read_write"`)
	assert.Contains(t, buf.String(), `"base_address": 65536`)

	back, err := ReadReport(&buf)
	require.NoError(t, err)
	assert.Equal(t, rep.ID, back.ID)
	assert.Equal(t, uint32(4242), back.PID)
	assert.Equal(t, []string{"GameState"}, back.Patterns)
	require.Len(t, back.Found, 1)
	assert.Equal(t, uint64(0x10040), back.Found[0].Address)
	assert.True(t, back.Found[0].DiscoveredAt.Equal(fixedNow))
	assert.Equal(t, rep.Regions, back.Regions)
	assert.Equal(t, time.Duration(0), back.Stats.Duration)
	assert.Equal(t, uint64(0x1000), back.Stats.TotalBytes)
}

func TestReportWriteFile(t *testing.T) {
	s := newTestScanner(t)
	path := filepath.Join(t.TempDir(), "out", "report.json")
	require.NoError(t, NewReport(1, fixedNow, s, context.Canceled).WriteFile(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	back, err := ReadReport(f)
	require.NoError(t, err)
	assert.Equal(t, "context canceled", back.Error)
}
