package memscan

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestScanner(t *testing.T, opts ...Option) *Scanner {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	s := NewScanner(opts...)
	require.NoError(t, s.RegisterPattern(wc3GameState))
	return s
}

// regionWith returns n bytes of 0xCC with the pattern bytes placed at off.
func regionWith(n, off int, payload []byte) []byte {
	b := filled(n, 0xCC)
	copy(b[off:], payload)
	return b
}

var gameStateBytes = []byte{0x8B, 0x0D, 0x11, 0x22, 0x33, 0x44, 0x85, 0xC9}

func TestRegisterPatternRejectsMismatchedMask(t *testing.T) {
	s := newTestScanner(t)
	before := s.Patterns()

	err := s.RegisterPattern(ScanPattern{Name: "broken", Pattern: make([]byte, 8), Mask: make([]bool, 5)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPattern)
	assert.Equal(t, before, s.Patterns())

	err = s.RegisterPattern(ScanPattern{Name: "GameState"})
	assert.ErrorIs(t, err, ErrInvalidPattern)
	p, ok := s.Pattern("GameState")
	require.True(t, ok)
	assert.Equal(t, wc3GameState.Pattern, p.Pattern)
}

func TestRegisterPatternReplacesByName(t *testing.T) {
	s := newTestScanner(t)
	replacement := MustParsePattern("GameState", "8B 0D ?? ?? ?? ?? 85 C0")
	require.NoError(t, s.RegisterPattern(replacement))

	ps := s.Patterns()
	require.Len(t, ps, 1)
	assert.Equal(t, byte(0xC0), ps[0].Pattern[7])
}

func TestRegisterPatternCopiesInput(t *testing.T) {
	s := NewScanner()
	p := wc3GameState.Clone()
	require.NoError(t, s.RegisterPattern(p))
	p.Pattern[0] = 0x00

	got, _ := s.Pattern("GameState")
	assert.Equal(t, byte(0x8B), got.Pattern[0])
}

func TestUnregisterPattern(t *testing.T) {
	s := newTestScanner(t)
	assert.True(t, s.UnregisterPattern("GameState"))
	assert.False(t, s.UnregisterPattern("GameState"))
	assert.Empty(t, s.Patterns())
}

func TestScanFindsMatchesAcrossRegions(t *testing.T) {
	target := newFakeTarget(
		privateRW(0x10000, regionWith(0x1000, 0x40, gameStateBytes)),
		privateRW(0x20000, regionWith(0x1000, 0x81, gameStateBytes)),
	)
	s := newTestScanner(t)

	found, err := s.Scan(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, found, 2)

	assert.Equal(t, uint64(0x10040), found[0].Address)
	assert.Equal(t, 1.0, found[0].Confidence)
	assert.Equal(t, "GameState", found[0].PatternName)
	assert.Equal(t, 8, found[0].PayloadSize)
	assert.Equal(t, fixedNow, found[0].DiscoveredAt)

	assert.Equal(t, uint64(0x20081), found[1].Address)
	assert.InDelta(t, 0.8, found[1].Confidence, 1e-9)

	assert.Equal(t, found, s.Found())
	stats := s.LastStats()
	assert.Equal(t, 2, stats.Regions)
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, 2, stats.Matches)
	assert.Zero(t, stats.Skipped)
}

func TestScanNeverReadsReservedRegion(t *testing.T) {
	reserved := privateRW(0x10000, regionWith(0x1000, 0, gameStateBytes))
	reserved.State = StateReserved
	target := newFakeTarget(reserved, privateRW(0x20000, filled(0x1000, 0xCC)))
	s := newTestScanner(t)

	found, err := s.Scan(context.Background(), target)
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.NotContains(t, target.reads, uint64(0x10000))
	assert.Equal(t, 1, target.readCount())
}

func TestScanSkipsFailedRegion(t *testing.T) {
	target := newFakeTarget(
		privateRW(0x10000, regionWith(0x1000, 0x10, gameStateBytes)),
		privateRW(0x20000, regionWith(0x1000, 0x20, gameStateBytes)),
		privateRW(0x30000, regionWith(0x1000, 0x30, gameStateBytes)),
	)
	target.failAt[0x20000] = errors.New("page protected")

	var logs bytes.Buffer
	s := newTestScanner(t, WithLogger(zerolog.New(&logs)))

	found, err := s.Scan(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, uint64(0x10010), found[0].Address)
	assert.Equal(t, uint64(0x30030), found[1].Address)
	assert.Equal(t, 1, s.LastStats().Skipped)
	assert.Contains(t, logs.String(), "region read failed")
}

func TestScanProcessUnavailable(t *testing.T) {
	target := newFakeTarget(privateRW(0x10000, regionWith(0x100, 0, gameStateBytes)))
	target.dead = errors.New("handle closed")
	s := newTestScanner(t)

	found, err := s.Scan(context.Background(), target)
	assert.ErrorIs(t, err, ErrProcessUnavailable)
	assert.Nil(t, found)
	assert.Zero(t, target.queries)
	assert.Zero(t, target.readCount())

	_, err = s.Scan(context.Background(), nil)
	assert.ErrorIs(t, err, ErrProcessUnavailable)
}

func TestScanWithoutMatchesReturnsEmpty(t *testing.T) {
	target := newFakeTarget(privateRW(0x10000, filled(0x100, 0xCC)))
	found, err := newTestScanner(t).Scan(context.Background(), target)
	require.NoError(t, err)
	assert.NotNil(t, found)
	assert.Empty(t, found)
}

func TestScanIsReproducible(t *testing.T) {
	target := newFakeTarget(
		privateRW(0x10000, regionWith(0x1000, 0x40, gameStateBytes)),
		privateRW(0x20000, regionWith(0x1000, 0x44, []byte("GAMESTAT"))),
	)
	s := newTestScanner(t)
	require.NoError(t, s.RegisterPatterns(DefaultCatalog()...))

	first, err := s.Scan(context.Background(), target)
	require.NoError(t, err)
	second, err := s.Scan(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.Equal(t, "GameState", first[0].PatternName)
	assert.Equal(t, "wc2_game_state", first[1].PatternName)
}

type cancelAfterFirstRead struct {
	*fakeTarget
	cancel context.CancelFunc
}

func (c cancelAfterFirstRead) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	b, err := c.fakeTarget.ReadMemory(ctx, addr, size)
	c.cancel()
	return b, err
}

func TestScanCancelsBetweenRegions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inner := newFakeTarget(
		privateRW(0x10000, regionWith(0x1000, 0x40, gameStateBytes)),
		privateRW(0x20000, regionWith(0x1000, 0x40, gameStateBytes)),
	)
	target := cancelAfterFirstRead{fakeTarget: inner, cancel: cancel}

	found, err := newTestScanner(t).Scan(ctx, target)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, found, 1)
	assert.Equal(t, 1, inner.readCount())
}

type slowTarget struct{ *fakeTarget }

func (s slowTarget) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	if addr == 0x10000 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.fakeTarget.ReadMemory(ctx, addr, size)
}

func TestScanTreatsTimeoutAsReadFailure(t *testing.T) {
	inner := newFakeTarget(
		privateRW(0x10000, regionWith(0x1000, 0x40, gameStateBytes)),
		privateRW(0x20000, regionWith(0x1000, 0x40, gameStateBytes)),
	)
	s := newTestScanner(t, WithReadTimeout(10*time.Millisecond))

	found, err := s.Scan(context.Background(), slowTarget{inner})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, uint64(0x20040), found[0].Address)
	assert.Equal(t, 1, s.LastStats().Skipped)
}

func TestVerify(t *testing.T) {
	target := newFakeTarget(privateRW(0x10000, regionWith(0x1000, 0x40, gameStateBytes)))
	s := newTestScanner(t)
	found, err := s.Scan(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, found, 1)

	ok, err := s.Verify(context.Background(), found[0], target)
	require.NoError(t, err)
	assert.True(t, ok)

	target.write(0x10040, []byte{0x90})
	ok, err = s.Verify(context.Background(), found[0], target)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyBelowThreshold(t *testing.T) {
	// 4 null wildcard bytes plus misalignment: 1 - 0.4 - 0.2 = 0.4
	target := newFakeTarget(privateRW(0x10000, regionWith(0x100, 0x41, []byte{0x8B, 0x0D, 0, 0, 0, 0, 0x85, 0xC9})))
	s := newTestScanner(t, WithMinConfidence(0.5))
	found, err := s.Scan(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, found, 1)

	ok, err := s.Verify(context.Background(), found[0], target)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = NewScanner(WithMinConfidence(0.3)).Verify(context.Background(), found[0], target)
	assert.ErrorIs(t, err, ErrUnknownPattern)
	assert.False(t, ok)
}

func TestVerifyReadFailure(t *testing.T) {
	target := newFakeTarget(privateRW(0x10000, regionWith(0x100, 0, gameStateBytes)))
	s := newTestScanner(t)
	ok, err := s.Verify(context.Background(), FoundAddress{PatternName: "GameState", Address: 0x90000, PayloadSize: 8}, target)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrMemoryAccess)
}

func TestRevalidateDropsStaleEntries(t *testing.T) {
	target := newFakeTarget(
		privateRW(0x10000, regionWith(0x1000, 0x40, gameStateBytes)),
		privateRW(0x20000, regionWith(0x1000, 0x40, gameStateBytes)),
	)
	s := newTestScanner(t)
	_, err := s.Scan(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, s.Found(), 2)

	target.write(0x20040, []byte{0x00, 0x00})
	removed, err := s.Revalidate(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	require.Len(t, s.Found(), 1)
	assert.Equal(t, uint64(0x10040), s.Found()[0].Address)
}

func TestAnalyzeUsesDeclaredType(t *testing.T) {
	payload := append([]byte("RESOURCE"), filled(24, 0x01)...)
	target := newFakeTarget(privateRW(0x10000, regionWith(0x1000, 0x100, payload)))
	s := NewScanner(WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, s.RegisterPatterns(DefaultCatalog()...))

	found, err := s.Scan(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, found, 1)

	a, err := s.Analyze(context.Background(), target, found[0], 32)
	require.NoError(t, err)
	assert.Equal(t, ResourceData, a.Type)
	assert.Equal(t, "structured", a.Data.Kind())
	assert.Equal(t, fixedNow, a.Timestamp)

	_, err = s.Analyze(context.Background(), target, FoundAddress{PatternName: "nope"}, 0)
	assert.ErrorIs(t, err, ErrUnknownPattern)
}

func TestConcurrentRegistrationAndScan(t *testing.T) {
	target := newFakeTarget(privateRW(0x10000, regionWith(0x4000, 0x40, gameStateBytes)))
	s := newTestScanner(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.Scan(context.Background(), target)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.RegisterPatterns(DefaultCatalog()...))
		}()
	}
	wg.Wait()
	assert.NotEmpty(t, s.Found())
}

func TestScanKeepsRegionSnapshot(t *testing.T) {
	reserved := privateRW(0x10000, filled(0x2000, 0xCC))
	reserved.State = StateReserved
	target := newFakeTarget(reserved, privateRW(0x20000, regionWith(0x1000, 0x40, gameStateBytes)))
	s := newTestScanner(t)
	assert.Empty(t, s.Regions())

	_, err := s.Scan(context.Background(), target)
	require.NoError(t, err)

	regions := s.Regions()
	require.Len(t, regions, 2)
	assert.Equal(t, uint64(0x10000), regions[0].BaseAddress)
	assert.Equal(t, StateReserved, regions[0].State)
	assert.Equal(t, uint64(0x20000), regions[1].BaseAddress)

	stats := s.LastStats()
	assert.Equal(t, uint64(0x3000), stats.TotalBytes)
	assert.Equal(t, uint64(0x1000), stats.CandidateBytes)
	assert.Equal(t, uint64(0x1000), stats.Bytes)

	regions[0].Size = 1
	assert.Equal(t, uint64(0x2000), s.Regions()[0].Size)
}

func TestVerifyScoresContextWindow(t *testing.T) {
	data := filled(0x1000, 0x00)
	copy(data[0x100:], "RESOURCE")
	target := newFakeTarget(privateRW(0x10000, data))
	s := NewScanner(WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, s.RegisterPatterns(DefaultCatalog()...))

	found, err := s.Scan(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Zero(t, found[0].Confidence)

	ok, err := s.Verify(context.Background(), found[0], target)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyWindowStaysInsideRegion(t *testing.T) {
	target := newFakeTarget(
		privateRW(0x10000, filled(0x1000, 0x00)),
		privateRW(0x11000, regionWith(0x1000, 0, []byte("RESOURCE"))),
	)
	s := NewScanner(WithClock(func() time.Time { return fixedNow }), WithMinConfidence(0.9))
	require.NoError(t, s.RegisterPatterns(DefaultCatalog()...))

	found, err := s.Scan(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, uint64(0x11000), found[0].Address)
	assert.Equal(t, 1.0, found[0].Confidence)

	ok, err := s.Verify(context.Background(), found[0], target)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAnalysisCache(t *testing.T) {
	payload := append([]byte("GAMESTAT"), filled(24, 0x01)...)
	target := newFakeTarget(privateRW(0x10000, regionWith(0x1000, 0x100, payload)))
	s := NewScanner(WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, s.RegisterPatterns(DefaultCatalog()...))

	found, err := s.Scan(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, found, 1)

	_, ok := s.CachedAnalysis(found[0].Address)
	assert.False(t, ok)

	a, err := s.Analyze(context.Background(), target, found[0], 32)
	require.NoError(t, err)

	cached, ok := s.CachedAnalysis(found[0].Address)
	require.True(t, ok)
	assert.Equal(t, a, cached)

	stats := s.AnalysisStats()
	assert.Equal(t, 1, stats.Cached)
	assert.Equal(t, map[AnalysisType]int{GameState: 1}, stats.ByType)

	s.ClearAnalysisCache()
	_, ok = s.CachedAnalysis(found[0].Address)
	assert.False(t, ok)
	assert.Zero(t, s.AnalysisStats().Cached)
}
