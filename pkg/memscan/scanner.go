package memscan

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMinConfidence is the verification threshold.
const DefaultMinConfidence = 0.3

// FoundAddress is one scored match.
type FoundAddress struct {
	PatternName  string    `json:"pattern_name"`
	Address      uint64    `json:"address"`
	Confidence   float64   `json:"confidence"`
	DiscoveredAt time.Time `json:"discovered_at"`
	PayloadSize  int       `json:"payload_size"`
	Description  string    `json:"description"`
}

// ScanStats summarizes the last scan. Skipped counts candidate regions whose
// read failed. TotalBytes sums every enumerated region, CandidateBytes only
// the candidates; Bytes is what was actually read.
type ScanStats struct {
	Regions        int           `json:"regions"`
	Candidates     int           `json:"candidates"`
	Scanned        int           `json:"scanned"`
	Skipped        int           `json:"skipped"`
	Matches        int           `json:"matches"`
	Patterns       int           `json:"patterns"`
	TotalBytes     uint64        `json:"total_bytes"`
	CandidateBytes uint64        `json:"candidate_bytes"`
	Bytes          uint64        `json:"bytes"`
	Duration       time.Duration `json:"duration"`
}

// Scanner owns a pattern catalog and the table of addresses found by the
// most recent scan. It is safe for concurrent use.
type Scanner struct {
	log           zerolog.Logger
	scorer        Scorer
	classifier    Classifier
	minConfidence float64
	readTimeout   time.Duration
	now           func() time.Time

	mu       sync.RWMutex
	patterns map[string]ScanPattern

	foundMu sync.RWMutex
	found   []FoundAddress
	regions []MemoryRegion
	stats   ScanStats

	cacheMu  sync.RWMutex
	analyses map[uint64]Analysis
}

type Option func(*Scanner)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Scanner) { s.log = l }
}

func WithScorer(sc Scorer) Option {
	return func(s *Scanner) { s.scorer = sc }
}

func WithClassifier(c Classifier) Option {
	return func(s *Scanner) { s.classifier = c }
}

func WithMinConfidence(v float64) Option {
	return func(s *Scanner) { s.minConfidence = v }
}

// WithReadTimeout bounds every region read. Zero disables the bound.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Scanner) { s.readTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		log:           zerolog.Nop(),
		scorer:        DefaultScorer,
		classifier:    DefaultClassifier,
		minConfidence: DefaultMinConfidence,
		now:           time.Now,
		patterns:      make(map[string]ScanPattern),
		analyses:      make(map[uint64]Analysis),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterPattern inserts p or replaces the pattern with the same name.
func (s *Scanner) RegisterPattern(p ScanPattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p = p.Clone()

	s.mu.Lock()
	s.patterns[p.Name] = p
	s.mu.Unlock()

	s.log.Debug().Str("pattern", p.Name).Str("bytes", p.String()).Msg("pattern registered")
	return nil
}

// RegisterPatterns stops at the first invalid pattern; earlier ones stay registered.
func (s *Scanner) RegisterPatterns(ps ...ScanPattern) error {
	for _, p := range ps {
		if err := s.RegisterPattern(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) UnregisterPattern(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patterns[name]; !ok {
		return false
	}
	delete(s.patterns, name)
	return true
}

func (s *Scanner) Pattern(name string) (ScanPattern, bool) {
	s.mu.RLock()
	p, ok := s.patterns[name]
	s.mu.RUnlock()
	if !ok {
		return ScanPattern{}, false
	}
	return p.Clone(), true
}

// Patterns returns a copy of the catalog sorted by name.
func (s *Scanner) Patterns() []ScanPattern {
	s.mu.RLock()
	out := make([]ScanPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b ScanPattern) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// Found returns a copy of the found-address table.
func (s *Scanner) Found() []FoundAddress {
	s.foundMu.RLock()
	defer s.foundMu.RUnlock()
	return slices.Clone(s.found)
}

// Regions returns the region snapshot enumerated by the most recent scan.
func (s *Scanner) Regions() []MemoryRegion {
	s.foundMu.RLock()
	defer s.foundMu.RUnlock()
	return slices.Clone(s.regions)
}

func (s *Scanner) LastStats() ScanStats {
	s.foundMu.RLock()
	defer s.foundMu.RUnlock()
	return s.stats
}

// Scan reads every candidate region of t and matches the whole catalog
// against it. Regions that fail to read are logged and skipped. On
// cancellation or an enumeration failure the matches gathered so far are
// returned together with the error.
func (s *Scanner) Scan(ctx context.Context, t Target) ([]FoundAddress, error) {
	if t == nil {
		return nil, ErrProcessUnavailable
	}
	if err := t.Alive(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessUnavailable, err)
	}

	patterns := s.Patterns()
	started := s.now()
	stats := ScanStats{Patterns: len(patterns)}
	results := []FoundAddress{}
	var regions []MemoryRegion

	s.log.Info().Int("patterns", len(patterns)).Msg("scan started")

	var scanErr error
	for region, err := range Enumerate(ctx, t) {
		if err != nil {
			scanErr = err
			break
		}
		stats.Regions++
		stats.TotalBytes += region.Size
		regions = append(regions, region)

		if !s.classifier.IsCandidate(region) {
			continue
		}
		stats.Candidates++
		stats.CandidateBytes += region.Size

		buf, err := s.readRegion(ctx, t, region)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				scanErr = ctxErr
				break
			}
			stats.Skipped++
			s.log.Warn().Err(err).
				Str("region", fmt.Sprintf("0x%X", region.BaseAddress)).
				Uint64("size", region.Size).
				Msg("region read failed, skipping")
			continue
		}
		stats.Scanned++
		stats.Bytes += uint64(len(buf))

		found := s.matchRegion(region.BaseAddress, buf, patterns)
		results = append(results, found...)
	}

	stats.Matches = len(results)
	stats.Duration = s.now().Sub(started)

	s.foundMu.Lock()
	s.found = slices.Clone(results)
	s.regions = regions
	s.stats = stats
	s.foundMu.Unlock()

	ev := s.log.Info()
	if scanErr != nil {
		ev = s.log.Error().Err(scanErr)
	}
	ev.Int("regions", stats.Regions).
		Int("candidates", stats.Candidates).
		Int("skipped", stats.Skipped).
		Int("matches", stats.Matches).
		Dur("took", stats.Duration).
		Msg("scan finished")

	return results, scanErr
}

func (s *Scanner) readRegion(ctx context.Context, r Reader, region MemoryRegion) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read(ctx, r, region.BaseAddress, int(region.Size))
}

func (s *Scanner) read(ctx context.Context, r Reader, addr uint64, size int) ([]byte, error) {
	if s.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.readTimeout)
		defer cancel()
	}
	return readExact(ctx, r, addr, size)
}

func (s *Scanner) matchRegion(base uint64, buf []byte, patterns []ScanPattern) []FoundAddress {
	var out []FoundAddress
	now := s.now()
	for _, p := range patterns {
		for _, off := range FindMatches(buf, p) {
			out = append(out, FoundAddress{
				PatternName:  p.Name,
				Address:      base + uint64(off),
				Confidence:   s.scorer.Score(p, buf, off),
				DiscoveredAt: now,
				PayloadSize:  len(p.Pattern),
				Description:  p.Description,
			})
		}
	}
	return out
}

// Verify re-reads a found address and reports whether its pattern still
// matches with at least the minimum confidence. The score covers the same
// context window as at discovery, clamped to the region holding the address.
func (s *Scanner) Verify(ctx context.Context, found FoundAddress, t Target) (bool, error) {
	p, ok := s.Pattern(found.PatternName)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownPattern, found.PatternName)
	}
	size := found.PayloadSize
	if size < len(p.Pattern) {
		size = len(p.Pattern)
	}

	buf, err := s.read(ctx, t, found.Address, size)
	if err != nil {
		s.log.Debug().Err(err).Str("pattern", p.Name).
			Str("address", fmt.Sprintf("0x%X", found.Address)).
			Msg("verify read failed")
		return false, err
	}
	if !MatchAt(buf, p, 0) {
		return false, nil
	}

	window, off := s.contextWindow(ctx, t, found.Address, len(p.Pattern))
	if window == nil || !MatchAt(window, p, off) {
		window, off = buf, 0
	}
	score := s.scorer.score(window, off, len(p.Pattern), s.scorer.aligned(found.Address))
	return score >= s.minConfidence, nil
}

// contextWindow reads Scorer.Window bytes around [addr, addr+n) without
// leaving the region that contains addr. It returns nil when the region
// cannot be queried or read.
func (s *Scanner) contextWindow(ctx context.Context, t Target, addr uint64, n int) ([]byte, int) {
	region, err := t.QueryRegion(ctx, addr)
	if err != nil || !region.Contains(addr) {
		return nil, 0
	}
	w := uint64(max(s.scorer.Window, 0))
	lo := region.BaseAddress
	if addr-lo > w {
		lo = addr - w
	}
	hi := min(addr+uint64(n)+w, region.End())
	if hi < addr+uint64(n) {
		return nil, 0
	}
	window, err := s.read(ctx, t, lo, int(hi-lo))
	if err != nil {
		return nil, 0
	}
	return window, int(addr - lo)
}

// Revalidate verifies every entry of the found table and drops the ones that
// no longer hold. Entries whose re-read fails are dropped too.
func (s *Scanner) Revalidate(ctx context.Context, t Target) (int, error) {
	if t == nil {
		return 0, ErrProcessUnavailable
	}
	if err := t.Alive(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProcessUnavailable, err)
	}

	type key struct {
		name string
		addr uint64
	}
	stale := make(map[key]struct{})
	for _, f := range s.Found() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		ok, err := s.Verify(ctx, f, t)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		if err != nil && !errors.Is(err, ErrMemoryAccess) && !errors.Is(err, ErrUnknownPattern) {
			return 0, err
		}
		if !ok {
			stale[key{f.PatternName, f.Address}] = struct{}{}
		}
	}

	s.foundMu.Lock()
	before := len(s.found)
	s.found = slices.DeleteFunc(s.found, func(f FoundAddress) bool {
		_, drop := stale[key{f.PatternName, f.Address}]
		return drop
	})
	removed := before - len(s.found)
	s.foundMu.Unlock()

	s.log.Info().Int("removed", removed).Int("kept", before-removed).Msg("found table revalidated")
	return removed, nil
}

// Analysis is the typed decoding of the bytes behind a found address.
type Analysis struct {
	Address    uint64        `json:"address"`
	Pattern    string        `json:"pattern"`
	Type       AnalysisType  `json:"type"`
	Confidence float64       `json:"confidence"`
	Data       ExtractedData `json:"data"`
	Timestamp  time.Time     `json:"timestamp"`
}

// DefaultAnalyzeSize is the sample read by Analyze when size is zero.
const DefaultAnalyzeSize = 4096

// Analyze reads size bytes at found.Address and decodes them with the
// declared type of the pattern that produced it.
func (s *Scanner) Analyze(ctx context.Context, t Target, found FoundAddress, size int) (Analysis, error) {
	p, ok := s.Pattern(found.PatternName)
	if !ok {
		return Analysis{}, fmt.Errorf("%w: %s", ErrUnknownPattern, found.PatternName)
	}
	if size <= 0 {
		size = DefaultAnalyzeSize
	}
	buf, err := s.read(ctx, t, found.Address, size)
	if err != nil {
		return Analysis{}, err
	}
	a := Analysis{
		Address:    found.Address,
		Pattern:    p.Name,
		Type:       p.Type,
		Confidence: found.Confidence,
		Data:       Extract(buf, p.Type),
		Timestamp:  s.now(),
	}

	s.cacheMu.Lock()
	s.analyses[a.Address] = a
	s.cacheMu.Unlock()
	return a, nil
}

// CachedAnalysis returns the last analysis stored for addr.
func (s *Scanner) CachedAnalysis(addr uint64) (Analysis, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	a, ok := s.analyses[addr]
	return a, ok
}

func (s *Scanner) ClearAnalysisCache() {
	s.cacheMu.Lock()
	n := len(s.analyses)
	clear(s.analyses)
	s.cacheMu.Unlock()
	s.log.Debug().Int("entries", n).Msg("analysis cache cleared")
}

// AnalysisStats counts cached analyses.
type AnalysisStats struct {
	Cached int                  `json:"cached"`
	ByType map[AnalysisType]int `json:"by_type"`
}

func (s *Scanner) AnalysisStats() AnalysisStats {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	st := AnalysisStats{Cached: len(s.analyses), ByType: make(map[AnalysisType]int)}
	for _, a := range s.analyses {
		st.ByType[a.Type]++
	}
	return st
}
