package memscan

// Scorer rates a match between 0 and 1. Null bytes around the match and
// unaligned offsets lower the score.
type Scorer struct {
	NullPenalty     float64
	MisalignPenalty float64
	Window          int
	Alignment       int
}

var DefaultScorer = Scorer{
	NullPenalty:     0.1,
	MisalignPenalty: 0.2,
	Window:          16,
	Alignment:       4,
}

// Score inspects buf[off-Window : off+len(p)+Window], clamped to buf.
func (s Scorer) Score(p ScanPattern, buf []byte, off int) float64 {
	return s.score(buf, off, len(p.Pattern), s.aligned(uint64(max(off, 0))))
}

func (s Scorer) aligned(addr uint64) bool {
	if s.Alignment <= 1 {
		return true
	}
	return addr%uint64(s.Alignment) == 0
}

func (s Scorer) score(buf []byte, off, length int, aligned bool) float64 {
	confidence := 1.0

	start := max(off-s.Window, 0)
	end := min(off+length+s.Window, len(buf))
	for i := start; i < end; i++ {
		if buf[i] == 0x00 {
			confidence -= s.NullPenalty
		}
	}

	if !aligned {
		confidence -= s.MisalignPenalty
	}

	return clamp01(confidence)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func Score(p ScanPattern, buf []byte, off int) float64 {
	return DefaultScorer.Score(p, buf, off)
}
