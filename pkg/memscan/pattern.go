package memscan

import (
	"fmt"
	"strconv"
	"strings"
)

// ScanPattern is a named byte template. Mask[i] == true requires an exact
// match at position i; false is a wildcard.
type ScanPattern struct {
	Name           string       `json:"name" yaml:"name"`
	Pattern        []byte       `json:"pattern" yaml:"-"`
	Mask           []bool       `json:"mask" yaml:"-"`
	ExpectedOffset int          `json:"expected_offset" yaml:"expected_offset"`
	Description    string       `json:"description" yaml:"description"`
	Type           AnalysisType `json:"type" yaml:"type"`
}

func (p ScanPattern) Len() int {
	return len(p.Pattern)
}

func (p ScanPattern) Validate() error {
	if len(p.Pattern) == 0 {
		return &InvalidPatternError{Name: p.Name, Reason: "empty pattern"}
	}
	if len(p.Mask) != len(p.Pattern) {
		return &InvalidPatternError{
			Name:   p.Name,
			Reason: fmt.Sprintf("mask length (%d) doesn't match pattern length (%d)", len(p.Mask), len(p.Pattern)),
		}
	}
	return nil
}

func (p ScanPattern) Clone() ScanPattern {
	c := p
	c.Pattern = append([]byte(nil), p.Pattern...)
	c.Mask = append([]bool(nil), p.Mask...)
	return c
}

// String renders the pattern IDA-style, e.g. "8B 0D ?? ?? 85 C9".
func (p ScanPattern) String() string {
	var sb strings.Builder
	for i, b := range p.Pattern {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if i < len(p.Mask) && !p.Mask[i] {
			sb.WriteString("??")
			continue
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// MaskString renders the mask as "xx????xx".
func (p ScanPattern) MaskString() string {
	b := make([]byte, len(p.Mask))
	for i, m := range p.Mask {
		if m {
			b[i] = 'x'
		} else {
			b[i] = '?'
		}
	}
	return string(b)
}

// ParsePattern builds a pattern from whitespace separated hex bytes where
// "?" or "??" marks a wildcard.
func ParsePattern(name, src string) (ScanPattern, error) {
	p := ScanPattern{Name: name}
	for _, tok := range strings.Fields(src) {
		if tok == "?" || tok == "??" {
			p.Pattern = append(p.Pattern, 0)
			p.Mask = append(p.Mask, false)
			continue
		}
		x, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return ScanPattern{}, &InvalidPatternError{Name: name, Reason: fmt.Sprintf("bad byte %q", tok)}
		}
		p.Pattern = append(p.Pattern, byte(x))
		p.Mask = append(p.Mask, true)
	}
	if err := p.Validate(); err != nil {
		return ScanPattern{}, err
	}
	return p, nil
}

// MustParsePattern is ParsePattern for package-level seed data.
func MustParsePattern(name, src string) ScanPattern {
	p, err := ParsePattern(name, src)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseMaskedPattern builds a pattern from raw bytes and an "x?" mask string.
func ParseMaskedPattern(name string, pattern []byte, mask string) (ScanPattern, error) {
	p := ScanPattern{Name: name, Pattern: append([]byte(nil), pattern...)}
	for i, c := range mask {
		switch c {
		case 'x', 'X':
			p.Mask = append(p.Mask, true)
		case '?':
			p.Mask = append(p.Mask, false)
		default:
			return ScanPattern{}, &InvalidPatternError{Name: name, Reason: fmt.Sprintf("bad mask character %q at %d", c, i)}
		}
	}
	if err := p.Validate(); err != nil {
		return ScanPattern{}, err
	}
	return p, nil
}

// MatchAt reports whether p matches buf at off.
func MatchAt(buf []byte, p ScanPattern, off int) bool {
	if off < 0 || off+len(p.Pattern) > len(buf) {
		return false
	}
	for i, b := range p.Pattern {
		if p.Mask[i] && buf[off+i] != b {
			return false
		}
	}
	return true
}

// FindMatches returns every offset in buf where p matches, overlapping
// matches included. A buffer shorter than the pattern yields no matches.
func FindMatches(buf []byte, p ScanPattern) []int {
	n := len(p.Pattern)
	if n == 0 || len(p.Mask) != n || len(buf) < n {
		return nil
	}

	// Anchor on the first exact byte so most offsets are rejected by one compare.
	anchor := -1
	for i, m := range p.Mask {
		if m {
			anchor = i
			break
		}
	}

	var matches []int
	for off := 0; off+n <= len(buf); off++ {
		if anchor >= 0 && buf[off+anchor] != p.Pattern[anchor] {
			continue
		}
		if MatchAt(buf, p, off) {
			matches = append(matches, off)
		}
	}
	return matches
}
