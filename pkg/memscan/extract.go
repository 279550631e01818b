package memscan

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// AnalysisType is the declared meaning of the bytes behind a pattern.
type AnalysisType uint8

const (
	Unknown AnalysisType = iota
	GameState
	UnitData
	BuildingData
	ResourceData
	PlayerData
	MapData
)

var analysisTypeNames = [...]string{
	Unknown:      "unknown",
	GameState:    "game_state",
	UnitData:     "unit_data",
	BuildingData: "building_data",
	ResourceData: "resource_data",
	PlayerData:   "player_data",
	MapData:      "map_data",
}

func (t AnalysisType) String() string {
	if int(t) < len(analysisTypeNames) {
		return analysisTypeNames[t]
	}
	return fmt.Sprintf("analysis_type(%d)", uint8(t))
}

func (t AnalysisType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *AnalysisType) UnmarshalText(b []byte) error {
	parsed, err := ParseAnalysisType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func ParseAnalysisType(s string) (AnalysisType, error) {
	if s == "" {
		return Unknown, nil
	}
	for i, name := range analysisTypeNames {
		if name == s {
			return AnalysisType(i), nil
		}
	}
	return Unknown, fmt.Errorf("unknown analysis type %q", s)
}

const (
	maxGameStateInts = 100
	maxUnitFloats    = 50
)

// ResourceKeys is the key set of a decoded ResourceData map.
var ResourceKeys = []string{"gold", "wood", "ore", "oil"}

// ExtractedData is one of Integers, Floats, Strings, Binary or Structured.
type ExtractedData interface {
	Kind() string
	extracted()
}

type (
	Integers   []int32
	Floats     []float32
	Strings    []string
	Binary     []byte
	Structured map[string]any
)

func (Integers) Kind() string   { return "integers" }
func (Floats) Kind() string     { return "floats" }
func (Strings) Kind() string    { return "strings" }
func (Binary) Kind() string     { return "binary" }
func (Structured) Kind() string { return "structured" }

func (Integers) extracted()   {}
func (Floats) extracted()     {}
func (Strings) extracted()    {}
func (Binary) extracted()     {}
func (Structured) extracted() {}

type taggedValue struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

func (d Integers) MarshalJSON() ([]byte, error) {
	if d == nil {
		d = Integers{}
	}
	return json.Marshal(taggedValue{Kind: d.Kind(), Value: []int32(d)})
}

// MarshalJSON writes NaN and infinities as null; JSON has no encoding for them.
func (d Floats) MarshalJSON() ([]byte, error) {
	vals := make([]*float32, len(d))
	for i := range d {
		f := d[i]
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			continue
		}
		vals[i] = &f
	}
	return json.Marshal(taggedValue{Kind: d.Kind(), Value: vals})
}

func (d Strings) MarshalJSON() ([]byte, error) {
	if d == nil {
		d = Strings{}
	}
	return json.Marshal(taggedValue{Kind: d.Kind(), Value: []string(d)})
}

func (d Binary) MarshalJSON() ([]byte, error) {
	if d == nil {
		d = Binary{}
	}
	return json.Marshal(taggedValue{Kind: d.Kind(), Value: []byte(d)})
}

func (d Structured) MarshalJSON() ([]byte, error) {
	if d == nil {
		d = Structured{}
	}
	return json.Marshal(taggedValue{Kind: d.Kind(), Value: map[string]any(d)})
}

// Extract decodes buf according to t. It never fails: short or odd-sized
// buffers yield shorter results.
func Extract(buf []byte, t AnalysisType) ExtractedData {
	switch t {
	case GameState:
		n := min(maxGameStateInts, len(buf)/4)
		out := make(Integers, n)
		for i := range n {
			out[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
		}
		return out
	case UnitData:
		n := min(maxUnitFloats, len(buf)/4)
		out := make(Floats, n)
		for i := range n {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}
		return out
	case ResourceData:
		// Live resource offsets differ per game build; only the key set is fixed.
		out := make(Structured, len(ResourceKeys))
		for _, k := range ResourceKeys {
			out[k] = int64(0)
		}
		return out
	default:
		out := make(Binary, len(buf))
		copy(out, buf)
		return out
	}
}

// ExtractStrings returns printable ASCII runs of at least minLen bytes.
func ExtractStrings(buf []byte, minLen int) Strings {
	if minLen < 1 {
		minLen = 1
	}
	out := Strings{}
	start := -1
	flush := func(end int) {
		if start >= 0 && end-start >= minLen {
			out = append(out, string(buf[start:end]))
		}
		start = -1
	}
	for i, b := range buf {
		if b >= 0x20 && b < 0x7F {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(buf))
	return out
}
