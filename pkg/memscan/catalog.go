package memscan

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultCatalog returns the built-in signatures: the Warcraft III
// "mov reg, [global]; test reg, reg" loads of the main singletons, and the
// ASCII tags that head the Warcraft II Remastered state blocks.
func DefaultCatalog() []ScanPattern {
	wc3 := func(name, src, desc string, t AnalysisType) ScanPattern {
		p := MustParsePattern(name, src)
		p.Description = desc
		p.Type = t
		return p
	}
	tag := func(name, text, desc string, t AnalysisType) ScanPattern {
		p := ScanPattern{
			Name:        name,
			Pattern:     []byte(text),
			Mask:        make([]bool, len(text)),
			Description: desc,
			Type:        t,
		}
		for i := range p.Mask {
			p.Mask[i] = true
		}
		return p
	}

	return []ScanPattern{
		wc3("GameState", "8B 0D ?? ?? ?? ?? 85 C9", "Game state structure pointer", GameState),
		wc3("PlayerData", "8B 15 ?? ?? ?? ?? 85 D2", "Player data structure pointer", PlayerData),
		wc3("UnitData", "8B 35 ?? ?? ?? ?? 85 F6", "Unit data structure pointer", UnitData),
		wc3("BuildingData", "8B 3D ?? ?? ?? ?? 85 FF", "Building data structure pointer", BuildingData),
		tag("wc2_game_state", "GAMESTAT", "Game state structure identifier", GameState),
		tag("wc2_unit_data", "UNITDATA", "Unit data structure identifier", UnitData),
		tag("wc2_resources", "RESOURCE", "Resource structure identifier", ResourceData),
	}
}

type catalogFile struct {
	Patterns []catalogEntry `yaml:"patterns"`
}

type catalogEntry struct {
	Name           string `yaml:"name"`
	Bytes          string `yaml:"bytes"`
	Mask           string `yaml:"mask"`
	Type           string `yaml:"type"`
	ExpectedOffset int    `yaml:"expected_offset"`
	Description    string `yaml:"description"`
}

func (e catalogEntry) pattern() (ScanPattern, error) {
	if e.Name == "" {
		return ScanPattern{}, &InvalidPatternError{Reason: "missing name"}
	}

	var (
		p   ScanPattern
		err error
	)
	if e.Mask == "" {
		p, err = ParsePattern(e.Name, e.Bytes)
	} else {
		var exact ScanPattern
		exact, err = ParsePattern(e.Name, e.Bytes)
		if err == nil {
			p, err = ParseMaskedPattern(e.Name, exact.Pattern, e.Mask)
		}
	}
	if err != nil {
		return ScanPattern{}, err
	}

	t, err := ParseAnalysisType(e.Type)
	if err != nil {
		return ScanPattern{}, &InvalidPatternError{Name: e.Name, Reason: err.Error()}
	}
	p.Type = t
	p.ExpectedOffset = e.ExpectedOffset
	p.Description = e.Description
	return p, nil
}

// LoadCatalog parses a YAML pattern catalog. Names must be unique.
func LoadCatalog(r io.Reader) ([]ScanPattern, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	seen := make(map[string]bool, len(f.Patterns))
	out := make([]ScanPattern, 0, len(f.Patterns))
	for i, e := range f.Patterns {
		p, err := e.pattern()
		if err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("catalog entry %d: %w", i, &InvalidPatternError{Name: p.Name, Reason: "duplicate name"})
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out, nil
}

func LoadCatalogFile(path string) ([]ScanPattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCatalog(f)
}
