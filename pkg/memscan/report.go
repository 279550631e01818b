package memscan

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Report is the serializable outcome of one scan.
type Report struct {
	ID       uuid.UUID      `json:"id"`
	PID      uint32         `json:"pid"`
	Started  time.Time      `json:"started"`
	Stats    ScanStats      `json:"stats"`
	Patterns []string       `json:"patterns"`
	Regions  []MemoryRegion `json:"regions,omitempty"`
	Found    []FoundAddress `json:"found"`
	Error    string         `json:"error,omitempty"`
}

func NewReport(pid uint32, started time.Time, s *Scanner, scanErr error) *Report {
	r := &Report{
		ID:      uuid.New(),
		PID:     pid,
		Started: started,
		Stats:   s.LastStats(),
		Regions: s.Regions(),
		Found:   s.Found(),
	}
	for _, p := range s.Patterns() {
		r.Patterns = append(r.Patterns, p.Name)
	}
	if scanErr != nil {
		r.Error = scanErr.Error()
	}
	return r
}

func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func (r *Report) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ReadReport(r io.Reader) (*Report, error) {
	var rep Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, err
	}
	return &rep, nil
}
