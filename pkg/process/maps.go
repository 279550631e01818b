package process

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"wcscan/pkg/memscan"
)

// mapping is one line of /proc/<pid>/maps.
type mapping struct {
	Start, End uint64
	Perms      string
	Path       string
}

func (m mapping) read() bool    { return m.Perms[0] == 'r' }
func (m mapping) write() bool   { return m.Perms[1] == 'w' }
func (m mapping) exec() bool    { return m.Perms[2] == 'x' }
func (m mapping) private() bool { return m.Perms[3] == 'p' }

// anonymous reports whether the mapping is process-private storage rather
// than a file or a kernel-provided page.
func (m mapping) anonymous() bool {
	return m.Path == "" ||
		m.Path == "[heap]" ||
		strings.HasPrefix(m.Path, "[stack") ||
		strings.HasPrefix(m.Path, "[anon")
}

func parseMapsLine(line string) (mapping, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return mapping{}, fmt.Errorf("malformed maps line %q", line)
	}
	lo, hi, ok := strings.Cut(fields[0], "-")
	if !ok {
		return mapping{}, fmt.Errorf("malformed range %q", fields[0])
	}
	start, err := strconv.ParseUint(lo, 16, 64)
	if err != nil {
		return mapping{}, fmt.Errorf("range start: %w", err)
	}
	end, err := strconv.ParseUint(hi, 16, 64)
	if err != nil {
		return mapping{}, fmt.Errorf("range end: %w", err)
	}
	if end <= start {
		return mapping{}, fmt.Errorf("empty range %q", fields[0])
	}
	if len(fields[1]) != 4 {
		return mapping{}, fmt.Errorf("malformed perms %q", fields[1])
	}
	return mapping{
		Start: start,
		End:   end,
		Perms: fields[1],
		Path:  strings.Join(fields[5:], " "),
	}, nil
}

func parseMaps(r io.Reader) ([]mapping, error) {
	var out []mapping
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		m, err := parseMapsLine(line)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func mapsProtection(m mapping) memscan.Protection {
	r, w, x := m.read(), m.write(), m.exec()
	switch {
	case w && !m.private() && !m.anonymous():
		// shared file mapping, writes go to the file
		if x {
			return memscan.ProtExecuteReadWrite
		}
		return memscan.ProtReadWrite
	case w && m.private() && !m.anonymous():
		return memscan.ProtCopyOnWrite
	case x && w:
		return memscan.ProtExecuteReadWrite
	case x && r:
		return memscan.ProtExecuteRead
	case x:
		return memscan.ProtExecute
	case w:
		return memscan.ProtReadWrite
	case r:
		return memscan.ProtReadOnly
	default:
		return memscan.ProtNone
	}
}

// mapsToRegions converts parsed mappings into a contiguous region list
// starting at address zero, filling holes with Free regions.
func mapsToRegions(maps []mapping) []memscan.MemoryRegion {
	images := map[string]bool{}
	for _, m := range maps {
		if m.exec() && m.Path != "" && !m.anonymous() {
			images[m.Path] = true
		}
	}

	var (
		out    []memscan.MemoryRegion
		cursor uint64
	)
	for _, m := range maps {
		if m.End <= cursor {
			continue
		}
		start := max(m.Start, cursor)
		if start > cursor {
			out = append(out, memscan.MemoryRegion{
				BaseAddress: cursor,
				Size:        start - cursor,
				Protection:  memscan.ProtNone,
				State:       memscan.StateFree,
			})
		}

		kind := memscan.KindMapped
		switch {
		case m.anonymous() && m.private():
			kind = memscan.KindPrivate
		case images[m.Path] || strings.HasPrefix(m.Path, "["):
			kind = memscan.KindImage
		}
		out = append(out, memscan.MemoryRegion{
			BaseAddress: start,
			Size:        m.End - start,
			Protection:  mapsProtection(m),
			State:       memscan.StateCommitted,
			Kind:        kind,
		})
		cursor = m.End
	}
	return out
}

// regionAt returns the region containing addr, or the first region above it.
func regionAt(regions []memscan.MemoryRegion, addr uint64) (memscan.MemoryRegion, error) {
	i := sort.Search(len(regions), func(i int) bool { return regions[i].End() > addr })
	if i == len(regions) {
		return memscan.MemoryRegion{}, memscan.ErrNoMoreRegions
	}
	return regions[i], nil
}
