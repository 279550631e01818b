package process

import (
	"context"
	"errors"
	"sort"
	"strings"

	gops "github.com/shirou/gopsutil/v4/process"

	"wcscan/pkg/memscan"
)

var _ memscan.Target = (*Process)(nil)

type Info struct {
	PID       uint32
	ParentPID uint32
	Name      string
	Exe       string
}

// List returns the running processes ordered by PID. Processes that exit or
// deny access while being listed are left out.
func List() ([]Info, error) {
	ctx := context.Background()
	procs, err := gops.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Info, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		ppid, _ := p.PpidWithContext(ctx)
		exe, _ := p.ExeWithContext(ctx)
		out = append(out, Info{
			PID:       uint32(p.Pid),
			ParentPID: uint32(ppid),
			Name:      name,
			Exe:       exe,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// GameExecutables are the process names of the supported Warcraft clients.
var GameExecutables = []string{
	"Warcraft III.exe",
	"war3.exe",
	"Warcraft II BNE.exe",
	"Warcraft II.exe",
	"Warcraft.exe",
}

// Find filters procs down to those whose name matches one of names,
// ignoring case. With no names it matches GameExecutables.
func Find(procs []Info, names ...string) []Info {
	if len(names) == 0 {
		names = GameExecutables
	}
	var out []Info
	for _, p := range procs {
		for _, n := range names {
			if strings.EqualFold(p.Name, n) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

const maxChunk = 1 << 20

// readChunks fills buf from addr in pieces of at most maxChunk bytes. Every
// piece must transfer completely; ctx is checked before each one.
func readChunks(ctx context.Context, addr uint64, buf []byte, read func(addr uint64, b []byte) (int, error)) error {
	for off := 0; off < len(buf); {
		if err := ctx.Err(); err != nil {
			return memscan.NewMemoryAccessError("read", addr, len(buf), err)
		}
		n := min(len(buf)-off, maxChunk)
		got, err := read(addr+uint64(off), buf[off:off+n])
		if err != nil {
			return memscan.NewMemoryAccessError("read", addr+uint64(off), n, err)
		}
		if got != n {
			return memscan.ShortReadError(addr+uint64(off), n, got)
		}
		off += n
	}
	return nil
}

func checkSize(addr uint64, size int) error {
	if size < 0 {
		return memscan.NewMemoryAccessError("read", addr, size, errors.New("negative size"))
	}
	return nil
}
