package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	ierrors "wcscan/internal/errors"
	"wcscan/internal/logging"
	"wcscan/pkg/memscan"
	"wcscan/pkg/process"
)

var uiTheme = struct {
	background tcell.Color
	surface    tcell.Color
	stripe     tcell.Color
	headerBg   tcell.Color
	text       tcell.Color
	subtleText tcell.Color
	accent     tcell.Color
	warm       tcell.Color
	danger     tcell.Color
	selection  tcell.Color
}{
	background: tcell.NewHexColor(0x0f0f14),
	surface:    tcell.NewHexColor(0x11131a),
	stripe:     tcell.NewHexColor(0x161924),
	headerBg:   tcell.NewHexColor(0x181c26),
	text:       tcell.NewHexColor(0xe7e7eb),
	subtleText: tcell.NewHexColor(0x9aa0b2),
	accent:     tcell.NewHexColor(0x2fb4ad),
	warm:       tcell.NewHexColor(0xffb347),
	danger:     tcell.NewHexColor(0xff6b6b),
	selection:  tcell.NewHexColor(0x1f6f78),
}

func applyTableTheme(t *tview.Table) {
	t.SetBackgroundColor(uiTheme.surface)
	t.SetBorderColor(uiTheme.accent)
	t.SetTitleColor(uiTheme.accent)
	t.SetSelectedStyle(tcell.StyleDefault.Background(uiTheme.selection).Foreground(uiTheme.text))
}

func stripeColor(row int) tcell.Color {
	if row%2 == 1 {
		return uiTheme.stripe
	}
	return uiTheme.surface
}

func bodyCell(text string, row int) *tview.TableCell {
	return tview.NewTableCell(text).
		SetTextColor(uiTheme.text).
		SetBackgroundColor(stripeColor(row))
}

func header(text string) *tview.TableCell {
	return tview.NewTableCell(text).
		SetSelectable(false).
		SetAttributes(tcell.AttrBold).
		SetTextColor(uiTheme.accent).
		SetBackgroundColor(uiTheme.headerBg)
}

const (
	maxLogLines   = 200
	actionTimeout = 5 * time.Second
)

// paneWriter collects logger output until the next tick moves it into the
// log view. Writes never touch tview, so logging is safe from any goroutine.
type paneWriter struct {
	mu    sync.Mutex
	lines []string
}

func (w *paneWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, l := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		w.lines = append(w.lines, l)
	}
	return len(p), nil
}

func (w *paneWriter) drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.lines
	w.lines = nil
	return out
}

func newTUICmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Interactive scanner",
		Long: `Interactive scanner. Pick a process on the left and press Enter to scan it.

Found table: s scan, x cancel, v verify, a analyze, R revalidate,
C clear cached analyses.
Process table: letters jump by name, r refresh, Esc cancel.
Log: c clear.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := tview.NewApplication()
			u, err := newUI(app, g)
			if err != nil {
				return err
			}
			defer u.close()
			return app.SetRoot(u.layout(), true).EnableMouse(true).Run()
		},
	}
}

type ui struct {
	app     *tview.Application
	g       *globals
	log     zerolog.Logger
	pane    *paneWriter
	scanner *memscan.Scanner

	procs   []process.Info
	table   *tview.Table
	found   *tview.Table
	regions *tview.Table
	logView *tview.TextView
	status  *tview.TextView

	selectedPID uint32
	selectedExe string

	// target is the process the found table belongs to.
	target      *process.Process
	regionRows  []memscan.MemoryRegion
	foundRows   []memscan.FoundAddress
	cancelScan  context.CancelFunc
	warn        string
	logLines    []string
	lastLog     string
	lastCount   int
	lastNavRune rune

	// cancelAction is set while a verify, analyze or revalidate runs.
	cancelAction context.CancelFunc
	action       string

	spinnerIdx    int
	spinnerFrames []string
	done          chan struct{}
}

func newUI(app *tview.Application, g *globals) (*ui, error) {
	u := &ui{
		app:           app,
		g:             g,
		pane:          &paneWriter{},
		spinnerFrames: []string{"-", "\\", "|", "/"},
		done:          make(chan struct{}),
	}
	u.log = logging.NewWithComponent(logging.Config{
		Level:  g.cfg.Log.Level,
		Pretty: true,
		Output: u.pane,
	}, "tui")

	s, err := g.newScanner(u.log)
	if err != nil {
		return nil, err
	}
	u.scanner = s

	u.table = tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0)
	applyTableTheme(u.table)
	u.table.SetTitle(" Processes (r=refresh, Enter=scan) ").SetBorder(true)

	u.found = tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0)
	applyTableTheme(u.found)
	u.found.SetTitle(" Found (s=scan, x=cancel, v=verify, a=analyze, R=revalidate, C=clear cache) ").SetBorder(true)

	u.regions = tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0)
	applyTableTheme(u.regions)
	u.regions.SetTitle(" Regions ").SetBorder(true)

	u.logView = tview.NewTextView().
		SetScrollable(true).
		SetWrap(true)
	u.logView.SetBorder(true).SetTitle(" Log (c=clear) ")
	u.logView.SetBackgroundColor(uiTheme.surface)
	u.logView.SetBorderColor(uiTheme.accent)
	u.logView.SetTitleColor(uiTheme.accent)
	u.logView.SetTextColor(uiTheme.text)
	u.logView.SetDynamicColors(true)

	u.status = tview.NewTextView().
		SetScrollable(false).
		SetWrap(false)
	u.status.SetBorder(false)
	u.status.SetBackgroundColor(uiTheme.headerBg)
	u.status.SetTextColor(uiTheme.accent)

	u.showWelcome()
	u.loadProcesses()
	u.bindKeys()
	u.renderFound(-1)
	u.renderRegions()
	u.app.SetFocus(u.table)
	u.updateStatus()
	go u.tickLoop()

	return u, nil
}

func (u *ui) close() {
	if u.cancelScan != nil {
		u.cancelScan()
	}
	if u.cancelAction != nil {
		u.cancelAction()
	}
	close(u.done)
	if u.target != nil {
		ierrors.DeferClose(u.g.log, u.target, "failed to close process")
	}
}

func (u *ui) layout() tview.Primitive {
	top := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(u.found, 0, 3, false).
		AddItem(u.regions, 0, 2, false)

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(top, 0, 2, false).
		AddItem(u.logView, 0, 1, false)

	content := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(u.table, 40, 0, true).
		AddItem(right, 0, 1, false)

	return tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(content, 0, 1, true).
		AddItem(u.status, 1, 0, false)
}

func (u *ui) bindKeys() {
	u.table.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyRight:
			u.app.SetFocus(u.found)
			return nil
		case tcell.KeyLeft:
			return nil
		case tcell.KeyEscape:
			u.stopScan()
			return nil
		}
		switch r := event.Rune(); {
		case r != 0 && unicode.IsLetter(r):
			if r == 'r' || r == 'R' {
				u.loadProcesses()
				return nil
			}
			u.quickNavigateProcesses(r)
			return nil
		}
		return event
	})

	u.found.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyLeft:
			u.app.SetFocus(u.table)
			return nil
		case tcell.KeyRight:
			u.app.SetFocus(u.regions)
			return nil
		}
		switch event.Rune() {
		case 'v', 'V':
			u.verifySelected()
			return nil
		case 'a', 'A':
			u.analyzeSelected()
			return nil
		case 'R':
			u.revalidate()
			return nil
		case 'C':
			u.clearAnalyses()
			return nil
		}
		return u.scanKeys(event)
	})

	u.regions.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyLeft:
			u.app.SetFocus(u.found)
			return nil
		case tcell.KeyRight:
			u.app.SetFocus(u.logView)
			return nil
		}
		return u.scanKeys(event)
	})

	u.logView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyLeft:
			u.app.SetFocus(u.regions)
			return nil
		}
		switch event.Rune() {
		case 'c', 'C':
			u.clearLog()
			return nil
		}
		return event
	})
}

func (u *ui) scanKeys(event *tcell.EventKey) *tcell.EventKey {
	switch event.Rune() {
	case 's', 'S':
		u.startScan()
		return nil
	case 'x', 'X':
		u.stopScan()
		return nil
	}
	return event
}

func (u *ui) loadProcesses() {
	procs, err := process.List()
	if err != nil {
		u.procs = nil
		u.logf("[red]load error: %s", tview.Escape(err.Error()))
		u.table.Clear()
		u.table.SetCell(0, 0, header("PID"))
		u.table.SetCell(0, 1, header("Name"))
		return
	}

	sort.Slice(procs, func(i, j int) bool {
		// sort ascending by name, case-insensitive
		return strings.ToLower(procs[i].Name) < strings.ToLower(procs[j].Name)
	})
	u.procs = procs
	u.populateTable()
}

func (u *ui) populateTable() {
	u.table.Clear()
	u.table.SetCell(0, 0, header("PID"))
	u.table.SetCell(0, 1, header("Name"))

	for i, p := range u.procs {
		row := i + 1
		name := bodyCell(p.Name, row)
		if len(process.Find([]process.Info{p})) > 0 {
			name.SetTextColor(uiTheme.warm)
		}
		u.table.SetCell(row, 0, bodyCell(fmt.Sprintf("%d", p.PID), row))
		u.table.SetCell(row, 1, name)
	}

	if len(u.procs) > 0 {
		u.table.Select(1, 0)
		u.updateSelection(1)
	}

	u.table.SetSelectedFunc(func(row, _ int) {
		u.updateSelection(row)
		u.startScan()
	})
	u.table.SetSelectionChangedFunc(func(row, _ int) {
		u.updateSelection(row)
	})
}

func (u *ui) updateSelection(row int) {
	u.warn = ""
	if row <= 0 || row-1 >= len(u.procs) {
		u.selectedPID = 0
		u.selectedExe = ""
	} else {
		p := u.procs[row-1]
		u.selectedPID = p.PID
		u.selectedExe = p.Name
	}
	u.updateStatus()
}

// openTarget makes u.target the selected process, reusing the open handle
// when it still refers to a live process.
func (u *ui) openTarget() error {
	if u.target != nil && u.target.PID() == u.selectedPID && u.target.Alive() == nil {
		return nil
	}
	if u.target != nil {
		ierrors.DeferClose(u.log, u.target, "failed to close process")
		u.target = nil
	}
	p, err := process.Open(u.selectedPID)
	if err != nil {
		return err
	}
	u.target = p
	return nil
}

func (u *ui) startScan() {
	if u.cancelScan != nil {
		u.logf("[yellow]scan already running (x to cancel)")
		return
	}
	if u.cancelAction != nil {
		u.logf("[yellow]wait for the current action to finish")
		return
	}
	if u.selectedPID == 0 {
		u.warn = "Select a process first"
		u.updateStatus()
		return
	}
	if err := u.openTarget(); err != nil {
		u.warn = fmt.Sprintf("open: %v", err)
		u.updateStatus()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	u.cancelScan = cancel
	u.warn = ""
	target := u.target
	u.logf("[lightcyan]scanning PID %d %s", target.PID(), tview.Escape(u.selectedExe))

	go func() {
		defer cancel()
		found, err := u.scanner.Scan(ctx, target)
		regions := u.scanner.Regions()
		stats := u.scanner.LastStats()

		u.app.QueueUpdateDraw(func() {
			u.cancelScan = nil
			u.regionRows = regions
			u.foundRows = found
			u.renderRegions()
			u.renderFound(0)

			switch {
			case errors.Is(err, context.Canceled):
				u.logf("[yellow]scan cancelled, kept %d partial results", len(found))
			case err != nil:
				u.logf("[red]scan: %s", tview.Escape(err.Error()))
			default:
				u.logf("[lightgreen]scan finished: %d matches in %d/%d regions (%d skipped, %s of %s read) in %s",
					stats.Matches, stats.Scanned, stats.Candidates, stats.Skipped,
					formatBytes(stats.Bytes), formatBytes(stats.TotalBytes), stats.Duration.Round(time.Millisecond))
			}
			u.updateStatus()
		})
	}()
	u.updateStatus()
}

func (u *ui) stopScan() {
	if u.cancelScan == nil {
		return
	}
	u.cancelScan()
	u.logf("[yellow]cancelling scan")
}

func (u *ui) selectedFound() (memscan.FoundAddress, bool) {
	idx := selectedIndex(u.found, len(u.foundRows))
	if idx < 0 || u.target == nil {
		return memscan.FoundAddress{}, false
	}
	return u.foundRows[idx], true
}

// runAction runs fn off the event loop against the current target. The
// returned func is applied on the UI goroutine.
func (u *ui) runAction(name string, fn func(ctx context.Context, target *process.Process) func()) {
	if u.target == nil {
		return
	}
	if u.cancelScan != nil || u.cancelAction != nil {
		u.logf("[yellow]busy, %s skipped", name)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	u.cancelAction = cancel
	u.action = name
	target := u.target

	go func() {
		defer cancel()
		apply := fn(ctx, target)
		u.app.QueueUpdateDraw(func() {
			u.cancelAction = nil
			u.action = ""
			apply()
			u.updateStatus()
		})
	}()
	u.updateStatus()
}

func (u *ui) verifySelected() {
	f, ok := u.selectedFound()
	if !ok {
		return
	}
	u.runAction("verify", func(ctx context.Context, target *process.Process) func() {
		valid, err := u.scanner.Verify(ctx, f, target)
		return func() {
			switch {
			case err != nil:
				u.logf("[red]verify 0x%X: %s", f.Address, tview.Escape(err.Error()))
			case valid:
				u.logf("[lightgreen]0x%X still matches %s", f.Address, f.PatternName)
			default:
				u.logf("[yellow]0x%X no longer matches %s", f.Address, f.PatternName)
			}
		}
	})
}

func (u *ui) analyzeSelected() {
	f, ok := u.selectedFound()
	if !ok {
		return
	}
	u.runAction("analyze", func(ctx context.Context, target *process.Process) func() {
		a, err := u.scanner.Analyze(ctx, target, f, 0)
		var data []byte
		if err == nil {
			data, err = json.Marshal(a.Data)
		}
		cached := u.scanner.AnalysisStats().Cached
		return func() {
			if err != nil {
				u.logf("[red]analyze 0x%X: %s", f.Address, tview.Escape(err.Error()))
				return
			}
			text := string(data)
			if len(text) > 240 {
				text = text[:240] + "..."
			}
			u.logf("[lightcyan]%s @ 0x%X (%s): %s [%d cached]", f.PatternName, f.Address, a.Type, tview.Escape(text), cached)
		}
	})
}

func (u *ui) clearAnalyses() {
	n := u.scanner.AnalysisStats().Cached
	u.scanner.ClearAnalysisCache()
	u.logf("cleared %d cached analyses", n)
}

func (u *ui) revalidate() {
	u.runAction("revalidate", func(ctx context.Context, target *process.Process) func() {
		removed, err := u.scanner.Revalidate(ctx, target)
		found := u.scanner.Found()
		return func() {
			if err != nil {
				u.logf("[red]revalidate: %s", tview.Escape(err.Error()))
				return
			}
			u.foundRows = found
			u.renderFound(-1)
			u.logf("revalidated: %d removed, %d kept", removed, len(u.foundRows))
		}
	})
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

func (u *ui) renderFound(selectIdx int) {
	prevRow, prevCol := u.found.GetSelection()
	prevIdx := prevRow - 1
	rowOff, colOff := u.found.GetOffset()

	u.found.Clear()
	u.found.SetCell(0, 0, header("#"))
	u.found.SetCell(0, 1, header("Pattern"))
	u.found.SetCell(0, 2, header("Address"))
	u.found.SetCell(0, 3, header("Conf"))
	u.found.SetCell(0, 4, header("Description"))

	if len(u.foundRows) == 0 {
		u.found.SetCell(1, 0, tview.NewTableCell("no matches").
			SetSelectable(false).
			SetTextColor(uiTheme.subtleText).
			SetBackgroundColor(uiTheme.surface))
		return
	}

	for i, f := range u.foundRows {
		row := i + 1
		conf := bodyCell(fmt.Sprintf("%.2f", f.Confidence), row)
		if f.Confidence < 0.6 {
			conf.SetTextColor(uiTheme.warm)
		}
		u.found.SetCell(row, 0, bodyCell(fmt.Sprintf("%d", row), row))
		u.found.SetCell(row, 1, bodyCell(f.PatternName, row))
		u.found.SetCell(row, 2, bodyCell(fmt.Sprintf("0x%X", f.Address), row))
		u.found.SetCell(row, 3, conf)
		u.found.SetCell(row, 4, bodyCell(f.Description, row))
	}

	restoreSelection(u.found, selectIdx, prevIdx, prevCol, rowOff, colOff, len(u.foundRows), 4)
}

func (u *ui) renderRegions() {
	u.regions.Clear()
	u.regions.SetCell(0, 0, header("Base"))
	u.regions.SetCell(0, 1, header("Size"))
	u.regions.SetCell(0, 2, header("Prot"))
	u.regions.SetCell(0, 3, header("Kind"))

	classifier := memscan.Classifier{MaxRegionSize: u.g.cfg.Scanner.MaxRegionSize}
	row, candidates := 1, 0
	for _, r := range u.regionRows {
		if r.State != memscan.StateCommitted {
			continue
		}
		cells := []string{
			fmt.Sprintf("0x%012X", r.BaseAddress),
			fmt.Sprintf("%d", r.Size),
			r.Protection.String(),
			r.Kind.String(),
		}
		candidate := classifier.IsCandidate(r)
		if candidate {
			candidates++
		}
		for col, text := range cells {
			c := bodyCell(text, row)
			if !candidate {
				c.SetTextColor(uiTheme.subtleText)
			}
			u.regions.SetCell(row, col, c)
		}
		row++
	}
	u.regions.SetTitle(fmt.Sprintf(" Regions (%d candidates / %d committed) ", candidates, row-1))
}

func restoreSelection(table *tview.Table, selectIdx, prevIdx, prevCol, rowOff, colOff, length, maxCol int) {
	rowToSelect := 0
	if selectIdx >= 0 && selectIdx < length {
		rowToSelect = selectIdx
	} else if selectIdx < 0 && prevIdx >= 0 && prevIdx < length {
		rowToSelect = prevIdx
	}

	table.Select(rowToSelect+1, prevCol)

	if rowOff > length {
		rowOff = length
	}
	if colOff > maxCol {
		colOff = maxCol
	}
	table.SetOffset(rowOff, colOff)
}

func selectedIndex(table *tview.Table, length int) int {
	row, _ := table.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= length {
		return -1
	}
	return idx
}

func (u *ui) tickLoop() {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-u.done:
			return
		case <-ticker.C:
			u.app.QueueUpdateDraw(u.tick)
		}
	}
}

func (u *ui) tick() {
	for _, line := range u.pane.drain() {
		u.logf("%s", tview.Escape(line))
	}
	u.updateStatus()
}

func (u *ui) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if msg == u.lastLog {
		u.lastCount++
		if len(u.logLines) > 0 {
			u.logLines[len(u.logLines)-1] = collapseMsg(u.lastLog, u.lastCount)
		}
	} else {
		u.lastLog = msg
		u.lastCount = 1
		u.logLines = append(u.logLines, msg)
		if len(u.logLines) > maxLogLines {
			u.logLines = u.logLines[len(u.logLines)-maxLogLines:]
		}
	}

	u.logView.SetText(strings.Join(u.logLines, "\n"))
	u.logView.ScrollToEnd()
}

func (u *ui) clearLog() {
	u.logLines = nil
	u.lastLog = ""
	u.lastCount = 0
	u.logView.SetText("")
}

func (u *ui) showWelcome() {
	help := []string{
		"[lightgreen]wcscan",
		"[lightcyan]Pick a process on the left and press Enter to scan it.",
		fmt.Sprintf("[lightcyan]%d signatures loaded.", len(u.scanner.Patterns())),
	}
	u.logLines = append(help, u.logLines...)
	u.logView.SetText(strings.Join(u.logLines, "\n"))
}

func collapseMsg(msg string, count int) string {
	if count <= 1 {
		return msg
	}
	return fmt.Sprintf("%s (x%d)", msg, count)
}

func (u *ui) spinnerNext() string {
	if len(u.spinnerFrames) == 0 {
		return ""
	}
	frame := u.spinnerFrames[u.spinnerIdx%len(u.spinnerFrames)]
	u.spinnerIdx = (u.spinnerIdx + 1) % len(u.spinnerFrames)
	return frame
}

func (u *ui) updateStatus() {
	text := "No process selected"
	color := uiTheme.accent
	switch {
	case u.warn != "":
		text = u.warn
		color = uiTheme.danger
	case u.cancelScan != nil && u.target != nil:
		text = fmt.Sprintf("%s scanning PID %d", u.spinnerNext(), u.target.PID())
		color = uiTheme.warm
	case u.action != "" && u.target != nil:
		text = fmt.Sprintf("%s %s PID %d", u.spinnerNext(), u.action, u.target.PID())
		color = uiTheme.warm
	case u.selectedPID != 0:
		text = fmt.Sprintf("PID %d %s | %d found", u.selectedPID, u.selectedExe, len(u.foundRows))
	}
	u.status.SetTextColor(color)
	u.status.SetText(text)
}

func (u *ui) quickNavigateProcesses(ch rune) {
	if len(u.procs) == 0 {
		return
	}

	target := unicode.ToLower(ch)
	start := 0
	if target == u.lastNavRune {
		if row, _ := u.table.GetSelection(); row > 0 {
			start = row
		}
	}

	for i := 0; i < len(u.procs); i++ {
		idx := (start + i) % len(u.procs)
		name := strings.ToLower(u.procs[idx].Name)
		if strings.HasPrefix(name, string(target)) {
			u.table.Select(idx+1, 0)
			u.updateSelection(idx + 1)
			u.lastNavRune = target
			return
		}
	}

	u.lastNavRune = 0
}
