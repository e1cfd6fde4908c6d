package aurmake

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

type buildLog struct {
	name    string
	path    string
	content string
}

// readBuildLogs loads every captured build log, newest first.
func readBuildLogs() ([]buildLog, error) {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return nil, fmt.Errorf("no build logs under %s: %w", logDir, err)
	}
	var logs []buildLog
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".log") {
			continue
		}
		path := filepath.Join(logDir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		logs = append(logs, buildLog{
			name:    strings.TrimSuffix(de.Name(), ".log"),
			path:    path,
			content: string(data),
		})
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].name < logs[j].name })
	if len(logs) == 0 {
		return nil, fmt.Errorf("no build logs under %s", logDir)
	}
	return logs, nil
}

// runLogViewer shows captured build logs in a scrollable TUI. Tab cycles
// between packages, q quits.
func runLogViewer() int {
	logs, err := readBuildLogs()
	if err != nil {
		cPrintln(colWarn, err)
		return 1
	}
	active := 0

	app := tview.NewApplication()

	header := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetTextAlign(tview.AlignLeft)
	header.SetBorder(true)
	header.SetTitle("aurmake Build Log Viewer")

	logView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetScrollable(true)
	logView.SetBorder(true)

	footer := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetTextAlign(tview.AlignLeft)
	footer.SetBorder(true)
	footer.SetText("[yellow]Tab[-]: next log   [yellow]↑/↓/PgUp/PgDn[-]: scroll   [yellow]q[-]: quit")

	show := func() {
		l := logs[active]
		header.SetText(fmt.Sprintf("[::b]%s[-:-:-]  (%d/%d)  %s", l.name, active+1, len(logs), l.path))
		logView.SetText(tview.TranslateANSI(l.content))
		logView.ScrollToEnd()
	}
	show()

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 3, 0, false).
		AddItem(logView, 0, 1, true).
		AddItem(footer, 3, 0, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyTab:
			active = (active + 1) % len(logs)
			show()
			return nil
		case event.Rune() == 'q', event.Key() == tcell.KeyEscape:
			app.Stop()
			return nil
		}
		return event
	})

	if err := app.SetRoot(flex, true).Run(); err != nil {
		cPrintf(colError, "log viewer failed: %v\n", err)
		return 1
	}
	return 0
}
