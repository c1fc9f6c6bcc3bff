package tui

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell"
	"github.com/rivo/tview"

	"github.com/open-edge-platform/container-image-composer/internal/builder"
)

// Monitor renders live build progress: one row per pipeline step plus a
// scrolling message pane.
type Monitor struct {
	app      *tview.Application
	steps    *tview.Table
	messages *tview.TextView

	mu    sync.Mutex
	order []string
	row   map[string]int
}

// NewMonitor prepares the progress view for the given pipeline steps.
func NewMonitor(stepNames []string) *Monitor {
	m := &Monitor{
		app:   tview.NewApplication(),
		steps: tview.NewTable(),
		messages: tview.NewTextView().SetScrollable(true),
		order:    stepNames,
		row:      make(map[string]int),
	}

	m.steps.SetBorder(true)
	m.steps.SetTitle(" Build steps ")
	m.messages.SetBorder(true)
	m.messages.SetTitle(" Log ")

	for i, name := range stepNames {
		m.row[name] = i
		m.steps.SetCell(i, 0, tview.NewTableCell(name))
		m.steps.SetCell(i, 1, statusCell(builder.StatusPending))
	}

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(m.steps, len(stepNames)+2, 0, false).
		AddItem(m.messages, 0, 1, false)
	m.app.SetRoot(layout, true)

	return m
}

// Observer returns the builder observer feeding this monitor.
func (m *Monitor) Observer() builder.Observer {
	return func(ev builder.Event) {
		m.mu.Lock()
		row, ok := m.row[ev.Step]
		m.mu.Unlock()
		if !ok {
			return
		}

		m.app.QueueUpdateDraw(func() {
			m.steps.SetCell(row, 1, statusCell(ev.Status))
			switch {
			case ev.Err != nil:
				fmt.Fprintf(m.messages, "[red]%s: %v[white]\n", ev.Step, ev.Err)
			case ev.Message != "":
				fmt.Fprintf(m.messages, "%s: %s\n", ev.Step, ev.Message)
			}
		})
	}
}

// Run blocks displaying the progress view until Stop is called or the
// user quits with Ctrl-C.
func (m *Monitor) Run() error {
	return m.app.Run()
}

// Stop tears the view down and unblocks Run.
func (m *Monitor) Stop() {
	m.app.Stop()
}

func statusCell(status builder.StepStatus) *tview.TableCell {
	cell := tview.NewTableCell(string(status))
	switch status {
	case builder.StatusRunning:
		cell.SetTextColor(tcell.ColorYellow)
	case builder.StatusDone:
		cell.SetTextColor(tcell.ColorGreen)
	case builder.StatusSkipped:
		cell.SetTextColor(tcell.ColorGray)
	case builder.StatusFailed:
		cell.SetTextColor(tcell.ColorRed)
	default:
		cell.SetTextColor(tcell.ColorWhite)
	}
	return cell
}
