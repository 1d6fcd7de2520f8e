// Package ui renders compilation progress in the terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"vc4c/internal/driver"
)

const statusWidth = 11

type progressModel struct {
	title   string
	events  <-chan driver.Event
	spinner spinner.Model
	bar     progress.Model
	methods []methodRow
	index   map[string]int
	summary string
	width   int
	done    bool
}

type methodRow struct {
	name    string
	status  driver.Status
	stage   driver.Stage
	elapsed string
	detail  string
}

type eventMsg driver.Event
type closedMsg struct{}

// NewProgressModel returns a Bubble Tea model that shows one row per method
// and quits once events is closed.
func NewProgressModel(title string, methods []string, events <-chan driver.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 60

	rows := make([]methodRow, len(methods))
	index := make(map[string]int, len(methods))
	for i, name := range methods {
		rows[i] = methodRow{name: name, status: driver.StatusQueued}
		index[name] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		bar:     bar,
		methods: rows,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.next())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m, tea.Batch(m.apply(driver.Event(msg)), m.next())
	case closedMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.bar.Width = max(10, msg.Width-4)
		}
		return m, nil
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.methods) == 0 {
		return ""
	}
	header := m.title
	if m.summary != "" {
		header += " (" + m.summary + ")"
	}
	if m.done {
		header = "finished " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(header))
	b.WriteString("\n\n")
	nameWidth := max(16, m.width-statusWidth-14)
	for _, row := range m.methods {
		label := rowLabel(row)
		fmt.Fprintf(&b, "  %s %s", styleFor(row.status).Render(fmt.Sprintf("%*s", statusWidth, label)), truncate(row.name, nameWidth))
		if row.elapsed != "" {
			b.WriteString(" " + lipgloss.NewStyle().Faint(true).Render(row.elapsed))
		}
		if row.detail != "" {
			fmt.Fprintf(&b, "\n  %*s %s", statusWidth, "", truncate(row.detail, nameWidth))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if m.done {
		b.WriteString(m.bar.ViewAs(1))
	} else {
		b.WriteString(m.bar.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) next() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) apply(ev driver.Event) tea.Cmd {
	if ev.Method == "" {
		m.summary = string(ev.Stage) + " " + string(ev.Status)
		return nil
	}
	i, ok := m.index[ev.Method]
	if !ok {
		return nil
	}
	row := &m.methods[i]
	row.status, row.stage = ev.Status, ev.Stage
	if ev.Elapsed > 0 {
		row.elapsed = ev.Elapsed.Round(10 * time.Microsecond).String()
	}
	if ev.Err != nil {
		row.detail = ev.Err.Error()
	}
	return m.bar.SetPercent(m.fraction())
}

func (m *progressModel) fraction() float64 {
	total := 0.0
	for _, row := range m.methods {
		total += rowFraction(row)
	}
	return total / float64(len(m.methods))
}

func rowFraction(row methodRow) float64 {
	switch row.status {
	case driver.StatusDone, driver.StatusError, driver.StatusCached:
		return 1
	case driver.StatusQueued:
		return 0
	}
	switch row.stage {
	case driver.StageMap:
		return 0.1
	case driver.StageNormalize:
		return 0.3
	case driver.StageOptimize:
		return 0.5
	case driver.StageCodegen:
		return 0.8
	}
	return 0
}

func rowLabel(row methodRow) string {
	if row.status != driver.StatusWorking {
		return string(row.status)
	}
	switch row.stage {
	case driver.StageMap:
		return "mapping"
	case driver.StageNormalize:
		return "normalizing"
	case driver.StageOptimize:
		return "optimizing"
	case driver.StageCodegen:
		return "emitting"
	}
	return string(row.stage)
}

func styleFor(status driver.Status) lipgloss.Style {
	switch status {
	case driver.StatusDone:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case driver.StatusCached:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	case driver.StatusError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case driver.StatusWorking:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
