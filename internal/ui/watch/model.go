// Package watch is a live terminal view of fleet status. It polls the
// collector on an interval and renders one table row per host, in
// registry order, with the same Active/Failed verdicts the status
// command prints.
package watch

import (
	"fmt"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/agent462/drover/internal/fleet"
	"github.com/agent462/drover/internal/status"
)

// Config holds the parameters needed to create a watch Model.
type Config struct {
	Collector *status.Collector
	Registry  *fleet.Registry
	Interval  time.Duration
}

// Model is the root Bubble Tea model for the watch view.
type Model struct {
	collector *status.Collector
	hosts     []fleet.Host
	interval  time.Duration

	table    statusTable
	rows     []status.Row
	lastPoll time.Time
	polling  bool

	width  int
	height int
}

// New creates a watch Model from the given config.
func New(cfg Config) Model {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Second
	}

	return Model{
		collector: cfg.Collector,
		hosts:     cfg.Registry.Hosts(),
		interval:  cfg.Interval,
		table:     newStatusTable(80, 24),
		polling:   true,
	}
}

// Init starts the first poll immediately; subsequent polls follow the
// configured interval.
func (m Model) Init() tea.Cmd {
	return pollCmd(m.collector, m.hosts)
}

// Update handles all messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case pollTickMsg:
		if m.polling {
			return m, nil
		}
		m.polling = true
		return m, pollCmd(m.collector, m.hosts)

	case statusMsg:
		m.rows = msg.Rows
		m.lastPoll = msg.At
		m.polling = false
		m.table.SetRows(msg.Rows)
		return m, tickCmd(m.interval)
	}

	var cmd tea.Cmd
	m.table.table, cmd = m.table.table.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		if m.polling {
			return m, nil
		}
		m.polling = true
		return m, pollCmd(m.collector, m.hosts)
	}

	// Forward j/k and other navigation to the table.
	var cmd tea.Cmd
	m.table.table, cmd = m.table.table.Update(msg)
	return m, cmd
}

func (m *Model) resize() {
	statusHeight := 1
	mainHeight := m.height - statusHeight
	if mainHeight < 5 {
		mainHeight = 5
	}
	m.table.Resize(m.width, mainHeight)
}

// View renders the table and status bar.
func (m Model) View() tea.View {
	if m.width == 0 || m.height == 0 {
		return tea.NewView("Loading...")
	}

	statusHeight := 1
	mainHeight := m.height - statusHeight
	if mainHeight < 5 {
		mainHeight = 5
	}

	tableView := paneStyle.Width(m.width).Height(mainHeight).Render(m.table.View())
	bar := m.renderStatusBar()

	v := tea.NewView(lipgloss.JoinVertical(lipgloss.Left, tableView, bar))
	v.AltScreen = true
	return v
}

func (m Model) renderStatusBar() string {
	left := fmt.Sprintf(" %d hosts", len(m.hosts))

	if failed := failedServices(m.rows); failed > 0 {
		left += " │ " + degradedStyle.Render(fmt.Sprintf("%d failed", failed))
	} else if len(m.rows) > 0 {
		left += " │ " + healthyStyle.Render("healthy")
	}

	switch {
	case m.polling:
		left += " │ polling..."
	case !m.lastPoll.IsZero():
		left += " │ refreshed " + m.lastPoll.Format("15:04:05")
	}

	right := helpKeyStyle.Render("r") + helpDescStyle.Render(" refresh") +
		"  " + helpKeyStyle.Render("q") + helpDescStyle.Render(" quit") + " "

	// Pad middle.
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	middle := fmt.Sprintf("%*s", gap, "")

	return statusBarStyle.Width(m.width).Render(left + middle + right)
}

// failedServices counts Failed verdicts across all rows.
func failedServices(rows []status.Row) int {
	n := 0
	for _, r := range rows {
		if r.Frontend == status.Failed {
			n++
		}
		if r.Failover == status.Failed {
			n++
		}
	}
	return n
}
