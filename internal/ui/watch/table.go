package watch

import (
	"strconv"

	"charm.land/bubbles/v2/table"
	"charm.land/lipgloss/v2"

	"github.com/agent462/drover/internal/status"
)

// statusTable wraps a bubbles/table showing one row per fleet host.
type statusTable struct {
	table  table.Model
	width  int
	height int
}

func newStatusTable(width, height int) statusTable {
	// Subtract 2 for the outer pane border so rows fit inside the content area.
	contentWidth := width - 2

	t := table.New(
		table.WithColumns(buildColumns(contentWidth)),
		table.WithFocused(true),
		table.WithWidth(contentWidth),
		table.WithHeight(height-3), // account for border + header border-bottom
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorSubtle).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return statusTable{
		table:  t,
		width:  contentWidth,
		height: height,
	}
}

func (s *statusTable) SetRows(rows []status.Row) {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[i] = table.Row{
			strconv.Itoa(r.Index),
			r.Address,
			string(r.Frontend),
			string(r.Failover),
		}
	}
	s.table.SetRows(out)
}

func (s *statusTable) View() string {
	return s.table.View()
}

func (s *statusTable) Resize(width, height int) {
	s.width = width - 2
	s.height = height
	s.table.SetWidth(s.width)
	s.table.SetHeight(height - 3)
	s.table.SetColumns(buildColumns(s.width))
}

func buildColumns(width int) []table.Column {
	// Available width for column content (subtract cell padding: 1 left + 1 right per column × 4 cols).
	w := width - 8
	if w < 28 {
		w = 28
	}

	indexW := 3
	serviceW := 10
	addressW := w - indexW - 2*serviceW
	if addressW < 12 {
		addressW = 12
	}

	return []table.Column{
		{Title: "#", Width: indexW},
		{Title: "Address", Width: addressW},
		{Title: "Frontend", Width: serviceW},
		{Title: "Failover", Width: serviceW},
	}
}
