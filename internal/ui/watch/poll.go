package watch

import (
	"context"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/agent462/drover/internal/fleet"
	"github.com/agent462/drover/internal/status"
)

// tickCmd returns a tea.Cmd that fires a pollTickMsg after the given interval.
func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}

// pollCmd probes the fleet once and delivers the rows.
func pollCmd(collector *status.Collector, hosts []fleet.Host) tea.Cmd {
	return func() tea.Msg {
		rows := collector.Collect(context.Background(), hosts)
		return statusMsg{Rows: rows, At: time.Now()}
	}
}
