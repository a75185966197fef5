// Package report renders fleet reports for the terminal. Status
// output is one TAB-separated line per host in registry order, which
// keeps it cut/awk friendly for automation; color only ever wraps
// cell contents, never changes the shape.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agent462/drover/internal/bootstrap"
	"github.com/agent462/drover/internal/discover"
	"github.com/agent462/drover/internal/push"
	"github.com/agent462/drover/internal/status"
)

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// Formatter formats fleet reports for terminal display.
type Formatter struct {
	Color bool
}

// NewFormatter creates a Formatter with the given options.
func NewFormatter(color bool) *Formatter {
	return &Formatter{Color: color}
}

// FormatStatus renders one line per host: index, address, frontend
// status, failover status, TAB-separated, in the order given.
func (f *Formatter) FormatStatus(rows []status.Row) string {
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("%d\t%s\t%s\t%s\n",
			row.Index, row.Address,
			f.colorizeStatus(row.Frontend),
			f.colorizeStatus(row.Failover)))
	}
	return b.String()
}

// FormatStatusJSON serializes status rows as a JSON array.
func (f *Formatter) FormatStatusJSON(rows []status.Row) ([]byte, error) {
	type jsonRow struct {
		Index    int    `json:"index"`
		Address  string `json:"address"`
		Frontend string `json:"frontend"`
		Failover string `json:"failover"`
	}

	out := make([]jsonRow, len(rows))
	for i, row := range rows {
		out[i] = jsonRow{
			Index:    row.Index,
			Address:  row.Address,
			Frontend: string(row.Frontend),
			Failover: string(row.Failover),
		}
	}

	return json.MarshalIndent(out, "", "  ")
}

// FormatPush renders per-host push outcomes and a summary line.
func (f *Formatter) FormatPush(rep *push.Report) string {
	var b strings.Builder

	failed := 0
	for _, res := range rep.Results {
		host := f.colorize(res.Host.Address, colorCyan)
		switch {
		case res.Skipped:
			b.WriteString(fmt.Sprintf("host %s: %s\n", host, f.colorize("skipped (active)", colorYellow)))
		case res.Err != nil:
			failed++
			b.WriteString(fmt.Sprintf("host %s: %s (%v)\n", host, f.colorize("failed", colorRed), res.Err))
		default:
			b.WriteString(fmt.Sprintf("host %s: %s\n", host, f.colorize("updated", colorGreen)))
		}
	}

	parts := []string{fmt.Sprintf("%d updated", rep.Pushed())}
	if n := rep.Skipped(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", n))
	}
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", failed))
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString("\n")

	return b.String()
}

// FormatInit renders per-host bootstrap outcomes and a summary line.
func (f *Formatter) FormatInit(results []bootstrap.Result) string {
	var b strings.Builder

	ok := 0
	for _, res := range results {
		host := f.colorize(res.Address, colorCyan)
		if res.Err != nil {
			b.WriteString(fmt.Sprintf("host %s: %s (%v)\n", host, f.colorize("failed", colorRed), res.Err))
			continue
		}
		ok++
		b.WriteString(fmt.Sprintf("host %s: %s\n", host, f.colorize("bootstrapped", colorGreen)))
	}

	summary := fmt.Sprintf("%d bootstrapped", ok)
	if failed := len(results) - ok; failed > 0 {
		summary += fmt.Sprintf(", %d failed", failed)
	}
	b.WriteString(summary)
	b.WriteString("\n")

	return b.String()
}

// FormatDiscover renders scan candidates and a summary line.
func (f *Formatter) FormatDiscover(candidates []discover.Candidate) string {
	var b strings.Builder

	known := 0
	for _, c := range candidates {
		line := fmt.Sprintf("%s\t%d\t%s", f.colorize(c.Address, colorCyan), c.Port, c.Banner)
		if c.Known {
			known++
			line += "\t" + f.colorize("registered", colorYellow)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	summary := fmt.Sprintf("%d candidates", len(candidates))
	if known > 0 {
		summary += fmt.Sprintf(", %d already registered", known)
	}
	b.WriteString(summary)
	b.WriteString("\n")

	return b.String()
}

func (f *Formatter) colorizeStatus(s status.ServiceStatus) string {
	if s == status.Active {
		return f.colorize(string(s), colorGreen)
	}
	return f.colorize(string(s), colorRed)
}

func (f *Formatter) colorize(text, color string) string {
	if !f.Color {
		return text
	}
	return color + text + colorReset
}
