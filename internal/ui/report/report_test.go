package report

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/agent462/drover/internal/bootstrap"
	"github.com/agent462/drover/internal/discover"
	"github.com/agent462/drover/internal/fleet"
	"github.com/agent462/drover/internal/push"
	"github.com/agent462/drover/internal/status"
)

func statusRows() []status.Row {
	return []status.Row{
		{Index: 0, Address: "lb-a", Frontend: status.Active, Failover: status.Active},
		{Index: 1, Address: "lb-b", Frontend: status.Active, Failover: status.Active},
	}
}

func TestFormatStatusTabSeparated(t *testing.T) {
	output := NewFormatter(false).FormatStatus(statusRows())

	want := "0\tlb-a\tActive\tActive\n1\tlb-b\tActive\tActive\n"
	if output != want {
		t.Errorf("FormatStatus = %q, want %q", output, want)
	}
}

func TestFormatStatusFailedService(t *testing.T) {
	rows := statusRows()
	rows[1].Failover = status.Failed

	output := NewFormatter(false).FormatStatus(rows)
	if !strings.Contains(output, "1\tlb-b\tActive\tFailed\n") {
		t.Errorf("expected Failed cell for lb-b, got:\n%s", output)
	}
}

func TestFormatStatusWithColor(t *testing.T) {
	output := NewFormatter(true).FormatStatus(statusRows())
	if !strings.Contains(output, "\033[") {
		t.Errorf("expected ANSI color codes in output, got:\n%s", output)
	}
	// Field structure survives colorization.
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	for _, line := range lines {
		if got := len(strings.Split(line, "\t")); got != 4 {
			t.Errorf("line %q has %d fields, want 4", line, got)
		}
	}
}

func TestFormatStatusWithoutColor(t *testing.T) {
	output := NewFormatter(false).FormatStatus(statusRows())
	if strings.Contains(output, "\033[") {
		t.Errorf("expected no ANSI color codes, got:\n%s", output)
	}
}

func TestFormatStatusJSON(t *testing.T) {
	rows := statusRows()
	rows[1].Frontend = status.Failed

	data, err := NewFormatter(false).FormatStatusJSON(rows)
	if err != nil {
		t.Fatalf("FormatStatusJSON error: %v", err)
	}

	var parsed []map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(parsed))
	}
	if parsed[0]["address"] != "lb-a" || parsed[0]["frontend"] != "Active" {
		t.Errorf("unexpected first row: %v", parsed[0])
	}
	if parsed[1]["frontend"] != "Failed" {
		t.Errorf("expected Failed frontend for lb-b, got %v", parsed[1])
	}
}

func TestFormatPush(t *testing.T) {
	rep := &push.Report{
		Results: []push.HostResult{
			{Host: fleet.Host{Index: 0, Address: "lb-a"}},
			{Host: fleet.Host{Index: 1, Address: "lb-b"}, Skipped: true},
			{Host: fleet.Host{Index: 2, Address: "lb-c"}, Err: errors.New("remote exit 1")},
		},
	}

	output := NewFormatter(false).FormatPush(rep)
	for _, want := range []string{
		"host lb-a: updated",
		"host lb-b: skipped (active)",
		"host lb-c: failed (remote exit 1)",
		"1 updated, 1 skipped, 1 failed",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q, got:\n%s", want, output)
		}
	}
}

func TestFormatPushAllClean(t *testing.T) {
	rep := &push.Report{
		Results: []push.HostResult{
			{Host: fleet.Host{Index: 0, Address: "lb-a"}},
			{Host: fleet.Host{Index: 1, Address: "lb-b"}},
		},
	}

	output := NewFormatter(false).FormatPush(rep)
	if !strings.Contains(output, "2 updated\n") {
		t.Errorf("clean push summary should omit zero counts, got:\n%s", output)
	}
	if strings.Contains(output, "skipped") || strings.Contains(output, "failed") {
		t.Errorf("clean push should not mention skips or failures, got:\n%s", output)
	}
}

func TestFormatInit(t *testing.T) {
	results := []bootstrap.Result{
		{Address: "new-1"},
		{Address: "new-2", Err: errors.New("connect: no route to host")},
	}

	output := NewFormatter(false).FormatInit(results)
	for _, want := range []string{
		"host new-1: bootstrapped",
		"host new-2: failed (connect: no route to host)",
		"1 bootstrapped, 1 failed",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q, got:\n%s", want, output)
		}
	}
}

func TestFormatDiscover(t *testing.T) {
	candidates := []discover.Candidate{
		{Address: "10.0.0.4", Port: 22, Banner: "SSH-2.0-OpenSSH_9.7"},
		{Address: "10.0.0.5", Port: 22, Banner: "SSH-2.0-OpenSSH_9.7", Known: true},
	}

	output := NewFormatter(false).FormatDiscover(candidates)
	if !strings.Contains(output, "10.0.0.4\t22\tSSH-2.0-OpenSSH_9.7") {
		t.Errorf("expected candidate line, got:\n%s", output)
	}
	if !strings.Contains(output, "10.0.0.5\t22\tSSH-2.0-OpenSSH_9.7\tregistered") {
		t.Errorf("expected registered marker, got:\n%s", output)
	}
	if !strings.Contains(output, "2 candidates, 1 already registered") {
		t.Errorf("expected summary, got:\n%s", output)
	}
}

func TestFormatDiscoverEmpty(t *testing.T) {
	output := NewFormatter(false).FormatDiscover(nil)
	if !strings.Contains(output, "0 candidates") {
		t.Errorf("expected empty summary, got:\n%s", output)
	}
}
