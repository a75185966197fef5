package status

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/agent462/drover/internal/config"
	"github.com/agent462/drover/internal/fleet"
	"github.com/agent462/drover/internal/remote"
	"github.com/agent462/drover/internal/remote/remotetest"
)

var testServices = config.Services{Frontend: "nginx", Failover: "keepalived"}

func testHosts() []fleet.Host {
	return []fleet.Host{
		{Index: 0, Address: "lb-a"},
		{Index: 1, Address: "lb-b"},
	}
}

func TestCollectAllActive(t *testing.T) {
	t.Parallel()

	fake := remotetest.New()
	rows := NewCollector(fake, testServices).Collect(context.Background(), testHosts())

	want := []Row{
		{Index: 0, Address: "lb-a", Frontend: Active, Failover: Active},
		{Index: 1, Address: "lb-b", Frontend: Active, Failover: Active},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
	if got := fake.CallCount(); got != 4 {
		t.Errorf("probe calls = %d, want 4 (two per host)", got)
	}
}

func TestCollectProbeCommands(t *testing.T) {
	t.Parallel()

	fake := remotetest.New()
	NewCollector(fake, testServices).Collect(context.Background(), testHosts()[:1])

	calls := fake.CallsFor("lb-a")
	if len(calls) != 2 {
		t.Fatalf("got %d calls for lb-a, want 2", len(calls))
	}
	if calls[0].Command != "systemctl is-active nginx" {
		t.Errorf("frontend probe = %q", calls[0].Command)
	}
	if calls[1].Command != "systemctl is-active keepalived" {
		t.Errorf("failover probe = %q", calls[1].Command)
	}
}

func TestCollectFailureDowngradesNotOmits(t *testing.T) {
	t.Parallel()

	fake := remotetest.New()
	fake.Handler = func(c remotetest.Call) *remote.Outcome {
		if c.Host == "lb-b" && strings.Contains(c.Command, "nginx") {
			return &remote.Outcome{ExitCode: 3, Stdout: []byte("inactive\n")}
		}
		return &remote.Outcome{ExitCode: 0}
	}

	rows := NewCollector(fake, testServices).Collect(context.Background(), testHosts())
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2; a failing probe must not drop its host", len(rows))
	}
	if rows[1].Frontend != Failed {
		t.Errorf("lb-b frontend = %v, want Failed", rows[1].Frontend)
	}
	if rows[1].Failover != Active {
		t.Errorf("lb-b failover = %v, want Active", rows[1].Failover)
	}
	if rows[0].Frontend != Active || rows[0].Failover != Active {
		t.Errorf("lb-a should be unaffected: %+v", rows[0])
	}
}

func TestCollectConnectionErrorFailsBothServices(t *testing.T) {
	t.Parallel()

	fake := remotetest.New()
	fake.Handler = func(c remotetest.Call) *remote.Outcome {
		if c.Host == "lb-a" {
			return &remote.Outcome{ExitCode: -1, Err: errors.New("connect: connection refused")}
		}
		return &remote.Outcome{ExitCode: 0}
	}

	rows := NewCollector(fake, testServices).Collect(context.Background(), testHosts())
	if rows[0].Frontend != Failed || rows[0].Failover != Failed {
		t.Errorf("unreachable host should report both services Failed: %+v", rows[0])
	}
	if rows[0].Index != 0 || rows[0].Address != "lb-a" {
		t.Errorf("unreachable host row lost its identity: %+v", rows[0])
	}
}

func TestCollectEmptyFleet(t *testing.T) {
	t.Parallel()

	fake := remotetest.New()
	rows := NewCollector(fake, testServices).Collect(context.Background(), nil)
	if len(rows) != 0 {
		t.Errorf("got %d rows for empty fleet, want 0", len(rows))
	}
	if fake.CallCount() != 0 {
		t.Errorf("empty fleet should issue no probes, got %d", fake.CallCount())
	}
}

func TestCollectOrderIndependentOfCompletion(t *testing.T) {
	t.Parallel()

	hosts := make([]fleet.Host, 10)
	delay := make(map[string]time.Duration, len(hosts))
	for i := range hosts {
		addr := fmt.Sprintf("lb-%d", i)
		hosts[i] = fleet.Host{Index: i, Address: addr}
		// Earlier hosts finish last.
		delay[addr] = time.Duration(len(hosts)-i) * 3 * time.Millisecond
	}

	fake := remotetest.New()
	fake.Handler = func(c remotetest.Call) *remote.Outcome {
		time.Sleep(delay[c.Host])
		return &remote.Outcome{ExitCode: 0}
	}

	rows := NewCollector(fake, testServices, WithConcurrency(len(hosts))).
		Collect(context.Background(), hosts)
	if len(rows) != len(hosts) {
		t.Fatalf("got %d rows, want %d", len(rows), len(hosts))
	}
	for i, row := range rows {
		if row.Index != i || row.Address != hosts[i].Address {
			t.Errorf("row %d = {%d %s}, want {%d %s}",
				i, row.Index, row.Address, i, hosts[i].Address)
		}
	}
}
