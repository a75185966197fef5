package keepalived

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testParams() Params {
	return Params{
		Index:     0,
		Address:   "10.0.0.1",
		Peers:     []string{"10.0.0.2", "10.0.0.3"},
		VRID:      51,
		VIP:       "10.0.0.100",
		Interface: "eth0",
		Frontend:  "nginx",
	}
}

func TestRenderMaster(t *testing.T) {
	t.Parallel()

	out, err := NewRenderer().Render(testParams())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	conf := string(out)
	for _, want := range []string{
		"state MASTER",
		"priority 100",
		"virtual_router_id 51",
		"unicast_src_ip 10.0.0.1",
		"interface eth0",
		"10.0.0.100",
		"chk_nginx",
		"systemctl is-active nginx",
	} {
		if !strings.Contains(conf, want) {
			t.Errorf("rendered config missing %q:\n%s", want, conf)
		}
	}
	for _, peer := range []string{"10.0.0.2", "10.0.0.3"} {
		if !strings.Contains(conf, peer) {
			t.Errorf("rendered config missing peer %q", peer)
		}
	}
}

func TestRenderBackup(t *testing.T) {
	t.Parallel()

	p := testParams()
	p.Index = 2
	p.Address = "10.0.0.3"
	p.Peers = []string{"10.0.0.1", "10.0.0.2"}

	out, err := NewRenderer().Render(p)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	conf := string(out)
	if !strings.Contains(conf, "state BACKUP") {
		t.Errorf("index 2 should render BACKUP:\n%s", conf)
	}
	if !strings.Contains(conf, "priority 80") {
		t.Errorf("index 2 should render priority 80:\n%s", conf)
	}
}

func TestRenderDistinctPerHost(t *testing.T) {
	t.Parallel()

	first := testParams()
	second := testParams()
	second.Index = 1
	second.Address = "10.0.0.2"
	second.Peers = []string{"10.0.0.1", "10.0.0.3"}

	a, err := NewRenderer().Render(first)
	if err != nil {
		t.Fatalf("Render first: %v", err)
	}
	b, err := NewRenderer().Render(second)
	if err != nil {
		t.Fatalf("Render second: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("hosts at different positions rendered identical configs")
	}
}

func TestPriorityFloor(t *testing.T) {
	t.Parallel()

	p := testParams()
	p.Index = 12
	if got := p.Priority(); got != 1 {
		t.Errorf("Priority() at index 12 = %d, want floor of 1", got)
	}
}

func TestRenderStripsSSHPort(t *testing.T) {
	t.Parallel()

	p := testParams()
	p.Address = "10.0.0.1:2222"
	p.Peers = []string{"10.0.0.2:2222"}

	out, err := NewRenderer().Render(p)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	conf := string(out)
	if strings.Contains(conf, "2222") {
		t.Errorf("SSH port leaked into rendered config:\n%s", conf)
	}
	if !strings.Contains(conf, "unicast_src_ip 10.0.0.1") {
		t.Errorf("expected bare source address:\n%s", conf)
	}
}

func TestRenderNoPeers(t *testing.T) {
	t.Parallel()

	p := testParams()
	p.Peers = nil

	out, err := NewRenderer().Render(p)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(string(out), "unicast_peer") {
		t.Errorf("single-host fleet should omit unicast_peer block:\n%s", out)
	}
}

func TestCustomTemplateFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keepalived.tmpl")
	if err := os.WriteFile(path, []byte("src={{.SourceIP}} vrid={{.VRID}}\n"), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}

	r, err := NewRendererFromFile(path)
	if err != nil {
		t.Fatalf("NewRendererFromFile: %v", err)
	}
	out, err := r.Render(testParams())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got, want := string(out), "src=10.0.0.1 vrid=51\n"; got != want {
		t.Errorf("custom template output = %q, want %q", got, want)
	}
}

func TestCustomTemplateMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := NewRendererFromFile(filepath.Join(t.TempDir(), "absent.tmpl")); err == nil {
		t.Fatal("expected error for missing template file")
	}
}

func TestCustomTemplateBadSyntax(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.tmpl")
	if err := os.WriteFile(path, []byte("{{.Unclosed"), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if _, err := NewRendererFromFile(path); err == nil {
		t.Fatal("expected parse error for malformed template")
	}
}
