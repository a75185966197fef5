// Package keepalived renders per-host failover configuration. Each
// fleet host receives its own keepalived.conf: the first host in the
// fleet starts as MASTER, the rest as BACKUP with descending VRRP
// priority, and every host lists the others as unicast peers.
package keepalived

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"text/template"
)

// Params carries everything the configuration for one host depends
// on. Address and Peers may include an SSH port suffix; it is
// stripped before the values appear in the rendered output.
type Params struct {
	Index     int
	Address   string
	Peers     []string
	VRID      int
	VIP       string
	Interface string
	Frontend  string
}

// State returns the initial VRRP state for this host. Which host
// actually holds the VIP is decided by the VRRP election; this only
// seeds it.
func (p Params) State() string {
	if p.Index == 0 {
		return "MASTER"
	}
	return "BACKUP"
}

// Priority returns the VRRP priority, descending by fleet position.
// VRRP requires a value in 1..254.
func (p Params) Priority() int {
	pr := 100 - 10*p.Index
	if pr < 1 {
		pr = 1
	}
	return pr
}

// SourceIP returns the host address without any SSH port suffix.
func (p Params) SourceIP() string {
	return bareAddress(p.Address)
}

// PeerIPs returns the peer addresses without SSH port suffixes.
func (p Params) PeerIPs() []string {
	out := make([]string, 0, len(p.Peers))
	for _, peer := range p.Peers {
		out = append(out, bareAddress(peer))
	}
	return out
}

// Renderer produces keepalived configuration for one host.
type Renderer interface {
	Render(p Params) ([]byte, error)
}

// TemplateRenderer renders through a text/template. The zero value is
// not usable; construct with NewRenderer or NewRendererFromFile.
type TemplateRenderer struct {
	tmpl *template.Template
}

// NewRenderer returns a renderer using the built-in configuration
// template.
func NewRenderer() *TemplateRenderer {
	return &TemplateRenderer{tmpl: confT}
}

// NewRendererFromFile returns a renderer using a custom template read
// from path. The template sees the same Params as the built-in one.
func NewRendererFromFile(path string) (*TemplateRenderer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keepalived template: %w", err)
	}
	tmpl, err := template.New("keepalived").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse keepalived template %s: %w", path, err)
	}
	return &TemplateRenderer{tmpl: tmpl}, nil
}

// Render produces the configuration for one host.
func (r *TemplateRenderer) Render(p Params) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("render keepalived config for %s: %w", p.Address, err)
	}
	return buf.Bytes(), nil
}

func bareAddress(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

var confT = template.Must(template.New("keepalived").Parse(`
# Managed by drover. Edits on the host are overwritten by the next push.
global_defs {
    router_id {{.SourceIP}}
}

vrrp_script chk_{{.Frontend}} {
    script "/usr/bin/systemctl is-active {{.Frontend}}"
    interval 2
    fall 3
    rise 2
}

vrrp_instance VI_{{.VRID}} {
    state {{.State}}
    interface {{.Interface}}
    virtual_router_id {{.VRID}}
    priority {{.Priority}}
    advert_int 1
    unicast_src_ip {{.SourceIP}}
{{if .PeerIPs}}    unicast_peer {
{{range .PeerIPs}}        {{.}}
{{end}}    }
{{end}}    virtual_ipaddress {
        {{.VIP}}
    }
    track_script {
        chk_{{.Frontend}}
    }
}
`[1:]))
