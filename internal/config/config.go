// Package config loads and validates drover.yaml, the per-environment
// description of the balancer fleet and the configuration trees pushed
// to it. The file lives inside the version-controlled config repo, so
// relative paths resolve against the file's own directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agent462/drover/internal/pathutil"
)

// ErrNotFound is returned (wrapped) when the config file does not
// exist. Commands that tolerate a missing fleet treat it as a
// degraded mode rather than a hard failure.
var ErrNotFound = errors.New("config file not found")

// Config represents the top-level drover configuration.
type Config struct {
	Fleet      []HostEntry `yaml:"fleet"`
	Remote     Remote      `yaml:"remote"`
	Services   Services    `yaml:"services"`
	Paths      Paths       `yaml:"paths"`
	Keepalived Keepalived  `yaml:"keepalived"`

	dir string // directory of the loaded file, for resolving relative paths
}

// HostEntry is one balancer in declaration order. Order is
// significant: the position in the list is the host's index, which
// feeds failover priorities and operator-facing reports.
type HostEntry struct {
	Address string `yaml:"address"`
	// Active marks the balancer currently holding production traffic.
	// Push skips active hosts unless explicitly overridden.
	Active bool `yaml:"active,omitempty"`
}

// Remote holds SSH execution settings shared by the whole fleet.
type Remote struct {
	// User is the dedicated operations account on every balancer.
	User string `yaml:"user"`
	// Timeout bounds each remote operation (command or transfer).
	Timeout Duration `yaml:"timeout"`
	// Concurrency caps parallel status probes across hosts.
	Concurrency int `yaml:"concurrency"`
	// ProxyJump optionally names a bastion ("user@host:port").
	ProxyJump string `yaml:"proxy_jump,omitempty"`
	// StagingDir is a user-writable directory on each balancer where
	// trees are mirrored before being installed with privilege. A
	// relative path resolves against the operations user's home.
	StagingDir string `yaml:"staging_dir"`
}

// Services names the two daemons drover watches on every balancer.
type Services struct {
	Frontend string `yaml:"frontend"` // e.g. nginx
	Failover string `yaml:"failover"` // e.g. keepalived
	// VerifyCommand, when set, runs with privilege on each host after
	// its configuration has been pushed (e.g. "nginx -t"). A non-zero
	// exit fails the host and stops the push.
	VerifyCommand string `yaml:"verify_command,omitempty"`
}

// Paths locates the local configuration trees and their remote
// destinations. Local paths are relative to the config file's
// directory unless absolute.
type Paths struct {
	Frontend  string `yaml:"frontend"`  // local frontend config tree
	TLS       string `yaml:"tls"`       // local TLS material tree
	Bootstrap string `yaml:"bootstrap"` // local bootstrap tree for new hosts

	RemoteFrontend string `yaml:"remote_frontend"`
	RemoteTLS      string `yaml:"remote_tls"`
	KeepalivedConf string `yaml:"keepalived_conf"`
}

// Keepalived holds the values rendered into each host's failover
// daemon configuration.
type Keepalived struct {
	// Template optionally points at a custom template file; when empty
	// the built-in template is used.
	Template  string `yaml:"template,omitempty"`
	VRID      int    `yaml:"vrid"`
	VIP       string `yaml:"vip"`
	Interface string `yaml:"interface"`
}

// Duration wraps time.Duration to support YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Remote: Remote{
			User:        "lbops",
			Timeout:     Duration{30 * time.Second},
			Concurrency: 8,
			StagingDir:  ".drover-staging",
		},
		Services: Services{
			Frontend: "nginx",
			Failover: "keepalived",
		},
		Paths: Paths{
			Frontend:       "frontend",
			TLS:            "tls",
			Bootstrap:      "bootstrap",
			RemoteFrontend: "/etc/nginx/conf.d",
			RemoteTLS:      "/etc/nginx/tls",
			KeepalivedConf: "/etc/keepalived/keepalived.conf",
		},
		Keepalived: Keepalived{
			VRID: 51,
		},
	}
}

// DefaultConfigPath returns the default config file path: the
// DROVER_CONFIG environment variable when set, otherwise drover.yaml
// in the current directory. The file is expected to live at the root
// of the version-controlled config repo, next to the trees it names.
func DefaultConfigPath() string {
	if path := os.Getenv("DROVER_CONFIG"); path != "" {
		return path
	}
	return "drover.yaml"
}

// Load reads and parses a config YAML file from the given path.
// A missing file returns the defaults along with a wrapped
// ErrNotFound so callers can degrade instead of aborting.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			cfg.dir = filepath.Dir(path)
			return cfg, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	cfg.dir = filepath.Dir(abs)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to the given file path as YAML.
// It creates parent directories if they don't exist.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Dir returns the directory containing the loaded config file. Local
// trees and the repository guard anchor here.
func (c *Config) Dir() string {
	return c.dir
}

// LocalFrontendDir returns the absolute path of the frontend config tree.
func (c *Config) LocalFrontendDir() string {
	return pathutil.ResolveFrom(c.dir, c.Paths.Frontend)
}

// LocalTLSDir returns the absolute path of the TLS material tree.
func (c *Config) LocalTLSDir() string {
	return pathutil.ResolveFrom(c.dir, c.Paths.TLS)
}

// LocalBootstrapDir returns the absolute path of the bootstrap tree.
func (c *Config) LocalBootstrapDir() string {
	return pathutil.ResolveFrom(c.dir, c.Paths.Bootstrap)
}

// KeepalivedTemplatePath returns the absolute path of the custom
// keepalived template, or "" when the built-in template applies.
func (c *Config) KeepalivedTemplatePath() string {
	if c.Keepalived.Template == "" {
		return ""
	}
	return pathutil.ResolveFrom(c.dir, c.Keepalived.Template)
}

// Validate checks the config for logical errors.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Fleet))
	activeCount := 0
	for i, entry := range c.Fleet {
		if entry.Address == "" {
			return fmt.Errorf("fleet entry %d has an empty address", i)
		}
		if seen[entry.Address] {
			return fmt.Errorf("fleet entry %d duplicates address %q", i, entry.Address)
		}
		seen[entry.Address] = true
		if entry.Active {
			activeCount++
		}
	}
	if activeCount > 1 {
		return fmt.Errorf("at most one fleet entry may be active, got %d", activeCount)
	}

	if c.Remote.User == "" {
		return fmt.Errorf("remote.user must not be empty")
	}
	if c.Remote.Timeout.Duration < 0 {
		return fmt.Errorf("remote.timeout must be non-negative, got %s", c.Remote.Timeout)
	}
	if c.Remote.Concurrency < 0 {
		return fmt.Errorf("remote.concurrency must be non-negative, got %d", c.Remote.Concurrency)
	}
	if c.Remote.StagingDir == "" {
		return fmt.Errorf("remote.staging_dir must not be empty")
	}

	if c.Services.Frontend == "" || c.Services.Failover == "" {
		return fmt.Errorf("services.frontend and services.failover must both be set")
	}

	for name, p := range map[string]string{
		"paths.frontend":        c.Paths.Frontend,
		"paths.tls":             c.Paths.TLS,
		"paths.bootstrap":       c.Paths.Bootstrap,
		"paths.remote_frontend": c.Paths.RemoteFrontend,
		"paths.remote_tls":      c.Paths.RemoteTLS,
		"paths.keepalived_conf": c.Paths.KeepalivedConf,
	} {
		if p == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	for name, p := range map[string]string{
		"paths.remote_frontend": c.Paths.RemoteFrontend,
		"paths.remote_tls":      c.Paths.RemoteTLS,
		"paths.keepalived_conf": c.Paths.KeepalivedConf,
	} {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("%s must be an absolute path, got %q", name, p)
		}
	}

	if c.Keepalived.VRID < 1 || c.Keepalived.VRID > 255 {
		return fmt.Errorf("keepalived.vrid must be in 1..255, got %d", c.Keepalived.VRID)
	}

	return nil
}
