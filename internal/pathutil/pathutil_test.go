package pathutil

import (
	"path/filepath"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"bare tilde", "~", home},
		{"tilde slash", "~/fleet/drover.yaml", filepath.Join(home, "fleet", "drover.yaml")},
		{"absolute untouched", "/etc/drover.yaml", "/etc/drover.yaml"},
		{"relative untouched", "frontend", "frontend"},
		{"other user untouched", "~lbops/drover.yaml", "~lbops/drover.yaml"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandHome(tt.path); got != tt.want {
				t.Errorf("ExpandHome(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestResolveFrom(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{"relative joins base", "/repo", "frontend", "/repo/frontend"},
		{"absolute wins", "/repo", "/etc/nginx/tls", "/etc/nginx/tls"},
		{"empty base", "", "frontend", "frontend"},
		{"empty path stays empty", "/repo", "", ""},
		{"home expansion wins", "/repo", "~/trees", filepath.Join(home, "trees")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveFrom(tt.base, tt.path); got != tt.want {
				t.Errorf("ResolveFrom(%q, %q) = %q, want %q", tt.base, tt.path, got, tt.want)
			}
		})
	}
}
