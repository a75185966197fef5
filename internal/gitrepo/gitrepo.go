// Package gitrepo inspects the local configuration repository. Pushes
// are gated on a clean working tree so that what lands on the fleet
// always corresponds to a commit.
package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Guard answers questions about the git repository that holds the
// fleet configuration. All commands target the repository directory
// via "git -C <dir>".
type Guard struct {
	dir string
}

// New returns a Guard for the repository at dir.
func New(dir string) *Guard {
	return &Guard{dir: dir}
}

// Dir returns the repository directory.
func (g *Guard) Dir() string {
	return g.dir
}

// IsDirty reports whether the working tree has uncommitted changes,
// including untracked files. It never modifies the repository.
func (g *Guard) IsDirty(ctx context.Context) (bool, error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// Head returns the abbreviated commit hash of HEAD.
func (g *Guard) Head(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *Guard) run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-C", g.dir}, args...)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), g.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
