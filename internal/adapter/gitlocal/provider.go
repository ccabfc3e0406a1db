// Package gitlocal implements the gitprovider.Cloner port with the git CLI.
package gitlocal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/repository"
	"github.com/Strob0t/CodeTutor/internal/git"
)

var commitSHA = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)

// Cloner makes shallow clones through the git CLI. Concurrent git processes
// are bounded by the pool.
type Cloner struct {
	pool *git.Pool
}

// NewCloner creates a Cloner that limits concurrent git operations via pool.
func NewCloner(pool *git.Pool) *Cloner {
	return &Cloner{pool: pool}
}

// Clone fetches only the requested revision. Branch and tag refs use a
// single-branch clone; commit hashes are fetched directly.
func (c *Cloner) Clone(ctx context.Context, src repository.Source, dest string) error {
	absPath, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("gitlocal: resolve path: %w", err)
	}

	err = c.pool.Run(ctx, func() error {
		if commitSHA.MatchString(src.Ref) {
			return fetchCommit(ctx, src.CloneURL, src.Ref, absPath)
		}
		args := []string{"clone", "--depth", "1", "--single-branch", "--no-tags"}
		if src.Ref != "" {
			args = append(args, "--branch", src.Ref)
		}
		args = append(args, "--", src.CloneURL, absPath)
		_, err := runGit(ctx, "", args...)
		return err
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return domain.Wrap(domain.KindCloneFailed, err, cloneMessage(src, err))
}

func fetchCommit(ctx context.Context, url, sha, dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	for _, args := range [][]string{
		{"init", "--quiet"},
		{"remote", "add", "origin", url},
		{"fetch", "--depth", "1", "--no-tags", "origin", sha},
		{"checkout", "--quiet", "FETCH_HEAD"},
	} {
		if _, err := runGit(ctx, dir, args...); err != nil {
			return err
		}
	}
	return nil
}

// HeadCommit returns the hash of HEAD in dir.
func (c *Cloner) HeadCommit(ctx context.Context, dir string) (string, error) {
	var out string
	err := c.pool.Run(ctx, func() error {
		var err error
		out, err = runGit(ctx, dir, "rev-parse", "HEAD")
		return err
	})
	if err != nil {
		return "", fmt.Errorf("gitlocal: rev-parse: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// cloneMessage turns git's stderr into something a user can act on.
func cloneMessage(src repository.Source, err error) string {
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "remote branch") && strings.Contains(lower, "not found"),
		strings.Contains(lower, "couldn't find remote ref"),
		strings.Contains(lower, "not our ref"):
		return fmt.Sprintf("ref %q does not exist in %s", src.Ref, src.FullName())
	case strings.Contains(lower, "not found"),
		strings.Contains(lower, "could not read username"),
		strings.Contains(lower, "authentication failed"),
		strings.Contains(lower, "does not appear to be a git repository"):
		return fmt.Sprintf("repository %s was not found or is not public", src.FullName())
	case strings.Contains(lower, "could not resolve host"),
		strings.Contains(lower, "unable to access"):
		return fmt.Sprintf("could not reach %s", src.Host)
	default:
		return fmt.Sprintf("failed to clone %s", src.FullName())
	}
}

// runGit executes a git command and returns its stdout. Interactive
// credential prompts are disabled so a private repository fails instead of
// hanging.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "GIT_LFS_SKIP_SMUDGE=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(stderr.String()), err)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return stdout.String(), nil
}
