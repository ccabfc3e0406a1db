package gitlocal_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Strob0t/CodeTutor/internal/adapter/gitlocal"
	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/repository"
	"github.com/Strob0t/CodeTutor/internal/git"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in test environment")
	}
}

func TestCloneDefaultBranch(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	srcDir := initTestRepo(t)
	c := gitlocal.NewCloner(git.NewPool(2))

	dest := filepath.Join(t.TempDir(), "cloned")
	if err := c.Clone(ctx, source("file://"+srcDir, ""), dest); err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "hello.txt"))
	if err != nil || string(data) != "hello" {
		t.Fatalf("checkout content = %q, %v", data, err)
	}

	head, err := c.HeadCommit(ctx, dest)
	if err != nil {
		t.Fatal(err)
	}
	if want := gitOutput(t, srcDir, "rev-parse", "HEAD"); head != want {
		t.Fatalf("head = %q, want %q", head, want)
	}
}

func TestCloneBranchAndCommit(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	srcDir := initTestRepo(t)
	first := gitOutput(t, srcDir, "rev-parse", "HEAD")

	runGitCmd(t, srcDir, "checkout", "-q", "-b", "feature")
	if err := os.WriteFile(filepath.Join(srcDir, "feature.txt"), []byte("f"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGitCmd(t, srcDir, "add", ".")
	runGitCmd(t, srcDir, "commit", "-q", "-m", "feature")
	// Allow fetching arbitrary commits from the local remote.
	runGitCmd(t, srcDir, "config", "uploadpack.allowAnySHA1InWant", "true")

	c := gitlocal.NewCloner(git.NewPool(1))

	branch := filepath.Join(t.TempDir(), "branch")
	if err := c.Clone(ctx, source("file://"+srcDir, "feature"), branch); err != nil {
		t.Fatalf("branch clone: %v", err)
	}
	if _, err := os.Stat(filepath.Join(branch, "feature.txt")); err != nil {
		t.Fatal("branch checkout missing feature.txt")
	}

	commit := filepath.Join(t.TempDir(), "commit")
	if err := c.Clone(ctx, source("file://"+srcDir, first), commit); err != nil {
		t.Fatalf("commit clone: %v", err)
	}
	if _, err := os.Stat(filepath.Join(commit, "feature.txt")); !os.IsNotExist(err) {
		t.Fatal("commit checkout should predate feature.txt")
	}
}

func TestCloneFailures(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	c := gitlocal.NewCloner(git.NewPool(1))

	err := c.Clone(ctx, source("file://"+filepath.Join(t.TempDir(), "missing"), ""), filepath.Join(t.TempDir(), "x"))
	if domain.KindOf(err) != domain.KindCloneFailed {
		t.Fatalf("missing repo: kind %s (%v)", domain.KindOf(err), err)
	}

	srcDir := initTestRepo(t)
	err = c.Clone(ctx, source("file://"+srcDir, "no-such-branch"), filepath.Join(t.TempDir(), "y"))
	if domain.KindOf(err) != domain.KindCloneFailed {
		t.Fatalf("missing ref: kind %s (%v)", domain.KindOf(err), err)
	}
	if !strings.Contains(domain.MessageOf(err), "no-such-branch") {
		t.Errorf("message = %q", domain.MessageOf(err))
	}
}

func TestCloneCancelled(t *testing.T) {
	requireGit(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := gitlocal.NewCloner(git.NewPool(1))
	err := c.Clone(ctx, source("file://"+initTestRepo(t), ""), filepath.Join(t.TempDir(), "z"))
	if domain.KindOf(err) == domain.KindCloneFailed {
		t.Fatalf("cancellation reported as clone failure: %v", err)
	}
}

func source(url, ref string) repository.Source {
	return repository.Source{URL: url, Host: "localhost", Owner: "octo", Name: "hello", Ref: ref, CloneURL: url}
}

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGitCmd(t, dir, "init", "-q")
	runGitCmd(t, dir, "config", "user.email", "test@test.com")
	runGitCmd(t, dir, "config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGitCmd(t, dir, "add", ".")
	runGitCmd(t, dir, "commit", "-q", "-m", "initial commit")
	return dir
}

func runGitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

func gitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("git %v: %v", args, err)
	}
	return strings.TrimSpace(string(out))
}
