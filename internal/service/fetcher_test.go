package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/repository"
)

type stubCloner struct {
	files  map[string]string
	err    error
	cloned bool
}

func (c *stubCloner) Clone(_ context.Context, _ repository.Source, dest string) error {
	if c.err != nil {
		return c.err
	}
	c.cloned = true
	for name, body := range c.files {
		p := filepath.Join(dest, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (c *stubCloner) HeadCommit(context.Context, string) (string, error) {
	return "abc123", nil
}

type stubMeta struct {
	md  *repository.Metadata
	err error
}

func (m stubMeta) Metadata(context.Context, repository.Source) (*repository.Metadata, error) {
	return m.md, m.err
}

var ghSource = repository.Source{Host: "github.com", Owner: "octo", Name: "hello"}

func TestFetch(t *testing.T) {
	cloner := &stubCloner{files: map[string]string{
		"main.go":     "package main\n",
		".git/config": strings.Repeat("x", 4096),
	}}
	f := NewFetcher(cloner, stubMeta{md: &repository.Metadata{FullName: "octo/hello", SizeKB: 1}}, 1<<20)

	co, err := f.Fetch(context.Background(), ghSource, t.TempDir())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if co.Commit != "abc123" || co.Host == nil || co.Host.Commit != "abc123" {
		t.Fatalf("commit not recorded: %+v", co)
	}
	if co.SizeBytes != int64(len("package main\n")) {
		t.Fatalf("SizeBytes = %d, .git must not count", co.SizeBytes)
	}
}

func TestFetchHostSizeRejectsBeforeClone(t *testing.T) {
	cloner := &stubCloner{}
	f := NewFetcher(cloner, stubMeta{md: &repository.Metadata{SizeKB: 2048}}, 1<<20)

	_, err := f.Fetch(context.Background(), ghSource, t.TempDir())
	if domain.KindOf(err) != domain.KindRepositoryTooLarge {
		t.Fatalf("err = %v, want RepositoryTooLarge", err)
	}
	if cloner.cloned {
		t.Fatal("clone ran despite oversized preflight")
	}
}

func TestFetchCheckoutSizeRejects(t *testing.T) {
	cloner := &stubCloner{files: map[string]string{"big.bin": strings.Repeat("a", 2048)}}
	f := NewFetcher(cloner, nil, 1024)

	_, err := f.Fetch(context.Background(), ghSource, t.TempDir())
	if domain.KindOf(err) != domain.KindRepositoryTooLarge {
		t.Fatalf("err = %v, want RepositoryTooLarge", err)
	}
}

func TestFetchPreflightErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind domain.Kind
		clones   bool
	}{
		{"not found", domain.Errorf(domain.KindCloneFailed, "not public"), domain.KindCloneFailed, false},
		{"rate limited", domain.Errorf(domain.KindRateLimitExceeded, "slow down"), domain.KindRateLimitExceeded, false},
		{"flaky api", errors.New("connection reset"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cloner := &stubCloner{files: map[string]string{"a.go": "package a\n"}}
			f := NewFetcher(cloner, stubMeta{err: tt.err}, 0)

			co, err := f.Fetch(context.Background(), ghSource, t.TempDir())
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("Fetch: %v", err)
				}
				if co.Host != nil {
					t.Fatal("expected no host metadata")
				}
			} else if domain.KindOf(err) != tt.wantKind {
				t.Fatalf("err = %v, want %s", err, tt.wantKind)
			}
			if cloner.cloned != tt.clones {
				t.Fatalf("cloned = %v, want %v", cloner.cloned, tt.clones)
			}
		})
	}
}

func TestFetchSkipsMetadataForOtherHosts(t *testing.T) {
	cloner := &stubCloner{files: map[string]string{"a.go": "package a\n"}}
	f := NewFetcher(cloner, stubMeta{err: errors.New("must not be called")}, 0)

	src := repository.Source{Host: "gitlab.com", Owner: "o", Name: "r"}
	if _, err := f.Fetch(context.Background(), src, t.TempDir()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
}
