package service

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/repository"
	"github.com/Strob0t/CodeTutor/internal/port/gitprovider"
	"github.com/Strob0t/CodeTutor/internal/port/repohost"
)

// Checkout is a fetched working tree.
type Checkout struct {
	Dir       string
	Commit    string
	Host      *repository.Metadata
	SizeBytes int64
}

// Fetcher clones repositories after checking their size with the host.
type Fetcher struct {
	cloner   gitprovider.Cloner
	meta     repohost.MetadataSource
	maxBytes int64
}

// NewFetcher creates a Fetcher. meta may be nil; maxBytes <= 0 disables the
// size limit.
func NewFetcher(cloner gitprovider.Cloner, meta repohost.MetadataSource, maxBytes int64) *Fetcher {
	return &Fetcher{cloner: cloner, meta: meta, maxBytes: maxBytes}
}

// Fetch clones src into dest. The host-reported size is checked before
// cloning when available, and the checkout size is checked afterwards.
func (f *Fetcher) Fetch(ctx context.Context, src repository.Source, dest string) (*Checkout, error) {
	host, err := f.preflight(ctx, src)
	if err != nil {
		return nil, err
	}

	if err := f.cloner.Clone(ctx, src, dest); err != nil {
		return nil, err
	}

	size, err := treeSize(dest)
	if err != nil {
		return nil, domain.Wrap(domain.KindCloneFailed, err, "checkout is unreadable")
	}
	if err := f.checkSize(src, size); err != nil {
		return nil, err
	}

	commit, err := f.cloner.HeadCommit(ctx, dest)
	if err != nil {
		slog.Warn("could not resolve checkout commit", "repository", src.FullName(), "error", err)
	}
	if host != nil {
		host.Commit = commit
	}
	return &Checkout{Dir: dest, Commit: commit, Host: host, SizeBytes: size}, nil
}

func (f *Fetcher) preflight(ctx context.Context, src repository.Source) (*repository.Metadata, error) {
	if f.meta == nil || !src.IsGitHub() {
		return nil, nil
	}
	md, err := f.meta.Metadata(ctx, src)
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindCloneFailed, domain.KindRateLimitExceeded:
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The clone itself is authoritative; a flaky API only loses the preflight.
		slog.Warn("repository metadata unavailable", "repository", src.FullName(), "error", err)
		return nil, nil
	}
	if err := f.checkSize(src, int64(md.SizeKB)*1024); err != nil {
		return nil, err
	}
	return md, nil
}

func (f *Fetcher) checkSize(src repository.Source, size int64) error {
	if f.maxBytes <= 0 || size <= f.maxBytes {
		return nil
	}
	return domain.Errorf(domain.KindRepositoryTooLarge,
		"repository %s is %s, the limit is %s",
		src.FullName(), humanize.Bytes(uint64(size)), humanize.Bytes(uint64(f.maxBytes)))
}

// treeSize sums regular file sizes below root, ignoring the .git directory.
func treeSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" && p != root {
			return filepath.SkipDir
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
