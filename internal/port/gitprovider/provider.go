// Package gitprovider defines the port for fetching repository checkouts.
package gitprovider

import (
	"context"

	"github.com/Strob0t/CodeTutor/internal/domain/repository"
)

// Cloner fetches a working tree of a remote repository.
type Cloner interface {
	// Clone writes a checkout of src at its ref (or default branch) into
	// dest, which must not exist or be empty. Failures are reported as
	// CloneFailed domain errors.
	Clone(ctx context.Context, src repository.Source, dest string) error

	// HeadCommit returns the commit hash checked out in dir.
	HeadCommit(ctx context.Context, dir string) (string, error)
}
