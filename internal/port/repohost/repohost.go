// Package repohost defines the port for querying a source-control host
// about a repository before cloning it.
package repohost

import (
	"context"

	"github.com/Strob0t/CodeTutor/internal/domain/repository"
)

// MetadataSource looks up host-side facts about a repository. Implementations
// return domain errors: CloneFailed when the repository does not exist or is
// not accessible, RateLimitExceeded when the host refuses further requests.
type MetadataSource interface {
	Metadata(ctx context.Context, src repository.Source) (*repository.Metadata, error)
}
