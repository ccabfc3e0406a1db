// Package github implements the repohost.MetadataSource port with the
// GitHub REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/Strob0t/CodeTutor/internal/config"
	"github.com/Strob0t/CodeTutor/internal/domain"
	"github.com/Strob0t/CodeTutor/internal/domain/repository"
	"github.com/Strob0t/CodeTutor/internal/secrets"
)

// DefaultTimeout bounds a single API request.
const DefaultTimeout = 15 * time.Second

// MetadataSource looks repositories up on GitHub. The token is read from the
// vault on every request so a rotated token applies immediately; without a
// token the anonymous rate limit (60 requests per hour) applies.
type MetadataSource struct {
	vault   *secrets.Vault
	baseURL *url.URL
	limiter *rate.Limiter
}

// New creates a MetadataSource. An empty cfg.BaseURL means api.github.com.
func New(cfg config.GitHub, vault *secrets.Vault) (*MetadataSource, error) {
	m := &MetadataSource{vault: vault}
	if cfg.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github: parse base url: %w", err)
		}
		m.baseURL = u
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	m.limiter = rate.NewLimiter(limit, 1)
	return m, nil
}

func (m *MetadataSource) client(ctx context.Context) *gh.Client {
	var hc *http.Client
	if token := m.vault.Get(secrets.GitHubToken); token != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
		hc.Timeout = DefaultTimeout
	} else {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	c := gh.NewClient(hc)
	if m.baseURL != nil {
		c.BaseURL = m.baseURL
	}
	return c
}

// Metadata implements repohost.MetadataSource.
func (m *MetadataSource) Metadata(ctx context.Context, src repository.Source) (*repository.Metadata, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("github: rate limit wait: %w", err)
	}

	repo, _, err := m.client(ctx).Repositories.Get(ctx, src.Owner, src.Name)
	if err != nil {
		return nil, m.wrapError(src, err)
	}
	return &repository.Metadata{
		FullName:      repo.GetFullName(),
		Description:   repo.GetDescription(),
		HTMLURL:       repo.GetHTMLURL(),
		DefaultBranch: repo.GetDefaultBranch(),
		Language:      repo.GetLanguage(),
		Stars:         repo.GetStargazersCount(),
		SizeKB:        repo.GetSize(),
	}, nil
}

// wrapError converts go-github errors to domain errors.
func (m *MetadataSource) wrapError(src repository.Source, err error) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		msg := fmt.Sprintf("GitHub API rate limit exceeded until %s", rateErr.Rate.Reset.UTC().Format(time.RFC3339))
		if !m.vault.Has(secrets.GitHubToken) {
			msg += "; set GITHUB_TOKEN for a higher limit"
		}
		return domain.Wrap(domain.KindRateLimitExceeded, err, msg)
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return domain.Wrap(domain.KindRateLimitExceeded, err, "GitHub secondary rate limit hit; retry later")
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnavailableForLegalReasons:
			return domain.Wrap(domain.KindCloneFailed, err,
				fmt.Sprintf("repository %s was not found or is not public", src.FullName()))
		case http.StatusTooManyRequests:
			return domain.Wrap(domain.KindRateLimitExceeded, err, "GitHub API rate limit exceeded")
		}
	}
	return fmt.Errorf("github: get repository: %w", err)
}
