// Package repository defines the remote repository being analyzed and the
// files found in its checkout.
package repository

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/Strob0t/CodeTutor/internal/domain"
)

var (
	segmentRe = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
	scpRe     = regexp.MustCompile(`^git@([A-Za-z0-9.\-]+):([A-Za-z0-9_.\-]+)/([A-Za-z0-9_.\-]+?)(\.git)?$`)
	refRe     = regexp.MustCompile(`^[A-Za-z0-9_.\-/]+$`)
)

// Source identifies a remote repository and the ref to analyze. It is
// immutable once a task starts.
type Source struct {
	URL      string `json:"url"`
	Host     string `json:"host"`
	Owner    string `json:"owner"`
	Name     string `json:"name"`
	Ref      string `json:"ref,omitempty"`
	CloneURL string `json:"clone_url"`
}

// FullName returns "owner/name".
func (s Source) FullName() string { return s.Owner + "/" + s.Name }

// IsGitHub reports whether the source is hosted on github.com.
func (s Source) IsGitHub() bool { return s.Host == "github.com" }

// ParseSource validates raw and returns the Source it names. Accepted forms:
//
//	https://host/owner/name
//	https://host/owner/name.git
//	https://host/owner/name/tree/<ref>
//	https://host/owner/name/blob/<ref>/...
//	git@host:owner/name.git
//
// A ref embedded in a tree or blob URL is used when ref is empty. The host
// must be in allowedHosts.
func ParseSource(raw, ref string, allowedHosts []string) (Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Source{}, invalid("repository URL is required")
	}

	var host, owner, name, embeddedRef string
	if m := scpRe.FindStringSubmatch(raw); m != nil {
		host, owner, name = strings.ToLower(m[1]), m[2], m[3]
	} else {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return Source{}, invalid("%q is not a repository URL", raw)
		}
		if u.User != nil {
			return Source{}, invalid("credentials must not be embedded in the URL")
		}
		host = strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 {
			return Source{}, invalid("%q does not name an owner and repository", raw)
		}
		owner, name = parts[0], strings.TrimSuffix(parts[1], ".git")
		switch {
		case len(parts) == 2:
		case (parts[2] == "tree" || parts[2] == "blob") && len(parts) > 3:
			embeddedRef = parts[3]
		default:
			return Source{}, invalid("%q points inside a repository, not at one", raw)
		}
	}

	if !slices.Contains(allowedHosts, host) {
		return Source{}, invalid("host %q is not supported", host)
	}
	if !validSegment(owner) || !validSegment(name) {
		return Source{}, invalid("invalid owner or repository name in %q", raw)
	}

	if ref = strings.TrimSpace(ref); ref == "" {
		ref = embeddedRef
	}
	if ref != "" && !validRef(ref) {
		return Source{}, invalid("invalid ref %q", ref)
	}

	return Source{
		URL:      raw,
		Host:     host,
		Owner:    owner,
		Name:     name,
		Ref:      ref,
		CloneURL: fmt.Sprintf("https://%s/%s/%s.git", host, owner, name),
	}, nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && segmentRe.MatchString(s)
}

// validRef rejects anything git could read as an option or a range.
func validRef(ref string) bool {
	return refRe.MatchString(ref) &&
		!strings.HasPrefix(ref, "-") &&
		!strings.HasPrefix(ref, "/") &&
		!strings.Contains(ref, "..") &&
		!strings.HasSuffix(ref, ".lock")
}

func invalid(format string, args ...any) error {
	return domain.Errorf(domain.KindInvalidRepositoryURL, format, args...)
}

// Metadata describes the repository as reported by its host plus what the
// checkout revealed.
type Metadata struct {
	FullName      string `json:"full_name"`
	Description   string `json:"description,omitempty"`
	HTMLURL       string `json:"html_url,omitempty"`
	DefaultBranch string `json:"default_branch,omitempty"`
	Language      string `json:"language,omitempty"`
	Stars         int    `json:"stars,omitempty"`
	SizeKB        int    `json:"size_kb,omitempty"`
	Commit        string `json:"commit,omitempty"`
}

// ExclusionReason says why the walker left a file out.
type ExclusionReason string

const (
	ReasonNone       ExclusionReason = ""
	ReasonExtension  ExclusionReason = "extension"
	ReasonDeniedPath ExclusionReason = "denied_path"
	ReasonVendored   ExclusionReason = "vendored"
	ReasonTooLarge   ExclusionReason = "too_large"
	ReasonBinary     ExclusionReason = "binary"
	ReasonBudget     ExclusionReason = "total_size_budget"
	ReasonUnreadable ExclusionReason = "unreadable"
	ReasonNotRegular ExclusionReason = "not_regular"
)

// FileEntry is one file seen during a walk of a checkout. Path is
// slash-separated and relative to the checkout root.
type FileEntry struct {
	Path     string          `json:"path"`
	Size     int64           `json:"size"`
	Language string          `json:"language,omitempty"`
	Binary   bool            `json:"binary,omitempty"`
	Included bool            `json:"included"`
	Reason   ExclusionReason `json:"reason,omitempty"`
}
