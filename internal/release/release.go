// Package release describes packages as GitHub repositories and their
// releases, and fetches release metadata and assets.
package release

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Repository identifies a package. ID is the stable package identifier used
// as the install registry key.
type Repository struct {
	ID    int64  `json:"id"`
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// FullName returns "owner/name".
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// Release is one published version of a package.
type Release struct {
	ID          int64     `json:"id"`
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	Draft       bool      `json:"draft"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []Asset   `json:"assets"`
}

// Asset returns the asset with the given name.
func (r *Release) Asset(name string) (Asset, bool) {
	for _, a := range r.Assets {
		if a.Name == name {
			return a, true
		}
	}
	return Asset{}, false
}

// Source looks up packages and their releases.
type Source interface {
	// LatestRelease returns nil, nil when the repository has no eligible release.
	LatestRelease(ctx context.Context, repo Repository) (*Release, error)
	Repository(ctx context.Context, owner, name string) (Repository, error)
}

// Downloader fetches a release asset into destDir and returns the written path.
type Downloader interface {
	Download(ctx context.Context, asset Asset, rel *Release, repo Repository, destDir string) (string, error)
}

var fullNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*/[A-Za-z0-9._-]+$`)

// ParseFullName splits "owner/name".
func ParseFullName(s string) (owner, name string, err error) {
	s = strings.TrimSpace(s)
	if !fullNameRe.MatchString(s) {
		return "", "", fmt.Errorf("invalid repository %q: expected owner/name", s)
	}
	owner, name, _ = strings.Cut(s, "/")
	return owner, name, nil
}

// ValidFullName reports whether s has the form "owner/name".
func ValidFullName(s string) bool {
	return fullNameRe.MatchString(s)
}
