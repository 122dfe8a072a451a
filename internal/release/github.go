package release

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultAPIBase is the public GitHub REST endpoint.
const DefaultAPIBase = "https://api.github.com"

// GitHubOptions configures a GitHub client.
type GitHubOptions struct {
	APIBase            string
	Token              string
	IncludePrereleases bool
	CacheTTL           time.Duration
	RequestsPerSecond  float64
	HTTPClient         *http.Client
}

type cachedLatest struct {
	rel       *Release
	checkedAt time.Time
}

// GitHub is a Source and Downloader backed by the GitHub REST API.
type GitHub struct {
	apiBase            string
	token              string
	includePrereleases bool
	httpClient         *http.Client
	limiter            *rate.Limiter
	log                zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedLatest
	ttl   time.Duration
	now   func() time.Time
}

var (
	_ Source     = (*GitHub)(nil)
	_ Downloader = (*GitHub)(nil)
)

// NewGitHub creates a GitHub client.
func NewGitHub(opts GitHubOptions, log zerolog.Logger) *GitHub {
	base := strings.TrimRight(opts.APIBase, "/")
	if base == "" {
		base = DefaultAPIBase
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Minute}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &GitHub{
		apiBase:            base,
		token:              opts.Token,
		includePrereleases: opts.IncludePrereleases,
		httpClient:         hc,
		limiter:            rate.NewLimiter(limit, 1),
		log:                log.With().Str("component", "github").Logger(),
		cache:              make(map[string]cachedLatest),
		ttl:                opts.CacheTTL,
		now:                time.Now,
	}
}

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("GitHub API %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (g *GitHub) do(ctx context.Context, path, accept string) (*http.Response, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+path, nil)
	if err != nil {
		return nil, err
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Method: http.MethodGet, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

func (g *GitHub) doJSON(ctx context.Context, path string, result interface{}) error {
	resp, err := g.do(ctx, path, "application/vnd.github+json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// Repository looks up a repository by owner and name.
func (g *GitHub) Repository(ctx context.Context, owner, name string) (Repository, error) {
	var raw struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	}
	if err := g.doJSON(ctx, fmt.Sprintf("/repos/%s/%s", owner, name), &raw); err != nil {
		return Repository{}, fmt.Errorf("looking up %s/%s: %w", owner, name, err)
	}
	return Repository{ID: raw.ID, Owner: raw.Owner.Login, Name: raw.Name}, nil
}

// Releases lists a repository's releases as returned by the API.
func (g *GitHub) Releases(ctx context.Context, repo Repository) ([]Release, error) {
	var rels []Release
	if err := g.doJSON(ctx, fmt.Sprintf("/repos/%s/releases?per_page=100", repo.FullName()), &rels); err != nil {
		return nil, fmt.Errorf("listing releases of %s: %w", repo.FullName(), err)
	}
	return rels, nil
}

// Release fetches a single release by ID.
func (g *GitHub) Release(ctx context.Context, repo Repository, id int64) (*Release, error) {
	var rel Release
	if err := g.doJSON(ctx, fmt.Sprintf("/repos/%s/releases/%d", repo.FullName(), id), &rel); err != nil {
		return nil, fmt.Errorf("fetching release %d of %s: %w", id, repo.FullName(), err)
	}
	return &rel, nil
}

// LatestRelease returns the latest eligible release. Results, including
// "no release", are cached per repository for the configured TTL.
func (g *GitHub) LatestRelease(ctx context.Context, repo Repository) (*Release, error) {
	key := repo.FullName()

	g.mu.Lock()
	if c, ok := g.cache[key]; ok && g.ttl > 0 && g.now().Sub(c.checkedAt) < g.ttl {
		g.mu.Unlock()
		return c.rel, nil
	}
	g.mu.Unlock()

	rels, err := g.Releases(ctx, repo)
	if err != nil {
		return nil, err
	}
	latest := SelectLatest(rels, g.includePrereleases)
	if latest == nil {
		g.log.Debug().Str("repository", key).Int("releases", len(rels)).Msg("no eligible release")
	}

	g.mu.Lock()
	g.cache[key] = cachedLatest{rel: latest, checkedAt: g.now()}
	g.mu.Unlock()
	return latest, nil
}

// InvalidateCache drops all cached latest-release lookups.
func (g *GitHub) InvalidateCache() {
	g.mu.Lock()
	g.cache = make(map[string]cachedLatest)
	g.mu.Unlock()
}

// Download fetches an asset into destDir/<asset name>. The file is written
// to a temporary name first so a failed download leaves nothing behind.
func (g *GitHub) Download(ctx context.Context, asset Asset, rel *Release, repo Repository, destDir string) (string, error) {
	if asset.Name == "" || filepath.Base(asset.Name) != asset.Name || asset.Name == "." || asset.Name == ".." {
		return "", fmt.Errorf("refusing asset name %q", asset.Name)
	}
	resp, err := g.do(ctx, fmt.Sprintf("/repos/%s/releases/assets/%d", repo.FullName(), asset.ID), "application/octet-stream")
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", asset.Name, err)
	}
	defer resp.Body.Close()

	dest := filepath.Join(destDir, asset.Name)
	tmp, err := os.CreateTemp(destDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing %s: %w", asset.Name, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing %s: %w", asset.Name, err)
	}
	ev := g.log.Debug().Str("asset", asset.Name).Int64("bytes", n)
	if rel != nil {
		ev = ev.Int64("release", rel.ID)
	}
	ev.Msg("downloaded")
	return dest, nil
}
