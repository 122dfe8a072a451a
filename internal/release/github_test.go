package release

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGitHub struct {
	releaseCalls atomic.Int32
	releases     []map[string]any
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": 42, "name": "widget", "owner": map[string]any{"login": "acme"}})
	})
	mux.HandleFunc("/repos/acme/widget/releases", func(w http.ResponseWriter, r *http.Request) {
		f.releaseCalls.Add(1)
		json.NewEncoder(w).Encode(f.releases)
	})
	mux.HandleFunc("/repos/acme/widget/releases/7", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(f.releases[0])
	})
	mux.HandleFunc("/repos/acme/widget/releases/assets/100", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/octet-stream" {
			http.Error(w, "wrong accept", http.StatusBadRequest)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"version":1}`))
	})
	mux.HandleFunc("/repos/acme/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})
	return mux
}

func newFakeGitHub(t *testing.T, opts GitHubOptions) (*GitHub, *fakeGitHub) {
	t.Helper()
	f := &fakeGitHub{releases: []map[string]any{
		{"id": 7, "tag_name": "v1.2.0", "published_at": "2024-01-02T00:00:00Z",
			"assets": []map[string]any{{"id": 100, "name": "manage.package", "size": 13}}},
		{"id": 8, "tag_name": "v1.3.0-beta", "prerelease": true, "published_at": "2024-02-01T00:00:00Z"},
		{"id": 9, "tag_name": "v9.0.0", "draft": true},
	}}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	opts.APIBase = srv.URL
	if opts.Token == "" {
		opts.Token = "secret"
	}
	return NewGitHub(opts, zerolog.Nop()), f
}

var widget = Repository{ID: 42, Owner: "acme", Name: "widget"}

func TestGitHubRepository(t *testing.T) {
	g, _ := newFakeGitHub(t, GitHubOptions{})

	repo, err := g.Repository(context.Background(), "acme", "widget")
	require.NoError(t, err)
	assert.Equal(t, widget, repo)

	_, err = g.Repository(context.Background(), "acme", "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestGitHubLatestRelease(t *testing.T) {
	g, _ := newFakeGitHub(t, GitHubOptions{})

	rel, err := g.LatestRelease(context.Background(), widget)
	require.NoError(t, err)
	require.NotNil(t, rel)
	assert.Equal(t, int64(7), rel.ID)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), rel.PublishedAt.UTC())
	require.Len(t, rel.Assets, 1)
	assert.Equal(t, "manage.package", rel.Assets[0].Name)
}

func TestGitHubLatestReleaseWithPrereleases(t *testing.T) {
	g, _ := newFakeGitHub(t, GitHubOptions{IncludePrereleases: true})

	rel, err := g.LatestRelease(context.Background(), widget)
	require.NoError(t, err)
	assert.Equal(t, int64(8), rel.ID)
}

func TestGitHubLatestReleaseNone(t *testing.T) {
	g, f := newFakeGitHub(t, GitHubOptions{})
	f.releases = []map[string]any{}

	rel, err := g.LatestRelease(context.Background(), widget)
	require.NoError(t, err)
	assert.Nil(t, rel)
}

func TestGitHubLatestReleaseCache(t *testing.T) {
	g, f := newFakeGitHub(t, GitHubOptions{CacheTTL: time.Hour})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := g.LatestRelease(context.Background(), widget)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.releaseCalls.Load())

	now = now.Add(2 * time.Hour)
	_, err := g.LatestRelease(context.Background(), widget)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.releaseCalls.Load())

	g.InvalidateCache()
	_, err = g.LatestRelease(context.Background(), widget)
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.releaseCalls.Load())
}

func TestGitHubReleaseByID(t *testing.T) {
	g, _ := newFakeGitHub(t, GitHubOptions{})

	rel, err := g.Release(context.Background(), widget, 7)
	require.NoError(t, err)
	assert.Equal(t, "v1.2.0", rel.TagName)
}

func TestGitHubDownload(t *testing.T) {
	g, _ := newFakeGitHub(t, GitHubOptions{})
	dir := t.TempDir()
	rel := &Release{ID: 7}

	path, err := g.Download(context.Background(), Asset{ID: 100, Name: "manage.package"}, rel, widget, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "manage.package"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestGitHubDownloadFailureLeavesNothing(t *testing.T) {
	g, _ := newFakeGitHub(t, GitHubOptions{})
	dir := t.TempDir()

	_, err := g.Download(context.Background(), Asset{ID: 555, Name: "app.zip"}, &Release{ID: 7}, widget, dir)
	require.Error(t, err)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestGitHubDownloadRejectsPathNames(t *testing.T) {
	g, _ := newFakeGitHub(t, GitHubOptions{})
	for _, name := range []string{"", "..", "../evil", "sub/file"} {
		_, err := g.Download(context.Background(), Asset{ID: 100, Name: name}, &Release{ID: 7}, widget, t.TempDir())
		assert.Error(t, err, name)
	}
}

func TestGitHubRateLimitHonorsContext(t *testing.T) {
	g, _ := newFakeGitHub(t, GitHubOptions{RequestsPerSecond: 0.001})
	ctx := context.Background()
	_, err := g.Repository(ctx, "acme", "widget")
	require.NoError(t, err, "first request uses the burst")

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = g.Repository(ctx, "acme", "widget")
	require.Error(t, err)
}
