package github

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"testing"
	"time"

	gh "github.com/google/go-github/v80/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
)

// repoFiles is the content served by the fake GitHub API.
var repoFiles = map[string]string{
	"Detections/SigninLogs/rule.yaml": "name: Rule\nquery: SigninLogs\n",
	"Hunting Queries/Audit/hunt.yaml": "name: Hunt\nquery: AuditLogs\n",
	"Hunting Queries/Audit/README.md": "# readme",
	"Workbooks/book.yaml":             "name: Book\n",
	"Detections/logo.png":             "\x89PNG",
}

func zipball(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("repo-main/")
	require.NoError(t, err)
	for path, content := range repoFiles {
		w, err := zw.Create("repo-main/" + path)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newFakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	archive := zipball(t)

	shas := make(map[string]string, len(repoFiles))
	paths := make(map[string]string, len(repoFiles))
	i := 0
	for path := range repoFiles {
		sha := "blob" + strconv.Itoa(i)
		shas[path], paths[sha] = sha, path
		i++
	}

	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /repos/org/repo", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"name": "repo", "default_branch": "main"})
	})
	mux.HandleFunc("GET /repos/org/private", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
	})
	mux.HandleFunc("GET /repos/org/repo/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		var entries []map[string]any
		entries = append(entries, map[string]any{"path": "Detections", "type": "tree", "sha": "d0"})
		for path, content := range repoFiles {
			entries = append(entries, map[string]any{
				"path": path, "type": "blob", "sha": shas[path], "size": len(content),
			})
		}
		writeJSON(w, map[string]any{"sha": "tree-sha", "tree": entries, "truncated": false})
	})
	mux.HandleFunc("GET /repos/org/repo/git/blobs/{sha}", func(w http.ResponseWriter, r *http.Request) {
		sha := r.PathValue("sha")
		content, ok := repoFiles[paths[sha]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{
			"sha":      sha,
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		})
	})
	mux.HandleFunc("GET /repos/org/repo/zipball/main", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://"+r.Host+"/download/repo-main.zip", http.StatusFound)
	})
	mux.HandleFunc("GET /download/repo-main.zip", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(srv *httptest.Server, mode FetchMode) *Config {
	return &Config{
		Owner:             "org",
		Repo:              "repo",
		Paths:             []string{"Detections", "Hunting Queries"},
		FilePatterns:      []string{"*.yaml"},
		Format:            "sentinel",
		Mode:              mode,
		RequestsPerSecond: 1000,
		BaseURL:           srv.URL,
	}
}

func runSync(t *testing.T, c *Connector) ([]domain.RawFile, error) {
	t.Helper()
	filesChan, errsChan := c.FullSync(context.Background())
	var files []domain.RawFile
	for f := range filesChan {
		files = append(files, f)
	}
	var err error
	for e := range errsChan {
		err = e
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, err
}

func TestNew(t *testing.T) {
	connector, err := New("test-source", &Config{Owner: "org", Repo: "repo"})
	require.NoError(t, err)

	assert.Equal(t, "test-source", connector.SourceID())
	assert.Equal(t, "github", connector.Type())
	var _ driven.Connector = connector

	caps := connector.Capabilities()
	assert.False(t, caps.SupportsWatch)
	assert.True(t, caps.SupportsValidation)
	assert.True(t, caps.SupportsRateLimiting)
}

func TestNew_InvalidBaseURL(t *testing.T) {
	_, err := New("test-source", &Config{Owner: "o", Repo: "r", BaseURL: "://bad"})
	assert.Error(t, err)
}

func TestConnector_FullSync(t *testing.T) {
	for _, mode := range []FetchMode{FetchArchive, FetchTree} {
		t.Run(string(mode), func(t *testing.T) {
			srv := newFakeGitHub(t)
			connector, err := New("sentinel", testConfig(srv, mode))
			require.NoError(t, err)

			files, err := runSync(t, connector)
			require.NoError(t, err)
			require.Len(t, files, 2)

			assert.Equal(t, "Detections/SigninLogs/rule.yaml", files[0].Path)
			assert.Equal(t, "Hunting Queries/Audit/hunt.yaml", files[1].Path)

			hunt := files[1]
			assert.Equal(t, "sentinel", hunt.SourceID)
			assert.Equal(t, "https://github.com/org/repo/blob/main/Hunting%20Queries/Audit/hunt.yaml", hunt.URL)
			assert.Equal(t, []byte(repoFiles["Hunting Queries/Audit/hunt.yaml"]), hunt.Content)
			assert.Equal(t, "sentinel", hunt.Metadata["format"])
			assert.Equal(t, "main", hunt.Metadata["branch"])
		})
	}
}

func TestConnector_FullSync_ExplicitBranchMissing(t *testing.T) {
	srv := newFakeGitHub(t)
	cfg := testConfig(srv, FetchTree)
	cfg.Branch = "develop"

	connector, err := New("sentinel", cfg)
	require.NoError(t, err)

	_, err = runSync(t, connector)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBranchNotFound)
}

func TestConnector_Validate(t *testing.T) {
	srv := newFakeGitHub(t)

	t.Run("existing repository", func(t *testing.T) {
		connector, err := New("s", testConfig(srv, FetchArchive))
		require.NoError(t, err)
		assert.NoError(t, connector.Validate(context.Background()))
	})

	t.Run("missing repository", func(t *testing.T) {
		cfg := testConfig(srv, FetchArchive)
		cfg.Repo = "missing"
		connector, err := New("s", cfg)
		require.NoError(t, err)

		err = connector.Validate(context.Background())
		assert.ErrorIs(t, err, domain.ErrConnectorValidation)
		assert.ErrorIs(t, err, ErrRepoNotFound)
	})

	t.Run("bad credentials", func(t *testing.T) {
		cfg := testConfig(srv, FetchArchive)
		cfg.Repo = "private"
		connector, err := New("s", cfg)
		require.NoError(t, err)

		err = connector.Validate(context.Background())
		assert.ErrorIs(t, err, domain.ErrConnectorValidation)
		assert.True(t, IsUnauthorized(err))
		assert.Contains(t, err.Error(), "GITHUB_TOKEN")
	})

	t.Run("closed connector", func(t *testing.T) {
		connector, err := New("s", testConfig(srv, FetchArchive))
		require.NoError(t, err)
		require.NoError(t, connector.Close())
		assert.ErrorIs(t, connector.Validate(context.Background()), domain.ErrConnectorClosed)

		_, err = runSync(t, connector)
		assert.ErrorIs(t, err, domain.ErrConnectorClosed)
	})
}

func TestConnector_Watch(t *testing.T) {
	connector, err := New("s", &Config{Owner: "o", Repo: "r"})
	require.NoError(t, err)

	changes, err := connector.Watch(context.Background())
	assert.Nil(t, changes)
	assert.ErrorIs(t, err, domain.ErrNotImplemented)
}

func TestParseConfig(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		cfg, err := ParseConfig(domain.Source{Config: map[string]string{
			"repo":     "Azure/Azure-Sentinel",
			"branch":   "master",
			"paths":    "/Detections/, Hunting Queries",
			"patterns": "*.yaml,*.yml",
			"format":   "sentinel",
			"mode":     "Tree",
		}})
		require.NoError(t, err)

		assert.Equal(t, "Azure", cfg.Owner)
		assert.Equal(t, "Azure-Sentinel", cfg.Repo)
		assert.Equal(t, "master", cfg.Branch)
		assert.Equal(t, []string{"Detections", "Hunting Queries"}, cfg.Paths)
		assert.Equal(t, []string{"*.yaml", "*.yml"}, cfg.FilePatterns)
		assert.Equal(t, "sentinel", cfg.Format)
		assert.Equal(t, FetchTree, cfg.Mode)
		assert.Equal(t, "Azure/Azure-Sentinel", cfg.FullName())
	})

	t.Run("defaults", func(t *testing.T) {
		cfg, err := ParseConfig(domain.Source{Config: map[string]string{"repo": "o/r"}})
		require.NoError(t, err)
		assert.Equal(t, FetchArchive, cfg.Mode)
		assert.Empty(t, cfg.Branch)
		assert.Empty(t, cfg.Paths)
	})

	invalid := []map[string]string{
		{},
		{"repo": "noslash"},
		{"repo": "/r"},
		{"repo": "o/"},
		{"repo": "o/r/x"},
		{"repo": "o/r", "mode": "clone"},
	}
	for _, c := range invalid {
		t.Run("invalid "+c["repo"]+c["mode"], func(t *testing.T) {
			_, err := ParseConfig(domain.Source{Config: c})
			assert.ErrorIs(t, err, domain.ErrConnectorValidation)
		})
	}
}

func TestConfig_Includes(t *testing.T) {
	cfg := &Config{
		Paths:        []string{"Detections", "Hunting Queries"},
		FilePatterns: []string{"*.yaml"},
	}

	assert.True(t, cfg.Includes("Detections/a.yaml"))
	assert.True(t, cfg.Includes("Hunting Queries/x/y.yaml"))
	assert.False(t, cfg.Includes("DetectionsExtra/a.yaml"))
	assert.False(t, cfg.Includes("Detections/a.md"))
	assert.False(t, cfg.Includes("Solutions/a.yaml"))

	all := &Config{}
	assert.True(t, all.Includes("anything/at/all.txt"))
}

func TestMatchesPatterns(t *testing.T) {
	assert.True(t, matchesPatterns("any/path.go", nil))
	assert.True(t, matchesPatterns("any/path.go", []string{"*"}))
	assert.True(t, matchesPatterns("cmd/main.kql", []string{"*.kql", "*.md"}))
	assert.False(t, matchesPatterns("package.json", []string{"*.kql"}))
	assert.True(t, matchesPatterns("cmd/main.go", []string{"cmd/*"}))
	assert.False(t, matchesPatterns("internal/main.go", []string{"cmd/*"}))
}

func TestIsBinaryExtension(t *testing.T) {
	assert.True(t, isBinaryExtension("file.exe"))
	assert.True(t, isBinaryExtension("file.PNG"))
	assert.False(t, isBinaryExtension("file.kql"))
	assert.False(t, isBinaryExtension("Makefile"))
}

func TestBuildFileURL(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"Detections/a.yaml", "https://github.com/o/r/blob/main/Detections/a.yaml"},
		{"Hunting Queries/a b.yaml", "https://github.com/o/r/blob/main/Hunting%20Queries/a%20b.yaml"},
		{"x/(Preview) rule&co.yaml", "https://github.com/o/r/blob/main/x/%28Preview%29%20rule%26co.yaml"},
		{"x/naïve.kql", "https://github.com/o/r/blob/main/x/na%C3%AFve.kql"},
		{"x/a_b-c.d~e:f.kql", "https://github.com/o/r/blob/main/x/a_b-c.d~e:f.kql"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildFileURL("o", "r", "main", tt.path))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	t.Run("creates rate limiter with defaults", func(t *testing.T) {
		rl := NewRateLimiter(0)

		assert.Equal(t, GitHubRateLimit, rl.Limit())
		assert.Equal(t, GitHubRateLimit, rl.Remaining())
	})

	t.Run("updates from response headers", func(t *testing.T) {
		rl := NewRateLimiter(ProactiveRate)
		reset := time.Now().Add(time.Hour).Unix()

		rl.UpdateFromResponse(&http.Response{Header: http.Header{
			"X-Ratelimit-Remaining": []string{"100"},
			"X-Ratelimit-Limit":     []string{"5000"},
			"X-Ratelimit-Reset":     []string{strconv.FormatInt(reset, 10)},
		}})

		assert.Equal(t, 100, rl.Remaining())
		assert.Equal(t, 5000, rl.Limit())
		assert.Equal(t, reset, rl.ResetTime().Unix())
	})

	t.Run("wait respects context cancellation", func(t *testing.T) {
		rl := NewRateLimiter(ProactiveRate)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.Error(t, rl.Wait(ctx))
	})
}

func TestClient_WrapError(t *testing.T) {
	client, err := NewClient(context.Background(), "token", 1000, "")
	require.NoError(t, err)

	assert.NoError(t, client.wrapError(nil, "op"))

	t.Run("github ErrorResponse becomes APIError", func(t *testing.T) {
		testURL, _ := url.Parse("https://api.github.com/repos/test/repo")
		ghErr := &gh.ErrorResponse{
			Response: &http.Response{StatusCode: 404, Request: &http.Request{URL: testURL}},
			Message:  "Not Found",
		}

		err := client.wrapError(ghErr, "get repo")

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, 404, apiErr.StatusCode)
		assert.Equal(t, "Not Found", apiErr.Message)
		assert.True(t, IsNotFound(err))
	})

	t.Run("github RateLimitError", func(t *testing.T) {
		reset := time.Now().Add(time.Hour).Truncate(time.Second)
		ghErr := &gh.RateLimitError{Rate: gh.Rate{
			Limit: 5000, Remaining: 0, Reset: gh.Timestamp{Time: reset},
		}}

		err := client.wrapError(ghErr, "get tree")

		var rlErr *RateLimitError
		require.True(t, errors.As(err, &rlErr))
		assert.Equal(t, 0, rlErr.Remaining)
		assert.Equal(t, 5000, rlErr.Limit)
		assert.True(t, IsRateLimited(err))
	})

	t.Run("generic error keeps operation", func(t *testing.T) {
		err := client.wrapError(errors.New("network error"), "fetch data")
		assert.Contains(t, err.Error(), "fetch data")
		assert.Contains(t, err.Error(), "network error")
	})
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsUnauthorized(&APIError{StatusCode: 401}))
	assert.False(t, IsUnauthorized(errors.New("x")))
	assert.True(t, IsNotFound(ErrBranchNotFound))
	assert.Contains(t, (&APIError{StatusCode: 500, Message: "boom", URL: "u"}).Error(), "500")
	assert.Contains(t, (&RateLimitError{ResetAt: time.Unix(0, 0).UTC()}).Error(), "1970-01-01")
}
