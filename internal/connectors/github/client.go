package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// ArchiveTimeout bounds a whole archive download.
	ArchiveTimeout = 15 * time.Minute

	// maxArchiveRedirects is passed to the archive link lookup.
	maxArchiveRedirects = 3
)

// Client wraps the go-github client with rate limiting.
type Client struct {
	gh          *gh.Client
	http        *http.Client
	rateLimiter *RateLimiter
}

// NewClient creates a GitHub API client. An empty token makes
// unauthenticated calls. baseURL overrides the API endpoint when set.
func NewClient(ctx context.Context, token string, rps float64, baseURL string) (*Client, error) {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		hc = oauth2.NewClient(ctx, ts)
	} else {
		hc = &http.Client{Transport: http.DefaultTransport}
	}
	hc.Timeout = DefaultTimeout

	client := gh.NewClient(hc)
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		client.BaseURL = u
	}

	// Archive downloads share the transport but not the short timeout.
	download := &http.Client{Transport: hc.Transport, Timeout: ArchiveTimeout}

	return &Client{
		gh:          client,
		http:        download,
		rateLimiter: NewRateLimiter(rps),
	}, nil
}

// GitHub returns the underlying go-github client.
func (c *Client) GitHub() *gh.Client {
	return c.gh
}

// RateLimiter returns the rate limiter for external access.
func (c *Client) RateLimiter() *RateLimiter {
	return c.rateLimiter
}

// GetRepository fetches a single repository.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*gh.Repository, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	repository, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, c.wrapError(err, "get repo")
	}
	return repository, nil
}

// GetTree fetches the entire tree for a ref recursively.
func (c *Client) GetTree(ctx context.Context, owner, repo, ref string) (*gh.Tree, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	tree, resp, err := c.gh.Git.GetTree(ctx, owner, repo, ref, true)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, c.wrapError(err, "get tree")
	}
	return tree, nil
}

// GetBlob fetches a blob (file content) by its SHA.
func (c *Client) GetBlob(ctx context.Context, owner, repo, sha string) (*gh.Blob, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	blob, resp, err := c.gh.Git.GetBlob(ctx, owner, repo, sha)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return nil, c.wrapError(err, "get blob")
	}
	return blob, nil
}

// DownloadArchive streams the zipball for ref into w.
func (c *Client) DownloadArchive(ctx context.Context, owner, repo, ref string, w io.Writer) (int64, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}

	link, resp, err := c.gh.Repositories.GetArchiveLink(
		ctx, owner, repo, gh.Zipball, &gh.RepositoryContentGetOptions{Ref: ref}, maxArchiveRedirects,
	)
	c.updateRateLimitFromResponse(resp)
	if err != nil {
		return 0, c.wrapError(err, "get archive link")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build archive request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download archive: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return 0, &APIError{StatusCode: res.StatusCode, Message: res.Status, URL: link.String()}
	}

	n, err := io.Copy(w, res.Body)
	if err != nil {
		return n, fmt.Errorf("download archive: %w", err)
	}
	return n, nil
}

// ValidateRepository checks that the repository and branch are reachable
// and returns the branch to read.
func (c *Client) ValidateRepository(ctx context.Context, owner, repo, branch string) (string, error) {
	repository, err := c.GetRepository(ctx, owner, repo)
	if err != nil {
		if IsNotFound(err) {
			return "", fmt.Errorf("%w: %s/%s", ErrRepoNotFound, owner, repo)
		}
		return "", err
	}
	if branch != "" {
		return branch, nil
	}
	if def := repository.GetDefaultBranch(); def != "" {
		return def, nil
	}
	return "", fmt.Errorf("%w: %s/%s has no default branch", ErrBranchNotFound, owner, repo)
}

// updateRateLimitFromResponse updates the rate limiter from GitHub response headers.
func (c *Client) updateRateLimitFromResponse(resp *gh.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	c.rateLimiter.UpdateFromResponse(resp.Response)
}

// wrapError converts go-github errors to our error types.
func (c *Client) wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &RateLimitError{
			ResetAt:   rateLimitErr.Rate.Reset.Time,
			Remaining: rateLimitErr.Rate.Remaining,
			Limit:     rateLimitErr.Rate.Limit,
		}
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr := &APIError{
			StatusCode: ghErr.Response.StatusCode,
			Message:    ghErr.Message,
		}
		if ghErr.Response.Request != nil && ghErr.Response.Request.URL != nil {
			apiErr.URL = ghErr.Response.Request.URL.String()
		}
		return apiErr
	}

	return fmt.Errorf("%s: %w", operation, err)
}
