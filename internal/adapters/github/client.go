// Package github is a minimal client for the GitHub Contents and Git Data
// REST APIs, covering what picup needs to publish images to a repository.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/okian/picup/pkg/logger"
	"github.com/okian/picup/pkg/metrics"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultTimeout = 30 * time.Second
	apiVersion     = "2022-11-28"
	backendLabel   = "github"
	blobFileMode   = "100644"
	maxErrorBody   = 4 << 10
)

// Client talks to one GitHub API endpoint with one token.
type Client struct {
	baseURL string
	http    *http.Client
	logger  logger.Logger
}

// NewClient returns a client authenticating every request with token.
func NewClient(token string, opts ...Option) *Client {
	o := &clientOptions{
		baseURL: defaultBaseURL,
		timeout: defaultTimeout,
		base:    http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(o)
	}

	transport := o.base
	if token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   o.base,
		}
	}

	c := &Client{
		baseURL: strings.TrimRight(o.baseURL, "/"),
		http:    &http.Client{Transport: transport, Timeout: o.timeout},
		logger:  o.logger,
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("github")
	}
	return c
}

// Blob is a created git blob.
type Blob struct {
	SHA string `json:"sha"`
	URL string `json:"url"`
}

// Branch is the head of a branch: its commit and that commit's root tree.
type Branch struct {
	Name    string
	HeadSHA string
	TreeSHA string
}

// TreeEntry is one file of a tree being created.
type TreeEntry struct {
	Path string
	SHA  string
}

// Commit is a created commit.
type Commit struct {
	SHA string `json:"sha"`
}

// Committer identifies who commits a contents change.
type Committer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PutContentsRequest is the body of PUT /repos/{owner}/{repo}/contents/{path}.
type PutContentsRequest struct {
	Message   string     `json:"message"`
	Branch    string     `json:"branch"`
	Content   string     `json:"content"`
	SHA       string     `json:"sha,omitempty"`
	Committer *Committer `json:"committer,omitempty"`
}

// Content describes a file in a repository.
type Content struct {
	Name string `json:"name"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

// ContentsResponse is returned by a contents write.
type ContentsResponse struct {
	Content Content `json:"content"`
	Commit  Commit  `json:"commit"`
}

// CreateBlob stores base64 content as a blob in owner/repo.
func (c *Client) CreateBlob(ctx context.Context, owner, repo, content string) (Blob, error) {
	body := map[string]string{"content": content, "encoding": "base64"}
	var blob Blob
	err := c.do(ctx, http.MethodPost, "git/blobs", repoPath(owner, repo, "git/blobs"), body, &blob)
	return blob, err
}

// GetBranch returns the head commit and root tree of branch.
func (c *Client) GetBranch(ctx context.Context, owner, repo, branch string) (Branch, error) {
	var res struct {
		Name   string `json:"name"`
		Commit struct {
			SHA    string `json:"sha"`
			Commit struct {
				Tree struct {
					SHA string `json:"sha"`
				} `json:"tree"`
			} `json:"commit"`
		} `json:"commit"`
	}
	p := repoPath(owner, repo, "branches/"+url.PathEscape(branch))
	if err := c.do(ctx, http.MethodGet, "branches", p, nil, &res); err != nil {
		return Branch{}, err
	}
	return Branch{Name: res.Name, HeadSHA: res.Commit.SHA, TreeSHA: res.Commit.Commit.Tree.SHA}, nil
}

// CreateTree creates a tree on top of the branch's root tree that adds entries.
func (c *Client) CreateTree(ctx context.Context, owner, repo string, entries []TreeEntry, branch Branch) (string, error) {
	type treeItem struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
	}
	items := make([]treeItem, len(entries))
	for i, e := range entries {
		items[i] = treeItem{Path: e.Path, Mode: blobFileMode, Type: "blob", SHA: e.SHA}
	}
	body := struct {
		BaseTree string     `json:"base_tree"`
		Tree     []treeItem `json:"tree"`
	}{BaseTree: branch.TreeSHA, Tree: items}

	var res struct {
		SHA string `json:"sha"`
	}
	if err := c.do(ctx, http.MethodPost, "git/trees", repoPath(owner, repo, "git/trees"), body, &res); err != nil {
		return "", err
	}
	return res.SHA, nil
}

// CreateCommit creates a commit of treeSHA whose parent is the branch head.
func (c *Client) CreateCommit(ctx context.Context, owner, repo, treeSHA string, branch Branch, message string) (Commit, error) {
	body := struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}{Message: message, Tree: treeSHA, Parents: []string{branch.HeadSHA}}

	var commit Commit
	err := c.do(ctx, http.MethodPost, "git/commits", repoPath(owner, repo, "git/commits"), body, &commit)
	return commit, err
}

// UpdateRef points refs/heads/branch at sha.
func (c *Client) UpdateRef(ctx context.Context, owner, repo, branch, sha string) error {
	body := map[string]any{"sha": sha, "force": false}
	p := repoPath(owner, repo, "git/refs/heads/"+escapePath(branch))
	return c.do(ctx, http.MethodPatch, "git/refs", p, body, nil)
}

// PutContents creates or updates one file. urlPath is an unescaped API path
// such as /repos/{owner}/{repo}/contents/{path}.
func (c *Client) PutContents(ctx context.Context, urlPath string, req PutContentsRequest) (ContentsResponse, error) {
	var res ContentsResponse
	err := c.do(ctx, http.MethodPut, "contents", escapePath(urlPath), req, &res)
	return res, err
}

func (c *Client) do(ctx context.Context, method, endpoint, p string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("github: encode %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+p, body)
	if err != nil {
		return fmt.Errorf("github: build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.RecordAPIRequest(backendLabel, endpoint, "error", elapsed)
		metrics.RecordErrorByComponent(backendLabel, "transport")
		return fmt.Errorf("github: %s %s: %w", method, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RecordAPIRequest(backendLabel, endpoint, strconv.Itoa(resp.StatusCode), elapsed)

	c.logger.Debug(ctx, "github api call",
		logger.String("method", method),
		logger.String("endpoint", endpoint),
		logger.Int("status", resp.StatusCode),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordErrorByComponent(backendLabel, "status_"+strconv.Itoa(resp.StatusCode))
		return newAPIError(method, endpoint, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github: decode %s response: %w", endpoint, err)
	}
	return nil
}

func repoPath(owner, repo, rest string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/" + rest
}

// escapePath escapes each segment of p, keeping the separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
