/*
 * Copyright 2025 The Greenroom Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package github provides a client for the source-control host: versioned
// screenplay content and the repository membership API.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/greenroom-io/greenroom/pkg/errors"
)

var (
	// ErrNotFound is returned when the repository, path, or revision does
	// not exist.
	ErrNotFound = errors.NotFound("not found on source-control host").WithReason("scm_not_found")

	// ErrStaleHead is returned when an optimistic-concurrency write is
	// rejected because the given prior hash no longer matches the head.
	ErrStaleHead = errors.Conflict("head moved since it was read").WithReason("scm_stale_head")

	// ErrUnavailable is returned when the source-control host is
	// unreachable or rejects the request unexpectedly.
	ErrUnavailable = errors.Unavailable("source-control host unreachable").WithReason("scm_unavailable")
)

const (
	perPage = 100

	// fileCacheSize bounds the cache of commit-pinned file reads. Content at
	// a commit hash never changes, so entries are evicted only by capacity.
	fileCacheSize = 256
)

// Config is the configuration for creating a Client instance.
type Config struct {
	BaseURL        string `yaml:"BaseURL"`
	UserAgent      string `yaml:"UserAgent"`
	RequestTimeout string `yaml:"RequestTimeout"`
}

// Validate returns an error if the provided Config is invalidated.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.RequestTimeout); err != nil {
		return fmt.Errorf(
			`invalid argument "%s" for "--github-request-timeout" flag: %w`,
			c.RequestTimeout,
			err,
		)
	}

	return nil
}

// ParseRequestTimeout returns the request timeout duration.
func (c *Config) ParseRequestTimeout() time.Duration {
	timeout, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 20 * time.Second
	}

	return timeout
}

// RepoCollaborator is one entry of the repository membership list.
type RepoCollaborator struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// File is a file read from the source-control host at some revision.
type File struct {
	Path    string
	SHA     string
	Content []byte
}

// Commit is a revision written to the source-control host.
type Commit struct {
	SHA string
}

// Client is a client for the source-control host. Credentials are provided
// per call: every operation acts on behalf of a specific user.
type Client struct {
	conf       *Config
	httpClient *http.Client
	fileCache  *lru.Cache[string, *File]
}

// NewClient creates a new instance of Client.
func NewClient(conf *Config) *Client {
	fileCache, _ := lru.New[string, *File](fileCacheSize)
	return &Client{
		conf: conf,
		httpClient: &http.Client{
			Timeout: conf.ParseRequestTimeout(),
		},
		fileCache: fileCache,
	}
}

// ListCollaborators returns the full membership list of the given repository,
// following pagination until a short page.
func (c *Client) ListCollaborators(
	ctx context.Context,
	repo string,
	token string,
) ([]RepoCollaborator, error) {
	var all []RepoCollaborator
	for page := 1; ; page++ {
		path := fmt.Sprintf(
			"/repos/%s/collaborators?per_page=%d&page=%d",
			repo, perPage, page,
		)

		var batch []RepoCollaborator
		if err := c.getJSON(ctx, path, token, &batch); err != nil {
			return nil, fmt.Errorf("list collaborators of %s: %w", repo, err)
		}

		all = append(all, batch...)
		if len(batch) < perPage {
			break
		}
	}

	return all, nil
}

// GetFile reads the file at the given path and revision. The returned SHA is
// the blob hash used for optimistic-concurrency writes.
func (c *Client) GetFile(
	ctx context.Context,
	repo string,
	path string,
	ref string,
	token string,
) (*File, error) {
	cacheKey := repo + "#" + path + "@" + ref
	if isCommitHash(ref) {
		if file, ok := c.fileCache.Get(cacheKey); ok {
			return file, nil
		}
	}

	reqPath := fmt.Sprintf("/repos/%s/contents/%s", repo, url.PathEscape(path))
	if ref != "" {
		reqPath += "?ref=" + url.QueryEscape(ref)
	}

	var body struct {
		Path     string `json:"path"`
		SHA      string `json:"sha"`
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := c.getJSON(ctx, reqPath, token, &body); err != nil {
		return nil, fmt.Errorf("get file %s@%s: %w", path, ref, err)
	}

	content, err := base64.StdEncoding.DecodeString(
		strings.ReplaceAll(body.Content, "\n", ""),
	)
	if err != nil {
		return nil, fmt.Errorf("decode file %s@%s: %w", path, ref, err)
	}

	file := &File{
		Path:    body.Path,
		SHA:     body.SHA,
		Content: content,
	}
	if isCommitHash(ref) {
		c.fileCache.Add(cacheKey, file)
	}

	return file, nil
}

// isCommitHash reports whether ref pins content immutably. Branch and tag
// names move, so only hex commit hashes are safe to cache.
func isCommitHash(ref string) bool {
	if len(ref) < 7 || 64 < len(ref) {
		return false
	}
	for _, r := range ref {
		if (r < '0' || '9' < r) && (r < 'a' || 'f' < r) {
			return false
		}
	}

	return true
}

// PutFileParams are the parameters of a PutFile call.
type PutFileParams struct {
	Message string
	Content []byte
	// PriorSHA is the blob hash the write is conditioned on. The host
	// rejects the write when the hash is stale.
	PriorSHA string
	Branch   string
}

// PutFile writes file content as a new revision on top of the given prior
// hash and returns the created commit.
func (c *Client) PutFile(
	ctx context.Context,
	repo string,
	path string,
	params PutFileParams,
	token string,
) (*Commit, error) {
	reqBody, err := json.Marshal(map[string]string{
		"message": params.Message,
		"content": base64.StdEncoding.EncodeToString(params.Content),
		"sha":     params.PriorSHA,
		"branch":  params.Branch,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal put file: %w", err)
	}

	reqPath := fmt.Sprintf("/repos/%s/contents/%s", repo, url.PathEscape(path))
	resp, err := c.do(ctx, http.MethodPut, reqPath, token, reqBody)
	if err != nil {
		return nil, fmt.Errorf("put file %s: %w", path, ErrUnavailable)
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("put file %s: %w", path, ErrStaleHead)
	case http.StatusNotFound:
		return nil, fmt.Errorf("put file %s: %w", path, ErrNotFound)
	default:
		return nil, fmt.Errorf("put file %s: %d: %w", path, resp.StatusCode, ErrUnavailable)
	}

	var body struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode put file %s: %w", path, ErrUnavailable)
	}

	return &Commit{SHA: body.Commit.SHA}, nil
}

// GetBranchHead returns the head commit hash of the given branch.
func (c *Client) GetBranchHead(
	ctx context.Context,
	repo string,
	branch string,
	token string,
) (string, error) {
	var body struct {
		SHA string `json:"sha"`
	}
	path := fmt.Sprintf("/repos/%s/commits/%s", repo, url.PathEscape(branch))
	if err := c.getJSON(ctx, path, token, &body); err != nil {
		return "", fmt.Errorf("get head of %s@%s: %w", repo, branch, err)
	}

	return body.SHA, nil
}

func (c *Client) getJSON(
	ctx context.Context,
	path string,
	token string,
	out interface{},
) error {
	resp, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return ErrUnavailable
	}
	defer closeBody(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return fmt.Errorf("%d: %w", resp.StatusCode, ErrUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", ErrUnavailable)
	}

	return nil
}

func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	token string,
	body []byte,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(
		ctx, method, c.conf.BaseURL+path, bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+token)
	if c.conf.UserAgent != "" {
		req.Header.Set("User-Agent", c.conf.UserAgent)
	}

	return c.httpClient.Do(req)
}

func closeBody(resp *http.Response) {
	_ = resp.Body.Close()
}
