// Package wikijs imports converted pages into a Wiki.js instance through its
// GraphQL API.
package wikijs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
)

// codePageNotFound is the Wiki.js error code returned by singleByPath.
const codePageNotFound = 6003

// GraphQLError is an entry of a GraphQL response's errors list.
type GraphQLError struct {
	Message string
	Code    int
}

func (e *GraphQLError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("wikijs graphql error %d: %s", e.Code, e.Message)
	}
	return "wikijs graphql error: " + e.Message
}

// ResponseError is a mutation whose responseResult reports failure.
type ResponseError struct {
	Code    int
	Slug    string
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("wikijs %s (%d): %s", e.Slug, e.Code, e.Message)
}

// statusError is a non-2xx HTTP response.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("wikijs API returned %d: %s", e.status, e.body)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// MaxRetries bounds retries of transient failures (default: 3)
	MaxRetries int
}

// Client talks to the Wiki.js GraphQL endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	maxRetries int
	httpClient *http.Client
	logger     *slog.Logger

	// retryWait overrides the backoff interval; tests set it to zero.
	retryWait time.Duration
}

// NewClient creates a client. A nil logger uses slog.Default().
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("wikijs base_url not configured")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("wikijs api_key not configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		retryWait:  -1,
	}, nil
}

// Page is the subset of a Wiki.js page the importer needs.
type Page struct {
	ID      int
	Path    string
	Title   string
	Content string
}

// PageInput holds the fields of a create or update mutation.
type PageInput struct {
	Path        string
	Title       string
	Content     string
	Description string
	Editor      string
	Locale      string
	Tags        []string
}

const queryPageByPath = `query ($path: String!, $locale: String!) {
  pages { singleByPath(path: $path, locale: $locale) { id path title content } }
}`

const mutationCreate = `mutation ($content: String!, $description: String!, $editor: String!, $isPublished: Boolean!,
  $isPrivate: Boolean!, $locale: String!, $path: String!, $tags: [String]!, $title: String!) {
  pages { create(content: $content, description: $description, editor: $editor, isPublished: $isPublished,
    isPrivate: $isPrivate, locale: $locale, path: $path, tags: $tags, title: $title) {
      responseResult { succeeded errorCode slug message }
      page { id path }
  } }
}`

const mutationUpdate = `mutation ($id: Int!, $content: String, $description: String, $tags: [String], $title: String) {
  pages { update(id: $id, content: $content, description: $description, tags: $tags, title: $title) {
      responseResult { succeeded errorCode slug message }
  } }
}`

const mutationDelete = `mutation ($id: Int!) {
  pages { delete(id: $id) { responseResult { succeeded errorCode slug message } } }
}`

// PageByPath returns the page at path, or nil when none exists.
func (c *Client) PageByPath(ctx context.Context, path, locale string) (*Page, error) {
	path = strings.TrimPrefix(path, "/")
	data, err := c.graphql(ctx, queryPageByPath, map[string]any{"path": path, "locale": locale})
	if err != nil {
		var gqlErr *GraphQLError
		if errors.As(err, &gqlErr) && (gqlErr.Code == codePageNotFound || strings.Contains(gqlErr.Message, "does not exist")) {
			return nil, nil
		}
		return nil, fmt.Errorf("get page %s: %w", path, err)
	}
	p := data.Get("pages.singleByPath")
	if !p.Exists() || p.Type == gjson.Null {
		return nil, nil
	}
	return &Page{
		ID:      int(p.Get("id").Int()),
		Path:    p.Get("path").String(),
		Title:   p.Get("title").String(),
		Content: p.Get("content").String(),
	}, nil
}

// CreatePage creates a published page and returns its id.
func (c *Client) CreatePage(ctx context.Context, in PageInput) (int, error) {
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	data, err := c.graphql(ctx, mutationCreate, map[string]any{
		"content":     in.Content,
		"description": in.Description,
		"editor":      in.Editor,
		"isPublished": true,
		"isPrivate":   false,
		"locale":      in.Locale,
		"path":        strings.TrimPrefix(in.Path, "/"),
		"tags":        tags,
		"title":       in.Title,
	})
	if err != nil {
		return 0, fmt.Errorf("create page %s: %w", in.Path, err)
	}
	res := data.Get("pages.create")
	if err := responseResult(res); err != nil {
		return 0, fmt.Errorf("create page %s: %w", in.Path, err)
	}
	return int(res.Get("page.id").Int()), nil
}

// UpdatePage replaces the content, title and tags of page id.
func (c *Client) UpdatePage(ctx context.Context, id int, in PageInput) error {
	data, err := c.graphql(ctx, mutationUpdate, map[string]any{
		"id":          id,
		"content":     in.Content,
		"description": in.Description,
		"tags":        in.Tags,
		"title":       in.Title,
	})
	if err != nil {
		return fmt.Errorf("update page %d: %w", id, err)
	}
	if err := responseResult(data.Get("pages.update")); err != nil {
		return fmt.Errorf("update page %d: %w", id, err)
	}
	return nil
}

// DeletePage deletes page id.
func (c *Client) DeletePage(ctx context.Context, id int) error {
	data, err := c.graphql(ctx, mutationDelete, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete page %d: %w", id, err)
	}
	if err := responseResult(data.Get("pages.delete")); err != nil {
		return fmt.Errorf("delete page %d: %w", id, err)
	}
	return nil
}

// UploadAsset uploads the file at localPath into the root asset folder under
// name and returns the asset's URL path.
func (c *Client) UploadAsset(ctx context.Context, localPath, name string) (string, error) {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read asset: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("mediaUpload", `{"folderId":0}`); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("mediaUpload", name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(content); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	_, err = c.do(ctx, http.MethodPost, c.baseURL+"/u", buf.Bytes(), w.FormDataContentType())
	if err != nil {
		return "", fmt.Errorf("upload asset %s: %w", filepath.Base(localPath), err)
	}
	return "/" + name, nil
}

func responseResult(res gjson.Result) error {
	rr := res.Get("responseResult")
	if !rr.Exists() {
		return errors.New("response has no responseResult")
	}
	if rr.Get("succeeded").Bool() {
		return nil
	}
	return &ResponseError{
		Code:    int(rr.Get("errorCode").Int()),
		Slug:    rr.Get("slug").String(),
		Message: rr.Get("message").String(),
	}
}

// graphql posts query and returns the "data" member of the response. The
// first entry of a non-empty errors list is returned as a *GraphQLError.
func (c *Client) graphql(ctx context.Context, query string, vars map[string]any) (gjson.Result, error) {
	payload, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal request: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/graphql", payload, "application/json")
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.New("wikijs returned invalid JSON")
	}
	resp := gjson.ParseBytes(body)
	if first := resp.Get("errors.0"); first.Exists() {
		return gjson.Result{}, &GraphQLError{
			Message: first.Get("message").String(),
			Code:    int(first.Get("extensions.exception.code").Int()),
		}
	}
	return resp.Get("data"), nil
}

// do executes an authenticated request, retrying network errors, 429 and
// 5xx responses with exponential backoff.
func (c *Client) do(ctx context.Context, method, url string, body []byte, contentType string) ([]byte, error) {
	var out []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			serr := &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return serr
			}
			return backoff.Permanent(serr)
		}
		out = respBody
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("wikijs request retry", "url", url, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, c.backoff(ctx), notify); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if c.retryWait >= 0 {
		b = backoff.NewConstantBackOff(c.retryWait)
	} else {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 500 * time.Millisecond
		exp.MaxElapsedTime = 2 * time.Minute
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)
}
