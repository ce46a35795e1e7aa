// Package bookstack imports converted pages into BookStack through its REST
// API, mapping spaces to books and top-level sections to chapters.
package bookstack

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
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
)

// maxRetryAfter caps how long a 429 Retry-After header can stall a request.
const maxRetryAfter = time.Minute

// APIError is a non-2xx response from BookStack.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bookstack API returned %d: %s", e.Status, e.Message)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL     string
	TokenID     string
	TokenSecret string
	Timeout     time.Duration
	MaxRetries  int
}

// Client talks to the BookStack REST API.
type Client struct {
	baseURL    string
	token      string
	maxRetries int
	httpClient *http.Client
	logger     *slog.Logger

	// retryWait replaces exponential backoff when >= 0.
	retryWait time.Duration
}

// NewClient creates a client. A nil logger uses slog.Default().
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("bookstack base_url not configured")
	}
	if cfg.TokenID == "" || cfg.TokenSecret == "" {
		return nil, errors.New("bookstack token_id and token_secret must both be set")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.TokenID + ":" + cfg.TokenSecret,
		maxRetries: max(cfg.MaxRetries, 0),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		retryWait:  -1,
	}, nil
}

// Tag is a BookStack name/value tag.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// PageInput holds the fields of a page create request. Exactly one of
// BookID and ChapterID is set.
type PageInput struct {
	BookID    int    `json:"book_id,omitempty"`
	ChapterID int    `json:"chapter_id,omitempty"`
	Name      string `json:"name"`
	Markdown  string `json:"markdown"`
	Tags      []Tag  `json:"tags,omitempty"`
	Priority  int    `json:"priority,omitempty"`
}

// CreateShelf creates a shelf holding books and returns its id.
func (c *Client) CreateShelf(ctx context.Context, name string, books []int) (int, error) {
	return c.create(ctx, "shelves", map[string]any{"name": name, "books": books})
}

// CreateBook creates a book and returns its id.
func (c *Client) CreateBook(ctx context.Context, name, description string) (int, error) {
	return c.create(ctx, "books", map[string]any{"name": name, "description": description})
}

// CreateChapter creates a chapter in book and returns its id.
func (c *Client) CreateChapter(ctx context.Context, bookID int, name, description string, priority int) (int, error) {
	return c.create(ctx, "chapters", map[string]any{
		"book_id":     bookID,
		"name":        name,
		"description": description,
		"priority":    priority,
	})
}

// CreatePage creates a markdown page and returns its id.
func (c *Client) CreatePage(ctx context.Context, in PageInput) (int, error) {
	return c.create(ctx, "pages", in)
}

// UploadAttachment attaches the file at localPath to page pageID.
func (c *Client) UploadAttachment(ctx context.Context, pageID int, name, localPath string) (int, error) {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return 0, fmt.Errorf("read attachment: %w", err)
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("name", name)
	_ = w.WriteField("uploaded_to", strconv.Itoa(pageID))
	part, err := w.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return 0, err
	}
	if _, err := part.Write(content); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/attachments", buf.Bytes(), w.FormDataContentType())
	if err != nil {
		return 0, fmt.Errorf("upload attachment %s: %w", name, err)
	}
	return int(gjson.GetBytes(resp, "id").Int()), nil
}

// Delete removes the item of kind ("pages", "chapters", "books",
// "shelves") with id.
func (c *Client) Delete(ctx context.Context, kind string, id int) error {
	_, err := c.do(ctx, http.MethodDelete, "/"+kind+"/"+strconv.Itoa(id), nil, "")
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", kind, id, err)
	}
	return nil
}

func (c *Client) create(ctx context.Context, kind string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal %s request: %w", kind, err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/"+kind, body, "application/json")
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", strings.TrimSuffix(kind, "s"), err)
	}
	id := gjson.GetBytes(resp, "id")
	if !id.Exists() {
		return 0, fmt.Errorf("create %s: response has no id", strings.TrimSuffix(kind, "s"))
	}
	return int(id.Int()), nil
}

// do sends an authenticated request to {base}/api{path}. Network errors and
// 5xx responses are retried with backoff; 429 responses wait for the
// Retry-After interval first.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) ([]byte, error) {
	url := c.baseURL + "/api" + path
	var out []byte
	op := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Authorization", "Token "+c.token)
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

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
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			out = respBody
			return nil
		}

		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(respBody)}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if err := c.waitRetryAfter(ctx, resp.Header.Get("Retry-After")); err != nil {
				return backoff.Permanent(err)
			}
			return apiErr
		case resp.StatusCode >= 500:
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("bookstack request retry", "method", method, "path", path, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, c.backoff(ctx), notify); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) waitRetryAfter(ctx context.Context, header string) error {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return nil
	}
	wait := min(time.Duration(secs)*time.Second, maxRetryAfter)
	if c.retryWait >= 0 {
		wait = c.retryWait
	}
	c.logger.Warn("bookstack rate limited", "retry_after", wait)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if c.retryWait >= 0 {
		b = backoff.NewConstantBackOff(c.retryWait)
	} else {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = time.Second
		exp.MaxElapsedTime = 2 * time.Minute
		b = exp
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)
}

// errorMessage extracts error.message from a BookStack error body, falling
// back to the raw body.
func errorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return msg.String()
	}
	return strings.TrimSpace(string(body))
}
