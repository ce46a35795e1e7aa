package confluence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	confluenceapi "github.com/ctreminiom/go-atlassian/v2/confluence"
	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
)

// Auth types.
const (
	AuthBasic  = "basic"
	AuthBearer = "bearer"
)

const userAgent = "confluence-markdown-migrator/1.0"

// ClientConfig holds the configuration for connecting to a Confluence site.
type ClientConfig struct {
	// BaseURL is the site root, e.g. "https://acme.atlassian.net/wiki".
	BaseURL  string
	AuthType string
	Username string
	APIToken string
	// PageSize is the number of results requested per call (default: 50).
	PageSize int
	Timeout  time.Duration
}

// Client wraps the go-atlassian Confluence client with migrator-specific
// convenience methods.
type Client struct {
	api        *confluenceapi.Client
	httpClient *http.Client
	cfg        ClientConfig
}

// NewClient creates a Confluence client using basic or bearer auth.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("confluence base URL is required")
	}
	if cfg.APIToken == "" {
		return nil, errors.New("confluence API token is required")
	}
	if cfg.AuthType == "" {
		cfg.AuthType = AuthBasic
	}
	switch cfg.AuthType {
	case AuthBasic:
		if cfg.Username == "" {
			return nil, errors.New("confluence username is required for basic auth")
		}
	case AuthBearer:
	default:
		return nil, fmt.Errorf("unknown confluence auth type %q", cfg.AuthType)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := &http.Client{Timeout: cfg.Timeout}
	api, err := confluenceapi.New(httpClient, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("create confluence client: %w", err)
	}
	if cfg.AuthType == AuthBearer {
		api.Auth.SetBearerToken(cfg.APIToken)
	} else {
		api.Auth.SetBasicAuth(cfg.Username, cfg.APIToken)
	}
	api.Auth.SetUserAgent(userAgent)

	return &Client{api: api, httpClient: httpClient, cfg: cfg}, nil
}

// contentExpand are the properties requested with every page.
var contentExpand = []string{
	"body.storage",
	"version",
	"ancestors",
	"history",
	"metadata.labels",
}

// ListSpaces returns every space visible to the user.
func (c *Client) ListSpaces(ctx context.Context) ([]SpaceInfo, error) {
	var all []SpaceInfo
	for start := 0; ; start += c.cfg.PageSize {
		page, resp, err := c.api.Space.Gets(ctx, &models.GetSpacesOptionScheme{}, start, c.cfg.PageSize)
		if err != nil {
			return nil, fmt.Errorf("list spaces at %d: %w", start, withStatus(resp, err))
		}
		if page == nil {
			break
		}
		for _, s := range page.Results {
			if s != nil {
				all = append(all, convertSpace(s))
			}
		}
		if len(page.Results) < c.cfg.PageSize {
			break
		}
	}
	return all, nil
}

// Space fetches a single space by key.
func (c *Client) Space(ctx context.Context, key string) (SpaceInfo, error) {
	s, resp, err := c.api.Space.Get(ctx, key, nil)
	if err != nil {
		return SpaceInfo{}, fmt.Errorf("get space %s: %w", key, withStatus(resp, err))
	}
	if s == nil {
		return SpaceInfo{}, fmt.Errorf("get space %s: empty response", key)
	}
	return convertSpace(s), nil
}

// ListPages fetches every current page of a space, handling pagination.
func (c *Client) ListPages(ctx context.Context, spaceKey string) ([]Content, error) {
	opts := &models.GetContentOptionsScheme{
		ContextType: "page",
		SpaceKey:    spaceKey,
		Expand:      contentExpand,
	}
	var all []Content
	for start := 0; ; start += c.cfg.PageSize {
		page, resp, err := c.api.Content.Gets(ctx, opts, start, c.cfg.PageSize)
		if err != nil {
			return nil, fmt.Errorf("list pages of %s at %d: %w", spaceKey, start, withStatus(resp, err))
		}
		if page == nil {
			break
		}
		for _, item := range page.Results {
			if item != nil {
				all = append(all, convertContent(item, spaceKey))
			}
		}
		if len(page.Results) < c.cfg.PageSize {
			break
		}
	}
	return all, nil
}

// ListAttachments returns the attachments of a page.
func (c *Client) ListAttachments(ctx context.Context, pageID string) ([]AttachmentInfo, error) {
	var all []AttachmentInfo
	for start := 0; ; start += c.cfg.PageSize {
		page, resp, err := c.api.Content.Attachment.Gets(ctx, pageID, start, c.cfg.PageSize, nil)
		if err != nil {
			return nil, fmt.Errorf("list attachments of %s: %w", pageID, withStatus(resp, err))
		}
		if page == nil {
			break
		}
		for _, item := range page.Results {
			if item == nil {
				continue
			}
			info := AttachmentInfo{
				ID:          item.ID,
				Title:       item.Title,
				DownloadURL: c.DownloadURL(pageID, item.Title),
			}
			if item.Metadata != nil {
				info.MediaType = item.Metadata.MediaType
			}
			all = append(all, info)
		}
		if len(page.Results) < c.cfg.PageSize {
			break
		}
	}
	return all, nil
}

// PageURL returns the browser URL of a page.
func (c *Client) PageURL(pageID string) string {
	return c.cfg.BaseURL + "/pages/viewpage.action?pageId=" + url.QueryEscape(pageID)
}

// DownloadURL returns the download URL of an attachment.
func (c *Client) DownloadURL(pageID, filename string) string {
	return c.cfg.BaseURL + "/download/attachments/" + url.PathEscape(pageID) + "/" + url.PathEscape(filename)
}

// Download opens the content of an attachment. It satisfies
// markdown.AttachmentFetcher.
func (c *Client) Download(ctx context.Context, att *model.Attachment) (io.ReadCloser, error) {
	target := att.DownloadURL
	if target == "" {
		target = c.DownloadURL(att.PageID, att.Title)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	if c.cfg.AuthType == AuthBearer {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	} else {
		req.SetBasicAuth(c.cfg.Username, c.cfg.APIToken)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", att.Title, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("download %s: unexpected status %d", att.Title, resp.StatusCode)
	}
	return resp.Body, nil
}

func withStatus(resp *models.ResponseScheme, err error) error {
	if resp != nil && resp.Response != nil {
		return fmt.Errorf("status %d: %w", resp.Code, err)
	}
	return err
}

func convertSpace(s *models.SpaceScheme) SpaceInfo {
	return SpaceInfo{Key: s.Key, Name: s.Name}
}

func convertContent(item *models.ContentScheme, spaceKey string) Content {
	c := Content{
		ID:       item.ID,
		Title:    item.Title,
		SpaceKey: spaceKey,
	}
	if item.Space != nil && item.Space.Key != "" {
		c.SpaceKey = item.Space.Key
	}
	if item.Body != nil && item.Body.Storage != nil {
		c.Body = item.Body.Storage.Value
	}
	if item.Version != nil {
		c.Version = item.Version.Number
	}
	if item.History != nil && item.History.CreatedBy != nil {
		c.Author = item.History.CreatedBy.DisplayName
	}
	if item.Metadata != nil && item.Metadata.Labels != nil {
		for _, l := range item.Metadata.Labels.Results {
			if l != nil && l.Name != "" {
				c.Labels = append(c.Labels, l.Name)
			}
		}
	}
	for _, a := range item.Ancestors {
		if a != nil && a.ID != "" {
			c.AncestorIDs = append(c.AncestorIDs, a.ID)
		}
	}
	return c
}
