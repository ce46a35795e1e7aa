// Package markdown writes converted pages to a directory of markdown files
// with YAML frontmatter, and reads such a directory back into a tree.
package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
)

const delimiter = "---"

// ErrNoFrontmatter is returned when a file does not start with a
// frontmatter block.
var ErrNoFrontmatter = errors.New("no frontmatter")

// AttachmentRef is an attachment entry in page frontmatter.
type AttachmentRef struct {
	ID        string `yaml:"id"`
	Title     string `yaml:"title"`
	Path      string `yaml:"path,omitempty"`
	MediaType string `yaml:"media_type,omitempty"`
	Size      int64  `yaml:"size,omitempty"`
	Checksum  string `yaml:"checksum,omitempty"`
}

// Frontmatter is the metadata block at the top of every exported page.
type Frontmatter struct {
	ConfluencePageID string          `yaml:"confluence_page_id"`
	Title            string          `yaml:"title"`
	SpaceKey         string          `yaml:"space_key"`
	SpaceName        string          `yaml:"space_name,omitempty"`
	ParentID         string          `yaml:"parent_id,omitempty"`
	URL              string          `yaml:"confluence_url,omitempty"`
	Author           string          `yaml:"author,omitempty"`
	Version          int             `yaml:"version,omitempty"`
	HierarchyDepth   int             `yaml:"hierarchy_depth"`
	Labels           []string        `yaml:"labels"`
	Attachments      []AttachmentRef `yaml:"attachments"`
	ConversionStatus string          `yaml:"conversion_status,omitempty"`
	Warnings         []string        `yaml:"conversion_warnings,omitempty"`
	MacrosFailed     []string        `yaml:"macros_failed,omitempty"`
}

// Missing lists the required fields that are empty.
func (f *Frontmatter) Missing() []string {
	var missing []string
	if f.ConfluencePageID == "" {
		missing = append(missing, "confluence_page_id")
	}
	if f.Title == "" {
		missing = append(missing, "title")
	}
	if f.SpaceKey == "" {
		missing = append(missing, "space_key")
	}
	return missing
}

func frontmatterFor(p *model.Page, space *model.Space, depth int, attachments []AttachmentRef) Frontmatter {
	fm := Frontmatter{
		ConfluencePageID: p.ID,
		Title:            p.Title,
		SpaceKey:         space.Key,
		SpaceName:        space.Name,
		ParentID:         p.ParentID,
		URL:              p.URL,
		Author:           p.Author,
		Version:          p.Version,
		HierarchyDepth:   depth,
		Labels:           p.Labels,
		Attachments:      attachments,
		ConversionStatus: string(p.Conversion.Status),
		Warnings:         p.Conversion.Warnings,
		MacrosFailed:     p.Conversion.MacrosFailed,
	}
	if fm.Labels == nil {
		fm.Labels = []string{}
	}
	if fm.Attachments == nil {
		fm.Attachments = []AttachmentRef{}
	}
	return fm
}

// Render returns the file content for fm followed by body.
func Render(fm Frontmatter, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	buf.WriteString(delimiter + "\n\n")
	buf.WriteString(strings.TrimLeft(body, "\n"))
	if body != "" && !strings.HasSuffix(body, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

var frontmatterBlock = regexp.MustCompile(`(?s)\A---\r?\n(.*?)\r?\n---\r?\n?`)

// Parse splits data into its frontmatter and markdown body. It returns
// ErrNoFrontmatter when data has no leading frontmatter block.
func Parse(data []byte) (*Frontmatter, string, error) {
	m := frontmatterBlock.FindSubmatchIndex(data)
	if m == nil {
		return nil, "", ErrNoFrontmatter
	}
	var fm Frontmatter
	if err := yaml.Unmarshal(data[m[2]:m[3]], &fm); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	body := strings.TrimLeft(string(data[m[1]:]), "\r\n")
	return &fm, body, nil
}
