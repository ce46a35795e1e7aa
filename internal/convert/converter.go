// Package convert turns Confluence storage-format content into markdown.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
)

var (
	cdataSection = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
	selfClosing  = regexp.MustCompile(`<((?:ac|ri):[a-zA-Z0-9-]+)([^<>]*?)\s*/>`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
)

// Converter converts pages one at a time. It holds no per-page state and
// may be shared.
type Converter struct {
	logger *slog.Logger
}

// New creates a converter. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{logger: logger}
}

// ConvertPage sets page.Markdown and page.Conversion from page.Content.
// Macros that have no markdown equivalent leave the page partial; an error
// is returned only when the content cannot be converted at all.
func (c *Converter) ConvertPage(ctx context.Context, page *model.Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := model.ConversionResult{Status: model.ConversionSuccess}
	if strings.TrimSpace(page.Content) == "" {
		res.Warnings = append(res.Warnings, "page has no content")
		page.Markdown = ""
		page.Conversion = res
		return nil
	}

	doc, err := html.Parse(strings.NewReader(prepare(page.Content)))
	if err != nil {
		return fmt.Errorf("parse storage format: %w", err)
	}

	mt := &macroTransformer{result: &res}
	mt.transform(doc)
	countLinks(doc, &res)

	out, err := htmltomarkdown.ConvertNode(doc)
	if err != nil {
		return fmt.Errorf("convert to markdown: %w", err)
	}

	page.Markdown = tidy(string(out))
	if len(res.MacrosFailed) > 0 {
		res.Status = model.ConversionPartial
	}
	page.Conversion = res

	c.logger.Debug("page converted",
		"page_id", page.ID,
		"status", res.Status,
		"macros", len(res.MacrosFound),
		"failed_macros", len(res.MacrosFailed))
	return nil
}

// prepare rewrites the XML-only constructs of storage format so the HTML
// parser keeps their content: CDATA becomes escaped text and self-closing
// ac:/ri: elements get explicit end tags.
func prepare(content string) string {
	content = cdataSection.ReplaceAllStringFunc(content, func(m string) string {
		inner := cdataSection.FindStringSubmatch(m)[1]
		return html.EscapeString(inner)
	})
	return selfClosing.ReplaceAllString(content, "<$1$2></$1>")
}

func tidy(md string) string {
	md = strings.ReplaceAll(md, "\r\n", "\n")
	md = blankLines.ReplaceAllString(md, "\n\n")
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	return md + "\n"
}

func countLinks(n *html.Node, res *model.ConversionResult) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "a":
			href := attr(n, "href")
			switch {
			case href == "":
			case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"), strings.HasPrefix(href, "mailto:"):
				res.LinksExternal++
			default:
				res.LinksInternal++
			}
		case "img":
			res.Images++
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		countLinks(child, res)
	}
}
