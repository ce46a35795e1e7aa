package verify

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var pageIDParam = regexp.MustCompile(`[?&]pageId=(\d+)`)

type pageRef struct {
	space string
	title string
}

// references found in storage-format content.
type references struct {
	attachments []string
	pages       []pageRef
	pageIDs     []string
}

// scanRefs tokenizes content and collects attachment, page-title and
// page-id references. Malformed markup ends the scan early with whatever was
// found so far.
func scanRefs(content string) references {
	var refs references
	if content == "" {
		return refs
	}

	z := html.NewTokenizer(strings.NewReader(content))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return refs
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		if !hasAttr {
			continue
		}
		attrs := readAttrs(z)
		switch string(name) {
		case "ri:attachment":
			if fn := attrs["ri:filename"]; fn != "" {
				refs.attachments = append(refs.attachments, fn)
			}
		case "ri:page":
			if title := attrs["ri:content-title"]; title != "" {
				refs.pages = append(refs.pages, pageRef{space: attrs["ri:space-key"], title: title})
			}
		case "img":
			if fn := downloadName(attrs["src"]); fn != "" {
				refs.attachments = append(refs.attachments, fn)
			}
		case "a":
			if m := pageIDParam.FindStringSubmatch(attrs["href"]); m != nil {
				refs.pageIDs = append(refs.pageIDs, m[1])
			}
		}
	}
}

func readAttrs(z *html.Tokenizer) map[string]string {
	attrs := make(map[string]string)
	for {
		key, val, more := z.TagAttr()
		attrs[string(key)] = string(val)
		if !more {
			return attrs
		}
	}
}

// downloadName returns the attachment file name of a Confluence download
// URL, or "" for any other image source.
func downloadName(src string) string {
	u, err := url.Parse(src)
	if err != nil || !strings.Contains(u.Path, "/download/attachments/") {
		return ""
	}
	name, err := url.PathUnescape(path.Base(u.EscapedPath()))
	if err != nil {
		return ""
	}
	return name
}
