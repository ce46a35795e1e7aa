package convert

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
)

var panelLabels = map[string]string{
	"info":    "Info",
	"note":    "Note",
	"warning": "Warning",
	"tip":     "Tip",
	"panel":   "",
}

// dropped macros only make sense inside Confluence.
var droppedMacros = map[string]bool{
	"toc":              true,
	"children":         true,
	"pagetree":         true,
	"anchor":           true,
	"recently-updated": true,
}

// passthrough macros are layout wrappers whose body is kept as is.
var passthroughMacros = map[string]bool{
	"excerpt": true,
	"section": true,
	"column":  true,
	"details": true,
	"div":     true,
}

// macroTransformer rewrites ac:/ri: elements into plain HTML the markdown
// converter understands, recording what it did in result.
type macroTransformer struct {
	result *model.ConversionResult
}

func (m *macroTransformer) transform(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type != html.ElementNode {
			c = next
			continue
		}
		switch {
		case c.Data == "ac:structured-macro" || c.Data == "ac:macro":
			replaceWith(c, m.macro(c)...)
		case c.Data == "ac:image":
			replaceWith(c, m.image(c)...)
		case c.Data == "ac:link":
			replaceWith(c, m.link(c)...)
		case c.Data == "ac:emoticon":
			replaceWith(c, textNode(":"+attr(c, "ac:name")+":"))
		case c.Data == "ac:task-list":
			replaceWith(c, m.taskList(c))
		case c.Data == "ac:placeholder" || strings.HasPrefix(c.Data, "ri:"):
			replaceWith(c)
		case strings.HasPrefix(c.Data, "ac:"):
			m.transform(c)
			replaceWith(c, detachChildren(c)...)
		default:
			m.transform(c)
		}
		c = next
	}
}

func (m *macroTransformer) macro(n *html.Node) []*html.Node {
	name := strings.ToLower(attr(n, "ac:name"))
	m.result.MacrosFound = append(m.result.MacrosFound, name)
	params := parameters(n)
	body := findElement(n, "ac:rich-text-body")
	plain := findElement(n, "ac:plain-text-body")

	converted := func(nodes ...*html.Node) []*html.Node {
		m.result.MacrosConverted = append(m.result.MacrosConverted, name)
		return nodes
	}

	switch {
	case name == "code" || name == "noformat":
		code := element("code")
		if lang := params["language"]; lang != "" && name == "code" {
			code.Attr = append(code.Attr, html.Attribute{Key: "class", Val: "language-" + lang})
		}
		code.AppendChild(textNode(strings.Trim(textContent(plain), "\n")))
		pre := element("pre")
		pre.AppendChild(code)
		return converted(pre)

	case panelLabels[name] != "" || name == "panel":
		quote := element("blockquote")
		label := params["title"]
		if label == "" {
			label = panelLabels[name]
		}
		if label != "" {
			p := element("p")
			strong := element("strong")
			strong.AppendChild(textNode(label))
			p.AppendChild(strong)
			quote.AppendChild(p)
		}
		m.appendBody(quote, body)
		return converted(quote)

	case name == "expand":
		div := element("div")
		title := params["title"]
		if title == "" {
			title = "Details"
		}
		p := element("p")
		strong := element("strong")
		strong.AppendChild(textNode(title))
		p.AppendChild(strong)
		div.AppendChild(p)
		m.appendBody(div, body)
		return converted(div)

	case name == "status":
		return converted(textNode("[" + strings.ToUpper(params["title"]) + "]"))

	case name == "jira":
		return converted(textNode(params["key"]))

	case droppedMacros[name]:
		return converted()

	case passthroughMacros[name]:
		if body == nil {
			return converted()
		}
		m.transform(body)
		return converted(detachChildren(body)...)
	}

	m.result.MacrosFailed = append(m.result.MacrosFailed, name)
	m.result.Warnings = append(m.result.Warnings, "unsupported macro: "+name)
	switch {
	case body != nil:
		m.transform(body)
		return detachChildren(body)
	case plain != nil:
		pre := element("pre")
		pre.AppendChild(textNode(textContent(plain)))
		return []*html.Node{pre}
	}
	return nil
}

func (m *macroTransformer) appendBody(dst, body *html.Node) {
	if body == nil {
		return
	}
	m.transform(body)
	for _, c := range detachChildren(body) {
		dst.AppendChild(c)
	}
}

func (m *macroTransformer) image(n *html.Node) []*html.Node {
	var src, name string
	if a := findElement(n, "ri:attachment"); a != nil {
		name = attr(a, "ri:filename")
		src = name
	} else if u := findElement(n, "ri:url"); u != nil {
		src = attr(u, "ri:value")
	}
	if src == "" {
		m.result.Warnings = append(m.result.Warnings, "image without source dropped")
		return nil
	}
	alt := attr(n, "ac:alt")
	if alt == "" {
		alt = name
	}
	img := element("img", html.Attribute{Key: "src", Val: src}, html.Attribute{Key: "alt", Val: alt})
	return []*html.Node{img}
}

func (m *macroTransformer) link(n *html.Node) []*html.Node {
	var href, fallback string
	switch {
	case findElement(n, "ri:page") != nil:
		fallback = attr(findElement(n, "ri:page"), "ri:content-title")
		href = fallback
	case findElement(n, "ri:attachment") != nil:
		fallback = attr(findElement(n, "ri:attachment"), "ri:filename")
		href = fallback
	case findElement(n, "ri:url") != nil:
		href = attr(findElement(n, "ri:url"), "ri:value")
		fallback = href
	}
	if anchor := attr(n, "ac:anchor"); anchor != "" {
		href += "#" + anchor
		if fallback == "" {
			fallback = anchor
		}
	}

	text := ""
	if body := findElement(n, "ac:plain-text-link-body"); body != nil {
		text = strings.TrimSpace(textContent(body))
	} else if body := findElement(n, "ac:link-body"); body != nil {
		text = strings.TrimSpace(textContent(body))
	}
	if text == "" {
		text = fallback
	}
	if href == "" {
		return []*html.Node{textNode(text)}
	}
	a := element("a", html.Attribute{Key: "href", Val: href})
	a.AppendChild(textNode(text))
	return []*html.Node{a}
}

func (m *macroTransformer) taskList(n *html.Node) *html.Node {
	ul := element("ul")
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "ac:task" {
			continue
		}
		box := "[ ] "
		if status := findElement(c, "ac:task-status"); status != nil && strings.TrimSpace(textContent(status)) == "complete" {
			box = "[x] "
		}
		li := element("li")
		li.AppendChild(textNode(box))
		if body := findElement(c, "ac:task-body"); body != nil {
			m.transform(body)
			for _, child := range detachChildren(body) {
				li.AppendChild(child)
			}
		}
		ul.AppendChild(li)
	}
	return ul
}

// parameters returns the ac:parameter values that belong to macro n itself,
// not to macros nested in its body.
func parameters(n *html.Node) map[string]string {
	params := make(map[string]string)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "ac:parameter" {
			params[strings.ToLower(attr(c, "ac:name"))] = strings.TrimSpace(textContent(c))
		}
	}
	return params
}

func attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// findElement returns the first descendant named tag, without descending
// into nested macros.
func findElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.Data == tag {
			return c
		}
		if c.Data == "ac:structured-macro" || c.Data == "ac:macro" {
			continue
		}
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func element(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag)), Attr: attrs}
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func detachChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		out = append(out, c)
		c = next
	}
	return out
}

// replaceWith swaps old for nodes in old's parent. With no nodes it just
// removes old.
func replaceWith(old *html.Node, nodes ...*html.Node) {
	parent := old.Parent
	if parent == nil {
		return
	}
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		parent.InsertBefore(n, old)
	}
	parent.RemoveChild(old)
}
