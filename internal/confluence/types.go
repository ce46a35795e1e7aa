// Package confluence fetches spaces, pages and attachments from a Confluence
// site and assembles them into a model.Tree.
package confluence

// Content is a simplified Confluence page with the fields the migrator
// cares about. Mapped from the go-atlassian ContentScheme during fetch.
type Content struct {
	ID       string
	Title    string
	SpaceKey string
	Body     string // storage format XHTML
	Version  int
	Author   string // display name of the creator
	Labels   []string

	// AncestorIDs lists ancestors root first; the last one is the parent.
	AncestorIDs []string
}

// ParentID returns the direct parent id, or "" for a space root.
func (c Content) ParentID() string {
	if len(c.AncestorIDs) == 0 {
		return ""
	}
	return c.AncestorIDs[len(c.AncestorIDs)-1]
}

// SpaceInfo describes a Confluence space.
type SpaceInfo struct {
	Key  string
	Name string
}

// AttachmentInfo describes a file attached to a page.
type AttachmentInfo struct {
	ID          string
	Title       string
	MediaType   string
	DownloadURL string
}
