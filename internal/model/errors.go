package model

// PageError describes a failure that affected a single page or file.
type PageError struct {
	PageID  string `json:"page_id,omitempty"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}
