// Package phase defines the per-phase result records produced by the
// migration orchestrator.
//
// Every phase kind has its own concrete result type. They share the Result
// interface so reporting can aggregate them without knowing their fields.
package phase

import (
	"fmt"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
)

// Key identifies a phase.
type Key string

// Phase keys, in the order they may appear in a plan.
const (
	KeyVerification    Key = "integrity_verification"
	KeyConversion      Key = "content_conversion"
	KeyMarkdownExport  Key = "markdown_export"
	KeyMarkdownImport  Key = "markdown_import"
	KeyWikiJSImport    Key = "wikijs_import"
	KeyBookStackImport Key = "bookstack_import"
)

// AllKeys lists every known phase key.
var AllKeys = []Key{
	KeyVerification,
	KeyConversion,
	KeyMarkdownExport,
	KeyMarkdownImport,
	KeyWikiJSImport,
	KeyBookStackImport,
}

// Valid reports whether k is a known phase key.
func (k Key) Valid() bool {
	for _, known := range AllKeys {
		if k == known {
			return true
		}
	}
	return false
}

// SideEffecting reports whether the phase writes outside the process
// (files or remote wikis) and therefore takes part in rollback.
func (k Key) SideEffecting() bool {
	switch k {
	case KeyMarkdownExport, KeyWikiJSImport, KeyBookStackImport:
		return true
	}
	return false
}

// ErrorEntry is one recorded error, tagged with the phase that produced it.
type ErrorEntry struct {
	Phase     Key    `json:"phase"`
	PageID    string `json:"page_id,omitempty"`
	PageTitle string `json:"page_title,omitempty"`
	Message   string `json:"message"`
}

// Result is the capability shared by every phase result.
type Result interface {
	Key() Key
	Failed() bool
	ErrorCount() int
	ErrorList() []ErrorEntry
}

// Outcome carries the fields common to all results. A phase-level failure
// is recorded both in Failure and as an entry in Errors, so ErrorCount is
// always the length of the error list.
type Outcome struct {
	Failure string       `json:"failure,omitempty"`
	Errors  []ErrorEntry `json:"errors,omitempty"`
}

// Failed reports whether the phase as a whole failed.
func (o *Outcome) Failed() bool { return o.Failure != "" }

// ErrorCount returns the number of recorded errors.
func (o *Outcome) ErrorCount() int { return len(o.Errors) }

// ErrorList returns the recorded errors.
func (o *Outcome) ErrorList() []ErrorEntry { return o.Errors }

// Fail marks the phase as failed with err.
func (o *Outcome) Fail(key Key, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	o.Failure = msg
	o.Errors = append(o.Errors, ErrorEntry{Phase: key, Message: msg})
}

// addError records a page-level error.
func (o *Outcome) addError(key Key, pageID, title, msg string) {
	o.Errors = append(o.Errors, ErrorEntry{Phase: key, PageID: pageID, PageTitle: title, Message: msg})
}

// VerificationResult is produced by the integrity verification phase.
type VerificationResult struct {
	Outcome
	Summary        model.IntegritySummary `json:"summary"`
	Threshold      float64                `json:"threshold"`
	BelowThreshold bool                   `json:"below_threshold"`
	Report         *model.IntegrityReport `json:"report,omitempty"`
}

// NewVerificationResult builds a verification result from a report.
func NewVerificationResult(report *model.IntegrityReport, threshold float64) *VerificationResult {
	r := &VerificationResult{Threshold: threshold, Report: report}
	if report != nil {
		r.Summary = report.Summary
	}
	r.BelowThreshold = r.Summary.Score < threshold
	return r
}

// Key implements Result.
func (r *VerificationResult) Key() Key { return KeyVerification }

// ConversionResult is produced by the content conversion phase.
type ConversionResult struct {
	Outcome
	Processed int `json:"processed"`
	Succeeded int `json:"success"`
	Failures  int `json:"failed"`
	Partial   int `json:"partial"`
}

// NewConversionResult returns an empty conversion result.
func NewConversionResult() *ConversionResult { return &ConversionResult{} }

// Key implements Result.
func (r *ConversionResult) Key() Key { return KeyConversion }

// RecordPage counts one processed page by its conversion status.
func (r *ConversionResult) RecordPage(p *model.Page) {
	r.Processed++
	switch p.Conversion.Status {
	case model.ConversionSuccess:
		r.Succeeded++
	case model.ConversionPartial:
		r.Partial++
	default:
		r.Failures++
		msg := "conversion failed"
		if len(p.Conversion.Errors) > 0 {
			msg = p.Conversion.Errors[0]
		}
		r.addError(KeyConversion, p.ID, p.Title, msg)
	}
}

// ExportResult is produced by the markdown export phase.
type ExportResult struct {
	Outcome
	OutputDirectory  string `json:"output_directory"`
	PagesExported    int    `json:"pages_exported"`
	PagesUnchanged   int    `json:"pages_unchanged"`
	AttachmentsSaved int    `json:"attachments_saved"`
	FilesWritten     int    `json:"files_written"`
	IndexFiles       int    `json:"index_files"`
	DryRun           bool   `json:"dry_run,omitempty"`
}

// NewExportResult returns an export result for dir.
func NewExportResult(dir string) *ExportResult { return &ExportResult{OutputDirectory: dir} }

// Key implements Result.
func (r *ExportResult) Key() Key { return KeyMarkdownExport }

// AddPageError records a page that could not be exported.
func (r *ExportResult) AddPageError(pageID, title, msg string) {
	r.addError(KeyMarkdownExport, pageID, title, msg)
}

// MarkdownImportResult is produced by reading a markdown directory back
// into a tree.
type MarkdownImportResult struct {
	Outcome
	Directory         string `json:"directory"`
	FilesScanned      int    `json:"files_scanned"`
	FilesParsed       int    `json:"files_parsed"`
	FilesSkipped      int    `json:"files_skipped"`
	FilesFailed       int    `json:"files_failed"`
	PagesLoaded       int    `json:"pages_loaded"`
	AttachmentsLoaded int    `json:"attachments_loaded"`
	SpacesCreated     int    `json:"spaces_created"`
	OrphanPages       int    `json:"orphan_pages"`
}

// NewMarkdownImportResult returns an import result for dir.
func NewMarkdownImportResult(dir string) *MarkdownImportResult {
	return &MarkdownImportResult{Directory: dir}
}

// Key implements Result.
func (r *MarkdownImportResult) Key() Key { return KeyMarkdownImport }

// AddFileError records a file that could not be parsed.
func (r *MarkdownImportResult) AddFileError(path, msg string) {
	r.addError(KeyMarkdownImport, "", path, msg)
}

// WikiJSImportResult is produced by the Wiki.js import phase.
type WikiJSImportResult struct {
	Outcome
	Created             int  `json:"created"`
	Updated             int  `json:"updated"`
	Skipped             int  `json:"skipped"`
	Failures            int  `json:"failed"`
	AttachmentsUploaded int  `json:"attachments_uploaded"`
	DryRun              bool `json:"dry_run,omitempty"`
}

// NewWikiJSImportResult returns an empty Wiki.js import result.
func NewWikiJSImportResult() *WikiJSImportResult { return &WikiJSImportResult{} }

// Key implements Result.
func (r *WikiJSImportResult) Key() Key { return KeyWikiJSImport }

// AddPageError records a page the importer could not write.
func (r *WikiJSImportResult) AddPageError(pageID, title, msg string) {
	r.Failures++
	r.addError(KeyWikiJSImport, pageID, title, msg)
}

// BookStackImportResult is produced by the BookStack import phase.
type BookStackImportResult struct {
	Outcome
	Shelves  int  `json:"shelves"`
	Books    int  `json:"books"`
	Chapters int  `json:"chapters"`
	Pages    int  `json:"pages"`
	Images   int  `json:"images_uploaded"`
	Skipped  int  `json:"skipped"`
	Failures int  `json:"failed"`
	DryRun   bool `json:"dry_run,omitempty"`
}

// NewBookStackImportResult returns an empty BookStack import result.
func NewBookStackImportResult() *BookStackImportResult { return &BookStackImportResult{} }

// Key implements Result.
func (r *BookStackImportResult) Key() Key { return KeyBookStackImport }

// AddPageError records a page the importer could not write.
func (r *BookStackImportResult) AddPageError(pageID, title, msg string) {
	r.Failures++
	r.addError(KeyBookStackImport, pageID, title, msg)
}

// New returns an empty result of the variant belonging to key.
func New(key Key) (Result, error) {
	switch key {
	case KeyVerification:
		return &VerificationResult{}, nil
	case KeyConversion:
		return NewConversionResult(), nil
	case KeyMarkdownExport:
		return &ExportResult{}, nil
	case KeyMarkdownImport:
		return &MarkdownImportResult{}, nil
	case KeyWikiJSImport:
		return NewWikiJSImportResult(), nil
	case KeyBookStackImport:
		return NewBookStackImportResult(), nil
	}
	return nil, fmt.Errorf("unknown phase kind %q", key)
}

// NewFailed returns a result of key's variant marked as failed with err.
func NewFailed(key Key, err error) (Result, error) {
	r, e := New(key)
	if e != nil {
		return nil, e
	}
	outcomeOf(r).Fail(key, err)
	return r, nil
}

func outcomeOf(r Result) *Outcome {
	switch v := r.(type) {
	case *VerificationResult:
		return &v.Outcome
	case *ConversionResult:
		return &v.Outcome
	case *ExportResult:
		return &v.Outcome
	case *MarkdownImportResult:
		return &v.Outcome
	case *WikiJSImportResult:
		return &v.Outcome
	case *BookStackImportResult:
		return &v.Outcome
	}
	return &Outcome{}
}

// PhaseError is returned by side-effecting phases. The orchestrator uses it
// to decide whether to roll back.
type PhaseError struct {
	Phase Key
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }
