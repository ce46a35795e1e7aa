package phase

import "fmt"

// Describer is implemented by results that can summarize themselves in one
// line for console output.
type Describer interface {
	Describe() string
}

func (r *VerificationResult) Describe() string {
	if r.Failed() {
		return "verification could not run: " + r.Failure
	}
	s := fmt.Sprintf("score %.2f (threshold %.2f), %d issue(s), %d/%d checks passed",
		r.Summary.Score, r.Threshold, r.Summary.TotalIssues, r.Summary.ChecksPassed, r.Summary.ChecksPerformed)
	if r.BelowThreshold {
		s += ", below threshold"
	}
	return s
}

func (r *ConversionResult) Describe() string {
	return fmt.Sprintf("%d processed, %d succeeded, %d partial, %d failed",
		r.Processed, r.Succeeded, r.Partial, r.Failures)
}

func (r *ExportResult) Describe() string {
	return dry(r.DryRun) + fmt.Sprintf("%d exported, %d unchanged, %d attachment(s) to %s",
		r.PagesExported, r.PagesUnchanged, r.AttachmentsSaved, r.OutputDirectory)
}

func (r *MarkdownImportResult) Describe() string {
	return fmt.Sprintf("%d page(s) loaded from %d file(s) in %s, %d orphan(s), %d failed",
		r.PagesLoaded, r.FilesScanned, r.Directory, r.OrphanPages, r.FilesFailed)
}

func (r *WikiJSImportResult) Describe() string {
	return dry(r.DryRun) + fmt.Sprintf("%d created, %d updated, %d skipped, %d failed",
		r.Created, r.Updated, r.Skipped, r.Failures)
}

func (r *BookStackImportResult) Describe() string {
	return dry(r.DryRun) + fmt.Sprintf("%d book(s), %d chapter(s), %d page(s), %d skipped, %d failed",
		r.Books, r.Chapters, r.Pages, r.Skipped, r.Failures)
}

func dry(on bool) string {
	if on {
		return "[dry-run] "
	}
	return ""
}

// DescribeResult returns res.Describe() when implemented, or an empty string.
func DescribeResult(res Result) string {
	if d, ok := res.(Describer); ok {
		return d.Describe()
	}
	return ""
}
