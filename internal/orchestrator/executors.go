package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/phase"
)

// progressEvery is how often, in pages, conversion progress is reported.
const progressEvery = 10

var errNoCollaborator = errors.New("collaborator not configured")

func (o *Orchestrator) runVerification(ctx context.Context, r *run) phase.Result {
	threshold := o.opts.Verification.Threshold

	rep, err := o.verify(ctx, r.tree)
	if err != nil {
		o.logger.Warn("integrity verification could not run", "error", err)
		res := phase.NewVerificationResult(nil, threshold)
		res.Summary.TotalIssues = -1
		res.Fail(phase.KeyVerification, err)
		return res
	}

	r.tree.Integrity = rep
	res := phase.NewVerificationResult(rep, threshold)
	o.logger.Info("integrity verification finished",
		"score", res.Summary.Score,
		"issues", res.Summary.TotalIssues,
		"below_threshold", res.BelowThreshold)
	return res
}

func (o *Orchestrator) verify(ctx context.Context, tree *model.Tree) (rep *model.IntegrityReport, err error) {
	if o.collab.Verifier == nil {
		return nil, fmt.Errorf("verifier: %w", errNoCollaborator)
	}
	defer func() {
		if p := recover(); p != nil {
			rep, err = nil, fmt.Errorf("verifier panicked: %v", p)
		}
	}()
	rep, err = o.collab.Verifier.Verify(ctx, tree)
	if err == nil && rep == nil {
		err = errors.New("verifier returned no report")
	}
	return rep, err
}

// runConversion converts every page in depth-first order. A page that fails
// is marked failed and the walk continues.
func (o *Orchestrator) runConversion(ctx context.Context, r *run) phase.Result {
	res := phase.NewConversionResult()
	pages := r.tree.AllPages()
	total := len(pages)

	for i, p := range pages {
		o.convertPage(ctx, p)
		res.RecordPage(p)

		failed := p.Conversion.Status == model.ConversionFailed
		done := i + 1
		if failed || done%progressEvery == 0 || done == total {
			o.progress.Item(done, total, p.Title, failed)
		}
		if failed {
			o.logger.Warn("page conversion failed", "page_id", p.ID, "title", p.Title, "errors", p.Conversion.Errors)
		}
	}
	return res
}

func (o *Orchestrator) convertPage(ctx context.Context, p *model.Page) {
	defer func() {
		if rec := recover(); rec != nil {
			markConversionFailed(p, fmt.Errorf("converter panicked: %v", rec))
		}
	}()
	if o.collab.Converter == nil {
		markConversionFailed(p, fmt.Errorf("converter: %w", errNoCollaborator))
		return
	}
	if err := o.collab.Converter.ConvertPage(ctx, p); err != nil {
		markConversionFailed(p, err)
		return
	}
	if p.Conversion.Status == "" || p.Conversion.Status == model.ConversionPending {
		p.Conversion.Status = model.ConversionSuccess
	}
}

func markConversionFailed(p *model.Page, err error) {
	p.Conversion.Status = model.ConversionFailed
	p.Conversion.Errors = append(p.Conversion.Errors, err.Error())
}

func (o *Orchestrator) runExport(ctx context.Context, r *run) (phase.Result, error) {
	k := phase.KeyMarkdownExport
	if o.collab.NewExporter == nil {
		return nil, &phase.PhaseError{Phase: k, Err: fmt.Errorf("exporter: %w", errNoCollaborator)}
	}
	exp, err := o.collab.NewExporter()
	if err != nil {
		return nil, &phase.PhaseError{Phase: k, Err: fmt.Errorf("create exporter: %w", err)}
	}
	r.exporter = exp

	stats, err := exp.ExportTree(ctx, r.tree)
	if err != nil {
		return nil, &phase.PhaseError{Phase: k, Err: err}
	}
	if stats == nil {
		return nil, &phase.PhaseError{Phase: k, Err: errors.New("exporter returned no stats")}
	}

	res := phase.NewExportResult(stats.OutputDirectory)
	res.PagesExported = stats.PagesExported
	res.PagesUnchanged = stats.PagesUnchanged
	res.AttachmentsSaved = stats.AttachmentsSaved
	res.FilesWritten = stats.FilesWritten
	res.IndexFiles = stats.IndexFiles
	res.DryRun = stats.DryRun
	for _, e := range stats.Errors {
		res.AddPageError(e.PageID, e.Title, e.Message)
	}
	return res, nil
}

func (o *Orchestrator) runMarkdownImport(ctx context.Context, r *run) (phase.Result, error) {
	k := phase.KeyMarkdownImport
	tree, err := o.readMarkdown(ctx)
	if err != nil {
		return nil, &phase.PhaseError{Phase: k, Err: err}
	}

	stats := o.collab.Reader.Stats()
	res := phase.NewMarkdownImportResult(o.opts.MarkdownDir)
	res.FilesScanned = stats.FilesScanned
	res.FilesParsed = stats.FilesParsed
	res.FilesSkipped = stats.FilesSkipped
	res.FilesFailed = stats.FilesFailed
	res.PagesLoaded = stats.PagesLoaded
	res.AttachmentsLoaded = stats.AttachmentsLoaded
	res.SpacesCreated = stats.SpacesCreated
	res.OrphanPages = stats.OrphanPages
	for _, e := range stats.Errors {
		res.AddFileError(e.Path, e.Message)
	}

	if tree.Statistics().Pages == 0 {
		return nil, &phase.PhaseError{Phase: k, Err: fmt.Errorf("no pages loaded from %s", o.opts.MarkdownDir)}
	}
	r.tree = tree
	return res, nil
}

func (o *Orchestrator) readMarkdown(ctx context.Context) (*model.Tree, error) {
	if o.collab.Reader == nil {
		return nil, fmt.Errorf("markdown reader: %w", errNoCollaborator)
	}
	if o.opts.MarkdownDir == "" {
		return nil, errors.New("no markdown directory configured")
	}
	tree, err := o.collab.Reader.ReadDirectory(ctx, o.opts.MarkdownDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", o.opts.MarkdownDir, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("read %s: reader returned no tree", o.opts.MarkdownDir)
	}
	return tree, nil
}

func (o *Orchestrator) runWikiJSImport(ctx context.Context, r *run) (phase.Result, error) {
	k := phase.KeyWikiJSImport
	if o.collab.NewWikiJS == nil {
		return nil, &phase.PhaseError{Phase: k, Err: fmt.Errorf("wikijs importer: %w", errNoCollaborator)}
	}
	imp, err := o.collab.NewWikiJS(r.tree)
	if err != nil {
		return nil, &phase.PhaseError{Phase: k, Err: fmt.Errorf("create wikijs importer: %w", err)}
	}
	r.wikijs = imp

	stats, err := imp.ImportPages(ctx, o.opts.SelectedPageIDs, o.opts.DryRun)
	if err != nil {
		return nil, &phase.PhaseError{Phase: k, Err: err}
	}
	if stats == nil {
		return nil, &phase.PhaseError{Phase: k, Err: errors.New("importer returned no stats")}
	}

	res := phase.NewWikiJSImportResult()
	for _, e := range stats.Errors {
		res.AddPageError(e.PageID, e.Title, e.Message)
	}
	res.Created = stats.Created
	res.Updated = stats.Updated
	res.Skipped = stats.Skipped
	res.Failures = max(stats.Failed, res.Failures)
	res.AttachmentsUploaded = stats.AttachmentsUploaded
	res.DryRun = stats.DryRun
	return res, nil
}

func (o *Orchestrator) runBookStackImport(ctx context.Context, r *run) (phase.Result, error) {
	k := phase.KeyBookStackImport
	if o.collab.NewBookStack == nil {
		return nil, &phase.PhaseError{Phase: k, Err: fmt.Errorf("bookstack importer: %w", errNoCollaborator)}
	}
	imp, err := o.collab.NewBookStack(r.tree)
	if err != nil {
		return nil, &phase.PhaseError{Phase: k, Err: fmt.Errorf("create bookstack importer: %w", err)}
	}
	r.bookstack = imp

	stats, err := imp.ImportPages(ctx, o.opts.SelectedPageIDs, o.opts.DryRun)
	if err != nil {
		return nil, &phase.PhaseError{Phase: k, Err: err}
	}
	if stats == nil {
		return nil, &phase.PhaseError{Phase: k, Err: errors.New("importer returned no stats")}
	}

	res := phase.NewBookStackImportResult()
	for _, e := range stats.Errors {
		res.AddPageError(e.PageID, e.Title, e.Message)
	}
	res.Shelves = stats.Shelves
	res.Books = stats.Books
	res.Chapters = stats.Chapters
	res.Pages = stats.Pages
	res.Images = stats.Images
	res.Skipped = stats.Skipped
	res.Failures = max(stats.Failed, res.Failures)
	res.DryRun = stats.DryRun
	return res, nil
}
