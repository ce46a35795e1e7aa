// Package verify checks a fetched documentation tree for structural and
// referential problems before it is converted.
package verify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
)

// Verification depths.
const (
	DepthBasic    = "basic"
	DepthStandard = "standard"
	DepthFull     = "full"
)

// Check names.
const (
	CheckHierarchy   = "hierarchy"
	CheckAttachments = "attachments"
	CheckLinks       = "links"
	CheckChecksums   = "checksums"
)

// Severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Options configures a Verifier.
type Options struct {
	Depth            string
	ComputeChecksums bool
	// Workers bounds concurrent file checksum computation (default: 4)
	Workers int
}

// Verifier runs the integrity checks.
type Verifier struct {
	opts   Options
	logger *slog.Logger
}

// New creates a verifier. A nil logger uses slog.Default().
func New(opts Options, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Depth == "" {
		opts.Depth = DepthStandard
	}
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	return &Verifier{opts: opts, logger: logger}
}

// checkResult is the raw output of one check before it is folded into the
// report.
type checkResult struct {
	name    string
	checked int
	issues  []model.IntegrityIssue
}

func (c *checkResult) add(severity, pageID, format string, args ...any) {
	c.issues = append(c.issues, model.IntegrityIssue{
		Check:    c.name,
		Severity: severity,
		PageID:   pageID,
		Message:  fmt.Sprintf(format, args...),
	})
}

// score is the share of checked items without an error-level issue.
func (c *checkResult) score() float64 {
	if c.checked == 0 {
		return 1
	}
	bad := 0
	for _, is := range c.issues {
		if is.Severity == SeverityError {
			bad++
		}
	}
	s := float64(c.checked-bad) / float64(c.checked)
	if s < 0 {
		return 0
	}
	return s
}

// Verify runs every check enabled by the configured depth and returns the
// combined report. The integrity score is the mean of the check scores.
func (v *Verifier) Verify(ctx context.Context, tree *model.Tree) (*model.IntegrityReport, error) {
	if tree == nil {
		return nil, fmt.Errorf("verify: no tree")
	}

	checks := []func(context.Context, *model.Tree) (*checkResult, error){
		v.checkHierarchy,
		v.checkAttachments,
	}
	if v.opts.Depth == DepthStandard || v.opts.Depth == DepthFull {
		checks = append(checks, v.checkLinks)
	}
	if v.opts.Depth == DepthFull || v.opts.ComputeChecksums {
		checks = append(checks, v.checkChecksums)
	}

	report := &model.IntegrityReport{}
	total := 0.0
	for _, check := range checks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := check(ctx, tree)
		if err != nil {
			return nil, err
		}
		score := res.score()
		passed := len(res.issues) == 0
		report.Checks = append(report.Checks, model.IntegrityCheck{
			Name:   res.name,
			Passed: passed,
			Score:  score,
			Issues: len(res.issues),
		})
		report.Issues = append(report.Issues, res.issues...)
		report.Summary.ChecksPerformed++
		if passed {
			report.Summary.ChecksPassed++
		}
		total += score
	}
	report.Summary.TotalIssues = len(report.Issues)
	if report.Summary.ChecksPerformed > 0 {
		report.Summary.Score = total / float64(report.Summary.ChecksPerformed)
	}
	report.Recommendations = recommendations(report)

	v.logger.Info("integrity verification complete",
		"score", report.Summary.Score,
		"issues", report.Summary.TotalIssues,
		"checks", report.Summary.ChecksPerformed,
		"passed", report.Summary.ChecksPassed)
	return report, nil
}

func (v *Verifier) checkHierarchy(_ context.Context, tree *model.Tree) (*checkResult, error) {
	res := &checkResult{name: CheckHierarchy}
	for _, key := range tree.SpaceKeys() {
		space := tree.Spaces[key]
		if space == nil {
			continue
		}
		ids := make(map[string]bool)
		seen := make(map[*model.Page]bool)
		var visit func(pages []*model.Page, parentID string)
		visit = func(pages []*model.Page, parentID string) {
			for _, p := range pages {
				if p == nil {
					continue
				}
				res.checked++
				if seen[p] {
					res.add(SeverityError, p.ID, "page %q is reachable from more than one parent", p.Title)
					continue
				}
				seen[p] = true
				switch {
				case p.ID == "":
					res.add(SeverityError, "", "page %q in space %s has no id", p.Title, key)
				case ids[p.ID]:
					res.add(SeverityError, p.ID, "duplicate page id in space %s", key)
				}
				ids[p.ID] = true
				if p.ParentID != parentID {
					res.add(SeverityError, p.ID, "parent_id %q does not match owning page %q", p.ParentID, parentID)
				}
				if p.Title == "" {
					res.add(SeverityWarning, p.ID, "page has no title")
				}
				visit(p.Children, p.ID)
			}
		}
		visit(space.Pages, "")
	}
	return res, nil
}

func (v *Verifier) checkAttachments(ctx context.Context, tree *model.Tree) (*checkResult, error) {
	res := &checkResult{name: CheckAttachments}
	var files []*fileCheck

	for _, p := range tree.AllPages() {
		known := make(map[string]*model.Attachment, len(p.Attachments))
		for _, att := range p.Attachments {
			if att == nil {
				continue
			}
			known[att.Title] = att
			if att.LocalPath != "" && !att.Excluded {
				files = append(files, &fileCheck{page: p, att: att})
			}
		}
		for _, name := range scanRefs(p.Content).attachments {
			res.checked++
			att, ok := known[name]
			switch {
			case !ok:
				res.add(SeverityError, p.ID, "content references missing attachment %q", name)
			case att.Excluded:
				res.add(SeverityWarning, p.ID, "content references excluded attachment %q", name)
			}
		}
	}

	if err := v.checkFiles(ctx, files); err != nil {
		return nil, err
	}
	for _, f := range files {
		res.checked++
		switch {
		case f.err != nil:
			res.add(SeverityError, f.page.ID, "attachment %q not readable at %s: %v", f.att.Title, f.att.LocalPath, f.err)
		case f.sum == "":
		case f.att.Checksum != "" && f.att.Checksum != f.sum:
			res.add(SeverityError, f.page.ID, "attachment %q checksum mismatch", f.att.Title)
		default:
			f.att.Checksum = f.sum
		}
	}
	return res, nil
}

type fileCheck struct {
	page *model.Page
	att  *model.Attachment
	sum  string
	err  error
}

// checkFiles stats every local attachment and, when checksums are enabled,
// hashes it. Per-file problems are stored on the fileCheck.
func (v *Verifier) checkFiles(ctx context.Context, files []*fileCheck) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.Workers)
	for _, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f.sum, f.err = v.hashFile(f.att.LocalPath)
			return nil
		})
	}
	return g.Wait()
}

func (v *Verifier) hashFile(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()
	if !v.opts.ComputeChecksums {
		return "", nil
	}
	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (v *Verifier) checkLinks(_ context.Context, tree *model.Tree) (*checkResult, error) {
	res := &checkResult{name: CheckLinks}
	byID := make(map[string]bool)
	byTitle := make(map[string]bool)
	tree.Walk(func(s *model.Space, p *model.Page, _ int) bool {
		byID[p.ID] = true
		byTitle[s.Key+"/"+p.Title] = true
		return true
	})

	tree.Walk(func(s *model.Space, p *model.Page, _ int) bool {
		refs := scanRefs(p.Content)
		for _, ref := range refs.pages {
			res.checked++
			space := ref.space
			if space == "" {
				space = s.Key
			}
			if !byTitle[space+"/"+ref.title] {
				if _, fetched := tree.Spaces[space]; !fetched {
					res.add(SeverityWarning, p.ID, "link to %q in space %s which was not fetched", ref.title, space)
					continue
				}
				res.add(SeverityError, p.ID, "broken link to page %q in space %s", ref.title, space)
			}
		}
		for _, id := range refs.pageIDs {
			res.checked++
			if !byID[id] {
				res.add(SeverityWarning, p.ID, "link to page id %s outside the fetched tree", id)
			}
		}
		return true
	})
	return res, nil
}

func (v *Verifier) checkChecksums(_ context.Context, tree *model.Tree) (*checkResult, error) {
	res := &checkResult{name: CheckChecksums}
	for _, p := range tree.AllPages() {
		if p.Content == "" {
			continue
		}
		res.checked++
		sum := sha256.Sum256([]byte(p.Content))
		current := hex.EncodeToString(sum[:])
		if p.Metadata == nil {
			p.Metadata = make(map[string]any)
		}
		if prev, ok := p.Metadata["content_checksum"].(string); ok && prev != "" && prev != current {
			res.add(SeverityError, p.ID, "content changed since checksum %s", prev[:min(12, len(prev))])
			continue
		}
		p.Metadata["content_checksum"] = current
	}
	return res, nil
}

func recommendations(r *model.IntegrityReport) []string {
	var recs []string
	for _, c := range r.Checks {
		if c.Passed {
			continue
		}
		switch c.Name {
		case CheckHierarchy:
			recs = append(recs, "Re-fetch the affected spaces; parent references do not match the page hierarchy.")
		case CheckAttachments:
			recs = append(recs, "Re-run the fetch with attachment download enabled or check Confluence permissions for missing attachments.")
		case CheckLinks:
			recs = append(recs, "Fetch the linked spaces too, or fix links to pages that no longer exist.")
		case CheckChecksums:
			recs = append(recs, "Content changed since the last run; re-fetch the affected pages before exporting.")
		}
	}
	if r.Summary.ChecksPerformed > 0 && r.Summary.Score < 0.5 {
		recs = append(recs, "Integrity is low; review the issues before importing into a wiki.")
	}
	return recs
}
