// Package orchestrator runs the phases of a migration in order, resuming
// from checkpointed results and rolling back side effects when an export or
// import phase fails.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/checkpoint"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/config"
	migerrors "github.com/9liver/confluence-markdown-migrator-sub001/internal/errors"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/phase"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/progress"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/report"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/rollback"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/state"
)

// DefaultThreshold is the integrity score below which a verification halts
// the run when halting is enabled.
const DefaultThreshold = 0.5

// VerificationOptions controls the integrity pre-pass.
type VerificationOptions struct {
	Enabled       bool
	HaltOnFailure bool
	Threshold     float64
}

// Options shapes a run.
type Options struct {
	Workflow          config.Workflow
	Target            config.ExportTarget
	DryRun            bool
	RollbackOnFailure bool
	Verification      VerificationOptions
	SelectedPageIDs   []string
	MarkdownDir       string
}

// OptionsFromConfig derives run options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	iv := cfg.Advanced.IntegrityVerification
	return Options{
		Workflow:          cfg.Migration.Workflow,
		Target:            cfg.Migration.ExportTarget,
		DryRun:            cfg.Migration.DryRun,
		RollbackOnFailure: cfg.Migration.RollbackOnFailure,
		Verification: VerificationOptions{
			Enabled:       iv.Enabled,
			HaltOnFailure: iv.HaltOnFailure,
			Threshold:     iv.Threshold,
		},
		SelectedPageIDs: cfg.Migration.SelectedPageIDs,
		MarkdownDir:     cfg.MarkdownSourceDir(),
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithProgress sets the progress reporter.
func WithProgress(p progress.Reporter) Option {
	return func(o *Orchestrator) { o.progress = p }
}

// WithCheckpointStore sets the store used to persist results.
func WithCheckpointStore(s *checkpoint.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

// Orchestrator executes a phase plan against a documentation tree.
type Orchestrator struct {
	opts     Options
	collab   Collaborators
	logger   *slog.Logger
	progress progress.Reporter
	store    *checkpoint.Store
	now      func() time.Time
	runID    string
}

// New creates an orchestrator.
func New(opts Options, collab Collaborators, options ...Option) *Orchestrator {
	o := &Orchestrator{
		opts:     opts,
		collab:   collab,
		logger:   slog.Default(),
		progress: progress.Discard{},
		now:      time.Now,
	}
	for _, opt := range options {
		opt(o)
	}
	if o.store == nil {
		o.store = checkpoint.NewStore(checkpoint.WithLogger(o.logger))
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	if o.opts.Verification.Threshold <= 0 {
		o.opts.Verification.Threshold = DefaultThreshold
	}
	return o
}

// RunID returns the identifier stamped on reports.
func (o *Orchestrator) RunID() string { return o.runID }

// run carries the mutable state of one Orchestrate call.
type run struct {
	plan           Plan
	tree           *model.Tree
	results        *phase.Results
	st             *state.State
	checkpointPath string
	warnings       []string

	exporter  Exporter
	wikijs    WikiJSImporter
	bookstack BookStackImporter

	// failed holds the result of a side-effecting phase that raised. It is
	// reported but never checkpointed so a retry re-executes the phase.
	failed   phase.Result
	rollback *rollback.Summary
}

// Orchestrate runs the plan for the configured workflow and target. Phases
// whose key is present in existing are not executed again; their results
// are reused verbatim. It always returns a report: failures are folded into
// it rather than returned.
func (o *Orchestrator) Orchestrate(ctx context.Context, tree *model.Tree, existing *phase.Results, checkpointPath string) *report.Report {
	start := o.now()
	plan := SelectPlan(o.opts.Workflow, o.opts.Target, o.opts.Verification.Enabled)

	r := &run{
		plan:           plan,
		tree:           tree,
		results:        phase.NewResults(),
		st:             state.New(plan.Keys).WithClock(o.now),
		checkpointPath: checkpointPath,
	}
	if r.tree == nil {
		r.tree = model.NewTree()
	}
	existing.Each(func(res phase.Result) {
		_ = r.results.Set(res)
	})
	for _, w := range plan.Warnings {
		o.warn(r, w)
	}

	o.logger.Info("migration started",
		"run_id", o.runID,
		"workflow", o.opts.Workflow,
		"target", o.opts.Target,
		"phases", len(plan.Keys),
		"resumed_results", r.results.Len(),
		"dry_run", o.opts.DryRun)

	err := o.executeGuarded(ctx, r)
	if err != nil {
		o.logger.Error("migration failed", "run_id", o.runID, "error", err)
	}
	return o.buildReport(r, start, err)
}

// executeGuarded turns a panic escaping the phase loop into the run error so
// a report is still produced.
func (o *Orchestrator) executeGuarded(ctx context.Context, r *run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("orchestration panicked: %v", p)
		}
	}()
	return o.execute(ctx, r)
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	for _, k := range r.plan.Keys {
		if err := ctx.Err(); err != nil {
			return migerrors.ErrInterrupted().WithCause(err)
		}

		if res, ok := r.results.Get(k); ok {
			if err := o.resume(ctx, r, k, res); err != nil {
				return err
			}
			continue
		}

		o.track(k, r.st.StartPhase(k))
		o.progress.PhaseStart(string(k))
		o.logger.Info("phase started", "phase", k)

		res, err := o.runPhase(ctx, r, k)
		if err != nil {
			o.failSideEffecting(ctx, r, k, err)
			return err
		}

		if res.Failed() {
			cause := errors.New(firstError(res))
			o.track(k, r.st.FailPhase(k, cause))
			o.progress.PhaseFailed(string(k), cause)
			o.logger.Warn("phase failed; continuing", "phase", k, "error", cause)
		} else {
			o.track(k, r.st.CompletePhase(k))
			o.progress.PhaseComplete(string(k), phase.DescribeResult(res))
			o.logger.Info("phase completed", "phase", k, "errors", res.ErrorCount())
		}

		if err := r.results.Set(res); err != nil {
			return fmt.Errorf("record %s result: %w", k, err)
		}
		o.saveCheckpoint(r)

		if k == phase.KeyVerification {
			if err := o.integrityGate(res); err != nil {
				return err
			}
		}
	}
	return nil
}

// resume marks k as skipped and restores whatever in-memory state later
// phases expect the skipped phase to have produced.
func (o *Orchestrator) resume(ctx context.Context, r *run, k phase.Key, res phase.Result) error {
	o.track(k, r.st.SkipPhase(k))
	o.progress.PhaseSkipped(string(k))
	o.logger.Info("phase skipped; result restored from checkpoint", "phase", k)

	switch k {
	case phase.KeyVerification:
		if vr, ok := res.(*phase.VerificationResult); ok && vr.Report != nil && r.tree.Integrity == nil {
			r.tree.Integrity = vr.Report
		}
	case phase.KeyMarkdownImport:
		if r.tree.Statistics().Pages > 0 {
			return nil
		}
		// The checkpoint held no usable tree. Read the directory again
		// without replacing the recorded result.
		tree, err := o.readMarkdown(ctx)
		if err != nil {
			return &phase.PhaseError{Phase: k, Err: fmt.Errorf("rebuild tree from markdown: %w", err)}
		}
		r.tree = tree
	}
	return nil
}

// runPhase executes k. A panic in any executor or collaborator becomes a
// *phase.PhaseError so the rollback protocol still runs.
func (o *Orchestrator) runPhase(ctx context.Context, r *run, k phase.Key) (res phase.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, &phase.PhaseError{Phase: k, Err: fmt.Errorf("panicked: %v", p)}
		}
	}()

	switch k {
	case phase.KeyVerification:
		return o.runVerification(ctx, r), nil
	case phase.KeyConversion:
		return o.runConversion(ctx, r), nil
	case phase.KeyMarkdownExport:
		return o.runExport(ctx, r)
	case phase.KeyMarkdownImport:
		return o.runMarkdownImport(ctx, r)
	case phase.KeyWikiJSImport:
		return o.runWikiJSImport(ctx, r)
	case phase.KeyBookStackImport:
		return o.runBookStackImport(ctx, r)
	}
	return nil, &phase.PhaseError{Phase: k, Err: fmt.Errorf("no executor for phase %q", k)}
}

// integrityGate aborts the run when a freshly executed verification scored
// below the threshold and halting is enabled. A verification that could not
// run at all does not halt.
func (o *Orchestrator) integrityGate(res phase.Result) error {
	vr, ok := res.(*phase.VerificationResult)
	if !ok || vr.Failed() || !vr.BelowThreshold || !o.opts.Verification.HaltOnFailure {
		return nil
	}
	o.logger.Error("integrity below threshold; halting",
		"score", vr.Summary.Score,
		"threshold", vr.Threshold)
	return migerrors.ErrIntegrityBelowThreshold(vr.Summary.Score, vr.Threshold)
}

// failSideEffecting records a raised phase failure and runs the rollback
// protocol when enabled.
func (o *Orchestrator) failSideEffecting(ctx context.Context, r *run, k phase.Key, err error) {
	o.track(k, r.st.FailPhase(k, err))
	o.progress.PhaseFailed(string(k), err)
	o.logger.Error("phase failed", "phase", k, "error", err)

	if res, ferr := phase.NewFailed(k, err); ferr == nil {
		r.failed = res
	}

	if !o.opts.RollbackOnFailure {
		o.logger.Warn("rollback disabled; side effects left in place", "phase", k)
		return
	}

	var components []rollback.Rollbacker
	preserveExport := o.opts.Workflow == config.WorkflowExportThenImport &&
		k != phase.KeyMarkdownExport &&
		r.st.Status(phase.KeyMarkdownExport) == state.StatusCompleted
	if r.exporter != nil && !preserveExport {
		components = append(components, r.exporter)
	}
	if r.wikijs != nil {
		components = append(components, r.wikijs)
	}
	if r.bookstack != nil {
		components = append(components, r.bookstack)
	}

	if len(components) == 0 && !preserveExport {
		o.logger.Info("nothing to roll back", "phase", k)
		return
	}

	// Rollback must run even when the failure was a cancellation.
	rbCtx := context.WithoutCancel(ctx)
	summary := rollback.NewCoordinator(o.logger).Run(rbCtx, fmt.Sprintf("%s failed: %v", k, err), components...)
	if preserveExport && r.exporter != nil {
		summary.Preserve(r.exporter.Name())
	}
	r.rollback = summary
}

// track logs a rejected state transition. Each phase moves from pending to
// a terminal status exactly once; a rejection means the loop visited a
// phase twice.
func (o *Orchestrator) track(k phase.Key, err error) {
	if err != nil {
		o.logger.Warn("phase state transition rejected", "phase", k, "error", err)
	}
}

func (o *Orchestrator) saveCheckpoint(r *run) {
	if r.checkpointPath == "" {
		return
	}
	if err := o.store.Save(r.tree, r.results, r.checkpointPath); err != nil {
		o.logger.Warn("checkpoint save failed", "path", r.checkpointPath, "error", err)
		return
	}
	o.logger.Debug("checkpoint saved", "path", r.checkpointPath, "phases", r.results.Len())
}

func (o *Orchestrator) warn(r *run, msg string) {
	r.warnings = append(r.warnings, msg)
	o.progress.Warning(msg)
	o.logger.Warn(msg)
}

func (o *Orchestrator) buildReport(r *run, start time.Time, runErr error) *report.Report {
	results := r.results
	if r.failed != nil {
		results = r.results.Clone()
		_ = results.Set(r.failed)
	}

	in := report.Input{
		RunID:        o.runID,
		Workflow:     string(o.opts.Workflow),
		ExportTarget: string(o.opts.Target),
		DryRun:       o.opts.DryRun,
		Tree:         r.tree,
		Results:      results,
		Phases:       r.st.Phases(),
		Duration:     o.now().Sub(start),
		Err:          runErr,
		Rollback:     r.rollback,
		Warnings:     r.warnings,
	}

	rep, err := report.NewGenerator(o.logger).WithClock(o.now).Generate(in)
	if err != nil {
		o.logger.Error("report generation failed; using fallback report", "error", err)
		return report.Fallback(in, err)
	}
	return rep
}

func firstError(res phase.Result) string {
	if list := res.ErrorList(); len(list) > 0 {
		return list[0].Message
	}
	return "phase failed"
}
