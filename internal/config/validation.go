package config

import (
	"errors"
	"fmt"

	migerrors "github.com/9liver/confluence-markdown-migrator-sub001/internal/errors"
)

// Validate checks that the configuration is complete for its workflow and
// target. Every problem found is returned, joined.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(field, reason string) {
		errs = append(errs, migerrors.ErrConfigInvalid(field, reason))
	}
	missing := func(field string) {
		errs = append(errs, migerrors.ErrConfigMissing(field))
	}

	wf := c.Migration.Workflow
	target := c.Migration.ExportTarget
	if !wf.Valid() {
		invalid("migration.workflow", fmt.Sprintf("must be one of %v", AllWorkflows))
	}
	if !target.Valid() {
		invalid("migration.export_target", fmt.Sprintf("must be one of %v", AllTargets))
	}

	if wf.Valid() && wf != WorkflowExportOnly && target == TargetMarkdownFiles {
		invalid("migration.export_target", fmt.Sprintf("workflow %s requires a wiki target", wf))
	}

	if wf.Valid() && wf.NeedsSource() {
		if c.Confluence.BaseURL == "" {
			missing("confluence.base_url")
		}
		switch c.Confluence.AuthType {
		case "basic":
			if c.Confluence.Username == "" {
				missing("confluence.username")
			}
			if c.Confluence.APIToken == "" {
				missing("confluence.api_token")
			}
		case "bearer":
			if c.Confluence.APIToken == "" {
				missing("confluence.api_token")
			}
		default:
			invalid("confluence.auth_type", "must be basic or bearer")
		}
	}

	if wf == WorkflowImportFromMarkdown && c.MarkdownSourceDir() == "" {
		missing("migration.markdown_source")
	}
	if wf == WorkflowExportOnly || wf == WorkflowExportThenImport {
		if c.Export.OutputDirectory == "" {
			missing("export.output_directory")
		}
	}

	wikiPhases := wf != WorkflowExportOnly
	if wikiPhases && target.IncludesWikiJS() {
		if c.WikiJS.BaseURL == "" {
			missing("wikijs.base_url")
		}
		if c.WikiJS.APIKey == "" {
			missing("wikijs.api_key")
		}
	}
	if target.IncludesWikiJS() {
		switch c.WikiJS.ConflictResolution {
		case "skip", "overwrite", "version":
		default:
			invalid("wikijs.conflict_resolution", "must be skip, overwrite or version")
		}
	}
	if wikiPhases && target.IncludesBookStack() {
		if c.BookStack.BaseURL == "" {
			missing("bookstack.base_url")
		}
		if c.BookStack.TokenID == "" {
			missing("bookstack.token_id")
		}
		if c.BookStack.TokenSecret == "" {
			missing("bookstack.token_secret")
		}
	}
	if c.BookStack.UploadWorkers < 1 {
		invalid("bookstack.upload_workers", "must be at least 1")
	}

	iv := c.Advanced.IntegrityVerification
	if iv.Threshold < 0 || iv.Threshold > 1 {
		invalid("advanced.integrity_verification.threshold", "must be between 0 and 1")
	}
	switch iv.Depth {
	case "basic", "standard", "full":
	default:
		invalid("advanced.integrity_verification.verification_depth", "must be basic, standard or full")
	}
	if c.Advanced.RequestTimeout <= 0 {
		invalid("advanced.request_timeout", "must be positive")
	}
	if c.Advanced.MaxRetries < 0 {
		invalid("advanced.max_retries", "must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		invalid("logging.format", "must be text or json")
	}

	return errors.Join(errs...)
}
