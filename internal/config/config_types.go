package config

import "time"

// Config is the complete migrator configuration.
type Config struct {
	Confluence ConfluenceConfig `yaml:"confluence"`
	Migration  MigrationConfig  `yaml:"migration"`
	Export     ExportConfig     `yaml:"export"`
	WikiJS     WikiJSConfig     `yaml:"wikijs"`
	BookStack  BookStackConfig  `yaml:"bookstack"`
	Advanced   AdvancedConfig   `yaml:"advanced"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ConfluenceConfig defines how content is fetched from Confluence.
type ConfluenceConfig struct {
	// BaseURL is the site root, e.g. https://example.atlassian.net/wiki
	BaseURL string `yaml:"base_url"`

	// AuthType is "basic" (username + API token) or "bearer" (personal access token)
	AuthType string `yaml:"auth_type"`

	Username string `yaml:"username"`
	APIToken string `yaml:"api_token"`

	// SpaceKeys limits the fetch to these spaces. Empty fetches every space.
	SpaceKeys []string `yaml:"space_keys,omitempty"`

	// Labels keeps only pages carrying at least one of these labels.
	Labels []string `yaml:"labels,omitempty"`

	// ExcludeTitles drops pages (and their subtrees) whose title matches one
	// of these glob patterns, e.g. "Archive*".
	ExcludeTitles []string `yaml:"exclude_titles,omitempty"`

	// PageSize is the number of items requested per API call (default: 50)
	PageSize int `yaml:"page_size"`
}

// MigrationConfig defines the run shape.
type MigrationConfig struct {
	Workflow     Workflow     `yaml:"workflow"`
	ExportTarget ExportTarget `yaml:"export_target"`

	// DryRun makes import phases report what they would do without writing
	DryRun bool `yaml:"dry_run"`

	// RollbackOnFailure undoes side effects when an export or import phase
	// fails (default: true)
	RollbackOnFailure bool `yaml:"rollback_on_failure"`

	// CheckpointPath enables checkpointing after every phase when set
	CheckpointPath string `yaml:"checkpoint_path"`

	// ReportPath is where the JSON report is written
	ReportPath string `yaml:"report_path"`

	// PreservePageIDs tags imported pages with their Confluence id
	PreservePageIDs bool `yaml:"preserve_page_ids"`

	// SelectedPageIDs limits import phases to these page ids
	SelectedPageIDs []string `yaml:"selected_page_ids,omitempty"`

	// MarkdownSource is the directory read by import_from_markdown
	// (default: export.output_directory)
	MarkdownSource string `yaml:"markdown_source"`

	// HistoryDB is the sqlite file recording past runs. Empty disables it.
	HistoryDB string `yaml:"history_db"`
}

// ExportConfig defines markdown export behavior.
type ExportConfig struct {
	OutputDirectory  string `yaml:"output_directory"`
	CreateIndexFiles bool   `yaml:"create_index_files"`

	// SkipUnchanged leaves files alone when their content is identical
	SkipUnchanged bool `yaml:"skip_unchanged"`

	// ExcludePatterns are glob patterns of files ignored when reading an
	// export back, e.g. "**/drafts/**"
	ExcludePatterns []string `yaml:"exclude_patterns,omitempty"`
}

// WikiJSConfig defines the Wiki.js target.
type WikiJSConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	// ConflictResolution is skip, overwrite or version (default: skip)
	ConflictResolution string `yaml:"conflict_resolution"`

	// IncludeSpaceInPath prefixes page paths with the space key
	IncludeSpaceInPath bool `yaml:"include_space_in_path"`

	PathPrefix string `yaml:"path_prefix"`
	Locale     string `yaml:"locale"`
	Editor     string `yaml:"editor"`
}

// BookStackConfig defines the BookStack target.
type BookStackConfig struct {
	BaseURL     string `yaml:"base_url"`
	TokenID     string `yaml:"token_id"`
	TokenSecret string `yaml:"token_secret"`

	// ShelfName groups created books on a shelf. Empty creates no shelf.
	ShelfName string `yaml:"shelf_name"`

	// UploadWorkers bounds concurrent attachment uploads (default: 3)
	UploadWorkers int `yaml:"upload_workers"`
}

// IntegrityConfig controls the verification pre-pass.
type IntegrityConfig struct {
	Enabled       bool    `yaml:"enabled"`
	HaltOnFailure bool    `yaml:"halt_on_failure"`
	Threshold     float64 `yaml:"threshold"`

	// Depth is basic, standard or full. Link checks run from standard up.
	Depth string `yaml:"verification_depth"`

	ComputeChecksums bool `yaml:"compute_checksums"`
}

// AdvancedConfig holds tuning knobs shared by the HTTP clients.
type AdvancedConfig struct {
	RequestTimeout        time.Duration   `yaml:"request_timeout"`
	MaxRetries            int             `yaml:"max_retries"`
	IntegrityVerification IntegrityConfig `yaml:"integrity_verification"`
}

// LoggingConfig defines log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
	// File additionally writes logs to this path when set
	File string `yaml:"file"`
}
