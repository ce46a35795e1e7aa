package config

import "time"

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Confluence: ConfluenceConfig{
			AuthType: "basic",
			PageSize: 50,
		},
		Migration: MigrationConfig{
			Workflow:          WorkflowExportOnly,
			ExportTarget:      TargetMarkdownFiles,
			RollbackOnFailure: true,
			ReportPath:        "migration-report.json",
		},
		Export: ExportConfig{
			OutputDirectory:  "./confluence-export",
			CreateIndexFiles: true,
			SkipUnchanged:    true,
		},
		WikiJS: WikiJSConfig{
			ConflictResolution: "skip",
			IncludeSpaceInPath: true,
			Locale:             "en",
			Editor:             "markdown",
		},
		BookStack: BookStackConfig{
			UploadWorkers: 3,
		},
		Advanced: AdvancedConfig{
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
			IntegrityVerification: IntegrityConfig{
				Enabled:       true,
				HaltOnFailure: false,
				Threshold:     0.5,
				Depth:         "standard",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
