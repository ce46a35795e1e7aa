package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvVarMapping defines the mapping between environment variables and config paths.
var EnvVarMapping = map[string]string{
	"MIGRATOR_CONFLUENCE_URL":         "confluence.base_url",
	"MIGRATOR_CONFLUENCE_USERNAME":    "confluence.username",
	"MIGRATOR_CONFLUENCE_API_TOKEN":   "confluence.api_token",
	"MIGRATOR_CONFLUENCE_SPACES":      "confluence.space_keys",
	"MIGRATOR_WORKFLOW":               "migration.workflow",
	"MIGRATOR_EXPORT_TARGET":          "migration.export_target",
	"MIGRATOR_DRY_RUN":                "migration.dry_run",
	"MIGRATOR_ROLLBACK_ON_FAILURE":    "migration.rollback_on_failure",
	"MIGRATOR_CHECKPOINT_PATH":        "migration.checkpoint_path",
	"MIGRATOR_REPORT_PATH":            "migration.report_path",
	"MIGRATOR_OUTPUT_DIR":             "export.output_directory",
	"MIGRATOR_WIKIJS_URL":             "wikijs.base_url",
	"MIGRATOR_WIKIJS_API_KEY":         "wikijs.api_key",
	"MIGRATOR_BOOKSTACK_URL":          "bookstack.base_url",
	"MIGRATOR_BOOKSTACK_TOKEN_ID":     "bookstack.token_id",
	"MIGRATOR_BOOKSTACK_TOKEN_SECRET": "bookstack.token_secret",
	"MIGRATOR_REQUEST_TIMEOUT":        "advanced.request_timeout",
	"MIGRATOR_VERIFY_ENABLED":         "advanced.integrity_verification.enabled",
	"MIGRATOR_VERIFY_THRESHOLD":       "advanced.integrity_verification.threshold",
	"MIGRATOR_LOG_LEVEL":              "logging.level",
}

// ApplyEnvVars applies environment variable overrides to cfg.
// Returns a list of paths that were overridden.
func ApplyEnvVars(cfg *Config) []string {
	var overridden []string

	for envVar, configPath := range EnvVarMapping {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}

		if applyEnvVar(cfg, configPath, value) {
			overridden = append(overridden, configPath)
		}
	}

	return overridden
}

// applyEnvVar applies a single environment variable to the config.
// Returns true if the value was applied.
func applyEnvVar(cfg *Config, path string, value string) bool {
	switch path {
	case "confluence.base_url":
		cfg.Confluence.BaseURL = strings.TrimRight(value, "/")
	case "confluence.username":
		cfg.Confluence.Username = value
	case "confluence.api_token":
		cfg.Confluence.APIToken = value
	case "confluence.space_keys":
		cfg.Confluence.SpaceKeys = cleanList(strings.Split(value, ","))
	case "migration.workflow":
		cfg.Migration.Workflow = Workflow(value)
	case "migration.export_target":
		cfg.Migration.ExportTarget = ExportTarget(value)
	case "migration.dry_run":
		cfg.Migration.DryRun = parseBool(value)
	case "migration.rollback_on_failure":
		cfg.Migration.RollbackOnFailure = parseBool(value)
	case "migration.checkpoint_path":
		cfg.Migration.CheckpointPath = value
	case "migration.report_path":
		cfg.Migration.ReportPath = value
	case "export.output_directory":
		cfg.Export.OutputDirectory = value
	case "wikijs.base_url":
		cfg.WikiJS.BaseURL = strings.TrimRight(value, "/")
	case "wikijs.api_key":
		cfg.WikiJS.APIKey = value
	case "bookstack.base_url":
		cfg.BookStack.BaseURL = strings.TrimRight(value, "/")
	case "bookstack.token_id":
		cfg.BookStack.TokenID = value
	case "bookstack.token_secret":
		cfg.BookStack.TokenSecret = value
	case "advanced.request_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return false
		}
		cfg.Advanced.RequestTimeout = d
	case "advanced.integrity_verification.enabled":
		cfg.Advanced.IntegrityVerification.Enabled = parseBool(value)
	case "advanced.integrity_verification.threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return false
		}
		cfg.Advanced.IntegrityVerification.Threshold = f
	case "logging.level":
		cfg.Logging.Level = value
	default:
		return false
	}
	return true
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
