package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the file name searched for when no path is given.
const DefaultConfigFile = "migrator.yaml"

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references with values from
// the environment. Unset variables without a default are left untouched and
// returned in missing.
func ExpandEnv(data []byte) (expanded []byte, missing []string) {
	expanded = envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := envRef.FindSubmatch(m)
		name := string(sub[1])
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return []byte(v)
		}
		if len(sub[2]) > 0 {
			return sub[3]
		}
		missing = append(missing, name)
		return m
	})
	return expanded, missing
}

// Load returns defaults overlaid with the file at path (when non-empty) and
// then with MIGRATOR_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := mergeFromFile(cfg, path); err != nil {
			return nil, err
		}
	}
	ApplyEnvVars(cfg)
	return cfg, nil
}

// mergeFromFile decodes the file at path onto cfg. Keys absent from the
// file keep their current values.
func mergeFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return mergeYAML(cfg, data, path)
}

func mergeYAML(cfg *Config, data []byte, source string) error {
	expanded, missing := ExpandEnv(data)
	for _, name := range missing {
		slog.Warn("config references unset environment variable", "path", source, "variable", name)
	}
	if len(bytes.TrimSpace(expanded)) == 0 {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", source, err)
	}
	normalize(cfg)
	return nil
}

// normalize trims list entries and drops empty ones.
func normalize(cfg *Config) {
	cfg.Confluence.SpaceKeys = cleanList(cfg.Confluence.SpaceKeys)
	cfg.Confluence.Labels = cleanList(cfg.Confluence.Labels)
	cfg.Migration.SelectedPageIDs = cleanList(cfg.Migration.SelectedPageIDs)
	cfg.Confluence.BaseURL = strings.TrimRight(cfg.Confluence.BaseURL, "/")
	cfg.WikiJS.BaseURL = strings.TrimRight(cfg.WikiJS.BaseURL, "/")
	cfg.BookStack.BaseURL = strings.TrimRight(cfg.BookStack.BaseURL, "/")
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MarkdownSourceDir returns the directory import_from_markdown reads.
func (c *Config) MarkdownSourceDir() string {
	if c.Migration.MarkdownSource != "" {
		return c.Migration.MarkdownSource
	}
	return c.Export.OutputDirectory
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	cp := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	cp.Confluence.APIToken = mask(cp.Confluence.APIToken)
	cp.WikiJS.APIKey = mask(cp.WikiJS.APIKey)
	cp.BookStack.TokenSecret = mask(cp.BookStack.TokenSecret)
	return &cp
}

// YAML renders the config as YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
