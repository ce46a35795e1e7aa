package markdown

import (
	"regexp"
	"strconv"
	"strings"
)

const maxNameLength = 100

var (
	unsafeChars = regexp.MustCompile(`[^a-z0-9\-_]`)
	dashRuns    = regexp.MustCompile(`-+`)
)

// SanitizeFilename turns a page title into a filesystem-safe name: lower
// case, anything outside [a-z0-9-_] replaced by a dash, runs of dashes
// collapsed, at most 100 characters. Empty results become "untitled".
func SanitizeFilename(title string) string {
	s := strings.ToLower(title)
	s = unsafeChars.ReplaceAllString(s, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxNameLength {
		s = strings.TrimRight(s[:maxNameLength], "-")
	}
	if s == "" {
		return "untitled"
	}
	return s
}

// uniqueName returns name, or name with a numeric suffix when name is
// already taken in used.
func uniqueName(used map[string]bool, name string) string {
	candidate := name
	for i := 2; used[candidate]; i++ {
		candidate = name + "-" + strconv.Itoa(i)
	}
	used[candidate] = true
	return candidate
}
