package results

import (
	"path/filepath"
	"strings"
	"time"
)

// NewAnalysisID builds the per-run namespace: the UTC timestamp with ':' and
// '.' replaced by '-', an underscore, then the sanitized base file name.
func NewAnalysisID(fileName string, now time.Time) string {
	stamp := now.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return stamp + "_" + SanitizeFileName(fileName)
}

// SanitizeFileName keeps letters, digits, '.', '-' and '_' from the base
// name and replaces everything else with '_'.
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "untitled"
	}
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	clean = strings.Trim(clean, ".")
	if clean == "" {
		return "untitled"
	}
	return clean
}
