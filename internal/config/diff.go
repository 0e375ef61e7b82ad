package config

import (
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Diff returns a structural diff between two decoded configurations, or
// "" when they are equivalent.
func Diff(previous, current *Config) string {
	return cmp.Diff(previous, current)
}

// DiffSerialized returns a line diff between two raw documents. It is
// used when the new document does not decode at all.
func DiffSerialized(previous, current []byte) string {
	return cmp.Diff(splitLines(previous), splitLines(current))
}

func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return []string{""}
	}
	return strings.Split(text, "\n")
}
