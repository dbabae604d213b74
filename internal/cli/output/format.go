// Package output renders command results as aligned tables, JSON, or
// YAML. Table is the human default; json and yaml exist so run
// summaries, session status, and changelogs can feed scripts.
package output

import (
	"fmt"
	"strings"
)

// Format selects how a command renders its results.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat maps a --output flag value to a Format. Empty means
// table; "yml" is accepted for yaml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q (expected table, json, or yaml)", s)
}

func (f Format) String() string { return string(f) }
