// SPDX-License-Identifier: MPL-2.0

package compat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// ruleNames maps checker problem kinds to the rule names ignoreRules uses.
var ruleNames = map[string]string{
	"NoResolution":            "no-resolution",
	"UntypedResolution":       "untyped-resolution",
	"FalseCJS":                "false-cjs",
	"FalseESM":                "false-esm",
	"CJSResolvesToESM":        "cjs-resolves-to-esm",
	"FallbackCondition":       "fallback-condition",
	"CJSOnlyExportsDefault":   "cjs-only-exports-default",
	"NamedExports":            "named-exports",
	"FalseExportDefault":      "false-export-default",
	"MissingExportEquals":     "missing-export-equals",
	"UnexpectedModuleSyntax":  "unexpected-module-syntax",
	"InternalResolutionError": "internal-resolution-error",
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	problemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	ignoredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

type (
	// Problem is one issue the checker found.
	Problem struct {
		Kind           string `json:"kind"`
		Entrypoint     string `json:"entrypoint,omitempty"`
		ResolutionKind string `json:"resolutionKind,omitempty"`
	}

	// Report is the structured checker output.
	Report struct {
		PackageName    string    `json:"packageName,omitempty"`
		PackageVersion string    `json:"packageVersion,omitempty"`
		Types          bool      `json:"types"`
		Problems       []Problem `json:"problems"`
	}

	// reportWire accepts both a bare report and one wrapped in "analysis",
	// with "types" given as a boolean or as a descriptor object.
	reportWire struct {
		Analysis       *reportWire     `json:"analysis"`
		PackageName    string          `json:"packageName"`
		PackageVersion string          `json:"packageVersion"`
		Types          json.RawMessage `json:"types"`
		Problems       []Problem       `json:"problems"`
	}
)

// Rule returns the rule name of the problem kind.
func (p Problem) Rule() string {
	if name, ok := ruleNames[p.Kind]; ok {
		return name
	}
	return p.Kind
}

// ParseReport decodes checker JSON output.
func ParseReport(data []byte) (*Report, error) {
	var w reportWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding checker report: %w", err)
	}
	if w.Analysis != nil {
		analysis := *w.Analysis
		if analysis.Problems == nil {
			analysis.Problems = w.Problems
		}
		w = analysis
	}
	types := len(w.Types) > 0 &&
		!bytes.Equal(w.Types, []byte("false")) &&
		!bytes.Equal(w.Types, []byte("null"))
	return &Report{
		PackageName:    w.PackageName,
		PackageVersion: w.PackageVersion,
		Types:          types,
		Problems:       w.Problems,
	}, nil
}

// ExitCode is 0 when every problem belongs to an ignored rule and 1
// otherwise.
func ExitCode(r *Report, ignoreRules []string) int {
	for _, p := range r.Problems {
		if !slices.Contains(ignoreRules, p.Rule()) {
			return 1
		}
	}
	return 0
}

// Render formats the report as a table of problems. Ignored problems are
// listed but marked.
func Render(r *Report, ignoreRules []string) string {
	var sb strings.Builder
	if r.PackageName != "" {
		sb.WriteString(headerStyle.Render(r.PackageName + "@" + r.PackageVersion))
		sb.WriteString("\n\n")
	}
	if len(r.Problems) == 0 {
		sb.WriteString("No problems found.")
		return sb.String()
	}

	rows := make([][]string, 0, len(r.Problems))
	for _, p := range r.Problems {
		rule := p.Rule()
		if slices.Contains(ignoreRules, rule) {
			rule += " (ignored)"
		}
		rows = append(rows, []string{orDash(p.Entrypoint), orDash(p.ResolutionKind), rule})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ENTRYPOINT", "RESOLUTION", "PROBLEM").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case col == 2 && row >= 0 && row < len(rows) && strings.HasSuffix(rows[row][2], "(ignored)"):
				return ignoredStyle.Padding(0, 1)
			case col == 2:
				return problemStyle.Padding(0, 1)
			default:
				return lipgloss.NewStyle().Padding(0, 1)
			}
		})
	sb.WriteString(t.String())
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
