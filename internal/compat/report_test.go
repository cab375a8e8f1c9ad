// SPDX-License-Identifier: MPL-2.0

package compat

import (
	"strings"
	"testing"
)

func TestParseReport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		in           string
		wantTypes    bool
		wantProblems int
		wantName     string
	}{
		{"bare", `{"types": true, "problems": [{"kind": "FalseESM"}]}`, true, 1, ""},
		{"descriptor types", `{"packageName": "x", "types": {"kind": "@types"}, "problems": []}`, true, 0, "x"},
		{"no types", `{"types": false, "problems": []}`, false, 0, ""},
		{"wrapped", `{"analysis": {"packageName": "y", "types": {"kind": "included"}, "problems": [{"kind": "NoResolution"}, {"kind": "FalseCJS"}]}}`, true, 2, "y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := ParseReport([]byte(tt.in))
			if err != nil {
				t.Fatalf("ParseReport() unexpected error: %v", err)
			}
			if r.Types != tt.wantTypes || len(r.Problems) != tt.wantProblems || r.PackageName != tt.wantName {
				t.Errorf("ParseReport() = %+v", r)
			}
		})
	}

	if _, err := ParseReport([]byte("not json")); err == nil {
		t.Error("ParseReport() accepted invalid JSON")
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	r := &Report{Types: true, Problems: []Problem{{Kind: "FalseCJS"}, {Kind: "CJSResolvesToESM"}}}
	if ExitCode(r, nil) == 0 {
		t.Error("ExitCode() = 0 with unignored problems")
	}
	if ExitCode(r, []string{"false-cjs"}) == 0 {
		t.Error("ExitCode() = 0 with one unignored problem")
	}
	if got := ExitCode(r, []string{"false-cjs", "cjs-resolves-to-esm"}); got != 0 {
		t.Errorf("ExitCode() = %d with every problem ignored", got)
	}
	if got := ExitCode(&Report{Types: true}, nil); got != 0 {
		t.Errorf("ExitCode() = %d without problems", got)
	}
}

func TestProblemRule(t *testing.T) {
	t.Parallel()

	if got := (Problem{Kind: "InternalResolutionError"}).Rule(); got != "internal-resolution-error" {
		t.Errorf("Rule() = %q", got)
	}
	if got := (Problem{Kind: "SomethingNew"}).Rule(); got != "SomethingNew" {
		t.Errorf("Rule() for unknown kind = %q", got)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	r := &Report{
		PackageName:    "left-pad",
		PackageVersion: "1.3.0",
		Types:          true,
		Problems: []Problem{
			{Kind: "FalseCJS", Entrypoint: ".", ResolutionKind: "node16-esm"},
			{Kind: "NamedExports", Entrypoint: "./sub"},
		},
	}
	out := Render(r, []string{"named-exports"})
	for _, want := range []string{"left-pad@1.3.0", "ENTRYPOINT", "node16-esm", "false-cjs", "named-exports (ignored)", "./sub"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q:\n%s", want, out)
		}
	}
}
