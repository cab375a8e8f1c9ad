// SPDX-License-Identifier: MPL-2.0

package tsconfig

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const testDir = "types/foo"

// buildConfig starts from a compliant tsconfig and lets mutate adjust the
// compiler options and top-level fields before parsing.
func buildConfig(t *testing.T, mutate func(options, top map[string]any)) *Config {
	t.Helper()
	options := map[string]any{
		"module":                           "commonjs",
		"lib":                              []string{"es6"},
		"noImplicitAny":                    true,
		"noImplicitThis":                   true,
		"strictNullChecks":                 true,
		"strictFunctionTypes":              true,
		"types":                            []string{},
		"noEmit":                           true,
		"forceConsistentCasingInFileNames": true,
	}
	top := map[string]any{
		"files": []string{"index.d.ts", "foo-tests.ts"},
	}
	if mutate != nil {
		mutate(options, top)
	}
	top["compilerOptions"] = options
	data, err := json.Marshal(top)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cfg
}

func mustCheck(t *testing.T, cfg *Config) []string {
	t.Helper()
	got, err := Check(testDir, cfg)
	if err != nil {
		t.Fatalf("Check() unexpected error: %v", err)
	}
	return got
}

func TestCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(options, top map[string]any)
		want   []string
	}{
		{
			name: "compliant",
			want: nil,
		},
		{
			name:   "dot slash index",
			mutate: func(_, top map[string]any) { top["files"] = []string{"./index.d.ts"} },
			want:   nil,
		},
		{
			name: "include wins the listing chain",
			mutate: func(_, top map[string]any) {
				top["include"] = []string{"**/*.ts"}
				top["exclude"] = []string{"node_modules"}
				delete(top, "files")
			},
			want: []string{`Use "files" instead of "include".`},
		},
		{
			name:   "empty include still counts",
			mutate: func(_, top map[string]any) { top["include"] = []string{} },
			want:   []string{`Use "files" instead of "include".`},
		},
		{
			name:   "exclude",
			mutate: func(_, top map[string]any) { top["exclude"] = []string{"x"} },
			want:   []string{`Use "files" instead of "exclude".`},
		},
		{
			name:   "missing files",
			mutate: func(_, top map[string]any) { delete(top, "files") },
			want:   []string{`Must specify "files".`},
		},
		{
			name:   "files without index",
			mutate: func(_, top map[string]any) { top["files"] = []string{"foo-tests.ts"} },
			want:   []string{`"files" list must include "index.d.ts".`},
		},
		{
			name:   "missing noEmit",
			mutate: func(options, _ map[string]any) { delete(options, "noEmit") },
			want:   []string{`Expected compilerOptions["noEmit"] === true, but got undefined`},
		},
		{
			name:   "truthy is not true",
			mutate: func(options, _ map[string]any) { options["forceConsistentCasingInFileNames"] = 1 },
			want:   []string{`Expected compilerOptions["forceConsistentCasingInFileNames"] === true, but got 1`},
		},
		{
			name:   "ambient types",
			mutate: func(options, _ map[string]any) { options["types"] = []string{"node"} },
			want: []string{
				`Expected compilerOptions["types"] === [], but got ["node"]`,
				"Use `/// <reference types=\"...\" />` directives in source files and ensure that the \"types\" field in your tsconfig is an empty array.",
			},
		},
		{
			name:   "unexpected option",
			mutate: func(options, _ map[string]any) { options["outDir"] = "dist" },
			want:   []string{"Unexpected compiler option outDir"},
		},
		{
			name:   "missing lib",
			mutate: func(options, _ map[string]any) { delete(options, "lib") },
			want:   []string{"Must specify \"lib\", usually to `\"lib\": [\"es6\"]` or `\"lib\": [\"es6\", \"dom\"]`."},
		},
		{
			name:   "missing module",
			mutate: func(options, _ map[string]any) { delete(options, "module") },
			want:   []string{"Must specify \"module\" to `\"module\": \"commonjs\"` or `\"module\": \"node16\"`."},
		},
		{
			name:   "module is case-insensitive",
			mutate: func(options, _ map[string]any) { options["module"] = "Node16" },
			want:   nil,
		},
		{
			name:   "wrong module",
			mutate: func(options, _ map[string]any) { options["module"] = "esnext" },
			want:   []string{`When "module" is present, it must be set to "commonjs" or "node16".`},
		},
		{
			name: "strict replaces the narrower flags",
			mutate: func(options, _ map[string]any) {
				for _, k := range strictFlags {
					delete(options, k)
				}
				options["strict"] = true
			},
			want: nil,
		},
		{
			name: "strict must be true",
			mutate: func(options, _ map[string]any) {
				for _, k := range strictFlags {
					delete(options, k)
				}
				options["strict"] = false
			},
			want: []string{"When \"strict\" is present, it must be set to `true`."},
		},
		{
			name:   "narrower flags may be false",
			mutate: func(options, _ map[string]any) { options["noImplicitAny"] = false },
			want:   nil,
		},
		{
			name: "one violation per missing strict flag",
			mutate: func(options, _ map[string]any) {
				delete(options, "noImplicitThis")
				delete(options, "strictFunctionTypes")
			},
			want: []string{
				"Expected `\"noImplicitThis\": true` or `\"noImplicitThis\": false`.",
				"Expected `\"strictFunctionTypes\": true` or `\"strictFunctionTypes\": false`.",
			},
		},
		{
			name:   "exactOptionalPropertyTypes must be true",
			mutate: func(options, _ map[string]any) { options["exactOptionalPropertyTypes"] = false },
			want:   []string{"When \"exactOptionalPropertyTypes\" is present, it must be set to `true`."},
		},
		{
			name: "valid paths",
			mutate: func(options, _ map[string]any) {
				options["paths"] = map[string][]string{
					"foo":  {"./index.d.ts"},
					"bar":  {"../bar/index.d.ts"},
					"baz":  {"../../baz/v2/index.d.ts"},
					"quux": {"../quux/v1.5/index.d.ts"},
				}
			},
			want: nil,
		},
		{
			name: "path to the wrong package",
			mutate: func(options, _ map[string]any) {
				options["paths"] = map[string][]string{"bar": {"../other/index.d.ts"}}
			},
			want: []string{`types/foo/tsconfig.json: "paths" must map 'bar' to bar's index.d.ts.`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := mustCheck(t, buildConfig(t, tt.mutate))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Check() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestCheck_StrictConflict(t *testing.T) {
	t.Parallel()

	for _, flag := range strictFlags {
		t.Run(flag, func(t *testing.T) {
			t.Parallel()
			cfg := buildConfig(t, func(options, _ map[string]any) {
				for _, k := range strictFlags {
					delete(options, k)
				}
				options["strict"] = true
				options[flag] = true
			})

			got, err := Check(testDir, cfg)
			if !errors.Is(err, ErrStrictConflict) {
				t.Fatalf("Check() error = %v, want ErrStrictConflict", err)
			}
			if got != nil {
				t.Errorf("Check() returned violations alongside a fatal error: %q", got)
			}
			var conflict *StrictConflictError
			if !errors.As(err, &conflict) || conflict.Option != flag {
				t.Errorf("error = %#v, want StrictConflictError for %s", err, flag)
			}
		})
	}
}

func TestCheck_MultiTargetPaths(t *testing.T) {
	t.Parallel()

	targets := [][]string{
		{"../bar/index.d.ts", "../bar/index.d.ts"},
		{"../wrong/index.d.ts", "also-wrong"},
		{"./index.d.ts", "./index.d.ts", "./index.d.ts"},
		{},
	}

	for _, tt := range targets {
		cfg := buildConfig(t, func(options, _ map[string]any) {
			options["paths"] = map[string][]string{"bar": tt}
		})
		got := mustCheck(t, cfg)
		want := []string{`types/foo/tsconfig.json: "paths" must map each module specifier to only one file.`}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("paths %q: Check() = %q, want %q", tt, got, want)
		}
	}
}

func TestCheck_DocumentOrder(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`{
		"compilerOptions": {
			"zeta": 1,
			"module": "commonjs",
			"lib": ["es6"],
			"alpha": 2,
			"strict": true,
			"noEmit": true,
			"forceConsistentCasingInFileNames": true,
			"types": [],
			"middle": null
		},
		"files": ["index.d.ts"]
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	got := mustCheck(t, cfg)
	want := []string{
		"Unexpected compiler option zeta",
		"Unexpected compiler option alpha",
		"Unexpected compiler option middle",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Check() = %q, want %q", got, want)
	}
}

func TestCheck_Idempotent(t *testing.T) {
	t.Parallel()

	cfg := buildConfig(t, func(options, top map[string]any) {
		delete(top, "files")
		delete(options, "lib")
		options["outDir"] = "x"
		options["paths"] = map[string][]string{"a": {"b", "c"}}
	})

	first := mustCheck(t, cfg)
	second := mustCheck(t, cfg)
	if len(first) == 0 || !reflect.DeepEqual(first, second) {
		t.Errorf("Check() not idempotent:\n%q\n%q", first, second)
	}
}

func TestRead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := Read(dir); !errors.Is(err, ErrMissingConfig) {
		t.Fatalf("Read() error = %v, want ErrMissingConfig", err)
	}

	content := `{"compilerOptions": {"module": "node16"}, "files": null, "include": null}`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Read(dir)
	if err != nil {
		t.Fatalf("Read() unexpected error: %v", err)
	}
	if cfg.HasFiles || !cfg.HasInclude || cfg.CompilerOptions.Len() != 1 {
		t.Errorf("Read() = %+v", cfg)
	}

	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(`{"files": "index.d.ts"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(dir); err == nil {
		t.Error("Read() accepted a non-array files field")
	}
}
