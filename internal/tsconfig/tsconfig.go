// SPDX-License-Identifier: MPL-2.0

// Package tsconfig enforces the build configuration policy for declaration
// packages.
//
// Check is a pure function of the package directory and its parsed
// tsconfig.json. Policy violations come back as messages. The one
// contradictory configuration the policy cannot express as a violation,
// "strict" combined with one of the flags it implies, is returned as a
// *StrictConflictError instead.
package tsconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
)

// ErrStrictConflict is the sentinel wrapped by StrictConflictError.
var ErrStrictConflict = errors.New("strict conflicts with an implied flag")

var pathTargetRegex = regexp.MustCompile(`^(?:..\/)+([^\/]+)\/(?:v\d+\.?\d*\/)?index.d.ts$`)

// requiredOptions lists options that must hold an exact value, in the order
// violations are reported.
var requiredOptions = []requiredOption{
	{"noEmit", true},
	{"forceConsistentCasingInFileNames", true},
	{"types", []any{}},
}

var allowedOptions = map[string]bool{
	"lib":                          true,
	"noImplicitAny":                true,
	"noImplicitThis":               true,
	"strict":                       true,
	"strictNullChecks":             true,
	"noUncheckedIndexedAccess":     true,
	"strictFunctionTypes":          true,
	"esModuleInterop":              true,
	"allowSyntheticDefaultImports": true,
	"target":                       true,
	"jsx":                          true,
	"jsxFactory":                   true,
	"experimentalDecorators":       true,
	"noUnusedLocals":               true,
	"noUnusedParameters":           true,
	"exactOptionalPropertyTypes":   true,
	"module":                       true,
	"paths":                        true,
}

// strictFlags are implied by "strict" and must be spelled out without it.
var strictFlags = []string{"noImplicitAny", "noImplicitThis", "strictNullChecks", "strictFunctionTypes"}

type requiredOption struct {
	key   string
	value any
}

// StrictConflictError reports a flag set alongside "strict".
type StrictConflictError struct {
	Dir    string
	Option string
}

func (e *StrictConflictError) Error() string {
	return fmt.Sprintf("Expected %q to not be set when \"strict\" is `true`.", e.Option)
}

func (e *StrictConflictError) Unwrap() error { return ErrStrictConflict }

// Check returns the policy violations of cfg in a stable order. An empty
// result means the configuration is compliant.
func Check(dir string, cfg *Config) ([]string, error) {
	var errs []string
	options := cfg.CompilerOptions

	switch {
	case cfg.HasInclude:
		errs = append(errs, `Use "files" instead of "include".`)
	case cfg.HasExclude:
		errs = append(errs, `Use "files" instead of "exclude".`)
	case !cfg.HasFiles:
		errs = append(errs, `Must specify "files".`)
	default:
		if !slices.Contains(cfg.Files, "index.d.ts") && !slices.Contains(cfg.Files, "./index.d.ts") {
			errs = append(errs, `"files" list must include "index.d.ts".`)
		}
	}

	for _, req := range requiredOptions {
		actual, ok := options.Value(req.key)
		if !ok || !reflect.DeepEqual(actual, req.value) {
			errs = append(errs, fmt.Sprintf("Expected compilerOptions[%s] === %s, but got %s",
				stringify(req.key, true), stringify(req.value, true), stringify(actual, ok)))
		}
	}

	for _, key := range options.Keys() {
		if allowedOptions[key] || isRequired(key) {
			continue
		}
		errs = append(errs, "Unexpected compiler option "+key)
	}

	if !options.Has("lib") {
		errs = append(errs, "Must specify \"lib\", usually to `\"lib\": [\"es6\"]` or `\"lib\": [\"es6\", \"dom\"]`.")
	}

	if !options.Has("module") {
		errs = append(errs, "Must specify \"module\" to `\"module\": \"commonjs\"` or `\"module\": \"node16\"`.")
	} else if m := moduleKind(options); m != "commonjs" && m != "node16" {
		errs = append(errs, `When "module" is present, it must be set to "commonjs" or "node16".`)
	}

	if options.Has("strict") {
		if v, _ := options.Value("strict"); v != true {
			errs = append(errs, "When \"strict\" is present, it must be set to `true`.")
		}
		for _, key := range strictFlags {
			if options.Has(key) {
				return nil, &StrictConflictError{Dir: dir, Option: key}
			}
		}
	} else {
		for _, key := range strictFlags {
			if !options.Has(key) {
				errs = append(errs, fmt.Sprintf("Expected `\"%s\": true` or `\"%s\": false`.", key, key))
			}
		}
	}

	if options.Has("exactOptionalPropertyTypes") {
		if v, _ := options.Value("exactOptionalPropertyTypes"); v != true {
			errs = append(errs, "When \"exactOptionalPropertyTypes\" is present, it must be set to `true`.")
		}
	}

	if hasAmbientTypes(options) {
		errs = append(errs, "Use `/// <reference types=\"...\" />` directives in source files and ensure "+
			"that the \"types\" field in your tsconfig is an empty array.")
	}

	pathErrs, err := checkPaths(dir, options)
	if err != nil {
		return nil, err
	}
	return append(errs, pathErrs...), nil
}

// CheckDir reads <dir>/tsconfig.json and checks it.
func CheckDir(dir string) ([]string, error) {
	cfg, err := Read(dir)
	if err != nil {
		return nil, err
	}
	return Check(dir, cfg)
}

func checkPaths(dir string, options Options) ([]string, error) {
	raw, ok := options.Raw("paths")
	if !ok || isNull(raw) {
		return nil, nil
	}
	var paths Options
	if err := paths.UnmarshalJSON(raw); err != nil {
		return []string{fmt.Sprintf("%s/%s: \"paths\" must be an object mapping module specifiers to files.", dir, FileName)}, nil
	}

	var errs []string
	for _, key := range paths.Keys() {
		targetsRaw, _ := paths.Raw(key)
		var targets []string
		if err := json.Unmarshal(targetsRaw, &targets); err != nil || len(targets) != 1 {
			errs = append(errs, fmt.Sprintf("%s/%s: \"paths\" must map each module specifier to only one file.", dir, FileName))
			continue
		}
		target := targets[0]
		if target == "./index.d.ts" {
			continue
		}
		m := pathTargetRegex.FindStringSubmatch(target)
		if m == nil || m[1] != key {
			errs = append(errs, fmt.Sprintf("%s/%s: \"paths\" must map '%s' to %s's index.d.ts.", dir, FileName, key, key))
		}
	}
	return errs, nil
}

func moduleKind(options Options) string {
	v, _ := options.Value("module")
	switch m := v.(type) {
	case string:
		return strings.ToLower(m)
	case nil:
		return ""
	default:
		return strings.ToLower(fmt.Sprint(m))
	}
}

func hasAmbientTypes(options Options) bool {
	v, _ := options.Value("types")
	switch t := v.(type) {
	case []any:
		return len(t) > 0
	case string:
		return t != ""
	}
	return false
}

func isRequired(key string) bool {
	return slices.ContainsFunc(requiredOptions, func(req requiredOption) bool { return req.key == key })
}

// stringify renders a value the way JSON.stringify does, with "undefined"
// for absent values.
func stringify(v any, present bool) string {
	if !present {
		return "undefined"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
