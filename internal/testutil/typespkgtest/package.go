// SPDX-License-Identifier: MPL-2.0

package typespkgtest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type (
	// Option configures a fixture.
	Option func(*Fixture)

	// Fixture is a declaration package before it is written. Manifest and
	// CompilerOptions start out compliant.
	Fixture struct {
		Name            string
		VersionDir      string
		Manifest        map[string]any
		CompilerOptions map[string]any
		TSConfig        map[string]any
		Files           map[string]string
	}
)

// New returns a compliant fixture for the package name.
func New(name string, opts ...Option) *Fixture {
	f := &Fixture{
		Name: name,
		Manifest: map[string]any{
			"private":  true,
			"name":     "@types/" + name,
			"version":  "1.0.9999",
			"projects": []string{"https://example.com/" + name},
			"owners": []map[string]string{
				{"name": "Jane Doe", "githubUsername": "janedoe"},
			},
			"devDependencies": map[string]string{"@types/" + name: "workspace:."},
		},
		CompilerOptions: map[string]any{
			"module":                           "node16",
			"lib":                              []string{"es6"},
			"noImplicitAny":                    true,
			"noImplicitThis":                   true,
			"strictNullChecks":                 true,
			"strictFunctionTypes":              true,
			"types":                            []string{},
			"noEmit":                           true,
			"forceConsistentCasingInFileNames": true,
		},
		TSConfig: map[string]any{
			"files": []string{"index.d.ts", name + "-tests.ts"},
		},
		Files: map[string]string{
			"index.d.ts":        "export declare function main(): void;\n",
			name + "-tests.ts": "import { main } from \"" + name + "\";\nmain();\n",
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithVersionDir places the package in a version directory such as "v16".
func WithVersionDir(v string) Option {
	return func(f *Fixture) { f.VersionDir = v }
}

// WithVersion sets the manifest "version".
func WithVersion(v string) Option {
	return func(f *Fixture) { f.Manifest["version"] = v }
}

// WithManifestField sets a manifest field. A nil value removes it.
func WithManifestField(key string, value any) Option {
	return func(f *Fixture) { set(f.Manifest, key, value) }
}

// WithCompilerOption sets a compiler option. A nil value removes it.
func WithCompilerOption(key string, value any) Option {
	return func(f *Fixture) { set(f.CompilerOptions, key, value) }
}

// WithTSConfigField sets a top-level tsconfig field. A nil value removes it.
func WithTSConfigField(key string, value any) Option {
	return func(f *Fixture) { set(f.TSConfig, key, value) }
}

// WithFile adds or replaces a file.
func WithFile(name, content string) Option {
	return func(f *Fixture) { f.Files[name] = content }
}

// WithoutFile removes a file, including package.json or tsconfig.json.
func WithoutFile(name string) Option {
	return func(f *Fixture) { f.Files[name] = "\x00omit" }
}

// Write creates the package below root and returns its directory.
func Write(t testing.TB, root, name string, opts ...Option) string {
	t.Helper()
	return New(name, opts...).Write(t, root)
}

// Write creates the package below root and returns its directory.
func (f *Fixture) Write(t testing.TB, root string) string {
	t.Helper()
	dir := filepath.Join(root, f.Name)
	if f.VersionDir != "" {
		dir = filepath.Join(dir, f.VersionDir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", dir, err)
	}

	tsconfig := map[string]any{"compilerOptions": f.CompilerOptions}
	for k, v := range f.TSConfig {
		tsconfig[k] = v
	}
	files := map[string]string{
		"package.json":  mustJSON(t, f.Manifest),
		"tsconfig.json": mustJSON(t, tsconfig),
	}
	for name, content := range f.Files {
		files[name] = content
	}

	for name, content := range files {
		if content == "\x00omit" {
			continue
		}
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return dir
}

func set(m map[string]any, key string, value any) {
	if value == nil {
		delete(m, key)
		return
	}
	m[key] = value
}

func mustJSON(t testing.TB, v any) string {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		t.Fatalf("failed to marshal fixture: %v", err)
	}
	return string(data) + "\n"
}
