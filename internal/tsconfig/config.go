// SPDX-License-Identifier: MPL-2.0

package tsconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the build configuration file every package carries.
const FileName = "tsconfig.json"

// ErrMissingConfig is returned by Read when the package has no tsconfig.json.
var ErrMissingConfig = errors.New("missing tsconfig.json")

type (
	// Options is a JSON object that remembers the order its keys were
	// declared in. Duplicate keys keep their first position and last value.
	Options struct {
		keys   []string
		values map[string]json.RawMessage
	}

	// Config is a parsed tsconfig.json. Presence of files, include and
	// exclude is tracked separately from their content: "include": [] is
	// still an include list.
	Config struct {
		CompilerOptions Options

		Files    []string
		HasFiles bool

		Include    []string
		HasInclude bool

		Exclude    []string
		HasExclude bool
	}
)

// Keys returns option names in document order.
func (o Options) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Has reports whether key is present, including when its value is null.
func (o Options) Has(key string) bool {
	_, ok := o.values[key]
	return ok
}

// Raw returns the undecoded value of key.
func (o Options) Raw(key string) (json.RawMessage, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Value decodes key into a generic Go value (bool, float64, string,
// []any, map[string]any or nil).
func (o Options) Value(key string) (any, bool) {
	raw, ok := o.values[key]
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// Len returns the number of distinct keys.
func (o Options) Len() int { return len(o.keys) }

// UnmarshalJSON decodes a JSON object preserving key order. null decodes
// to an empty set of options.
func (o *Options) UnmarshalJSON(data []byte) error {
	keys, values, err := decodeObject(data)
	if err != nil {
		return err
	}
	o.keys, o.values = keys, values
	return nil
}

// UnmarshalJSON decodes a tsconfig document.
func (c *Config) UnmarshalJSON(data []byte) error {
	_, top, err := decodeObject(data)
	if err != nil {
		return err
	}
	*c = Config{}
	if raw, ok := top["compilerOptions"]; ok {
		if err := c.CompilerOptions.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("compilerOptions: %w", err)
		}
	}
	lists := []struct {
		name    string
		dst     *[]string
		present *bool
	}{
		{"files", &c.Files, &c.HasFiles},
		{"include", &c.Include, &c.HasInclude},
		{"exclude", &c.Exclude, &c.HasExclude},
	}
	for _, l := range lists {
		raw, ok := top[l.name]
		if !ok {
			continue
		}
		*l.present = true
		if isNull(raw) {
			if l.name == "files" {
				// A null file list is the same as no file list.
				*l.present = false
			}
			continue
		}
		if err := json.Unmarshal(raw, l.dst); err != nil {
			return fmt.Errorf("%s: must be an array of strings: %w", l.name, err)
		}
	}
	return nil
}

// Parse decodes a tsconfig document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Read loads <dir>/tsconfig.json.
func Read(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", dir, ErrMissingConfig)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func decodeObject(data []byte) ([]string, map[string]json.RawMessage, error) {
	values := make(map[string]json.RawMessage)
	if isNull(data) {
		return nil, values, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected a JSON object, got %v", tok)
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected an object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", key, err)
		}
		if _, dup := values[key]; !dup {
			keys = append(keys, key)
		}
		values[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, values, nil
}

func isNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}
