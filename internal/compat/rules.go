// SPDX-License-Identifier: MPL-2.0

package compat

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
)

// DefaultRulesFile is the conventional rule config name.
const DefaultRulesFile = "attw.json"

// ErrRules is returned when the rule config cannot be used.
var ErrRules = errors.New("invalid checker rule config")

// Rules is the checker rule config: packages expected to fail and rules
// that never fail a package.
type Rules struct {
	FailingPackages []string `json:"failingPackages"`
	IgnoreRules     []string `json:"ignoreRules"`
}

// LoadRules reads a rule config. An empty path yields empty rules.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return &Rules{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRules, err)
	}
	var r Rules
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRules, path, err)
	}
	return &r, nil
}

// ExpectError reports whether dirName is listed in failingPackages.
func (r *Rules) ExpectError(dirName string) bool {
	return r != nil && slices.Contains(r.FailingPackages, dirName)
}
