// SPDX-License-Identifier: MPL-2.0

// Package config handles dtcheck configuration using Viper.
//
// Configuration is read from config.cue or config.toml in the user config
// directory (~/.config/dtcheck on Linux), or from dtcheck.cue or
// dtcheck.toml in the working directory. Both formats are validated
// against the embedded CUE schema (config_schema.cue). DTCHECK_*
// environment variables override file values, e.g.
// DTCHECK_CHECKER_TIMEOUT=5m.
package config
