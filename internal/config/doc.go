// Package config loads and validates the barsync YAML configuration.
//
// ${VAR} references are expanded from the environment before parsing.
// Defaults are applied for every optional field, then Validate checks the
// result once at startup.
package config
