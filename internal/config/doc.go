// ABOUTME: Package documentation for configuration loading
// ABOUTME: Notes supported formats and expansion behavior

// Package config loads the openwire-gateway configuration from YAML or TOML
// files with ${VAR} environment expansion and startup validation.
package config
