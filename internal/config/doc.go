// Package config loads, validates, and defaults the TOML configuration for
// the trope mining pipeline. Configuration resolution order is explicit
// flag path, ~/.config/tropeminer/config.toml, then ./tropeminer.toml, with
// environment variable overrides applied after parsing.
package config
