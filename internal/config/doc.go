// Package config loads, normalizes, and validates the transcriber's TOML
// configuration.
package config
