// Package config loads, normalizes, and validates Aveline configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// AVELINE_DATA_DIR. The Config type centralizes the directories the library,
// daemon and file server need so every component resolves them in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
