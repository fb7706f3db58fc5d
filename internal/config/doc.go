// Package config loads, normalizes, and validates milprep configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MILPREP_FEATURE_DIR. The Config type centralizes every knob the CLI and the
// preparation pipeline need: where the clinical table, slide table, and
// feature archives live, which columns join them, how bags are sampled and
// batched, how the split is drawn, and how strictly categories are gated.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
