// Package config loads, normalizes, and validates clipforge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CLIPFORGE_LLM_API_KEY, optionally sourced from a dotenv file that never
// overrides the real environment. Validation enforces the invariants the
// pipeline relies on, most notably that the quality gate weights sum to 1.
package config
