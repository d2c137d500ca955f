// Package config loads, normalizes, and validates vigil configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VIGIL_SOURCE_URL, VIGIL_DESCRIBER_API_KEY and VIGIL_NATS_URL. Label lists
// are case-folded here so downstream filters compare canonical values.
//
// Watcher re-reads the file on change (fsnotify, with a polling fallback for
// filesystems that do not deliver events) and hands validated configs to a
// callback; the daemon uses it to swap detection label filters without a
// restart.
package config
