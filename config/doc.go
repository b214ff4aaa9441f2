// Package config loads and validates the process configuration.
//
// Configuration is layered: compiled-in defaults, then an optional JSON
// file, then SYNC_STORAGE_* environment variables. Load returns a Config
// that has already passed Validate, so the rest of the process can trust
// it. File reads are bounded in size and JSON depth.
package config
