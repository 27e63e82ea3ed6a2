// Package config loads server settings from an optional config.yaml and
// AUDIOPAPER_* environment variables, and validates them before the server
// wires its stores, executor and generation backends.
package config
