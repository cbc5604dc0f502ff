// Package config provides the settings consumed by the sync bridge, loaded
// from an optional TOML file, and overlaid with environment variables.
//
// Recognised keys:
//
//	gather_batch_size = 4             # SYNCBRIDGE_GATHER_BATCH_SIZE
//	nofiles_gather_batch_size = 1280  # SYNCBRIDGE_NOFILES_GATHER_BATCH_SIZE
//
// The file path is taken from SYNCBRIDGE_CONFIG, by [Global].
package config
