// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

const (
	// EnvConfig names the TOML file loaded by [Global].
	EnvConfig = `SYNCBRIDGE_CONFIG`
	// EnvGatherBatchSize overrides [Settings.GatherBatchSize].
	EnvGatherBatchSize = `SYNCBRIDGE_GATHER_BATCH_SIZE`
	// EnvNoFilesGatherBatchSize overrides [Settings.NoFilesGatherBatchSize].
	EnvNoFilesGatherBatchSize = `SYNCBRIDGE_NOFILES_GATHER_BATCH_SIZE`
)

// ErrUnknownKey indicates a config file contained unrecognised keys.
var ErrUnknownKey = errors.New(`config: unknown key`)

// Settings are the process-wide defaults. A nil field is unset.
type Settings struct {
	// GatherBatchSize is the default batch size, used when a batch does not
	// specify one. Non-positive values mean unbounded.
	GatherBatchSize *int `toml:"gather_batch_size"`

	// NoFilesGatherBatchSize is the default batch size for batches that do
	// not hold open files. Falls back to [NoFilesBatchSize].
	NoFilesGatherBatchSize *int `toml:"nofiles_gather_batch_size"`
}

// Int returns a pointer to n, for populating [Settings].
func Int(n int) *int { return &n }

// BatchSize resolves the default batch size, and whether one was found.
func (s Settings) BatchSize(nofiles bool) (int, bool) {
	if nofiles {
		if s.NoFilesGatherBatchSize != nil {
			return *s.NoFilesGatherBatchSize, true
		}
		return NoFilesBatchSize(), true
	}
	if s.GatherBatchSize != nil {
		return *s.GatherBatchSize, true
	}
	return 0, false
}

// Load decodes the TOML file at path, then applies environment overrides.
// An empty path loads only from the environment.
func Load(path string) (Settings, error) {
	var s Settings
	if path != `` {
		md, err := toml.DecodeFile(path, &s)
		if err != nil {
			return Settings{}, fmt.Errorf(`config: decode %s: %w`, path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) != 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Settings{}, fmt.Errorf(`%w in %s: %s`, ErrUnknownKey, path, strings.Join(keys, `, `))
		}
	}
	return FromEnv(s, os.LookupEnv)
}

// FromEnv overlays s with any environment variables found via lookup.
func FromEnv(s Settings, lookup func(key string) (string, bool)) (Settings, error) {
	for _, v := range [...]struct {
		key string
		dst **int
	}{
		{EnvGatherBatchSize, &s.GatherBatchSize},
		{EnvNoFilesGatherBatchSize, &s.NoFilesGatherBatchSize},
	} {
		raw, ok := lookup(v.key)
		if !ok || strings.TrimSpace(raw) == `` {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Settings{}, fmt.Errorf(`config: %s: %w`, v.key, err)
		}
		*v.dst = &n
	}
	return s, nil
}

var global = sync.OnceValues(func() (*Store, error) {
	s, err := Load(os.Getenv(EnvConfig))
	if err != nil {
		return NewStore(Settings{}), err
	}
	return NewStore(s), nil
})

// Global returns the process-wide store, loaded on first use. It always
// returns a usable store, falling back to empty settings if loading failed,
// in which case the load error is also returned, every call.
func Global() (*Store, error) {
	return global()
}
