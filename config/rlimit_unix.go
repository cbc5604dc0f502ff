//go:build unix

package config

import (
	"golang.org/x/sys/unix"
)

// NoFilesBatchSize derives a batch size from the soft RLIMIT_NOFILE, as one
// eighth of it, falling back to [DefaultNoFilesBatchSize] if the limit is
// unavailable or unlimited.
func NoFilesBatchSize() int {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return DefaultNoFilesBatchSize
	}
	// RLIM_INFINITY differs in sign by platform, so treat anything huge as unlimited
	if rlim.Cur/8 > maxNoFilesBatchSize {
		return DefaultNoFilesBatchSize
	}
	if n := int(rlim.Cur / 8); n > 0 {
		return n
	}
	return 1
}
