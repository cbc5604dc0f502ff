//go:build !unix

package config

// NoFilesBatchSize returns [DefaultNoFilesBatchSize], as there is no
// RLIMIT_NOFILE on this platform.
func NoFilesBatchSize() int {
	return DefaultNoFilesBatchSize
}
