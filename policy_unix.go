//go:build unix

package syncbridge

// platformNeedsAlternateStrategy reports whether the default wake strategy
// is unusable on this platform.
const platformNeedsAlternateStrategy = false
