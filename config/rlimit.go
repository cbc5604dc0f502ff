package config

const (
	// DefaultNoFilesBatchSize is used where RLIMIT_NOFILE gives no answer.
	DefaultNoFilesBatchSize = 1280

	maxNoFilesBatchSize = 1 << 20
)
