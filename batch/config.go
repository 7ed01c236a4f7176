package batch

import "time"

// Config holds configuration for the Reconciler.
type Config struct {
	// InlineAttempts is how many times a chunk's unprocessed remainder is
	// written before it is reported unprocessed. 1 disables inline retry.
	// Default: 1
	InlineAttempts int

	// InlinePolicy spaces inline attempts.
	// Default: 100ms initial delay doubling up to 2s
	InlinePolicy RetryPolicy
}

// DefaultConfig returns a configuration without inline retry.
func DefaultConfig() Config {
	return Config{
		InlineAttempts: 1,
		InlinePolicy: RetryPolicy{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2,
			MaxDelay:     2 * time.Second,
		},
	}
}

// validate fills in defaults for empty values.
func (c *Config) validate() {
	def := DefaultConfig()
	if c.InlineAttempts <= 0 {
		c.InlineAttempts = def.InlineAttempts
	}
	if c.InlinePolicy == (RetryPolicy{}) {
		c.InlinePolicy = def.InlinePolicy
	}
	c.InlinePolicy.validate()
}
