package assoc

// Config holds configuration for the Maintainer.
type Config struct {
	// Concurrency bounds the per-page child updates in flight. 1 processes
	// a page sequentially.
	// Default: 10
	Concurrency int

	// PageLimit caps the association records fetched per page (0 = store default).
	PageLimit int32
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: 10,
	}
}

// validate fills in defaults for empty values.
func (c *Config) validate() {
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.PageLimit < 0 {
		c.PageLimit = 0
	}
}
