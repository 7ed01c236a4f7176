package store

// Config holds configuration for the Store.
type Config struct {
	// TableName is the name of the catalog table.
	// Default: "spool_catalog"
	TableName string

	// DatatypeIndex is the GSI keyed by datatype (partition) and sk (sort).
	// Default: "datatype-index"
	DatatypeIndex string
}

// DefaultConfig returns the default table layout.
func DefaultConfig() Config {
	return Config{
		TableName:     "spool_catalog",
		DatatypeIndex: "datatype-index",
	}
}

// validate fills in defaults for empty values.
func (c *Config) validate() {
	if c.TableName == "" {
		c.TableName = "spool_catalog"
	}
	if c.DatatypeIndex == "" {
		c.DatatypeIndex = "datatype-index"
	}
}
