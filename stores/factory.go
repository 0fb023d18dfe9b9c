package stores

import (
	"fmt"
	"strings"
)

// DefaultSQLitePath is used when a sqlite store is configured without a path.
const DefaultSQLitePath = "opsagent.sqlite"

// NewStore opens the thread store named by config.Type.
func NewStore(config *StoreConfig) (MessageStore, error) {
	switch strings.ToLower(config.Type) {
	case "sqlite", "sqlite3":
		path := config.Connection
		if path == "" {
			path = DefaultSQLitePath
		}
		return NewSQLiteStoreSimple(path)
	case "postgres", "postgresql":
		if config.Connection == "" {
			return nil, fmt.Errorf("postgres store requires a DSN")
		}
		return NewPostgresStoreSimple(config.Connection)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}
