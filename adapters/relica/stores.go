package relica

import (
	"database/sql"

	"github.com/coregx/msgrelay"
)

// Stores holds both store implementations.
type Stores struct {
	Messages    msgrelay.MessageStore
	DeadLetters msgrelay.DeadLetterStore
}

// NewStores creates both store implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL,
// or SQLite. The driverName should be "mysql", "postgres", or "sqlite3".
// The table prefix defaults to "relay_".
func NewStores(db *sql.DB, driverName string) *Stores {
	return &Stores{
		Messages:    NewMessageStore(db, driverName),
		DeadLetters: NewDeadLetterStore(db, driverName),
	}
}

// NewStoresWithPrefix creates both store implementations with a custom
// table prefix.
func NewStoresWithPrefix(db *sql.DB, driverName, prefix string) *Stores {
	return &Stores{
		Messages:    NewMessageStoreWithPrefix(db, driverName, prefix),
		DeadLetters: NewDeadLetterStoreWithPrefix(db, driverName, prefix),
	}
}
