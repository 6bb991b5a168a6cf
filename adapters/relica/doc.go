// Package relica provides production-ready store adapters for msgrelay
// backed by the Relica query builder.
//
// Supports MySQL, PostgreSQL, and SQLite via database/sql drivers. Two
// tables are required (see the embedded migrations in the root package):
//
//	relay_queue  - Active queue state
//	relay_dlq    - Dead-lettered messages
//
// The table prefix defaults to "relay_" and can be customized.
//
// Example:
//
//	db, _ := sql.Open("sqlite3", "relay.db")
//	stores := relica.NewStores(db, "sqlite3")
//
//	queue, _ := msgrelay.NewMessageQueue(
//	    msgrelay.WithStores(stores.Messages, stores.DeadLetters),
//	    msgrelay.WithDelivery(pool),
//	    msgrelay.WithLogger(logger),
//	)
package relica
