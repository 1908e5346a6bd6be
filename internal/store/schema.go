// Package store persists completed-exchange records to a single SQLite
// database file so they can be queried after the fact, supplementing the bare
// subscription-channel observation interface with a durable index.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// OpenDB opens (creating if necessary) a single-writer SQLite database at
// path with the pragmas this package's access pattern expects: WAL so
// readers never block the writer, NORMAL synchronous (fewer fsyncs, at the
// cost that the most recent commits can be lost on power failure), and a
// busy timeout so a query racing the writer retries instead of failing.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: exec %q on %s: %w", pragma, path, err)
		}
	}
	return db, nil
}
