// Package discoverydb gives the discovery store and the admin config-dump
// contract (`GET /config_dump`) durable storage across restarts, via the
// pure-Go `modernc.org/sqlite` driver. Everything here is a snapshot: on Save the whole current state
// replaces whatever was stored before; on Load the gateway gets back
// exactly what the last successful Save wrote, to be re-applied to the
// in-memory store.Store/discovery.Store the same way a first xDS snapshot
// would populate them.
package discoverydb

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB is a thin wrapper over the sqlite connection plus the prepared schema.
type DB struct {
	sql *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS workloads (
	uid     TEXT PRIMARY KEY,
	payload BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS services (
	namespace TEXT NOT NULL,
	hostname  TEXT NOT NULL,
	payload   BLOB NOT NULL,
	PRIMARY KEY (namespace, hostname)
);
CREATE TABLE IF NOT EXISTS config_dumps (
	version    TEXT PRIMARY KEY,
	dumped_at  INTEGER NOT NULL,
	payload    BLOB NOT NULL
);
`

// Open opens (creating if necessary) the sqlite database at path and applies
// the schema. path may be ":memory:" for tests.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("discoverydb: open %s: %w", path, err)
	}
	// sqlite serializes writers internally; a single connection avoids
	// SQLITE_BUSY from this process's own concurrent writers fighting the
	// database/sql pool rather than sqlite's own locking.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("discoverydb: apply schema: %w", err)
	}
	return &DB{sql: sqlDB}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error fn returns or panics with.
func (d *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("discoverydb: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}
