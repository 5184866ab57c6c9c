package discoverydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNoConfigDump is returned by LatestConfigDump when no dump has been
// saved yet.
var ErrNoConfigDump = errors.New("discoverydb: no config dump saved")

// SaveConfigDump persists one `GET /config_dump` response body (the admin
// handler's own JSON marshal of {generated_at, binds, backends, policies})
// keyed by version, and prunes everything older than
// the most recent keepVersions entries so the table doesn't grow without
// bound across a long-running process.
func (d *DB) SaveConfigDump(ctx context.Context, version string, payload []byte, dumpedAtUnix int64, keepVersions int) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO config_dumps (version, dumped_at, payload) VALUES (?, ?, ?)
			 ON CONFLICT(version) DO UPDATE SET dumped_at = excluded.dumped_at, payload = excluded.payload`,
			version, dumpedAtUnix, payload); err != nil {
			return fmt.Errorf("discoverydb: insert config dump %q: %w", version, err)
		}

		if keepVersions <= 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM config_dumps WHERE version NOT IN (
				SELECT version FROM config_dumps ORDER BY dumped_at DESC LIMIT ?
			)`, keepVersions); err != nil {
			return fmt.Errorf("discoverydb: prune config dumps: %w", err)
		}
		return nil
	})
}

// LatestConfigDump returns the most recently saved config dump payload.
func (d *DB) LatestConfigDump(ctx context.Context) (version string, payload []byte, err error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT version, payload FROM config_dumps ORDER BY dumped_at DESC LIMIT 1`)
	if err := row.Scan(&version, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, ErrNoConfigDump
		}
		return "", nil, fmt.Errorf("discoverydb: query latest config dump: %w", err)
	}
	return version, payload, nil
}
