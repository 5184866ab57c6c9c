package discoverydb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/discovery"
)

// SaveDiscoverySnapshot replaces the stored workload/service snapshot with
// the store's current contents, as one transaction so a reader never sees a
// half-replaced snapshot.
func (d *DB) SaveDiscoverySnapshot(ctx context.Context, st *discovery.Store) error {
	workloads := st.AllWorkloads()
	services := st.AllServices()

	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM workloads`); err != nil {
			return fmt.Errorf("discoverydb: clear workloads: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM services`); err != nil {
			return fmt.Errorf("discoverydb: clear services: %w", err)
		}

		insertWorkload, err := tx.PrepareContext(ctx, `INSERT INTO workloads (uid, payload) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("discoverydb: prepare workload insert: %w", err)
		}
		defer insertWorkload.Close()
		for _, w := range workloads {
			payload, err := json.Marshal(w)
			if err != nil {
				return fmt.Errorf("discoverydb: marshal workload %q: %w", w.UID, err)
			}
			if _, err := insertWorkload.ExecContext(ctx, w.UID, payload); err != nil {
				return fmt.Errorf("discoverydb: insert workload %q: %w", w.UID, err)
			}
		}

		insertService, err := tx.PrepareContext(ctx, `INSERT INTO services (namespace, hostname, payload) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("discoverydb: prepare service insert: %w", err)
		}
		defer insertService.Close()
		for _, svc := range services {
			payload, err := json.Marshal(svc)
			if err != nil {
				return fmt.Errorf("discoverydb: marshal service %s/%s: %w", svc.Namespace, svc.Hostname, err)
			}
			if _, err := insertService.ExecContext(ctx, svc.Namespace, svc.Hostname, payload); err != nil {
				return fmt.Errorf("discoverydb: insert service %s/%s: %w", svc.Namespace, svc.Hostname, err)
			}
		}
		return nil
	})
}

// LoadDiscoverySnapshot restores the last saved workload/service snapshot
// into st. Intended for startup, before the first live xDS/local-config
// update arrives, so the gateway has something to route against during
// that gap.
func (d *DB) LoadDiscoverySnapshot(ctx context.Context, st *discovery.Store) error {
	wrows, err := d.sql.QueryContext(ctx, `SELECT payload FROM workloads`)
	if err != nil {
		return fmt.Errorf("discoverydb: query workloads: %w", err)
	}
	defer wrows.Close()
	for wrows.Next() {
		var payload []byte
		if err := wrows.Scan(&payload); err != nil {
			return fmt.Errorf("discoverydb: scan workload: %w", err)
		}
		var w discovery.Workload
		if err := json.Unmarshal(payload, &w); err != nil {
			return fmt.Errorf("discoverydb: unmarshal workload: %w", err)
		}
		st.UpsertWorkload(&w)
	}
	if err := wrows.Err(); err != nil {
		return fmt.Errorf("discoverydb: iterate workloads: %w", err)
	}

	srows, err := d.sql.QueryContext(ctx, `SELECT payload FROM services`)
	if err != nil {
		return fmt.Errorf("discoverydb: query services: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		var payload []byte
		if err := srows.Scan(&payload); err != nil {
			return fmt.Errorf("discoverydb: scan service: %w", err)
		}
		var svc discovery.Service
		if err := json.Unmarshal(payload, &svc); err != nil {
			return fmt.Errorf("discoverydb: unmarshal service: %w", err)
		}
		st.UpsertService(&svc)
	}
	if err := srows.Err(); err != nil {
		return fmt.Errorf("discoverydb: iterate services: %w", err)
	}
	return nil
}
