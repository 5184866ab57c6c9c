package admin

import "context"

// configDumpDB is the subset of *discoverydb.DB the persister needs,
// narrowed so this package does not import the sqlite driver directly.
type configDumpDB interface {
	SaveConfigDump(ctx context.Context, version string, payload []byte, dumpedAtUnix int64, keepVersions int) error
}

// keepConfigDumpVersions bounds how many historical /config_dump snapshots
// discoverydb retains; older ones are pruned on every save.
const keepConfigDumpVersions = 20

// DBPersister adapts a discoverydb handle to ConfigDumpPersister.
type DBPersister struct {
	DB configDumpDB
}

func (p DBPersister) SaveConfigDump(version string, payload []byte, dumpedAtUnix int64) error {
	return p.DB.SaveConfigDump(context.Background(), version, payload, dumpedAtUnix, keepConfigDumpVersions)
}
