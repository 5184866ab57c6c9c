package discoverydb

import (
	"context"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/discovery"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestSaveAndLoadDiscoverySnapshotRoundTrips(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	src := discovery.New()
	src.UpsertWorkload(&discovery.Workload{UID: "w1", WorkloadIPs: []string{"10.0.0.1"}, Network: "net1"})
	src.UpsertService(&discovery.Service{Namespace: "ns1", Hostname: "svc1", Ports: map[int]int{80: 8080}})

	if err := d.SaveDiscoverySnapshot(ctx, src); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	dst := discovery.New()
	if err := d.LoadDiscoverySnapshot(ctx, dst); err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	w, ok := dst.Workload("w1")
	if !ok || w.Network != "net1" {
		t.Fatalf("expected workload w1 restored, got %+v", w)
	}
	svc, ok := dst.Service(discovery.NamespacedHostname{Namespace: "ns1", Hostname: "svc1"})
	if !ok || svc.Ports[80] != 8080 {
		t.Fatalf("expected service ns1/svc1 restored, got %+v", svc)
	}
}

func TestSaveDiscoverySnapshotReplacesPriorContents(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	first := discovery.New()
	first.UpsertWorkload(&discovery.Workload{UID: "stale"})
	if err := d.SaveDiscoverySnapshot(ctx, first); err != nil {
		t.Fatalf("save first snapshot: %v", err)
	}

	second := discovery.New()
	second.UpsertWorkload(&discovery.Workload{UID: "fresh"})
	if err := d.SaveDiscoverySnapshot(ctx, second); err != nil {
		t.Fatalf("save second snapshot: %v", err)
	}

	restored := discovery.New()
	if err := d.LoadDiscoverySnapshot(ctx, restored); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := restored.Workload("stale"); ok {
		t.Fatal("expected the stale workload to be gone after a fresh snapshot replaced it")
	}
	if _, ok := restored.Workload("fresh"); !ok {
		t.Fatal("expected the fresh workload to be present")
	}
}

func TestConfigDumpSavesLatestAndPrunesOld(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	if err := d.SaveConfigDump(ctx, "v1", []byte(`{"version":"v1"}`), 100, 1); err != nil {
		t.Fatalf("save v1: %v", err)
	}
	if err := d.SaveConfigDump(ctx, "v2", []byte(`{"version":"v2"}`), 200, 1); err != nil {
		t.Fatalf("save v2: %v", err)
	}

	version, payload, err := d.LatestConfigDump(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if version != "v2" || string(payload) != `{"version":"v2"}` {
		t.Fatalf("expected latest dump to be v2, got %q %q", version, payload)
	}

	var count int
	if err := d.sql.QueryRowContext(ctx, `SELECT count(*) FROM config_dumps`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected pruning to keep exactly 1 row, got %d", count)
	}
}

func TestLatestConfigDumpErrorsWhenEmpty(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	if _, _, err := d.LatestConfigDump(ctx); err != ErrNoConfigDump {
		t.Fatalf("expected ErrNoConfigDump, got %v", err)
	}
}
