package archive

import (
	"path/filepath"
	"testing"
	"time"

	"mutationsim.ai/internal/persistence/snapshot"
)

func TestArchiveEpoch_WritesSnapshotAndMeta(t *testing.T) {
	runDir := t.TempDir()
	now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	defer func() { now = time.Now }()

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, RunID: "r1", Tick: 42, Generation: 3, Alive: 7, Digest: "abc"},
		Seed:   9,
		Width:  4,
		Height: 4,
	}
	path, err := ArchiveEpoch(runDir, 2, ReasonReset, snap)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if want := filepath.Join(runDir, "archives", "epoch_002", "42.snap.zst"); path != want {
		t.Fatalf("path: got %q want %q", path, want)
	}
	got, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if got.Header.Tick != 42 || got.Seed != 9 {
		t.Fatalf("archived snapshot: got tick=%d seed=%d", got.Header.Tick, got.Seed)
	}

	meta, err := ReadMeta(runDir, 2)
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	if meta.Reason != ReasonReset || meta.EndTick != 42 || meta.Alive != 7 || meta.Snapshot != "42.snap.zst" {
		t.Fatalf("meta: got %+v", meta)
	}
	if meta.CreatedAt != "2026-03-01T12:00:00Z" {
		t.Fatalf("created_at: got %q", meta.CreatedAt)
	}
}

func TestArchiveEpoch_RejectsBadEpoch(t *testing.T) {
	if _, err := ArchiveEpoch(t.TempDir(), 0, ReasonClose, snapshot.SnapshotV1{}); err == nil {
		t.Fatalf("want error for epoch 0")
	}
}
