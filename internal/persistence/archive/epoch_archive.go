package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mutationsim.ai/internal/persistence/snapshot"
)

// Reasons an epoch ends.
const (
	ReasonReset = "reset"
	ReasonClose = "close"
)

type EpochMeta struct {
	Epoch      int    `json:"epoch"`
	Reason     string `json:"reason"`
	RunID      string `json:"run_id"`
	EndTick    uint64 `json:"end_tick"`
	Seed       int64  `json:"seed"`
	Alive      int    `json:"alive"`
	Generation int    `json:"generation"`
	Digest     string `json:"digest"`
	Snapshot   string `json:"snapshot"`
	CreatedAt  string `json:"created_at"`
}

var now = time.Now

// ArchiveEpoch writes the final state of an epoch into `runDir/archives/epoch_<NNN>/` together
// with a meta.json. A run starts at epoch 1 and moves to the next one on every reset.
func ArchiveEpoch(runDir string, epoch int, reason string, snap snapshot.SnapshotV1) (string, error) {
	if epoch <= 0 {
		return "", fmt.Errorf("archive: bad epoch %d", epoch)
	}
	dir := filepath.Join(runDir, "archives", fmt.Sprintf("epoch_%03d", epoch))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	if err := snapshot.WriteSnapshot(dst, snap); err != nil {
		return "", err
	}

	meta := EpochMeta{
		Epoch:      epoch,
		Reason:     reason,
		RunID:      snap.Header.RunID,
		EndTick:    snap.Header.Tick,
		Seed:       snap.Seed,
		Alive:      snap.Header.Alive,
		Generation: snap.Header.Generation,
		Digest:     snap.Header.Digest,
		Snapshot:   filepath.Base(dst),
		CreatedAt:  now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return dst, err
	}
	return dst, os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
}

// ReadMeta loads the meta.json of one archived epoch.
func ReadMeta(runDir string, epoch int) (EpochMeta, error) {
	var m EpochMeta
	b, err := os.ReadFile(filepath.Join(runDir, "archives", fmt.Sprintf("epoch_%03d", epoch), "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}
