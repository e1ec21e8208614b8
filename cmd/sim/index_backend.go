package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mutationsim.ai/internal/persistence/indexdb"
	"mutationsim.ai/internal/persistence/snapshot"
	"mutationsim.ai/internal/sim/tuning"
	"mutationsim.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.AuditLogger
	Close() error
	UpsertTuning(runID string, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	Stats() indexdb.Stats
}

// openRuntimeIndex opens the read-model index. It never affects the simulation itself.
func openRuntimeIndex(runDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("MS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(runDir, "index", "run.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported MS_INDEX_BACKEND: %s", backend)
	}
}
