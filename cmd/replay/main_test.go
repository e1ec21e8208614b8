package main

import (
	"strings"
	"testing"

	persistlog "mutationsim.ai/internal/persistence/log"
	"mutationsim.ai/internal/persistence/snapshot"
	"mutationsim.ai/internal/protocol"
	"mutationsim.ai/internal/sim/tuning"
	"mutationsim.ai/internal/sim/world"
)

func replayConfig() world.WorldConfig {
	return world.WorldConfig{
		ID:                 "replay_test",
		Width:              6,
		Height:             6,
		Seed:               7,
		InitialEnergy:      10,
		MaxEnergy:          30,
		RestGain:           1,
		AttackMode:         tuning.AttackFixed,
		AttackDamage:       3,
		AttackMissPenalty:  1,
		KillBonus:          4,
		ConsumeBonus:       5,
		DecayTicks:         2,
		ReplicateMinEnergy: 8,
		ReplicateMode:      tuning.ReplicateSplit,
	}
}

// recordRun steps a world for n ticks, logging every tick and returning the checkpoint taken
// after tick `at`.
func recordRun(t *testing.T, runDir string, n int, at uint64, tamper func(*world.TickLogEntry)) snapshot.SnapshotV1 {
	t.Helper()
	w, err := world.New(replayConfig())
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	if _, err := w.Populate([]world.Seeding{{Program: "p", Count: 4}}); err != nil {
		t.Fatalf("populate: %v", err)
	}
	logger := persistlog.NewTickLogger(runDir, 4)
	defer logger.Close()

	var snap snapshot.SnapshotV1
	for i := 0; i < n; i++ {
		actions := map[string]protocol.Action{}
		for j, id := range w.LivingIDs() {
			switch j % 3 {
			case 0:
				actions[id] = protocol.Replicate()
			case 1:
				actions[id] = protocol.Attack(protocol.Directions[(i+j)%len(protocol.Directions)])
			}
		}
		out := w.Step(actions)
		e := world.TickLogEntry{Tick: out.Tick, Actions: out.Actions, Births: out.Births, Deaths: out.Deaths, Stats: out.Stats, Digest: w.Digest()}
		if tamper != nil {
			tamper(&e)
		}
		if err := logger.WriteTick(e); err != nil {
			t.Fatalf("write tick: %v", err)
		}
		if w.CurrentTick() == at {
			snap = w.ExportSnapshot()
		}
	}
	return snap
}

func TestReplayVerifiesDigests(t *testing.T) {
	dir := t.TempDir()
	snap := recordRun(t, dir, 8, 3, nil)

	w, err := world.FromSnapshot(snap)
	if err != nil {
		t.Fatalf("from snapshot: %v", err)
	}
	res, err := replay(w, dir, 0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Checked != 5 {
		t.Fatalf("checked: got %d want 5", res.Checked)
	}
	if w.CurrentTick() != 8 {
		t.Fatalf("tick: got %d want 8", w.CurrentTick())
	}
}

func TestReplayStopsAtToTick(t *testing.T) {
	dir := t.TempDir()
	snap := recordRun(t, dir, 8, 2, nil)
	w, err := world.FromSnapshot(snap)
	if err != nil {
		t.Fatalf("from snapshot: %v", err)
	}
	res, err := replay(w, dir, 0, 4)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Checked != 3 || res.Last != 4 {
		t.Fatalf("got checked=%d last=%d want 3/4", res.Checked, res.Last)
	}
}

func TestReplayDetectsDigestMismatch(t *testing.T) {
	dir := t.TempDir()
	snap := recordRun(t, dir, 6, 2, func(e *world.TickLogEntry) {
		if e.Tick == 4 {
			e.Digest = "bogus"
		}
	})
	w, err := world.FromSnapshot(snap)
	if err != nil {
		t.Fatalf("from snapshot: %v", err)
	}
	_, err = replay(w, dir, 0, 0)
	if err == nil || !strings.Contains(err.Error(), "digest mismatch at tick 4") {
		t.Fatalf("want digest mismatch, got %v", err)
	}
}

func TestReplayWithoutLogs(t *testing.T) {
	w, err := world.New(replayConfig())
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	if _, err := replay(w, t.TempDir(), 0, 0); err == nil {
		t.Fatalf("want error for empty run dir")
	}
}
