package world

import (
	"path/filepath"
	"testing"

	"mutationsim.ai/internal/persistence/snapshot"
	"mutationsim.ai/internal/protocol"
	"mutationsim.ai/internal/sim/tuning"
)

func testConfig() WorldConfig {
	return WorldConfig{
		ID:                 "test",
		Width:              5,
		Height:             5,
		Seed:               42,
		InitialEnergy:      10,
		MaxEnergy:          20,
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

func newTestWorld(t *testing.T, cfg WorldConfig) *World {
	t.Helper()
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

func mustAdd(t *testing.T, w *World, x, y, energy int) *Agent {
	t.Helper()
	a, err := w.AddAgent("p", Vec2{X: x, Y: y}, energy)
	if err != nil {
		t.Fatalf("add agent: %v", err)
	}
	return a
}

func TestNewRejectsBadSize(t *testing.T) {
	cfg := testConfig()
	cfg.Width = 0
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error for zero width")
	}
}

func TestPopulateDistinctCellsAndDeterministic(t *testing.T) {
	cfg := testConfig()
	w1 := newTestWorld(t, cfg)
	w2 := newTestWorld(t, cfg)
	roster := []Seeding{{Program: "a", Count: 6}, {Program: "b", Count: 4}}
	if _, err := w1.Populate(roster); err != nil {
		t.Fatalf("populate: %v", err)
	}
	if _, err := w2.Populate(roster); err != nil {
		t.Fatalf("populate: %v", err)
	}
	if got := w1.OccupiedCells(); got != 10 {
		t.Fatalf("occupied: got %d want 10", got)
	}
	if w1.Digest() != w2.Digest() {
		t.Fatalf("same seed produced different worlds")
	}

	full := newTestWorld(t, cfg)
	if _, err := full.Populate([]Seeding{{Program: "a", Count: 26}}); err == nil {
		t.Fatalf("expected overflow error")
	}
}

func TestViewNeighbors(t *testing.T) {
	w := newTestWorld(t, testConfig())
	a := mustAdd(t, w, 0, 0, 10)
	b := mustAdd(t, w, 1, 0, 7)

	v, ok := w.View(a.ID)
	if !ok {
		t.Fatalf("no view for %s", a.ID)
	}
	if v.Position != [2]int{0, 0} || v.WorldSize != [2]int{5, 5} || v.Energy != 10 {
		t.Fatalf("unexpected view header: %+v", v)
	}
	if _, ok := v.Neighbors[protocol.North]; ok {
		t.Fatalf("out-of-bounds north should be omitted")
	}
	if _, ok := v.Neighbors[protocol.South]; ok {
		t.Fatalf("empty south should be omitted")
	}
	east := v.Neighbors[protocol.East]
	if east == nil || east.AgentID != b.ID || east.Energy != 7 || east.Dead {
		t.Fatalf("east: got %+v", east)
	}
	if len(v.Neighbors) != 1 {
		t.Fatalf("corner agent neighbors: got %d want 1", len(v.Neighbors))
	}
	for d, n := range v.Neighbors {
		if n == nil {
			t.Fatalf("%s: neighbours must never be null", d)
		}
	}
}

func TestViewsAreDetached(t *testing.T) {
	w := newTestWorld(t, testConfig())
	a := mustAdd(t, w, 1, 1, 10)
	b := mustAdd(t, w, 2, 1, 10)

	views := w.Views()
	w.Step(map[string]protocol.Action{a.ID: protocol.Attack(protocol.East), b.ID: protocol.Rest()})

	for _, v := range views {
		if v.AgentID == b.ID && v.Energy != 10 {
			t.Fatalf("view changed after resolution: %+v", v)
		}
		if v.AgentID == a.ID && v.Neighbors[protocol.East].Energy != 10 {
			t.Fatalf("neighbor changed after resolution: %+v", v.Neighbors[protocol.East])
		}
	}
}

func TestRestGainClamped(t *testing.T) {
	cfg := testConfig()
	cfg.RestGain = 3
	cfg.Upkeep = 1
	w := newTestWorld(t, cfg)
	a := mustAdd(t, w, 2, 2, 10)
	for i := 0; i < 3; i++ {
		w.Step(map[string]protocol.Action{a.ID: protocol.Rest()})
	}
	got, _ := w.Agent(a.ID)
	if got.Energy != 16 {
		t.Fatalf("energy after 3 rests: got %d want 16", got.Energy)
	}
	for i := 0; i < 10; i++ {
		w.Step(map[string]protocol.Action{a.ID: protocol.Rest()})
	}
	got, _ = w.Agent(a.ID)
	if got.Energy != cfg.MaxEnergy {
		t.Fatalf("energy clamp: got %d want %d", got.Energy, cfg.MaxEnergy)
	}
	if w.CurrentTick() != 13 {
		t.Fatalf("tick: got %d want 13", w.CurrentTick())
	}
}

func TestDormantAgentsEarnNoRestGain(t *testing.T) {
	cfg := testConfig()
	cfg.Upkeep = 1
	w := newTestWorld(t, cfg)
	a := mustAdd(t, w, 2, 2, 2)
	out := w.Step(nil)
	if out.Stats.Dormant != 1 {
		t.Fatalf("dormant: got %d want 1", out.Stats.Dormant)
	}
	w.Step(nil)
	got, _ := w.Agent(a.ID)
	if got.Alive || got.Energy != 0 {
		t.Fatalf("dormant agent should starve: %+v", got)
	}
}

func TestAttackKillThenConsume(t *testing.T) {
	cfg := testConfig()
	cfg.RestGain = 0
	w := newTestWorld(t, cfg)
	a := mustAdd(t, w, 1, 1, 10)
	b := mustAdd(t, w, 2, 1, 5)

	out := w.Step(map[string]protocol.Action{a.ID: protocol.Attack(protocol.East), b.ID: protocol.Rest()})
	gb, _ := w.Agent(b.ID)
	if gb.Energy != 2 || !gb.Alive {
		t.Fatalf("b after one hit: %+v", gb)
	}
	if out.Stats.Attacks != 1 || out.Stats.Kills != 0 {
		t.Fatalf("stats: %+v", out.Stats)
	}

	out = w.Step(map[string]protocol.Action{a.ID: protocol.Attack(protocol.East), b.ID: protocol.Rest()})
	gb, _ = w.Agent(b.ID)
	if gb.Alive || gb.Energy > 0 {
		t.Fatalf("b should be dead: %+v", gb)
	}
	ga, _ := w.Agent(a.ID)
	if ga.Energy != 14 || ga.Kills != 1 {
		t.Fatalf("attacker after kill: %+v", ga)
	}
	if out.Stats.Kills != 1 || out.Stats.Deaths != 1 || len(out.Deaths) != 1 || out.Deaths[0] != b.ID {
		t.Fatalf("kill stats: %+v deaths=%v", out.Stats, out.Deaths)
	}
	if w.OccupiedCells() != 2 {
		t.Fatalf("remains should stay on the grid")
	}

	out = w.Step(map[string]protocol.Action{a.ID: protocol.Attack(protocol.East)})
	if _, ok := w.Agent(b.ID); ok {
		t.Fatalf("remains should be consumed")
	}
	ga, _ = w.Agent(a.ID)
	if ga.Energy != 19 || out.Stats.Consumes != 1 {
		t.Fatalf("consume: energy=%d stats=%+v", ga.Energy, out.Stats)
	}
	if w.OccupiedCells() != 1 {
		t.Fatalf("occupied after consume: got %d want 1", w.OccupiedCells())
	}
}

func TestKilledAgentDoesNotAct(t *testing.T) {
	cfg := testConfig()
	cfg.AttackDamage = 10
	w := newTestWorld(t, cfg)
	a := mustAdd(t, w, 1, 1, 10)
	b := mustAdd(t, w, 2, 1, 10)

	out := w.Step(map[string]protocol.Action{a.ID: protocol.Attack(protocol.East), b.ID: protocol.Attack(protocol.West)})
	ga, _ := w.Agent(a.ID)
	if !ga.Alive {
		t.Fatalf("lower id resolves first and should survive: %+v", ga)
	}
	if out.Stats.Attacks != 1 || len(out.Actions) != 1 {
		t.Fatalf("dead agent acted: %+v", out)
	}
}

func TestProportionalDamage(t *testing.T) {
	cfg := testConfig()
	cfg.AttackMode = tuning.AttackProportional
	cfg.AttackDamagePermille = 500
	cfg.RestGain = 0
	w := newTestWorld(t, cfg)
	a := mustAdd(t, w, 1, 1, 10)
	b := mustAdd(t, w, 1, 2, 9)
	w.Step(map[string]protocol.Action{a.ID: protocol.Attack(protocol.South)})
	gb, _ := w.Agent(b.ID)
	if gb.Energy != 5 {
		t.Fatalf("proportional damage: got %d want 5", gb.Energy)
	}
}

func TestAttackMissPenalty(t *testing.T) {
	cfg := testConfig()
	w := newTestWorld(t, cfg)
	a := mustAdd(t, w, 0, 0, 1)
	out := w.Step(map[string]protocol.Action{a.ID: protocol.Attack(protocol.North)})
	ga, _ := w.Agent(a.ID)
	if ga.Alive || out.Stats.Misses != 1 {
		t.Fatalf("miss penalty should kill a 1-energy attacker: %+v %+v", ga, out.Stats)
	}
}

func TestReplicateConditions(t *testing.T) {
	cfg := testConfig()
	cfg.RestGain = 0
	w := newTestWorld(t, cfg)

	poor := mustAdd(t, w, 4, 4, 7)
	out := w.Step(map[string]protocol.Action{poor.ID: protocol.Replicate()})
	if out.Stats.Replications != 0 || out.Stats.ReplicateFailed != 1 {
		t.Fatalf("replication below minimum: %+v", out.Stats)
	}

	rich := mustAdd(t, w, 0, 0, 10)
	out = w.Step(map[string]protocol.Action{rich.ID: protocol.Replicate()})
	if out.Stats.Replications != 1 || len(out.Births) != 1 {
		t.Fatalf("replication: %+v", out)
	}
	child, ok := w.Agent(out.Births[0].Child)
	if !ok {
		t.Fatalf("child missing")
	}
	// North and west are out of bounds; east comes before south in priority order.
	if child.Pos != [2]int{1, 0} || child.Energy != 5 || child.Generation != 1 || child.Parent != rich.ID {
		t.Fatalf("child: %+v", child)
	}
	parent, _ := w.Agent(rich.ID)
	if parent.Energy != 5 || parent.Children != 1 {
		t.Fatalf("parent: %+v", parent)
	}
	if w.Generation() != 1 {
		t.Fatalf("generation: got %d want 1", w.Generation())
	}
}

func TestReplicateNeedsEmptyNeighbor(t *testing.T) {
	cfg := testConfig()
	cfg.Width, cfg.Height = 2, 1
	cfg.RestGain = 1
	w := newTestWorld(t, cfg)
	a := mustAdd(t, w, 0, 0, 10)
	mustAdd(t, w, 1, 0, 10)
	out := w.Step(map[string]protocol.Action{a.ID: protocol.Replicate()})
	if out.Stats.Replications != 0 {
		t.Fatalf("replicated into a full grid")
	}
	ga, _ := w.Agent(a.ID)
	if ga.Energy != 11 {
		t.Fatalf("failed replicate should count as rest: got %d want 11", ga.Energy)
	}
}

func TestReplicateFixedMode(t *testing.T) {
	cfg := testConfig()
	cfg.RestGain = 0
	cfg.ReplicateMode = tuning.ReplicateFixed
	cfg.ReplicateCost = 6
	cfg.ChildEnergy = 3
	w := newTestWorld(t, cfg)
	a := mustAdd(t, w, 2, 2, 8)
	out := w.Step(map[string]protocol.Action{a.ID: protocol.Replicate()})
	if len(out.Births) != 1 {
		t.Fatalf("expected a birth")
	}
	ga, _ := w.Agent(a.ID)
	c, _ := w.Agent(out.Births[0].Child)
	if ga.Energy != 2 || c.Energy != 3 {
		t.Fatalf("fixed replicate: parent=%d child=%d", ga.Energy, c.Energy)
	}
	if c.Pos != [2]int{2, 1} {
		t.Fatalf("child should go north first: %v", c.Pos)
	}
}

func TestRemainsDecay(t *testing.T) {
	cfg := testConfig()
	w := newTestWorld(t, cfg)
	a := mustAdd(t, w, 0, 0, 1)
	w.Step(map[string]protocol.Action{a.ID: protocol.Attack(protocol.West)})
	if _, ok := w.Agent(a.ID); !ok {
		t.Fatalf("remains should exist right after death")
	}
	var decayed []string
	for i := 0; i < 3; i++ {
		out := w.Step(nil)
		decayed = append(decayed, out.Decayed...)
	}
	if len(decayed) != 1 || decayed[0] != a.ID {
		t.Fatalf("decayed: got %v", decayed)
	}
	if w.OccupiedCells() != 0 {
		t.Fatalf("cell not freed")
	}
}

func TestOccupancyNeverExceedsGrid(t *testing.T) {
	cfg := testConfig()
	cfg.Width, cfg.Height = 3, 3
	cfg.ReplicateMinEnergy = 2
	cfg.RestGain = 2
	w := newTestWorld(t, cfg)
	if _, err := w.Populate([]Seeding{{Program: "p", Count: 2}}); err != nil {
		t.Fatalf("populate: %v", err)
	}
	for i := 0; i < 30; i++ {
		actions := map[string]protocol.Action{}
		for _, id := range w.LivingIDs() {
			actions[id] = protocol.Replicate()
		}
		w.Step(actions)
		if got := w.OccupiedCells(); got > 9 {
			t.Fatalf("tick %d: occupied %d > 9", i, got)
		}
		for _, a := range w.Agents() {
			if a.Alive && a.Energy <= 0 {
				t.Fatalf("living agent with non-positive energy: %+v", a)
			}
		}
	}
}

func TestSnapshotRoundTripPreservesDigest(t *testing.T) {
	cfg := testConfig()
	w := newTestWorld(t, cfg)
	if _, err := w.Populate([]Seeding{{Program: "p", Count: 5}}); err != nil {
		t.Fatalf("populate: %v", err)
	}
	w.Step(map[string]protocol.Action{w.LivingIDs()[0]: protocol.Replicate()})

	path := filepath.Join(t.TempDir(), "1.snap.zst")
	if err := snapshot.WriteSnapshot(path, w.ExportSnapshot()); err != nil {
		t.Fatalf("write: %v", err)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	w2, err := FromSnapshot(snap)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if w2.Digest() != w.Digest() {
		t.Fatalf("digest mismatch after round trip")
	}

	actions := map[string]protocol.Action{}
	for _, id := range w.LivingIDs() {
		actions[id] = protocol.Replicate()
	}
	w.Step(actions)
	w2.Step(actions)
	if w2.Digest() != w.Digest() {
		t.Fatalf("worlds diverged after identical actions")
	}
}

func TestDetailedReport(t *testing.T) {
	cfg := testConfig()
	w := newTestWorld(t, cfg)
	a := mustAdd(t, w, 0, 0, 10)
	mustAdd(t, w, 1, 0, 3)
	mustAdd(t, w, 4, 4, 1)
	out := w.Step(map[string]protocol.Action{a.ID: protocol.Attack(protocol.East)})

	r := w.DetailedReport(out.Stats, 1)
	if r.Alive != 2 || r.Dead != 1 || r.Total != 3 || r.Dormant != 1 {
		t.Fatalf("population: %+v", r)
	}
	if r.Totals.Kills != 1 || r.EnergyMax != 14 || r.EnergyMin != 1 || r.EnergyAvg != 7.5 {
		t.Fatalf("report: %+v", r)
	}
	if r.String() == "" {
		t.Fatalf("empty report text")
	}
}

func TestFrame(t *testing.T) {
	w := newTestWorld(t, testConfig())
	mustAdd(t, w, 3, 2, 9)
	f := w.Frame()
	if f.Alive != 1 || f.Total != 1 || f.Width != 5 {
		t.Fatalf("frame: %+v", f)
	}
	if c := f.At(3, 2); !c.Alive || c.Energy != 9 {
		t.Fatalf("cell: %+v", c)
	}
	if c := f.At(9, 9); c.ID != "" {
		t.Fatalf("out-of-bounds cell should be empty")
	}
}
