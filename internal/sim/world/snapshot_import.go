package world

import (
	"fmt"

	"mutationsim.ai/internal/persistence/snapshot"
	"mutationsim.ai/internal/protocol"
)

// FromSnapshot rebuilds a world from a checkpoint. It is used by offline tools to re-apply
// recorded actions; the returned world has no processes attached.
func FromSnapshot(s snapshot.SnapshotV1) (*World, error) {
	if s.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Header.Version)
	}
	dirs, err := protocol.ParseDirections(s.Replication.Directions)
	if err != nil {
		return nil, fmt.Errorf("snapshot replication directions: %w", err)
	}
	w, err := New(WorldConfig{
		ID:                   s.Header.RunID,
		Width:                s.Width,
		Height:               s.Height,
		Seed:                 s.Seed,
		InitialEnergy:        s.InitialEnergy,
		MaxEnergy:            s.MaxEnergy,
		RestGain:             s.Economy.RestGain,
		Upkeep:               s.Economy.Upkeep,
		AttackMode:           s.Economy.AttackMode,
		AttackDamage:         s.Economy.AttackDamage,
		AttackDamagePermille: s.Economy.AttackDamagePermille,
		AttackMissPenalty:    s.Economy.AttackMissPenalty,
		KillBonus:            s.Economy.KillBonus,
		ConsumeBonus:         s.Economy.ConsumeBonus,
		DecayTicks:           s.Economy.DecayTicks,
		ReplicateMinEnergy:   s.Replication.MinEnergy,
		ReplicateMode:        s.Replication.Mode,
		ReplicateCost:        s.Replication.Cost,
		ChildEnergy:          s.Replication.ChildEnergy,
		ReplicateDirections:  dirs,
		TimeoutMS:            s.TimeoutMS,
	})
	if err != nil {
		return nil, err
	}
	w.tick = s.Header.Tick
	w.generation = s.Header.Generation
	w.nextAgentNum = s.Counters.NextAgent

	for _, a := range s.Agents {
		if _, dup := w.agents[a.ID]; dup {
			return nil, fmt.Errorf("snapshot: duplicate agent %s", a.ID)
		}
		rec := &Agent{
			ID:         a.ID,
			Num:        a.Num,
			Program:    a.Program,
			Parent:     a.Parent,
			Pos:        Vec2FromArray(a.Pos),
			Energy:     a.Energy,
			Generation: a.Generation,
			Alive:      a.Alive,
			BornTick:   a.BornTick,
			DiedTick:   a.DiedTick,
			Kills:      a.Kills,
			Children:   a.Children,
		}
		if !w.grid.Put(rec.Pos, rec.ID) {
			return nil, fmt.Errorf("snapshot: agent %s at (%d,%d) overlaps or is out of bounds", a.ID, a.Pos[0], a.Pos[1])
		}
		w.agents[rec.ID] = rec
	}
	w.totals = Totals{
		Attacks:      s.Totals.Attacks,
		Kills:        s.Totals.Kills,
		Consumes:     s.Totals.Consumes,
		Replications: s.Totals.Replications,
		Deaths:       s.Totals.Deaths,
		Decayed:      s.Totals.Decayed,
		Failures:     s.Totals.Failures,
	}
	if d := w.Digest(); s.Header.Digest != "" && d != s.Header.Digest {
		return nil, fmt.Errorf("snapshot digest mismatch: header %s computed %s", s.Header.Digest, d)
	}
	return w, nil
}
