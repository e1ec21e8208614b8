package world

import (
	"mutationsim.ai/internal/persistence/snapshot"
)

func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	agents := w.sortedAgents()
	alive := 0
	out := make([]snapshot.AgentV1, 0, len(agents))
	for _, a := range agents {
		if a.Alive {
			alive++
		}
		out = append(out, snapshot.AgentV1{
			ID:         a.ID,
			Num:        a.Num,
			Program:    a.Program,
			Parent:     a.Parent,
			Pos:        a.Pos.ToArray(),
			Energy:     a.Energy,
			Generation: a.Generation,
			Alive:      a.Alive,
			BornTick:   a.BornTick,
			DiedTick:   a.DiedTick,
			Kills:      a.Kills,
			Children:   a.Children,
		})
	}
	dirs := make([]string, 0, len(w.cfg.ReplicateDirections))
	for _, d := range w.cfg.ReplicateDirections {
		dirs = append(dirs, string(d))
	}

	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:    snapshot.Version,
			RunID:      w.cfg.ID,
			Tick:       w.tick,
			Generation: w.generation,
			Alive:      alive,
			Digest:     w.Digest(),
		},
		Seed:          w.cfg.Seed,
		Width:         w.cfg.Width,
		Height:        w.cfg.Height,
		InitialEnergy: w.cfg.InitialEnergy,
		MaxEnergy:     w.cfg.MaxEnergy,
		Economy: snapshot.EconomyV1{
			RestGain:             w.cfg.RestGain,
			Upkeep:               w.cfg.Upkeep,
			AttackMode:           w.cfg.AttackMode,
			AttackDamage:         w.cfg.AttackDamage,
			AttackDamagePermille: w.cfg.AttackDamagePermille,
			AttackMissPenalty:    w.cfg.AttackMissPenalty,
			KillBonus:            w.cfg.KillBonus,
			ConsumeBonus:         w.cfg.ConsumeBonus,
			DecayTicks:           w.cfg.DecayTicks,
		},
		Replication: snapshot.ReplicationV1{
			MinEnergy:   w.cfg.ReplicateMinEnergy,
			Mode:        w.cfg.ReplicateMode,
			Cost:        w.cfg.ReplicateCost,
			ChildEnergy: w.cfg.ChildEnergy,
			Directions:  dirs,
		},
		TimeoutMS: w.cfg.TimeoutMS,
		Agents:    out,
		Totals: snapshot.TotalsV1{
			Attacks:      w.totals.Attacks,
			Kills:        w.totals.Kills,
			Consumes:     w.totals.Consumes,
			Replications: w.totals.Replications,
			Deaths:       w.totals.Deaths,
			Decayed:      w.totals.Decayed,
			Failures:     w.totals.Failures,
		},
		Counters: snapshot.CountersV1{NextAgent: w.nextAgentNum},
	}
}
