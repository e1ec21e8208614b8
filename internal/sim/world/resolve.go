package world

import (
	"mutationsim.ai/internal/protocol"
	"mutationsim.ai/internal/sim/tuning"
)

// TickStats counts what happened during one resolution phase.
type TickStats struct {
	Rests           int `json:"rests"`
	Dormant         int `json:"dormant"`
	Attacks         int `json:"attacks"`
	Kills           int `json:"kills"`
	Misses          int `json:"misses"`
	Consumes        int `json:"consumes"`
	Replications    int `json:"replications"`
	ReplicateFailed int `json:"replicate_failed"`
	Deaths          int `json:"deaths"`
	Starved         int `json:"starved"`
	Decayed         int `json:"decayed"`
	// Failures is filled in by the engine from the decision phase.
	Failures int `json:"failures"`
}

// Totals accumulates TickStats over the life of the world.
type Totals struct {
	Attacks      uint64 `json:"attacks"`
	Kills        uint64 `json:"kills"`
	Consumes     uint64 `json:"consumes"`
	Replications uint64 `json:"replications"`
	Deaths       uint64 `json:"deaths"`
	Decayed      uint64 `json:"decayed"`
	Failures     uint64 `json:"failures"`
}

func (t *Totals) add(s TickStats) {
	t.Attacks += uint64(s.Attacks)
	t.Kills += uint64(s.Kills)
	t.Consumes += uint64(s.Consumes)
	t.Replications += uint64(s.Replications)
	t.Deaths += uint64(s.Deaths)
	t.Decayed += uint64(s.Decayed)
	t.Failures += uint64(s.Failures)
}

// Birth links a child created by replication to the parent whose program it runs.
type Birth struct {
	Child   string `json:"child"`
	Parent  string `json:"parent"`
	Program string `json:"program"`
	Pos     [2]int `json:"pos"`
}

type TickOutcome struct {
	// Tick is the tick that was resolved; the world is now at Tick+1.
	Tick    uint64
	Stats   TickStats
	Actions []RecordedAction
	Births  []Birth
	Deaths  []string
	Decayed []string
}

// Step resolves one tick of decided actions in ascending agent id order, applies passive energy,
// advances the tick counter and prunes decayed remains. Agents that are alive but have no entry in
// actions are dormant: they act as if resting but earn no rest gain.
func (w *World) Step(actions map[string]protocol.Action) TickOutcome {
	out := TickOutcome{Tick: w.tick}
	order := w.livingAgents()
	rested := make(map[string]bool, len(order))

	for _, a := range order {
		if !a.Alive {
			// Killed earlier this tick.
			continue
		}
		act, ok := actions[a.ID]
		if !ok {
			out.Stats.Dormant++
			continue
		}
		out.Actions = append(out.Actions, RecordedAction{AgentID: a.ID, Act: act})
		switch act.Kind {
		case protocol.ActionAttack:
			w.resolveAttack(a, act.Target, &out)
		case protocol.ActionReplicate:
			if !w.resolveReplicate(a, &out) {
				out.Stats.ReplicateFailed++
				rested[a.ID] = true
			}
		default:
			out.Stats.Rests++
			rested[a.ID] = true
		}
	}

	for _, a := range order {
		if !a.Alive {
			continue
		}
		e := a.Energy - w.cfg.Upkeep
		if rested[a.ID] {
			e += w.cfg.RestGain
		}
		a.Energy = w.cfg.clampEnergy(e)
		if a.Energy <= 0 {
			out.Stats.Starved++
			w.kill(a, "", "STARVED", &out)
		}
	}

	w.tick++
	w.pruneRemains(&out)
	w.refreshGeneration()
	w.totals.add(out.Stats)
	return out
}

func (w *World) resolveAttack(a *Agent, dir protocol.Direction, out *TickOutcome) {
	out.Stats.Attacks++
	p, ok := a.Pos.Step(dir)
	var target *Agent
	if ok {
		target = w.agents[w.grid.At(p)]
	}

	switch {
	case target == nil:
		w.miss(a, string(dir), out)
	case !target.Alive:
		// Remains are eaten instead of being hit.
		a.Energy = w.cfg.clampEnergy(a.Energy + w.cfg.ConsumeBonus)
		w.removeAgent(target)
		out.Stats.Consumes++
		w.audit(AuditEntry{Tick: w.tick, Actor: a.ID, Action: "CONSUME", Target: target.ID, Pos: target.Pos.ToArray(), Energy: a.Energy})
	default:
		target.Energy -= w.damage(target)
		if target.Energy > 0 {
			return
		}
		out.Stats.Kills++
		a.Kills++
		a.Energy = w.cfg.clampEnergy(a.Energy + w.cfg.KillBonus)
		w.audit(AuditEntry{Tick: w.tick, Actor: a.ID, Action: "KILL", Target: target.ID, Pos: target.Pos.ToArray(), Energy: a.Energy})
		w.kill(target, a.ID, "KILLED", out)
	}
}

func (w *World) damage(target *Agent) int {
	if w.cfg.AttackMode == tuning.AttackProportional {
		d := target.Energy * w.cfg.AttackDamagePermille / 1000
		if d < 1 {
			d = 1
		}
		return d
	}
	return w.cfg.AttackDamage
}

func (w *World) miss(a *Agent, target string, out *TickOutcome) {
	out.Stats.Misses++
	if w.cfg.AttackMissPenalty <= 0 {
		return
	}
	a.Energy -= w.cfg.AttackMissPenalty
	w.audit(AuditEntry{Tick: w.tick, Actor: a.ID, Action: "PENALTY", Target: target, Pos: a.Pos.ToArray(), Energy: a.Energy})
	if a.Energy <= 0 {
		w.kill(a, "", "MISS_PENALTY", out)
	}
}

func (w *World) resolveReplicate(a *Agent, out *TickOutcome) bool {
	if a.Energy < w.cfg.ReplicateMinEnergy {
		return false
	}
	var cell Vec2
	found := false
	for _, d := range w.cfg.ReplicateDirections {
		p, ok := a.Pos.Step(d)
		if ok && w.grid.Empty(p) {
			cell, found = p, true
			break
		}
	}
	if !found {
		return false
	}

	var parentLeft, child int
	switch w.cfg.ReplicateMode {
	case tuning.ReplicateFixed:
		parentLeft, child = a.Energy-w.cfg.ReplicateCost, w.cfg.ChildEnergy
	default:
		child = a.Energy / 2
		parentLeft = a.Energy - child
	}
	if parentLeft <= 0 || child <= 0 {
		return false
	}

	a.Energy = parentLeft
	a.Children++
	c := w.newAgent(a.Program, a.ID, cell, w.cfg.clampEnergy(child), a.Generation+1)
	out.Stats.Replications++
	out.Births = append(out.Births, Birth{Child: c.ID, Parent: a.ID, Program: c.Program, Pos: c.Pos.ToArray()})
	w.audit(AuditEntry{Tick: w.tick, Actor: a.ID, Action: "REPLICATE", Target: c.ID, Pos: c.Pos.ToArray(), Energy: c.Energy})
	return true
}

// kill turns a into remains on its cell.
func (w *World) kill(a *Agent, by, reason string, out *TickOutcome) {
	a.Alive = false
	a.DiedTick = w.tick
	out.Stats.Deaths++
	out.Deaths = append(out.Deaths, a.ID)
	w.audit(AuditEntry{Tick: w.tick, Actor: a.ID, Action: "DEATH", Target: by, Pos: a.Pos.ToArray(), Energy: a.Energy, Reason: reason})
}

func (w *World) removeAgent(a *Agent) {
	w.grid.Clear(a.Pos)
	delete(w.agents, a.ID)
}

func (w *World) pruneRemains(out *TickOutcome) {
	if w.cfg.DecayTicks <= 0 {
		return
	}
	for _, a := range w.sortedAgents() {
		if a.Alive || w.tick-a.DiedTick <= uint64(w.cfg.DecayTicks) {
			continue
		}
		w.removeAgent(a)
		out.Stats.Decayed++
		out.Decayed = append(out.Decayed, a.ID)
		w.audit(AuditEntry{Tick: w.tick, Actor: a.ID, Action: "DECAY", Pos: a.Pos.ToArray()})
	}
}

// refreshGeneration keeps the generation counter at the deepest lineage ever seen.
func (w *World) refreshGeneration() {
	for _, a := range w.agents {
		if a.Alive && a.Generation > w.generation {
			w.generation = a.Generation
		}
	}
}

// NoteFailures adds decision-phase failures, which the world does not see, to the running totals.
func (w *World) NoteFailures(n int) {
	if n > 0 {
		w.totals.Failures += uint64(n)
	}
}
