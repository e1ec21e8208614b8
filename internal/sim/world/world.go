package world

import (
	"fmt"
	"math/rand"

	"mutationsim.ai/internal/protocol"
)

// Seeding asks Populate for Count agents running Program.
type Seeding struct {
	Program string
	Count   int
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type RecordedAction struct {
	AgentID string          `json:"agent_id"`
	Act     protocol.Action `json:"act"`
}

// Failure records why an agent's decision degraded to rest (or was skipped) this tick.
type Failure struct {
	AgentID string `json:"agent_id"`
	Code    string `json:"code"`
}

type TickLogEntry struct {
	Tick     uint64           `json:"tick"`
	Actions  []RecordedAction `json:"actions,omitempty"`
	Failures []Failure        `json:"failures,omitempty"`
	Births   []Birth          `json:"births,omitempty"`
	Deaths   []string         `json:"deaths,omitempty"`
	Stats    TickStats        `json:"stats"`
	Digest   string           `json:"digest"`
}

// ActionMap rebuilds the action input that produced this entry.
func (e TickLogEntry) ActionMap() map[string]protocol.Action {
	m := make(map[string]protocol.Action, len(e.Actions))
	for _, a := range e.Actions {
		m[a.AgentID] = a.Act
	}
	return m
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"` // e.g. "KILL"
	Target string `json:"target,omitempty"`
	Pos    [2]int `json:"pos"`
	Energy int    `json:"energy"`
	Reason string `json:"reason,omitempty"`
}

// World is the authoritative grid simulation. It is not safe for concurrent use: the engine reads it
// to build views and then mutates it during resolution, both from one goroutine.
type World struct {
	cfg WorldConfig

	tick       uint64
	generation int

	grid   *Grid
	agents map[string]*Agent

	nextAgentNum uint64
	totals       Totals

	auditLogger AuditLogger
}

func New(cfg WorldConfig) (*World, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("world: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	cfg.applyDefaults()
	return &World{
		cfg:    cfg,
		grid:   NewGrid(cfg.Width, cfg.Height),
		agents: map[string]*Agent{},
	}, nil
}

func (w *World) Config() WorldConfig          { return w.cfg }
func (w *World) ID() string                   { return w.cfg.ID }
func (w *World) CurrentTick() uint64          { return w.tick }
func (w *World) Generation() int              { return w.generation }
func (w *World) Size() (int, int)             { return w.grid.Width(), w.grid.Height() }
func (w *World) Totals() Totals               { return w.totals }
func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }

// Populate scatters the roster over distinct random cells drawn from the world seed.
func (w *World) Populate(roster []Seeding) ([]*Agent, error) {
	total := 0
	for _, s := range roster {
		total += s.Count
	}
	free := make([]Vec2, 0, w.cfg.Width*w.cfg.Height)
	for y := 0; y < w.cfg.Height; y++ {
		for x := 0; x < w.cfg.Width; x++ {
			p := Vec2{X: x, Y: y}
			if w.grid.Empty(p) {
				free = append(free, p)
			}
		}
	}
	if total > len(free) {
		return nil, fmt.Errorf("world: %d agents do not fit in %d free cells", total, len(free))
	}
	rng := rand.New(rand.NewSource(w.cfg.Seed))
	rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })

	out := make([]*Agent, 0, total)
	i := 0
	for _, s := range roster {
		for n := 0; n < s.Count; n++ {
			a, err := w.AddAgent(s.Program, free[i], w.cfg.InitialEnergy)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
			i++
		}
	}
	return out, nil
}

// AddAgent places a generation-0 agent at pos.
func (w *World) AddAgent(program string, pos Vec2, energy int) (*Agent, error) {
	if !w.grid.Empty(pos) {
		return nil, fmt.Errorf("world: cell (%d,%d) is not free", pos.X, pos.Y)
	}
	return w.newAgent(program, "", pos, energy, 0), nil
}

func (w *World) newAgent(program, parent string, pos Vec2, energy, generation int) *Agent {
	w.nextAgentNum++
	a := &Agent{
		ID:         fmt.Sprintf("A%06d", w.nextAgentNum),
		Num:        w.nextAgentNum,
		Program:    program,
		Parent:     parent,
		Pos:        pos,
		Energy:     energy,
		Generation: generation,
		Alive:      true,
		BornTick:   w.tick,
	}
	w.agents[a.ID] = a
	w.grid.Put(pos, a.ID)
	if generation > w.generation {
		w.generation = generation
	}
	return a
}

// Agent returns a detached copy of the agent record.
func (w *World) Agent(id string) (AgentView, bool) {
	a := w.agents[id]
	if a == nil {
		return AgentView{}, false
	}
	return a.view(), true
}

// Agents returns detached copies of every agent (living and remains) in resolution order.
func (w *World) Agents() []AgentView {
	agents := w.sortedAgents()
	out := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.view())
	}
	return out
}

// LivingIDs lists living agents in resolution order.
func (w *World) LivingIDs() []string {
	living := w.livingAgents()
	out := make([]string, 0, len(living))
	for _, a := range living {
		out = append(out, a.ID)
	}
	return out
}

func (w *World) OccupiedCells() int { return w.grid.Occupied() }

// Views captures the per-agent observation for every living agent. Views are computed from the state
// at call time and share nothing with the world afterwards.
func (w *World) Views() []protocol.View {
	living := w.livingAgents()
	out := make([]protocol.View, 0, len(living))
	for _, a := range living {
		out = append(out, w.viewFor(a))
	}
	return out
}

func (w *World) View(id string) (protocol.View, bool) {
	a := w.agents[id]
	if a == nil || !a.Alive {
		return protocol.View{}, false
	}
	return w.viewFor(a), true
}

func (w *World) viewFor(a *Agent) protocol.View {
	nb := make(map[protocol.Direction]*protocol.Neighbor, len(protocol.Directions))
	for _, d := range protocol.Directions {
		p, _ := a.Pos.Step(d)
		if !w.grid.In(p) {
			continue
		}
		id := w.grid.At(p)
		if id == "" {
			continue
		}
		o := w.agents[id]
		n := &protocol.Neighbor{AgentID: o.ID, Energy: o.Energy, Dead: !o.Alive}
		if n.Dead && n.Energy < 0 {
			n.Energy = 0
		}
		nb[d] = n
	}
	return protocol.View{
		Tick:       w.tick,
		AgentID:    a.ID,
		Position:   a.Pos.ToArray(),
		Energy:     a.Energy,
		WorldSize:  [2]int{w.grid.Width(), w.grid.Height()},
		Neighbors:  nb,
		Generation: a.Generation,
		TimeoutMS:  w.cfg.TimeoutMS,
	}
}

func (w *World) audit(e AuditEntry) {
	if w.auditLogger != nil {
		_ = w.auditLogger.WriteAudit(e)
	}
}
