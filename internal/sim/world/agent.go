package world

import "sort"

// Agent is owned by the World. Dead agents stay on the grid as remains until they decay or are consumed.
type Agent struct {
	ID      string
	Num     uint64
	Program string
	Parent  string

	Pos        Vec2
	Energy     int
	Generation int

	Alive    bool
	BornTick uint64
	DiedTick uint64

	Kills    int
	Children int
}

// sortAgents orders agents by their numeric id, which is the resolution order.
func sortAgents(agents []*Agent) {
	sort.Slice(agents, func(i, j int) bool { return agents[i].Num < agents[j].Num })
}

func (w *World) sortedAgents() []*Agent {
	out := make([]*Agent, 0, len(w.agents))
	for _, a := range w.agents {
		out = append(out, a)
	}
	sortAgents(out)
	return out
}

func (w *World) livingAgents() []*Agent {
	out := make([]*Agent, 0, len(w.agents))
	for _, a := range w.agents {
		if a.Alive {
			out = append(out, a)
		}
	}
	sortAgents(out)
	return out
}

// AgentView is a detached copy of an agent record.
type AgentView struct {
	ID         string `json:"id"`
	Program    string `json:"program"`
	Parent     string `json:"parent,omitempty"`
	Pos        [2]int `json:"pos"`
	Energy     int    `json:"energy"`
	Generation int    `json:"generation"`
	Alive      bool   `json:"alive"`
	BornTick   uint64 `json:"born_tick"`
	DiedTick   uint64 `json:"died_tick,omitempty"`
	Kills      int    `json:"kills"`
	Children   int    `json:"children"`
}

func (a *Agent) view() AgentView {
	v := AgentView{
		ID:         a.ID,
		Program:    a.Program,
		Parent:     a.Parent,
		Pos:        a.Pos.ToArray(),
		Energy:     a.Energy,
		Generation: a.Generation,
		Alive:      a.Alive,
		BornTick:   a.BornTick,
		Kills:      a.Kills,
		Children:   a.Children,
	}
	if !a.Alive {
		v.DiedTick = a.DiedTick
	}
	return v
}
