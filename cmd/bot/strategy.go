package main

import (
	"sort"

	"mutationsim.ai/internal/protocol"
)

// Memory is the state a bot keeps across ticks in AGENT_MEMORY_DIR.
type Memory struct {
	Turns        int      `json:"turns"`
	Attacks      int      `json:"attacks"`
	Consumes     int      `json:"consumes"`
	Replications int      `json:"replications"`
	Recent       [][2]int `json:"recent,omitempty"`
}

const recentPositions = 20

type strategy func(v protocol.View, mem *Memory) protocol.Action

var strategies = map[string]strategy{
	"greedy":    greedy,
	"defensive": defensive,
	"rest":      func(protocol.View, *Memory) protocol.Action { return protocol.Rest() },
}

// replicateAt is the energy at which greedy and defensive bots split.
var replicateAt = 10

func (m *Memory) observe(v protocol.View) {
	m.Turns++
	m.Recent = append(m.Recent, v.Position)
	if len(m.Recent) > recentPositions {
		m.Recent = m.Recent[len(m.Recent)-recentPositions:]
	}
}

// greedy eats remains first, then hunts any living neighbour it outweighs, then grows.
func greedy(v protocol.View, mem *Memory) protocol.Action {
	if d, ok := firstDead(v); ok {
		mem.Consumes++
		return protocol.Attack(d)
	}
	if d, ok := weakest(v, func(n *protocol.Neighbor) bool { return n.Energy < v.Energy }); ok {
		mem.Attacks++
		return protocol.Attack(d)
	}
	if v.Energy >= replicateAt && hasEmpty(v) {
		mem.Replications++
		return protocol.Replicate()
	}
	return protocol.Rest()
}

// defensive only fights neighbours that threaten it and replicates early when cornered.
func defensive(v protocol.View, mem *Memory) protocol.Action {
	threats := 0
	for _, n := range v.Neighbors {
		if n != nil && !n.Dead && n.Energy >= v.Energy {
			threats++
		}
	}
	switch {
	case threats >= 2 && v.Energy <= 4:
		if v.Energy >= 3 && hasEmpty(v) {
			mem.Replications++
			return protocol.Replicate()
		}
		return protocol.Rest()
	case v.Energy >= replicateAt && hasEmpty(v):
		mem.Replications++
		return protocol.Replicate()
	case threats > 0:
		if d, ok := weakest(v, func(n *protocol.Neighbor) bool { return n.Energy >= v.Energy-2 }); ok {
			mem.Attacks++
			return protocol.Attack(d)
		}
	}
	return protocol.Rest()
}

// sortedDirections keeps choices stable across runs; map order is random.
func sortedDirections(v protocol.View) []protocol.Direction {
	out := make([]protocol.Direction, 0, len(v.Neighbors))
	for _, d := range protocol.Directions {
		if _, ok := v.Neighbors[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

func firstDead(v protocol.View) (protocol.Direction, bool) {
	for _, d := range sortedDirections(v) {
		if n := v.Neighbors[d]; n != nil && n.Dead {
			return d, true
		}
	}
	return "", false
}

func weakest(v protocol.View, want func(*protocol.Neighbor) bool) (protocol.Direction, bool) {
	type cand struct {
		d protocol.Direction
		e int
	}
	var cands []cand
	for _, d := range sortedDirections(v) {
		n := v.Neighbors[d]
		if n == nil || n.Dead || !want(n) {
			continue
		}
		cands = append(cands, cand{d, n.Energy})
	}
	if len(cands) == 0 {
		return "", false
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].e < cands[j].e })
	return cands[0].d, true
}

// hasEmpty reports an in-bounds neighbour cell with nobody in it. Views list occupied cells only.
func hasEmpty(v protocol.View) bool {
	for _, d := range protocol.Directions {
		if n, ok := v.Neighbors[d]; ok && n != nil {
			continue
		}
		dx, dy, _ := d.Offset()
		x, y := v.Position[0]+dx, v.Position[1]+dy
		if x >= 0 && y >= 0 && x < v.WorldSize[0] && y < v.WorldSize[1] {
			return true
		}
	}
	return false
}
