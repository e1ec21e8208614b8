package protocol

// View is the only data an agent observes each tick. One JSON object per line.
type View struct {
	Tick       uint64                  `json:"tick"`
	AgentID    string                  `json:"agent_id"`
	Position   [2]int                  `json:"position"`
	Energy     int                     `json:"energy"`
	WorldSize  [2]int                  `json:"world_size"`
	Neighbors  map[Direction]*Neighbor `json:"neighbors"`
	Generation int                     `json:"generation"`
	TimeoutMS  int                     `json:"timeout_ms"`
}

// Neighbor describes an occupied adjacent cell. Only occupied cells appear in View.Neighbors;
// a missing direction is either empty or off the grid, which agents tell apart with Position
// and WorldSize.
type Neighbor struct {
	Energy  int    `json:"energy"`
	AgentID string `json:"agent_id,omitempty"`
	Dead    bool   `json:"dead,omitempty"`
}
