package observerproto

import (
	"mutationsim.ai/internal/protocol"
	"mutationsim.ai/internal/sim/world"
)

// Version is the observer protocol version (separate from the agent stdio protocol).
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "TICK"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// IncludeAgents adds the full agent list to every tick.
	IncludeAgents bool `json:"include_agents,omitempty"`
	// IncludeGrid adds the RLE cell grid to every tick.
	IncludeGrid bool `json:"include_grid,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	AgentProtocol   string      `json:"agent_protocol"`
	RunID           string      `json:"run_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	CellPalette     []string    `json:"cell_palette"`
}

type WorldParams struct {
	Width      int   `json:"width"`
	Height     int   `json:"height"`
	TickRateHz int   `json:"tick_rate_hz"`
	Seed       int64 `json:"seed"`
	TimeoutMS  int   `json:"timeout_ms"`
	HighEnergy int   `json:"high_energy"`
	LowEnergy  int   `json:"low_energy"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Paused          bool   `json:"paused,omitempty"`

	Report   world.Report     `json:"report"`
	Actions  []RecordedAction `json:"actions,omitempty"`
	Births   []world.Birth    `json:"births,omitempty"`
	Deaths   []string         `json:"deaths,omitempty"`
	Failures []world.Failure  `json:"failures,omitempty"`

	Agents []world.AgentView `json:"agents,omitempty"`
	// Grid is the row-major cell state grid, RLE encoded (see encoding.EncodeRLE).
	Grid string `json:"grid,omitempty"`
}

type RecordedAction struct {
	AgentID string          `json:"agent_id"`
	Act     protocol.Action `json:"act"`
}
