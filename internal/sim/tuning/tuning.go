package tuning

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"gopkg.in/yaml.v3"

	"mutationsim.ai/internal/protocol"
)

const (
	AttackFixed        = "fixed"
	AttackProportional = "proportional"

	ReplicateSplit = "split"
	ReplicateFixed = "fixed"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	Seed               int64 `yaml:"seed"`
	TickRateHz         int   `yaml:"tick_rate_hz"`
	WorldSize          []int `yaml:"world_size"`
	InitialEnergy      int   `yaml:"initial_energy"`
	MaxEnergy          int   `yaml:"max_energy"`
	SnapshotEveryTicks int   `yaml:"snapshot_every_ticks"`
	// LogSegmentTicks is how many ticks one tick/audit log segment covers.
	LogSegmentTicks int `yaml:"log_segment_ticks"`

	// MemoryDir, if set, gets one sub-directory per agent exposed as AGENT_MEMORY_DIR.
	MemoryDir string `yaml:"memory_dir"`

	Energy      Energy      `yaml:"energy"`
	Replication Replication `yaml:"replication"`
	Decision    Decision    `yaml:"decision"`
	Render      Render      `yaml:"render"`

	Agents []AgentSpec `yaml:"agents"`
}

type Energy struct {
	RestGain             int    `yaml:"rest_gain"`
	Upkeep               int    `yaml:"upkeep"`
	AttackMode           string `yaml:"attack_mode"`
	AttackDamage         int    `yaml:"attack_damage"`
	AttackDamagePermille int    `yaml:"attack_damage_permille"`
	AttackMissPenalty    int    `yaml:"attack_miss_penalty"`
	KillBonus            int    `yaml:"kill_bonus"`
	ConsumeBonus         int    `yaml:"consume_bonus"`
	DecayTicks           int    `yaml:"decay_ticks"`
}

type Replication struct {
	MinEnergy   int      `yaml:"min_energy"`
	Mode        string   `yaml:"mode"`
	Cost        int      `yaml:"cost"`
	ChildEnergy int      `yaml:"child_energy"`
	Directions  []string `yaml:"directions"`
}

type Decision struct {
	TimeoutMS            int  `yaml:"timeout_ms"`
	Parallel             bool `yaml:"parallel"`
	Workers              int  `yaml:"workers"`
	ConcurrencyThreshold int  `yaml:"concurrency_threshold"`
}

type Render struct {
	HighEnergy int `yaml:"high_energy"`
	LowEnergy  int `yaml:"low_energy"`
}

// AgentSpec describes one agent program and how many copies start in the world.
type AgentSpec struct {
	Program string            `yaml:"program"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args,omitempty"`
	Count   int               `yaml:"count"`
	Env     map[string]string `yaml:"env,omitempty"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    protocol.Version,
		Seed:               1337,
		TickRateHz:         5,
		WorldSize:          []int{64, 32},
		InitialEnergy:      10,
		MaxEnergy:          50,
		SnapshotEveryTicks: 500,
		LogSegmentTicks:    10000,
		Energy: Energy{
			RestGain:             1,
			Upkeep:               0,
			AttackMode:           AttackFixed,
			AttackDamage:         3,
			AttackDamagePermille: 500,
			AttackMissPenalty:    1,
			KillBonus:            4,
			ConsumeBonus:         3,
			DecayTicks:           20,
		},
		Replication: Replication{
			MinEnergy:   8,
			Mode:        ReplicateSplit,
			Cost:        4,
			ChildEnergy: 4,
			Directions: []string{
				"north", "east", "south", "west",
				"northeast", "southeast", "southwest", "northwest",
			},
		},
		Decision: Decision{
			TimeoutMS:            500,
			Parallel:             true,
			Workers:              8,
			ConcurrencyThreshold: 10,
		},
		Render: Render{
			HighEnergy: 15,
			LowEnergy:  5,
		},
	}
}

// Load reads a tuning file on top of Defaults and validates it.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	t.Energy.AttackMode = strings.ToLower(strings.TrimSpace(t.Energy.AttackMode))
	t.Replication.Mode = strings.ToLower(strings.TrimSpace(t.Replication.Mode))
	for i := range t.Agents {
		a := &t.Agents[i]
		a.Program = strings.TrimSpace(a.Program)
		a.Command = strings.TrimSpace(a.Command)
		if a.Program == "" {
			a.Program = fmt.Sprintf("program%d", i+1)
		}
		if a.Count <= 0 {
			a.Count = 1
		}
	}
}

func (t Tuning) Width() int {
	if len(t.WorldSize) < 1 {
		return 0
	}
	return t.WorldSize[0]
}

func (t Tuning) Height() int {
	if len(t.WorldSize) < 2 {
		return 0
	}
	return t.WorldSize[1]
}

// Population is the number of agents placed at startup.
func (t Tuning) Population() int {
	n := 0
	for _, a := range t.Agents {
		n += a.Count
	}
	return n
}

func (t Tuning) Validate() error {
	if len(t.WorldSize) != 2 {
		return fmt.Errorf("world_size: want [width, height], got %v", t.WorldSize)
	}
	if t.Width() <= 0 || t.Height() <= 0 {
		return fmt.Errorf("world_size: dimensions must be positive, got %dx%d", t.Width(), t.Height())
	}
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz: must be positive")
	}
	if t.InitialEnergy <= 0 {
		return fmt.Errorf("initial_energy: must be positive")
	}
	if t.LogSegmentTicks < 0 {
		return fmt.Errorf("log_segment_ticks: must not be negative")
	}
	if t.MaxEnergy < 0 || (t.MaxEnergy > 0 && t.MaxEnergy < t.InitialEnergy) {
		return fmt.Errorf("max_energy: must be 0 (unbounded) or >= initial_energy")
	}
	switch t.Energy.AttackMode {
	case AttackFixed:
		if t.Energy.AttackDamage <= 0 {
			return fmt.Errorf("energy.attack_damage: must be positive")
		}
	case AttackProportional:
		if t.Energy.AttackDamagePermille <= 0 || t.Energy.AttackDamagePermille > 1000 {
			return fmt.Errorf("energy.attack_damage_permille: must be in 1..1000")
		}
	default:
		return fmt.Errorf("energy.attack_mode: unknown mode %q", t.Energy.AttackMode)
	}
	if t.Energy.DecayTicks < 0 || t.Energy.AttackMissPenalty < 0 || t.Energy.Upkeep < 0 || t.Energy.RestGain < 0 {
		return fmt.Errorf("energy: decay_ticks, attack_miss_penalty, upkeep and rest_gain must not be negative")
	}
	if t.Replication.MinEnergy <= 0 {
		return fmt.Errorf("replication.min_energy: must be positive")
	}
	switch t.Replication.Mode {
	case ReplicateSplit:
	case ReplicateFixed:
		if t.Replication.ChildEnergy <= 0 {
			return fmt.Errorf("replication.child_energy: must be positive")
		}
		if t.Replication.Cost < 0 {
			return fmt.Errorf("replication.cost: must not be negative")
		}
	default:
		return fmt.Errorf("replication.mode: unknown mode %q", t.Replication.Mode)
	}
	dirs, err := protocol.ParseDirections(t.Replication.Directions)
	if err != nil {
		return fmt.Errorf("replication.directions: %w", err)
	}
	if len(dirs) == 0 {
		return fmt.Errorf("replication.directions: empty")
	}
	if t.Decision.TimeoutMS <= 0 {
		return fmt.Errorf("decision.timeout_ms: must be positive")
	}
	if t.Decision.Workers <= 0 {
		return fmt.Errorf("decision.workers: must be positive")
	}
	if t.Decision.ConcurrencyThreshold < 0 {
		return fmt.Errorf("decision.concurrency_threshold: must not be negative")
	}
	if len(t.Agents) == 0 {
		return errors.New("agents: at least one agent program is required")
	}
	seen := map[string]bool{}
	for i, a := range t.Agents {
		if a.Command == "" {
			return fmt.Errorf("agents[%d]: missing command", i)
		}
		if seen[a.Program] {
			return fmt.Errorf("agents[%d]: duplicate program %q", i, a.Program)
		}
		seen[a.Program] = true
	}
	if n, cells := t.Population(), t.Width()*t.Height(); n > cells {
		return fmt.Errorf("agents: %d agents do not fit in %d cells", n, cells)
	}
	return nil
}

// ResolveCommands replaces each agent command with its absolute executable path.
func (t *Tuning) ResolveCommands() error {
	for i := range t.Agents {
		p, err := exec.LookPath(t.Agents[i].Command)
		if err != nil {
			return fmt.Errorf("agents[%d] (%s): %w", i, t.Agents[i].Program, err)
		}
		t.Agents[i].Command = p
	}
	return nil
}

// ReplicationDirections returns the parsed priority order. Call after Validate.
func (t Tuning) ReplicationDirections() []protocol.Direction {
	dirs, _ := protocol.ParseDirections(t.Replication.Directions)
	return dirs
}
