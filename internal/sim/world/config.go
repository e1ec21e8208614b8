package world

import (
	"mutationsim.ai/internal/protocol"
	"mutationsim.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID     string
	Width  int
	Height int
	Seed   int64

	InitialEnergy int
	// MaxEnergy caps energy after every gain. 0 means unbounded.
	MaxEnergy int

	// Economy.
	RestGain             int
	Upkeep               int
	AttackMode           string
	AttackDamage         int
	AttackDamagePermille int
	AttackMissPenalty    int
	KillBonus            int
	ConsumeBonus         int
	DecayTicks           int

	// Replication.
	ReplicateMinEnergy  int
	ReplicateMode       string
	ReplicateCost       int
	ChildEnergy         int
	ReplicateDirections []protocol.Direction

	// TimeoutMS is advertised to agents in their view.
	TimeoutMS int
}

// ConfigFromTuning maps a validated tuning file onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                   id,
		Width:                t.Width(),
		Height:               t.Height(),
		Seed:                 t.Seed,
		InitialEnergy:        t.InitialEnergy,
		MaxEnergy:            t.MaxEnergy,
		RestGain:             t.Energy.RestGain,
		Upkeep:               t.Energy.Upkeep,
		AttackMode:           t.Energy.AttackMode,
		AttackDamage:         t.Energy.AttackDamage,
		AttackDamagePermille: t.Energy.AttackDamagePermille,
		AttackMissPenalty:    t.Energy.AttackMissPenalty,
		KillBonus:            t.Energy.KillBonus,
		ConsumeBonus:         t.Energy.ConsumeBonus,
		DecayTicks:           t.Energy.DecayTicks,
		ReplicateMinEnergy:   t.Replication.MinEnergy,
		ReplicateMode:        t.Replication.Mode,
		ReplicateCost:        t.Replication.Cost,
		ChildEnergy:          t.Replication.ChildEnergy,
		ReplicateDirections:  t.ReplicationDirections(),
		TimeoutMS:            t.Decision.TimeoutMS,
	}
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "run"
	}
	if c.InitialEnergy <= 0 {
		c.InitialEnergy = 10
	}
	if c.AttackMode == "" {
		c.AttackMode = tuning.AttackFixed
	}
	if c.AttackMode == tuning.AttackFixed && c.AttackDamage <= 0 {
		c.AttackDamage = 3
	}
	if c.AttackMode == tuning.AttackProportional && c.AttackDamagePermille <= 0 {
		c.AttackDamagePermille = 500
	}
	if c.ReplicateMinEnergy <= 0 {
		c.ReplicateMinEnergy = 8
	}
	if c.ReplicateMode == "" {
		c.ReplicateMode = tuning.ReplicateSplit
	}
	if c.ReplicateMode == tuning.ReplicateFixed && c.ChildEnergy <= 0 {
		c.ChildEnergy = 4
	}
	if len(c.ReplicateDirections) == 0 {
		c.ReplicateDirections = []protocol.Direction{
			protocol.North, protocol.East, protocol.South, protocol.West,
			protocol.NorthEast, protocol.SouthEast, protocol.SouthWest, protocol.NorthWest,
		}
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 500
	}
}

func (c WorldConfig) clampEnergy(e int) int {
	if c.MaxEnergy > 0 && e > c.MaxEnergy {
		return c.MaxEnergy
	}
	return e
}
