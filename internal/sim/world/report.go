package world

import (
	"fmt"
	"sort"
	"strings"
)

type ProgramCount struct {
	Program string `json:"program"`
	Alive   int    `json:"alive"`
}

// Report is a point-in-time summary of the world.
type Report struct {
	RunID      string `json:"run_id"`
	Tick       uint64 `json:"tick"`
	Generation int    `json:"generation"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`

	Alive   int `json:"alive"`
	Dead    int `json:"dead"`
	Dormant int `json:"dormant"`
	Total   int `json:"total"`

	EnergyAvg float64 `json:"energy_avg"`
	EnergyMin int     `json:"energy_min"`
	EnergyMax int     `json:"energy_max"`
	GenMin    int     `json:"gen_min"`
	GenMax    int     `json:"gen_max"`

	Totals   Totals         `json:"totals"`
	Last     TickStats      `json:"last"`
	Programs []ProgramCount `json:"programs,omitempty"`
}

// DetailedReport aggregates population, energy and lineage statistics. dormant is the number of
// living agents without a usable process, which only the engine knows.
func (w *World) DetailedReport(last TickStats, dormant int) Report {
	r := Report{
		RunID:      w.cfg.ID,
		Tick:       w.tick,
		Generation: w.generation,
		Width:      w.grid.Width(),
		Height:     w.grid.Height(),
		Dormant:    dormant,
		Totals:     w.totals,
		Last:       last,
	}
	programs := map[string]int{}
	sum := 0
	for _, a := range w.agents {
		r.Total++
		if !a.Alive {
			r.Dead++
			continue
		}
		if r.Alive == 0 || a.Energy < r.EnergyMin {
			r.EnergyMin = a.Energy
		}
		if r.Alive == 0 || a.Energy > r.EnergyMax {
			r.EnergyMax = a.Energy
		}
		if r.Alive == 0 || a.Generation < r.GenMin {
			r.GenMin = a.Generation
		}
		if r.Alive == 0 || a.Generation > r.GenMax {
			r.GenMax = a.Generation
		}
		r.Alive++
		sum += a.Energy
		programs[a.Program]++
	}
	if r.Alive > 0 {
		r.EnergyAvg = float64(sum) / float64(r.Alive)
	}
	for p, n := range programs {
		r.Programs = append(r.Programs, ProgramCount{Program: p, Alive: n})
	}
	sort.Slice(r.Programs, func(i, j int) bool { return r.Programs[i].Program < r.Programs[j].Program })
	return r
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s tick %d generation %d world %dx%d\n", r.RunID, r.Tick, r.Generation, r.Width, r.Height)
	fmt.Fprintf(&b, "population: alive=%d dead=%d dormant=%d total=%d\n", r.Alive, r.Dead, r.Dormant, r.Total)
	fmt.Fprintf(&b, "energy: avg=%.2f min=%d max=%d\n", r.EnergyAvg, r.EnergyMin, r.EnergyMax)
	fmt.Fprintf(&b, "generations: %d..%d\n", r.GenMin, r.GenMax)
	fmt.Fprintf(&b, "totals: attacks=%d kills=%d consumes=%d replications=%d deaths=%d decayed=%d failures=%d\n",
		r.Totals.Attacks, r.Totals.Kills, r.Totals.Consumes, r.Totals.Replications, r.Totals.Deaths, r.Totals.Decayed, r.Totals.Failures)
	for _, p := range r.Programs {
		fmt.Fprintf(&b, "  %s: %d\n", p.Program, p.Alive)
	}
	return b.String()
}
