package world

// Grid is a fixed-size cell array. A cell holds at most one agent id (living or remains).
type Grid struct {
	w, h  int
	cells []string
}

func NewGrid(w, h int) *Grid {
	return &Grid{w: w, h: h, cells: make([]string, w*h)}
}

func (g *Grid) Width() int  { return g.w }
func (g *Grid) Height() int { return g.h }

func (g *Grid) In(p Vec2) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < g.w && p.Y < g.h
}

func (g *Grid) idx(p Vec2) int { return p.Y*g.w + p.X }

// At returns the occupant id at p, or "" when empty or out of bounds.
func (g *Grid) At(p Vec2) string {
	if !g.In(p) {
		return ""
	}
	return g.cells[g.idx(p)]
}

func (g *Grid) Empty(p Vec2) bool {
	return g.In(p) && g.cells[g.idx(p)] == ""
}

// Put places id at p. It refuses occupied or out-of-bounds cells.
func (g *Grid) Put(p Vec2, id string) bool {
	if !g.Empty(p) || id == "" {
		return false
	}
	g.cells[g.idx(p)] = id
	return true
}

func (g *Grid) Clear(p Vec2) {
	if g.In(p) {
		g.cells[g.idx(p)] = ""
	}
}

func (g *Grid) Occupied() int {
	n := 0
	for _, c := range g.cells {
		if c != "" {
			n++
		}
	}
	return n
}
