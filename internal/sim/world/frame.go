package world

// Cell is one rendered grid cell. ID is empty for free cells.
type Cell struct {
	ID     string `json:"id,omitempty"`
	Energy int    `json:"energy,omitempty"`
	Alive  bool   `json:"alive,omitempty"`
}

// Frame is a detached, read-only copy of the grid for renderers.
type Frame struct {
	Tick       uint64 `json:"tick"`
	Generation int    `json:"generation"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Alive      int    `json:"alive"`
	Total      int    `json:"total"`
	// Cells is row-major: Cells[y*Width+x].
	Cells []Cell `json:"cells"`
}

func (f Frame) At(x, y int) Cell {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return Cell{}
	}
	return f.Cells[y*f.Width+x]
}

func (w *World) Frame() Frame {
	f := Frame{
		Tick:       w.tick,
		Generation: w.generation,
		Width:      w.grid.Width(),
		Height:     w.grid.Height(),
		Cells:      make([]Cell, len(w.grid.cells)),
	}
	for i, id := range w.grid.cells {
		if id == "" {
			continue
		}
		a := w.agents[id]
		f.Cells[i] = Cell{ID: a.ID, Energy: a.Energy, Alive: a.Alive}
		f.Total++
		if a.Alive {
			f.Alive++
		}
	}
	return f
}
