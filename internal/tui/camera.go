package tui

// Camera is the top-left world coordinate shown in the viewport.
type Camera struct {
	X int
	Y int
}

// Clamp keeps the visible rectangle inside the world. A viewport wider or
// taller than the world pins that axis to 0.
func (c Camera) Clamp(worldW, worldH, viewW, viewH int) Camera {
	c.X = clampAxis(c.X, worldW-viewW)
	c.Y = clampAxis(c.Y, worldH-viewH)
	return c
}

func (c Camera) Pan(dx, dy int) Camera {
	c.X += dx
	c.Y += dy
	return c
}

func clampAxis(v, hi int) int {
	if hi < 0 {
		hi = 0
	}
	if v > hi {
		v = hi
	}
	if v < 0 {
		v = 0
	}
	return v
}
