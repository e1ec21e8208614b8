package world

import "mutationsim.ai/internal/protocol"

type Vec2 struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (v Vec2) ToArray() [2]int { return [2]int{v.X, v.Y} }

func Vec2FromArray(a [2]int) Vec2 { return Vec2{X: a[0], Y: a[1]} }

// Step returns the neighbour of v in direction d.
func (v Vec2) Step(d protocol.Direction) (Vec2, bool) {
	dx, dy, ok := d.Offset()
	if !ok {
		return v, false
	}
	return Vec2{X: v.X + dx, Y: v.Y + dy}, true
}
