package protocol

// Direction names one of the 8 neighbour cells. North is y-1.
type Direction string

const (
	North     Direction = "north"
	NorthEast Direction = "northeast"
	East      Direction = "east"
	SouthEast Direction = "southeast"
	South     Direction = "south"
	SouthWest Direction = "southwest"
	West      Direction = "west"
	NorthWest Direction = "northwest"
)

// Directions lists all directions clockwise from north.
var Directions = []Direction{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}

var offsets = map[Direction][2]int{
	North:     {0, -1},
	NorthEast: {1, -1},
	East:      {1, 0},
	SouthEast: {1, 1},
	South:     {0, 1},
	SouthWest: {-1, 1},
	West:      {-1, 0},
	NorthWest: {-1, -1},
}

func (d Direction) Valid() bool {
	_, ok := offsets[d]
	return ok
}

// Offset returns the unit (dx, dy) for d. ok is false for unknown directions.
func (d Direction) Offset() (dx, dy int, ok bool) {
	o, ok := offsets[d]
	return o[0], o[1], ok
}

// ParseDirections validates a configured priority list.
func ParseDirections(names []string) ([]Direction, error) {
	out := make([]Direction, 0, len(names))
	seen := map[Direction]bool{}
	for _, n := range names {
		d := Direction(n)
		if !d.Valid() {
			return nil, &DecodeError{Code: ErrBadDirection, Detail: n}
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}
