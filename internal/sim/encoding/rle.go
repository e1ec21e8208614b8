package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Cell states carried in observer frames.
const (
	CellEmpty uint16 = iota
	CellDead
	CellLow
	CellMedium
	CellHigh
)

// Palette names the cell states by index.
var Palette = []string{"EMPTY", "DEAD", "LOW", "MEDIUM", "HIGH"}

// Bands classifies living-agent energy. Energy >= High is high, energy <= Low is low.
type Bands struct {
	Low  int
	High int
}

func (b Bands) Classify(occupied, alive bool, energy int) uint16 {
	switch {
	case !occupied:
		return CellEmpty
	case !alive:
		return CellDead
	case energy >= b.High:
		return CellHigh
	case energy <= b.Low:
		return CellLow
	default:
		return CellMedium
	}
}

// EncodeRLE encodes a sequence of cell states into base64(varint pairs).
// The pairs are (state, run_len) repeated.
func EncodeRLE(ids []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(ids) {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(b))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE expands an encoded grid. It refuses to produce more than limit cells (limit <= 0 means
// no limit) or states outside the palette.
func DecodeRLE(b64 string, limit int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if b >= uint64(len(Palette)) {
			return nil, fmt.Errorf("unknown cell state: %d", b)
		}
		if limit > 0 && uint64(len(out))+run > uint64(limit) {
			return nil, fmt.Errorf("grid longer than %d cells", limit)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(b))
		}
	}
	return out, nil
}
