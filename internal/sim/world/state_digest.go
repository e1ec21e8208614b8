package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Digest hashes the deterministic world state. Two worlds fed the same actions from the same
// checkpoint produce the same digest.
func (w *World) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, w.tick)
	digestWriteI64(h, &tmp, int64(w.generation))
	digestWriteI64(h, &tmp, int64(w.grid.Width()))
	digestWriteI64(h, &tmp, int64(w.grid.Height()))
	digestWriteU64(h, &tmp, w.nextAgentNum)

	for _, a := range w.sortedAgents() {
		h.Write([]byte(a.ID))
		h.Write([]byte{0})
		h.Write([]byte(a.Program))
		h.Write([]byte{0, boolByte(a.Alive)})
		digestWriteI64(h, &tmp, int64(a.Pos.X))
		digestWriteI64(h, &tmp, int64(a.Pos.Y))
		digestWriteI64(h, &tmp, int64(a.Energy))
		digestWriteI64(h, &tmp, int64(a.Generation))
		digestWriteU64(h, &tmp, a.BornTick)
		digestWriteU64(h, &tmp, a.DiedTick)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
