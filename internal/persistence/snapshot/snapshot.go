package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version    int    `json:"version"`
	RunID      string `json:"run_id"`
	Tick       uint64 `json:"tick"`
	Generation int    `json:"generation"`
	Alive      int    `json:"alive"`
	Digest     string `json:"digest"`
}

// SnapshotV1 is a checkpoint of a run. Checkpoints are written for offline inspection and replay
// verification; a running simulation never loads one.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed          int64 `json:"seed"`
	Width         int   `json:"width"`
	Height        int   `json:"height"`
	InitialEnergy int   `json:"initial_energy"`
	MaxEnergy     int   `json:"max_energy,omitempty"`

	Economy     EconomyV1     `json:"economy"`
	Replication ReplicationV1 `json:"replication"`
	TimeoutMS   int           `json:"timeout_ms"`

	Agents []AgentV1 `json:"agents"`

	Totals   TotalsV1   `json:"totals"`
	Counters CountersV1 `json:"counters"`
}

type EconomyV1 struct {
	RestGain             int    `json:"rest_gain"`
	Upkeep               int    `json:"upkeep"`
	AttackMode           string `json:"attack_mode"`
	AttackDamage         int    `json:"attack_damage"`
	AttackDamagePermille int    `json:"attack_damage_permille"`
	AttackMissPenalty    int    `json:"attack_miss_penalty"`
	KillBonus            int    `json:"kill_bonus"`
	ConsumeBonus         int    `json:"consume_bonus"`
	DecayTicks           int    `json:"decay_ticks"`
}

type ReplicationV1 struct {
	MinEnergy   int      `json:"min_energy"`
	Mode        string   `json:"mode"`
	Cost        int      `json:"cost"`
	ChildEnergy int      `json:"child_energy"`
	Directions  []string `json:"directions"`
}

type AgentV1 struct {
	ID         string `json:"id"`
	Num        uint64 `json:"num"`
	Program    string `json:"program"`
	Parent     string `json:"parent,omitempty"`
	Pos        [2]int `json:"pos"`
	Energy     int    `json:"energy"`
	Generation int    `json:"generation"`
	Alive      bool   `json:"alive"`
	BornTick   uint64 `json:"born_tick"`
	DiedTick   uint64 `json:"died_tick,omitempty"`
	Kills      int    `json:"kills"`
	Children   int    `json:"children"`
}

type TotalsV1 struct {
	Attacks      uint64 `json:"attacks"`
	Kills        uint64 `json:"kills"`
	Consumes     uint64 `json:"consumes"`
	Replications uint64 `json:"replications"`
	Deaths       uint64 `json:"deaths"`
	Decayed      uint64 `json:"decayed"`
	Failures     uint64 `json:"failures"`
}

type CountersV1 struct {
	NextAgent uint64 `json:"next_agent"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The gob payload repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	if h.Version == 0 {
		return h, errors.New("snapshot header has no version")
	}
	return h, nil
}
