package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"mutationsim.ai/internal/sim/world"
)

// TickFiles lists the tick log segments of a run in write order.
func TickFiles(runDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(runDir, "ticks", "ticks-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadTicks streams tick entries from one compressed JSONL file. fn returning false stops early.
func ReadTicks(path string, fn func(world.TickLogEntry) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var e world.TickLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if !fn(e) {
			return nil
		}
	}
	return sc.Err()
}
