// Command bot is a reference agent. It reads one view per line on stdin and answers with one
// action per line on stdout.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"mutationsim.ai/internal/protocol"
)

func main() {
	var (
		name    = flag.String("strategy", "greedy", "greedy | defensive | rest")
		splitAt = flag.Int("replicate_at", 10, "energy at which to replicate")
	)
	flag.Parse()

	// Stderr is forwarded into the simulator log.
	logger := log.New(os.Stderr, "", 0)

	play, ok := strategies[*name]
	if !ok {
		logger.Fatalf("unknown strategy %q", *name)
	}
	if *splitAt > 0 {
		replicateAt = *splitAt
	}

	id := strings.TrimSpace(os.Getenv("AGENT_ID"))
	memPath := ""
	if dir := strings.TrimSpace(os.Getenv("AGENT_MEMORY_DIR")); dir != "" {
		memPath = filepath.Join(dir, "memory.json")
	}
	mem := loadMemory(memPath)

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 1<<20)
	out := bufio.NewWriter(os.Stdout)
	for in.Scan() {
		act := protocol.Rest()
		v, err := protocol.DecodeView(in.Bytes())
		if err != nil {
			logger.Printf("%s: bad view: %v", id, err)
		} else {
			mem.observe(v)
			act = play(v, &mem)
		}
		if _, err := out.Write(protocol.EncodeAction(act)); err != nil {
			return
		}
		if err := out.Flush(); err != nil {
			return
		}
		saveMemory(memPath, mem)
	}
}

func loadMemory(path string) Memory {
	var m Memory
	if path == "" {
		return m
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	_ = json.Unmarshal(b, &m)
	return m
}

// saveMemory is best effort; the simulator never looks at it.
func saveMemory(path string, m Memory) {
	if path == "" {
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, path)
}
