// Command admin inspects run directories offline and queries a running simulator.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"mutationsim.ai/internal/persistence/archive"
	"mutationsim.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "header":
			headerCmd(os.Args[2:])
			return
		case "report":
			reportCmd(os.Args[2:])
			return
		case "epochs":
			epochsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

type runInfo struct {
	ID         string
	Snapshots  int
	LatestTick uint64
}

func listRuns(dataDir string) ([]runInfo, error) {
	base := filepath.Join(dataDir, "runs")
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}
	var out []runInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ri := runInfo{ID: e.Name()}
		ticks := snapshotTicks(filepath.Join(base, e.Name()))
		ri.Snapshots = len(ticks)
		if len(ticks) > 0 {
			ri.LatestTick = ticks[len(ticks)-1]
		}
		out = append(out, ri)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	runs, err := listRuns(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, r := range runs {
		fmt.Printf("%s\tsnapshots=%d\tlatest_tick=%d\n", r.ID, r.Snapshots, r.LatestTick)
	}
}

func headerCmd(args []string) {
	fs := flag.NewFlagSet("header", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id (used when -snapshot is empty)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to the run's latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*runID) == "" {
			fmt.Fprintln(os.Stderr, "missing -run or -snapshot")
			os.Exit(2)
		}
		path = latestSnapshot(filepath.Join(*dataDir, "runs", *runID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found")
		os.Exit(2)
	}
	h, err := snapshot.ReadHeader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read header:", err)
		os.Exit(1)
	}
	fmt.Printf("%s\nversion=%d run=%s tick=%d generation=%d alive=%d digest=%s\n",
		path, h.Version, h.RunID, h.Tick, h.Generation, h.Alive, h.Digest)
}

// listEpochs reads archived epoch metas in order, stopping at the first gap.
func listEpochs(runDir string) []archive.EpochMeta {
	var out []archive.EpochMeta
	for n := 1; ; n++ {
		m, err := archive.ReadMeta(runDir, n)
		if err != nil {
			return out
		}
		out = append(out, m)
	}
}

func epochsCmd(args []string) {
	fs := flag.NewFlagSet("epochs", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id")
	_ = fs.Parse(args)

	if strings.TrimSpace(*runID) == "" {
		fmt.Fprintln(os.Stderr, "missing -run")
		os.Exit(2)
	}
	for _, m := range listEpochs(filepath.Join(*dataDir, "runs", *runID)) {
		fmt.Printf("epoch=%d reason=%s end_tick=%d alive=%d generation=%d snapshot=%s\n",
			m.Epoch, m.Reason, m.EndTick, m.Alive, m.Generation, m.Snapshot)
	}
}

func snapshotTicks(runDir string) []uint64 {
	ents, err := os.ReadDir(filepath.Join(runDir, "snapshots"))
	if err != nil {
		return nil
	}
	var out []uint64
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(e.Name(), ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, tick)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func latestSnapshot(runDir string) string {
	ticks := snapshotTicks(runDir)
	if len(ticks) == 0 {
		return ""
	}
	return filepath.Join(runDir, "snapshots", fmt.Sprintf("%d.snap.zst", ticks[len(ticks)-1]))
}
