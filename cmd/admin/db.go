package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mutationsim.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	from := fs.Uint64("from", 0, "first tick (ticks)")
	to := fs.Uint64("to", 0, "last tick, 0 for no bound (ticks)")
	actor := fs.String("actor", "", "agent id filter (audits)")
	action := fs.String("action", "", "action filter, e.g. KILL (audits)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*runID) == "" {
			fmt.Fprintln(os.Stderr, "missing -run or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "runs", *runID, "index", "run.sqlite")
	}

	db, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var rows any
	switch q {
	case "snapshots":
		rows, err = indexdb.QuerySnapshots(ctx, db)
	case "ticks":
		rows, err = indexdb.QueryTicks(ctx, db, *from, *to, *limit)
	case "audits":
		rows, err = indexdb.QueryAudits(ctx, db, *actor, *action, *limit)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want snapshots | ticks | audits)")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	if err := printRows(rows); err != nil {
		fmt.Fprintln(os.Stderr, "print:", err)
		os.Exit(1)
	}
}

// printRows writes one JSON object per line.
func printRows(rows any) error {
	b, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	for _, it := range items {
		fmt.Println(string(it))
	}
	return nil
}
