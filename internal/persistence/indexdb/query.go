package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

type TickRow struct {
	Tick     uint64 `json:"tick"`
	Digest   string `json:"digest"`
	Actions  int    `json:"actions"`
	Failures int    `json:"failures"`
	Births   int    `json:"births"`
	Deaths   int    `json:"deaths"`
}

type AuditRow struct {
	Tick   uint64 `json:"tick"`
	Seq    int    `json:"seq"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Energy int    `json:"energy"`
	Reason string `json:"reason,omitempty"`
}

type SnapshotRow struct {
	Tick       uint64 `json:"tick"`
	Path       string `json:"path"`
	Agents     int    `json:"agents"`
	Alive      int    `json:"alive"`
	Generation int    `json:"generation"`
	Digest     string `json:"digest"`
}

// OpenReader opens an existing index database for queries without starting the writer.
func OpenReader(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}

func QueryTicks(ctx context.Context, db *sql.DB, from, to uint64, limit int) ([]TickRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT tick,digest,actions,failures,births,deaths FROM ticks WHERE tick >= ? AND tick <= ? ORDER BY tick LIMIT ?`,
		int64(from), int64(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TickRow
	for rows.Next() {
		var r TickRow
		var tick int64
		if err := rows.Scan(&tick, &r.Digest, &r.Actions, &r.Failures, &r.Births, &r.Deaths); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryAudits filters by actor and/or action when they are non-empty.
func QueryAudits(ctx context.Context, db *sql.DB, actor, action string, limit int) ([]AuditRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT tick,seq,actor,action,COALESCE(target,''),x,y,energy,COALESCE(reason,'') FROM audits
		 WHERE (? = '' OR actor = ?) AND (? = '' OR action = ?)
		 ORDER BY tick, seq LIMIT ?`,
		actor, actor, action, action, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditRow
	for rows.Next() {
		var r AuditRow
		var tick int64
		if err := rows.Scan(&tick, &r.Seq, &r.Actor, &r.Action, &r.Target, &r.X, &r.Y, &r.Energy, &r.Reason); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

func QuerySnapshots(ctx context.Context, db *sql.DB) ([]SnapshotRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT tick,path,agents,alive,generation,digest FROM snapshots ORDER BY tick`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var r SnapshotRow
		var tick int64
		if err := rows.Scan(&tick, &r.Path, &r.Agents, &r.Alive, &r.Generation, &r.Digest); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}
