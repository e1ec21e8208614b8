package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"mutationsim.ai/internal/sim/world"
)

// DefaultSegmentTicks is used when a writer is built with a zero span.
const DefaultSegmentTicks = 10000

// SegmentWriter appends JSON lines to zstd segments named
//
//	<prefix>-<seq>-<first tick>.jsonl.zst
//
// A segment covers at most span ticks. A tick lower than the last one written means the world
// was reset, which also starts a new segment. seq keeps growing across resets and restarts, so
// lexical order is write order.
type SegmentWriter struct {
	dir    string
	prefix string
	span   uint64

	mu    sync.Mutex
	seq   int
	first uint64
	last  uint64
	f     *os.File
	enc   *zstd.Encoder
	buf   *bufio.Writer
}

func NewSegmentWriter(dir, prefix string, span uint64) *SegmentWriter {
	if span == 0 {
		span = DefaultSegmentTicks
	}
	return &SegmentWriter{dir: dir, prefix: prefix, span: span, seq: -1}
}

// Append writes v as one line of the segment that covers tick.
func (w *SegmentWriter) Append(tick uint64, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf == nil || tick < w.last || tick-w.first >= w.span {
		if err := w.startLocked(tick); err != nil {
			return err
		}
	}
	w.last = tick
	if _, err := w.buf.Write(append(b, '\n')); err != nil {
		return err
	}
	return w.buf.Flush()
}

func (w *SegmentWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *SegmentWriter) startLocked(tick uint64) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	if w.seq < 0 {
		w.seq = w.lastSeq()
	}
	w.seq++

	path := filepath.Join(w.dir, fmt.Sprintf("%s-%06d-%012d.jsonl.zst", w.prefix, w.seq, tick))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f, w.enc = f, enc
	w.buf = bufio.NewWriterSize(enc, 128*1024)
	w.first, w.last = tick, tick
	return nil
}

// lastSeq finds the highest segment number already on disk, so a restarted run appends after it.
func (w *SegmentWriter) lastSeq() int {
	paths, _ := filepath.Glob(filepath.Join(w.dir, w.prefix+"-*.jsonl.zst"))
	top := 0
	for _, p := range paths {
		var seq int
		var first uint64
		if _, err := fmt.Sscanf(filepath.Base(p), w.prefix+"-%d-%d.jsonl.zst", &seq, &first); err == nil && seq > top {
			top = seq
		}
	}
	return top
}

func (w *SegmentWriter) closeLocked() error {
	var err error
	if w.buf != nil {
		err = w.buf.Flush()
		w.buf = nil
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	return err
}

// TickLogger writes one line per resolved tick under <run>/ticks.
type TickLogger struct{ w *SegmentWriter }

func NewTickLogger(runDir string, segmentTicks uint64) *TickLogger {
	return &TickLogger{w: NewSegmentWriter(filepath.Join(runDir, "ticks"), "ticks", segmentTicks)}
}

func (l *TickLogger) WriteTick(e world.TickLogEntry) error { return l.w.Append(e.Tick, e) }
func (l *TickLogger) Close() error                         { return l.w.Close() }

// AuditLogger writes lifecycle audits under <run>/audit, segmented like the tick log.
type AuditLogger struct{ w *SegmentWriter }

func NewAuditLogger(runDir string, segmentTicks uint64) *AuditLogger {
	return &AuditLogger{w: NewSegmentWriter(filepath.Join(runDir, "audit"), "audit", segmentTicks)}
}

func (l *AuditLogger) WriteAudit(e world.AuditEntry) error { return l.w.Append(e.Tick, e) }
func (l *AuditLogger) Close() error                        { return l.w.Close() }

// MultiAudit fans audit entries out to several sinks. Nil sinks are skipped.
type MultiAudit []world.AuditLogger

func (m MultiAudit) WriteAudit(e world.AuditEntry) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteAudit(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// MultiTick is the tick-entry counterpart of MultiAudit.
type MultiTick []world.TickLogger

func (m MultiTick) WriteTick(e world.TickLogEntry) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteTick(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
