// Package engine drives the tick loop: capture views, run the decision phase, resolve, then do
// the per-tick bookkeeping (process lifecycle, logs, checkpoints, publishing).
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"mutationsim.ai/internal/agentproc"
	"mutationsim.ai/internal/observerproto"
	"mutationsim.ai/internal/persistence/archive"
	"mutationsim.ai/internal/persistence/snapshot"
	"mutationsim.ai/internal/protocol"
	"mutationsim.ai/internal/sim/decide"
	"mutationsim.ai/internal/sim/encoding"
	"mutationsim.ai/internal/sim/world"
)

// ErrQuit is returned by RunForTicks when a quit request arrives before all ticks ran.
var ErrQuit = errors.New("simulation quit")

// Process is a running agent program.
type Process interface {
	decide.Proc
	Close() error
}

type SpawnFunc func(agentID, program string) (Process, error)

// ProcessSpawner adapts an agentproc.Spawner.
func ProcessSpawner(s *agentproc.Spawner) SpawnFunc {
	return func(agentID, program string) (Process, error) {
		h, err := s.Spawn(agentID, program)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}

type SnapshotRecorder interface {
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

type Publisher interface {
	Publish(msg observerproto.TickMsg)
}

type Config struct {
	RunID  string
	RunDir string

	TickRateHz         int
	SnapshotEveryTicks int

	World  world.WorldConfig
	Roster []world.Seeding
	Decide decide.Config
	Bands  encoding.Bands
}

func (c *Config) applyDefaults() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 5
	}
	if c.RunID == "" {
		c.RunID = c.World.ID
	}
	c.World.ID = c.RunID
	if c.Bands.High == 0 && c.Bands.Low == 0 {
		c.Bands = encoding.Bands{Low: 5, High: 15}
	}
}

type Options struct {
	Logger      *log.Logger
	Spawn       SpawnFunc
	TickLogger  world.TickLogger
	AuditLogger world.AuditLogger
	Snapshots   SnapshotRecorder
	Publisher   Publisher
}

type controlKind int

const (
	ctlReset controlKind = iota + 1
	ctlQuit
)

// Simulator owns the world and every agent process. Run and RunForTicks must be called from a
// single goroutine; Report, Frame and the control methods are safe from any goroutine.
type Simulator struct {
	cfg  Config
	opts Options
	log  *log.Logger

	sched *decide.Scheduler
	world *world.World
	procs map[string]Process

	lastStats world.TickStats
	// epoch counts resets; the first world of a run is epoch 1.
	epoch int

	report  atomic.Pointer[world.Report]
	frame   atomic.Pointer[world.Frame]
	paused  atomic.Bool
	control chan controlKind

	closeOnce sync.Once
}

// New builds the world, seeds the roster and starts one process per agent. A spawn failure here
// is a startup error: every process already started is released.
func New(cfg Config, opts Options) (*Simulator, error) {
	cfg.applyDefaults()
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Spawn == nil {
		return nil, errors.New("engine: no spawner")
	}
	s := &Simulator{
		cfg:     cfg,
		opts:    opts,
		log:     opts.Logger,
		sched:   decide.New(cfg.Decide, opts.Logger),
		control: make(chan controlKind, 16),
		epoch:   1,
	}
	if err := s.build(); err != nil {
		s.closeProcs()
		return nil, err
	}
	s.publish(world.TickOutcome{Tick: s.world.CurrentTick()}, nil)
	return s, nil
}

func (s *Simulator) build() error {
	w, err := world.New(s.cfg.World)
	if err != nil {
		return err
	}
	if s.opts.AuditLogger != nil {
		w.SetAuditLogger(s.opts.AuditLogger)
	}
	agents, err := w.Populate(s.cfg.Roster)
	if err != nil {
		return err
	}
	s.world = w
	s.procs = make(map[string]Process, len(agents))
	s.lastStats = world.TickStats{}
	for _, a := range agents {
		p, err := s.opts.Spawn(a.ID, a.Program)
		if err != nil {
			return fmt.Errorf("spawn %s (%s): %w", a.ID, a.Program, err)
		}
		s.procs[a.ID] = p
	}
	s.log.Printf("run %s: %d agents on %dx%d", s.cfg.RunID, len(agents), s.cfg.World.Width, s.cfg.World.Height)
	return nil
}

// World exposes the world for tests and offline tools. Not safe while Run is active.
func (s *Simulator) World() *world.World { return s.world }

func (s *Simulator) Config() Config { return s.cfg }

// Report returns the summary published after the most recent tick.
func (s *Simulator) Report() world.Report {
	if r := s.report.Load(); r != nil {
		return *r
	}
	return world.Report{}
}

// Frame returns the grid published after the most recent tick. Callers must not modify Cells.
func (s *Simulator) Frame() world.Frame {
	if f := s.frame.Load(); f != nil {
		return *f
	}
	return world.Frame{}
}

func (s *Simulator) Paused() bool { return s.paused.Load() }

// Pause takes effect before the next decision phase; a tick already running completes.
func (s *Simulator) Pause()  { s.paused.Store(true) }
func (s *Simulator) Resume() { s.paused.Store(false) }

func (s *Simulator) TogglePause() bool {
	for {
		p := s.paused.Load()
		if s.paused.CompareAndSwap(p, !p) {
			return !p
		}
	}
}

// Reset releases every process and rebuilds the world from the seed between ticks.
func (s *Simulator) Reset() { s.send(ctlReset) }

// Quit makes Run return nil (and RunForTicks return ErrQuit) before the next tick.
func (s *Simulator) Quit() { s.send(ctlQuit) }

func (s *Simulator) send(k controlKind) {
	select {
	case s.control <- k:
	default:
		s.log.Printf("control queue full; dropped request %d", k)
	}
}

// Run ticks at the configured rate until ctx is done or Quit is requested. Control requests are
// applied between ticks, so a pause never interrupts a tick in progress.
func (s *Simulator) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case k := <-s.control:
			if quit := s.handleControl(k); quit {
				return nil
			}
		case <-ticker.C:
			if s.drainControl() {
				return nil
			}
			if s.paused.Load() {
				continue
			}
			s.Step(ctx)
		}
	}
}

// RunForTicks runs n ticks back to back, ignoring the pause flag. Reset and quit requests are
// still honoured between ticks.
func (s *Simulator) RunForTicks(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.drainControl() {
			return ErrQuit
		}
		s.Step(ctx)
	}
	return nil
}

func (s *Simulator) drainControl() (quit bool) {
	for {
		select {
		case k := <-s.control:
			if s.handleControl(k) {
				return true
			}
		default:
			return false
		}
	}
}

func (s *Simulator) handleControl(k controlKind) (quit bool) {
	switch k {
	case ctlReset:
		s.reset()
	case ctlQuit:
		return true
	}
	s.publish(world.TickOutcome{Tick: s.world.CurrentTick()}, nil)
	return false
}

func (s *Simulator) reset() {
	s.log.Printf("reset requested at tick %d", s.world.CurrentTick())
	s.archiveEpoch(archive.ReasonReset)
	s.epoch++
	s.closeProcs()
	if err := s.build(); err != nil {
		// The roster spawned fine at startup, so this is an environment failure; keep ticking an
		// empty-handed world rather than abort.
		s.log.Printf("reset: %v", err)
	}
}

// Step runs one full tick: decision phase, resolution, bookkeeping. If ctx ends during the
// decision phase nothing is resolved or recorded and the tick number does not advance.
func (s *Simulator) Step(ctx context.Context) world.TickOutcome {
	views := s.world.Views()
	reqs := make([]decide.Request, 0, len(views))
	for _, v := range views {
		p := s.procs[v.AgentID]
		if p == nil {
			continue
		}
		reqs = append(reqs, decide.Request{AgentID: v.AgentID, View: v, Proc: p})
	}
	res := s.sched.Decide(ctx, reqs)
	if ctx.Err() != nil {
		// Cancelled exchanges report closed pipes, not agent faults. Drop the partial tick.
		return world.TickOutcome{Tick: s.world.CurrentTick()}
	}

	for id, code := range res.Failures {
		switch code {
		case protocol.ErrTimeout, protocol.ErrExited, protocol.ErrClosed:
			s.markDormant(id, code)
		}
	}

	out := s.world.Step(res.Actions)
	failures := make([]world.Failure, 0, len(res.Failures))
	for id, code := range res.Failures {
		failures = append(failures, world.Failure{AgentID: id, Code: code})
	}

	for _, b := range out.Births {
		p, err := s.opts.Spawn(b.Child, b.Program)
		if err != nil {
			s.log.Printf("spawn child %s of %s: %v", b.Child, b.Parent, err)
			failures = append(failures, world.Failure{AgentID: b.Child, Code: protocol.ErrSpawn})
			s.auditDormant(b.Child, protocol.ErrSpawn)
			continue
		}
		s.procs[b.Child] = p
	}
	for _, id := range out.Deaths {
		if p := s.procs[id]; p != nil {
			_ = p.Close()
			delete(s.procs, id)
		}
	}

	sort.Slice(failures, func(i, j int) bool { return failures[i].AgentID < failures[j].AgentID })
	out.Stats.Failures = len(failures)
	s.world.NoteFailures(len(failures))
	s.lastStats = out.Stats

	if s.opts.TickLogger != nil {
		entry := world.TickLogEntry{
			Tick:     out.Tick,
			Actions:  out.Actions,
			Failures: failures,
			Births:   out.Births,
			Deaths:   out.Deaths,
			Stats:    out.Stats,
			Digest:   s.world.Digest(),
		}
		if err := s.opts.TickLogger.WriteTick(entry); err != nil {
			s.log.Printf("tick log: %v", err)
		}
	}
	s.maybeCheckpoint()
	s.publish(out, failures)
	return out
}

func (s *Simulator) markDormant(id, code string) {
	p := s.procs[id]
	if p == nil {
		return
	}
	_ = p.Close()
	delete(s.procs, id)
	s.log.Printf("agent %s is dormant (%s)", id, code)
	s.auditDormant(id, code)
}

func (s *Simulator) auditDormant(id, code string) {
	if s.opts.AuditLogger == nil {
		return
	}
	e := world.AuditEntry{Tick: s.world.CurrentTick(), Actor: id, Action: "DORMANT", Reason: code}
	if a, ok := s.world.Agent(id); ok {
		e.Pos = a.Pos
		e.Energy = a.Energy
	}
	_ = s.opts.AuditLogger.WriteAudit(e)
}

// Dormant counts living agents that no longer have a usable process.
func (s *Simulator) Dormant() int {
	n := 0
	for _, id := range s.world.LivingIDs() {
		if p := s.procs[id]; p == nil || !p.Usable() {
			n++
		}
	}
	return n
}

func (s *Simulator) maybeCheckpoint() {
	every := s.cfg.SnapshotEveryTicks
	tick := s.world.CurrentTick()
	if every <= 0 || s.cfg.RunDir == "" || tick%uint64(every) != 0 {
		return
	}
	snap := s.world.ExportSnapshot()
	path := filepath.Join(s.cfg.RunDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		s.log.Printf("checkpoint tick %d: %v", tick, err)
		return
	}
	if s.opts.Snapshots != nil {
		s.opts.Snapshots.RecordSnapshot(path, snap)
	}
}

func (s *Simulator) publish(out world.TickOutcome, failures []world.Failure) {
	r := s.world.DetailedReport(s.lastStats, s.Dormant())
	f := s.world.Frame()
	s.report.Store(&r)
	s.frame.Store(&f)

	if s.opts.Publisher == nil {
		return
	}
	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            s.world.CurrentTick(),
		Paused:          s.paused.Load(),
		Report:          r,
		Births:          out.Births,
		Deaths:          out.Deaths,
		Failures:        failures,
		Agents:          s.world.Agents(),
		Grid:            EncodeGrid(f, s.cfg.Bands),
	}
	for _, a := range out.Actions {
		msg.Actions = append(msg.Actions, observerproto.RecordedAction{AgentID: a.AgentID, Act: a.Act})
	}
	s.opts.Publisher.Publish(msg)
}

// EncodeGrid classifies every cell of f and RLE-encodes the result.
func EncodeGrid(f world.Frame, bands encoding.Bands) string {
	states := make([]uint16, len(f.Cells))
	for i, c := range f.Cells {
		states[i] = bands.Classify(c.ID != "", c.Alive, c.Energy)
	}
	return encoding.EncodeRLE(states)
}

// Close releases every agent process. Call it after Run has returned; it is safe to call more
// than once.
func (s *Simulator) Close() error {
	s.closeOnce.Do(func() {
		s.archiveEpoch(archive.ReasonClose)
		s.closeProcs()
	})
	return nil
}

// Epoch is the number of the current world; it starts at 1 and grows on every reset.
func (s *Simulator) Epoch() int { return s.epoch }

// archiveEpoch keeps the final state of the current world before it is discarded.
func (s *Simulator) archiveEpoch(reason string) {
	if s.cfg.RunDir == "" || s.world == nil {
		return
	}
	snap := s.world.ExportSnapshot()
	path, err := archive.ArchiveEpoch(s.cfg.RunDir, s.epoch, reason, snap)
	if err != nil {
		s.log.Printf("archive epoch %d: %v", s.epoch, err)
		return
	}
	if s.opts.Snapshots != nil {
		s.opts.Snapshots.RecordSnapshot(path, snap)
	}
}

func (s *Simulator) closeProcs() {
	var wg sync.WaitGroup
	for id, p := range s.procs {
		wg.Add(1)
		go func(p Process) {
			defer wg.Done()
			_ = p.Close()
		}(p)
		delete(s.procs, id)
	}
	wg.Wait()
}
