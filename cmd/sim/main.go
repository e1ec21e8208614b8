package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"mutationsim.ai/internal/agentproc"
	persistlog "mutationsim.ai/internal/persistence/log"
	"mutationsim.ai/internal/sim/decide"
	"mutationsim.ai/internal/sim/encoding"
	"mutationsim.ai/internal/sim/engine"
	"mutationsim.ai/internal/sim/tuning"
	"mutationsim.ai/internal/sim/world"
	"mutationsim.ai/internal/transport/observer"
	"mutationsim.ai/internal/tui"
)

func main() {
	var (
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		runFlag    = flag.String("run", "", "run id (default: random uuid)")
		seed       = flag.Int64("seed", 0, "override the tuning seed (0 keeps the file value)")
		ticks      = flag.Int("ticks", 0, "run N ticks headless, print the report and exit")
		addr       = flag.String("addr", "127.0.0.1:8080", "observer http listen address (empty to disable)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")
		useTUI     = flag.Bool("tui", true, "show the terminal viewport (ignored with -ticks)")
	)
	flag.Parse()

	runID := strings.TrimSpace(*runFlag)
	if runID == "" {
		runID = uuid.NewString()
	}
	runDir := filepath.Join(*dataDir, "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		log.Fatalf("create run dir: %v", err)
	}

	interactive := *useTUI && *ticks <= 0
	logger, closeLog, err := newLogger(runDir, interactive)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer closeLog()

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Fatalf("tuning not found (%s)", *tuningPath)
		}
		logger.Fatalf("load tuning: %v", err)
	}
	if *seed != 0 {
		tune.Seed = *seed
	}
	if err := tune.ResolveCommands(); err != nil {
		logger.Fatalf("agents: %v", err)
	}

	idx, err := openRuntimeIndex(runDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(runID, tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	segment := uint64(tune.LogSegmentTicks)
	tickLog := persistlog.NewTickLogger(runDir, segment)
	auditLog := persistlog.NewAuditLogger(runDir, segment)
	defer tickLog.Close()
	defer auditLog.Close()

	ticksOut := persistlog.MultiTick{tickLog}
	auditOut := persistlog.MultiAudit{auditLog}
	opts := engine.Options{
		Logger: logger,
		Spawn:  engine.ProcessSpawner(agentproc.NewSpawner(programs(tune), memoryDir(runDir, tune), logger)),
	}
	if idx != nil {
		ticksOut = append(ticksOut, idx)
		auditOut = append(auditOut, idx)
		opts.Snapshots = idx
	}
	opts.TickLogger = ticksOut
	opts.AuditLogger = auditOut

	relay := &publishRelay{}
	opts.Publisher = relay

	sim, err := engine.New(simConfig(runID, runDir, tune), opts)
	if err != nil {
		logger.Fatalf("start simulation: %v", err)
	}
	defer sim.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if strings.TrimSpace(*addr) != "" {
		obs := observer.NewServer(sim, logger)
		relay.set(obs)
		srv := &http.Server{
			Addr:              *addr,
			Handler:           newMux(obs, idx),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
		}()
		go func() {
			logger.Printf("observer listening on %s", *addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("observer: %v", err)
			}
		}()
	}

	switch {
	case *ticks > 0:
		if err := sim.RunForTicks(ctx, *ticks); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("run stopped: %v", err)
		}
		fmt.Print(sim.Report().String())

	case interactive:
		done := make(chan error, 1)
		go func() { done <- sim.Run(ctx) }()
		if err := tui.Run(ctx, sim, tuiBands(tune)); err != nil {
			logger.Printf("viewport: %v", err)
		}
		sim.Quit()
		cancel()
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("run stopped: %v", err)
		}
		fmt.Print(sim.Report().String())

	default:
		if err := sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("run stopped: %v", err)
		}
		fmt.Print(sim.Report().String())
	}
	logger.Printf("run %s finished at tick %d", runID, sim.Report().Tick)
}

// newLogger writes to stdout, or to <run>/logs/sim.log while the viewport owns the terminal.
func newLogger(runDir string, toFile bool) (*log.Logger, func(), error) {
	flags := log.LstdFlags | log.Lmicroseconds
	if !toFile {
		return log.New(os.Stdout, "[sim] ", flags), func() {}, nil
	}
	dir := filepath.Join(runDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "sim.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return log.New(f, "[sim] ", flags), func() { _ = f.Close() }, nil
}

func simConfig(runID, runDir string, t tuning.Tuning) engine.Config {
	roster := make([]world.Seeding, 0, len(t.Agents))
	for _, a := range t.Agents {
		roster = append(roster, world.Seeding{Program: a.Program, Count: a.Count})
	}
	return engine.Config{
		RunID:              runID,
		RunDir:             runDir,
		TickRateHz:         t.TickRateHz,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		World:              world.ConfigFromTuning(runID, t),
		Roster:             roster,
		Decide: decide.Config{
			Timeout:   time.Duration(t.Decision.TimeoutMS) * time.Millisecond,
			Parallel:  t.Decision.Parallel,
			Workers:   t.Decision.Workers,
			Threshold: t.Decision.ConcurrencyThreshold,
		},
		Bands: tuiBands(t),
	}
}

func tuiBands(t tuning.Tuning) encoding.Bands {
	return encoding.Bands{Low: t.Render.LowEnergy, High: t.Render.HighEnergy}
}

func programs(t tuning.Tuning) []agentproc.Program {
	out := make([]agentproc.Program, 0, len(t.Agents))
	for _, a := range t.Agents {
		out = append(out, agentproc.Program{Name: a.Program, Path: a.Command, Args: a.Args, Env: a.Env})
	}
	return out
}

func memoryDir(runDir string, t tuning.Tuning) string {
	dir := strings.TrimSpace(t.MemoryDir)
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(runDir, dir)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
