// Package agentproc runs agent programs as long-lived coprocesses speaking one JSON line per request.
package agentproc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrTimeout = errors.New("agent did not answer in time")
	ErrClosed  = errors.New("agent handle closed")
	ErrExited  = errors.New("agent process exited")
)

// DefaultGrace is how long Close waits for an agent to exit on its own after stdin is closed.
const DefaultGrace = 200 * time.Millisecond

// Handle owns one agent process. Exchange must not be called concurrently on the same handle.
type Handle struct {
	id  string
	cmd *exec.Cmd

	stdin  io.WriteCloser
	stdout *os.File
	stderr *os.File

	lines    chan []byte
	readDone chan struct{}
	// awaiting is set while a request is outstanding; readLoop drops lines that arrive otherwise.
	awaitMu  sync.Mutex
	awaiting bool
	dropped  atomic.Int64

	exited  chan struct{}
	waitErr error

	usable    atomic.Bool
	closeOnce sync.Once
	grace     time.Duration
	logger    *log.Logger
}

// Start launches path with args. extraEnv entries are appended to the current environment.
func Start(id, path string, args, extraEnv []string, logger *log.Logger) (*Handle, error) {
	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), extraEnv...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("agent %s stdin: %w", id, err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("agent %s stdout: %w", id, err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("agent %s stderr: %w", id, err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		stdin.Close()
		outR.Close()
		outW.Close()
		errR.Close()
		errW.Close()
		return nil, fmt.Errorf("start agent %s (%s): %w", id, path, err)
	}
	// The child holds its own copies.
	outW.Close()
	errW.Close()

	h := &Handle{
		id:       id,
		cmd:      cmd,
		stdin:    stdin,
		stdout:   outR,
		stderr:   errR,
		lines:    make(chan []byte, 1),
		readDone: make(chan struct{}),
		exited:   make(chan struct{}),
		grace:    DefaultGrace,
		logger:   logger,
	}
	h.usable.Store(true)

	go h.readLoop()
	go h.stderrLoop()
	go func() {
		h.waitErr = cmd.Wait()
		close(h.exited)
	}()
	return h, nil
}

func (h *Handle) ID() string { return h.id }

// Usable reports whether the handle can still take requests.
func (h *Handle) Usable() bool { return h.usable.Load() }

func (h *Handle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Exchange writes line (which must end in '\n') and waits up to timeout for one line back. Any
// failure leaves the handle unusable; a timed-out process is terminated in the background.
func (h *Handle) Exchange(ctx context.Context, line []byte, timeout time.Duration) ([]byte, error) {
	if !h.usable.Load() {
		return nil, ErrClosed
	}
	select {
	case <-h.exited:
		h.fail()
		return nil, ErrExited
	default:
	}

	h.await(true)
	defer h.await(false)

	if _, err := h.stdin.Write(line); err != nil {
		h.fail()
		return nil, fmt.Errorf("%w: %v", ErrClosed, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-h.lines:
		return resp, nil
	case <-h.readDone:
		// A final line may have raced with EOF.
		select {
		case resp := <-h.lines:
			return resp, nil
		default:
		}
		h.fail()
		return nil, ErrExited
	case <-timer.C:
		h.fail()
		go h.Close()
		return nil, ErrTimeout
	case <-ctx.Done():
		h.fail()
		return nil, ctx.Err()
	}
}

func (h *Handle) fail() { h.usable.Store(false) }

func (h *Handle) await(on bool) {
	h.awaitMu.Lock()
	h.awaiting = on
	h.awaitMu.Unlock()
}

// Dropped counts stdout lines the agent printed beyond its one reply per request.
func (h *Handle) Dropped() int64 { return h.dropped.Load() }

// Close releases the process: stdin is closed, the agent gets a grace period to exit, then it is
// killed and reaped. Safe to call more than once and from any goroutine.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.fail()
		_ = h.stdin.Close()

		timer := time.NewTimer(h.grace)
		select {
		case <-h.exited:
		case <-timer.C:
			_ = h.cmd.Process.Kill()
			<-h.exited
		}
		timer.Stop()
		_ = h.stdout.Close()
		_ = h.stderr.Close()
	})
	return nil
}

// Exited is closed once the process has been reaped.
func (h *Handle) Exited() <-chan struct{} { return h.exited }

// ExitErr is the result of waiting on the process. Only valid after Exited is closed.
func (h *Handle) ExitErr() error { return h.waitErr }

func (h *Handle) readLoop() {
	defer close(h.readDone)
	br := bufio.NewReaderSize(h.stdout, 64*1024)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			h.deliver(line)
		}
		if err != nil {
			return
		}
	}
}

// deliver hands line to the outstanding request, which takes the first line only. Every other
// line is dropped so it can never be read as the reply to a later view.
func (h *Handle) deliver(line []byte) {
	h.awaitMu.Lock()
	defer h.awaitMu.Unlock()
	if !h.awaiting {
		h.dropped.Add(1)
		return
	}
	select {
	case h.lines <- line:
		h.awaiting = false
	default:
		h.dropped.Add(1)
	}
}

func (h *Handle) stderrLoop() {
	sc := bufio.NewScanner(h.stderr)
	sc.Buffer(make([]byte, 0, 4096), 64*1024)
	for sc.Scan() {
		if h.logger != nil {
			h.logger.Printf("[agent %s] %s", h.id, sc.Text())
		}
	}
}
