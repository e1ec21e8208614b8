package agentproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func startSh(t *testing.T, script string) *Handle {
	t.Helper()
	h, err := Start("A000001", "/bin/sh", []string{"-c", script}, nil, log.New(os.Stderr, "[test] ", 0))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestExchangeEcho(t *testing.T) {
	h := startSh(t, `while read line; do echo '{"action":"rest"}'; done`)
	for i := 0; i < 3; i++ {
		resp, err := h.Exchange(context.Background(), []byte("{\"tick\":1}\n"), 2*time.Second)
		if err != nil {
			t.Fatalf("exchange %d: %v", i, err)
		}
		if got := strings.TrimSpace(string(resp)); got != `{"action":"rest"}` {
			t.Fatalf("exchange %d: got %q", i, got)
		}
	}
	if !h.Usable() {
		t.Fatalf("handle should stay usable")
	}
}

func TestExtraStdoutLinesNeverBecomeLaterReplies(t *testing.T) {
	h := startSh(t, `n=0; while read line; do echo "ans$n"; echo dbg1; echo dbg2; n=$((n+1)); done`)
	for i := 0; i < 4; i++ {
		resp, err := h.Exchange(context.Background(), []byte("{}\n"), 2*time.Second)
		if err != nil {
			t.Fatalf("exchange %d: %v", i, err)
		}
		if got, want := strings.TrimSpace(string(resp)), fmt.Sprintf("ans%d", i); got != want {
			t.Fatalf("exchange %d: got %q want %q", i, got, want)
		}
		// Let the two debug lines of this round land before the next view goes out.
		deadline := time.Now().Add(2 * time.Second)
		for h.Dropped() < int64(2*(i+1)) {
			if time.Now().After(deadline) {
				t.Fatalf("round %d: dropped %d lines want %d", i, h.Dropped(), 2*(i+1))
			}
			time.Sleep(time.Millisecond)
		}
	}
	if !h.Usable() {
		t.Fatalf("chatty agent should stay usable")
	}
}

func TestLinesOutsideARequestAreDropped(t *testing.T) {
	h := startSh(t, `echo hello; echo there; read line; echo reply`)
	deadline := time.Now().Add(2 * time.Second)
	for h.Dropped() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("unsolicited lines not dropped: %d", h.Dropped())
		}
		time.Sleep(time.Millisecond)
	}
	resp, err := h.Exchange(context.Background(), []byte("{}\n"), 2*time.Second)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if got := strings.TrimSpace(string(resp)); got != "reply" {
		t.Fatalf("got %q want reply", got)
	}
}

func TestExchangeTimeoutMarksUnusable(t *testing.T) {
	h := startSh(t, `exec sleep 30`)
	start := time.Now()
	_, err := h.Exchange(context.Background(), []byte("{}\n"), 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v want ErrTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout took too long")
	}
	if h.Usable() {
		t.Fatalf("handle should be unusable after timeout")
	}
	if _, err := h.Exchange(context.Background(), []byte("{}\n"), time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("second exchange: got %v want ErrClosed", err)
	}
	select {
	case <-h.Exited():
	case <-time.After(5 * time.Second):
		t.Fatalf("timed-out process was not terminated")
	}
}

func TestExchangeAfterExit(t *testing.T) {
	h := startSh(t, `exit 0`)
	<-h.Exited()
	_, err := h.Exchange(context.Background(), []byte("{}\n"), time.Second)
	if err == nil {
		t.Fatalf("expected an error from an exited agent")
	}
	if h.Usable() {
		t.Fatalf("handle should be unusable")
	}
}

func TestCloseReleasesStuckProcess(t *testing.T) {
	h := startSh(t, `trap '' TERM; exec sleep 30`)
	h.grace = 20 * time.Millisecond
	done := make(chan struct{})
	go func() {
		_ = h.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("close did not return")
	}
	select {
	case <-h.Exited():
	default:
		t.Fatalf("process not reaped after close")
	}
	_ = h.Close()
}

func TestStderrIsForwarded(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	logger := log.New(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	}), "", 0)
	h, err := Start("A000007", "/bin/sh", []string{"-c", `echo hello >&2; read line; echo '{"action":"rest"}'`}, nil, logger)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.Exchange(context.Background(), []byte("{}\n"), 2*time.Second); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	_ = h.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := buf.String()
		mu.Unlock()
		if strings.Contains(got, "[agent A000007] hello") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("stderr line not forwarded: %q", buf.String())
}

func TestSpawnerEnv(t *testing.T) {
	mem := t.TempDir()
	s := NewSpawner([]Program{{
		Name: "env",
		Path: "/bin/sh",
		Args: []string{"-c", `read line; echo "$AGENT_ID $AGENT_MEMORY_DIR $EXTRA"`},
		Env:  map[string]string{"EXTRA": "x", "AGENT_ID": "spoofed"},
	}}, mem, nil)

	h, err := s.Spawn("A000042", "env")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer h.Close()
	resp, err := h.Exchange(context.Background(), []byte("{}\n"), 2*time.Second)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	want := "A000042 " + filepath.Join(mem, "A000042") + " x"
	if got := strings.TrimSpace(string(resp)); got != want {
		t.Fatalf("env: got %q want %q", got, want)
	}
	if _, err := os.Stat(filepath.Join(mem, "A000042")); err != nil {
		t.Fatalf("memory dir not created: %v", err)
	}

	if _, err := s.Spawn("A000043", "missing"); err == nil {
		t.Fatalf("expected unknown program error")
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
