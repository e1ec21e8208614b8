// Package decide runs the decision phase: every living agent with a usable process is shown its
// view and asked for one action.
package decide

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"mutationsim.ai/internal/agentproc"
	"mutationsim.ai/internal/protocol"
)

// Proc is the part of an agent process handle the scheduler needs.
type Proc interface {
	Exchange(ctx context.Context, line []byte, timeout time.Duration) ([]byte, error)
	Usable() bool
}

type Request struct {
	AgentID string
	View    protocol.View
	Proc    Proc
}

type Result struct {
	// Actions has one entry per request whose process was usable when the phase started.
	Actions map[string]protocol.Action
	// Failures maps agent id to the error code that degraded its action to rest.
	Failures map[string]string
	// Concurrent reports which mode ran.
	Concurrent bool
}

type Config struct {
	Timeout   time.Duration
	Parallel  bool
	Workers   int
	Threshold int
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 500 * time.Millisecond
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.Threshold <= 0 {
		c.Threshold = 10
	}
}

type Scheduler struct {
	cfg    Config
	logger *log.Logger
}

func New(cfg Config, logger *log.Logger) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{cfg: cfg, logger: logger}
}

func (s *Scheduler) Config() Config { return s.cfg }

// Decide queries every usable process once. Views must already be captured, so the world is never
// touched here. The phase returns only after every exchange has answered or timed out. Sequential
// mode queries agents in request order, which callers pass in world order.
func (s *Scheduler) Decide(ctx context.Context, reqs []Request) Result {
	eligible := make([]Request, 0, len(reqs))
	for _, r := range reqs {
		if r.Proc != nil && r.Proc.Usable() {
			eligible = append(eligible, r)
		}
	}

	type slot struct {
		act  protocol.Action
		code string
	}
	slots := make([]slot, len(eligible))
	res := Result{
		Actions:  make(map[string]protocol.Action, len(eligible)),
		Failures: map[string]string{},
	}

	if s.cfg.Parallel && len(eligible) > s.cfg.Threshold {
		res.Concurrent = true
		g := new(errgroup.Group)
		g.SetLimit(s.cfg.Workers)
		for i := range eligible {
			i := i
			g.Go(func() error {
				slots[i].act, slots[i].code = s.exchange(ctx, eligible[i])
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range eligible {
			slots[i].act, slots[i].code = s.exchange(ctx, eligible[i])
		}
	}

	for i, r := range eligible {
		res.Actions[r.AgentID] = slots[i].act
		if slots[i].code != "" {
			res.Failures[r.AgentID] = slots[i].code
		}
	}
	return res
}

// exchange never fails: any problem yields rest plus the error code.
func (s *Scheduler) exchange(ctx context.Context, r Request) (protocol.Action, string) {
	line, err := protocol.EncodeView(r.View)
	if err != nil {
		s.logf("agent %s: encode view: %v", r.AgentID, err)
		return protocol.Rest(), protocol.ErrInternal
	}
	resp, err := r.Proc.Exchange(ctx, line, s.cfg.Timeout)
	if err != nil {
		code := processCode(err)
		s.logf("agent %s: %s: %v", r.AgentID, code, err)
		return protocol.Rest(), code
	}
	act, err := protocol.DecodeAction(resp)
	if err != nil {
		var de *protocol.DecodeError
		code := protocol.ErrBadJSON
		if errors.As(err, &de) {
			code = de.Code
		}
		s.logf("agent %s: %v", r.AgentID, err)
		return act, code
	}
	return act, ""
}

func processCode(err error) string {
	switch {
	case errors.Is(err, agentproc.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrTimeout
	case errors.Is(err, agentproc.ErrExited):
		return protocol.ErrExited
	case errors.Is(err, agentproc.ErrClosed), errors.Is(err, context.Canceled):
		return protocol.ErrClosed
	default:
		return protocol.ErrInternal
	}
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
