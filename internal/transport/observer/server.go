package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"mutationsim.ai/internal/observerproto"
	"mutationsim.ai/internal/protocol"
	"mutationsim.ai/internal/sim/encoding"
	"mutationsim.ai/internal/sim/engine"
	"mutationsim.ai/internal/sim/world"
)

// Source is the read side of a running simulation.
type Source interface {
	Config() engine.Config
	Report() world.Report
	Paused() bool
}

// Server streams per-tick frames to read-only spectators. It implements engine.Publisher.
type Server struct {
	src Source
	log *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	out chan []byte

	mu  sync.Mutex
	sub observerproto.SubscribeMsg
}

func (s *session) subscription() observerproto.SubscribeMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

func (s *session) setSubscription(sub observerproto.SubscribeMsg) {
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
}

func NewServer(src Source, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		src: src,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only anyway
		},
		sessions: map[string]*session{},
	}
}

// Sessions returns the number of connected observers.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Publish fans a tick out to every session, trimmed to what it subscribed to. Slow sessions only
// ever see the latest tick.
func (s *Server) Publish(msg observerproto.TickMsg) {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, ss := range s.sessions {
		sessions = append(sessions, ss)
	}
	s.mu.Unlock()
	if len(sessions) == 0 {
		return
	}

	var full, lean []byte
	for _, ss := range sessions {
		sub := ss.subscription()
		m := msg
		if !sub.IncludeAgents {
			m.Agents = nil
		}
		if !sub.IncludeGrid {
			m.Grid = ""
		}
		var b []byte
		switch {
		case sub.IncludeAgents && sub.IncludeGrid:
			if full == nil {
				full, _ = json.Marshal(m)
			}
			b = full
		case !sub.IncludeAgents && !sub.IncludeGrid:
			if lean == nil {
				lean, _ = json.Marshal(m)
			}
			b = lean
		default:
			b, _ = json.Marshal(m)
		}
		sendLatest(ss.out, b)
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		cfg := s.src.Config()
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			AgentProtocol:   protocol.Version,
			RunID:           cfg.RunID,
			Tick:            s.src.Report().Tick,
			WorldParams: observerproto.WorldParams{
				Width:      cfg.World.Width,
				Height:     cfg.World.Height,
				TickRateHz: cfg.TickRateHz,
				Seed:       cfg.World.Seed,
				TimeoutMS:  cfg.World.TimeoutMS,
				HighEnergy: cfg.Bands.High,
				LowEnergy:  cfg.Bands.Low,
			},
			CellPalette: encoding.Palette,
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// ReportHandler serves the detailed report of the latest tick.
func (s *Server) ReportHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rep := s.src.Report()
		if r.URL.Query().Get("format") == "text" {
			rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = io.WriteString(rw, rep.String())
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(rep)
	}
}

// MetricsHandler writes the minimal Prometheus exposition format.
func (s *Server) MetricsHandler(extra func(w io.Writer)) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		rep := s.src.Report()
		run := rep.RunID

		fmt.Fprintf(rw, "# HELP mutationsim_tick Current simulation tick.\n")
		fmt.Fprintf(rw, "# TYPE mutationsim_tick gauge\n")
		fmt.Fprintf(rw, "mutationsim_tick{run=%q} %d\n", run, rep.Tick)

		fmt.Fprintf(rw, "# HELP mutationsim_generation Deepest lineage reached.\n")
		fmt.Fprintf(rw, "# TYPE mutationsim_generation gauge\n")
		fmt.Fprintf(rw, "mutationsim_generation{run=%q} %d\n", run, rep.Generation)

		fmt.Fprintf(rw, "# HELP mutationsim_agents Agents by state.\n")
		fmt.Fprintf(rw, "# TYPE mutationsim_agents gauge\n")
		fmt.Fprintf(rw, "mutationsim_agents{run=%q,state=%q} %d\n", run, "alive", rep.Alive)
		fmt.Fprintf(rw, "mutationsim_agents{run=%q,state=%q} %d\n", run, "dead", rep.Dead)
		fmt.Fprintf(rw, "mutationsim_agents{run=%q,state=%q} %d\n", run, "dormant", rep.Dormant)

		fmt.Fprintf(rw, "# HELP mutationsim_energy_avg Average energy of living agents.\n")
		fmt.Fprintf(rw, "# TYPE mutationsim_energy_avg gauge\n")
		fmt.Fprintf(rw, "mutationsim_energy_avg{run=%q} %.3f\n", run, rep.EnergyAvg)

		fmt.Fprintf(rw, "# HELP mutationsim_events_total Lifecycle events since start.\n")
		fmt.Fprintf(rw, "# TYPE mutationsim_events_total counter\n")
		fmt.Fprintf(rw, "mutationsim_events_total{run=%q,event=%q} %d\n", run, "attack", rep.Totals.Attacks)
		fmt.Fprintf(rw, "mutationsim_events_total{run=%q,event=%q} %d\n", run, "kill", rep.Totals.Kills)
		fmt.Fprintf(rw, "mutationsim_events_total{run=%q,event=%q} %d\n", run, "consume", rep.Totals.Consumes)
		fmt.Fprintf(rw, "mutationsim_events_total{run=%q,event=%q} %d\n", run, "replicate", rep.Totals.Replications)
		fmt.Fprintf(rw, "mutationsim_events_total{run=%q,event=%q} %d\n", run, "death", rep.Totals.Deaths)
		fmt.Fprintf(rw, "mutationsim_events_total{run=%q,event=%q} %d\n", run, "decay", rep.Totals.Decayed)
		fmt.Fprintf(rw, "mutationsim_events_total{run=%q,event=%q} %d\n", run, "failure", rep.Totals.Failures)

		fmt.Fprintf(rw, "# HELP mutationsim_observers Connected observer sessions.\n")
		fmt.Fprintf(rw, "# TYPE mutationsim_observers gauge\n")
		fmt.Fprintf(rw, "mutationsim_observers{run=%q} %d\n", run, s.Sessions())

		paused := 0
		if s.src.Paused() {
			paused = 1
		}
		fmt.Fprintf(rw, "# HELP mutationsim_paused Whether the tick loop is paused.\n")
		fmt.Fprintf(rw, "# TYPE mutationsim_paused gauge\n")
		fmt.Fprintf(rw, "mutationsim_paused{run=%q} %d\n", run, paused)

		if extra != nil {
			extra(rw)
		}
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		ss := &session{out: make(chan []byte, 8), sub: sub}
		s.mu.Lock()
		s.sessions[sid] = ss
		s.mu.Unlock()
		s.log.Printf("observer %s subscribed from %s", sid, r.RemoteAddr)
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sid)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-ss.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				ss.setSubscription(sub)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(b []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(b, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	return sub, true
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
