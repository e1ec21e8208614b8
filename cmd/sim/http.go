package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"mutationsim.ai/internal/observerproto"
	"mutationsim.ai/internal/transport/observer"
)

// publishRelay lets the simulator publish before the observer server exists.
type publishRelay struct {
	srv atomic.Pointer[observer.Server]
}

func (r *publishRelay) set(s *observer.Server) { r.srv.Store(s) }

func (r *publishRelay) Publish(msg observerproto.TickMsg) {
	if s := r.srv.Load(); s != nil {
		s.Publish(msg)
	}
}

func newMux(obs *observer.Server, idx runtimeIndex) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", obs.MetricsHandler(func(w io.Writer) {
		writeIndexMetrics(w, idx)
	}))
	mux.HandleFunc("/admin/v1/report", obs.ReportHandler())
	mux.HandleFunc("/admin/v1/observer/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", obs.WSHandler())

	if envBool("MS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func writeIndexMetrics(w io.Writer, idx runtimeIndex) {
	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(w, "# HELP mutationsim_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(w, "# TYPE mutationsim_index_queue_depth gauge\n")
	fmt.Fprintf(w, "mutationsim_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(w, "# HELP mutationsim_index_dropped_total Index rows dropped because the queue was full.\n")
	fmt.Fprintf(w, "# TYPE mutationsim_index_dropped_total counter\n")
	fmt.Fprintf(w, "mutationsim_index_dropped_total{kind=%q} %d\n", "tick", s.DropTickTotal)
	fmt.Fprintf(w, "mutationsim_index_dropped_total{kind=%q} %d\n", "audit", s.DropAuditTotal)
	fmt.Fprintf(w, "mutationsim_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
