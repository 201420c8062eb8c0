package run

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

type metrics struct {
	segments      atomic.Int64
	results       atomic.Int64
	errors        atomic.Int64
	empty         atomic.Int64
	droppedFrames atomic.Int64
}

func (m *metrics) reset() {
	m.segments.Store(0)
	m.results.Store(0)
	m.errors.Store(0)
	m.empty.Store(0)
	m.droppedFrames.Store(0)
}

func (m *metrics) incSegments() { m.segments.Add(1) }
func (m *metrics) incResults()  { m.results.Add(1) }
func (m *metrics) incErrors()   { m.errors.Add(1) }
func (m *metrics) incEmpty()    { m.empty.Add(1) }

func (s *Server) metricsServe(ctxDone <-chan struct{}, addr string, logger interface {
	Infof(string, ...any)
	Warnf(string, ...any)
}) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "murmur_segments_total %d\n", s.metrics.segments.Load())
		fmt.Fprintf(w, "murmur_results_total %d\n", s.metrics.results.Load())
		fmt.Fprintf(w, "murmur_errors_total %d\n", s.metrics.errors.Load())
		fmt.Fprintf(w, "murmur_empty_total %d\n", s.metrics.empty.Load())
		fmt.Fprintf(w, "murmur_dropped_frames_total %d\n", s.metrics.droppedFrames.Load())
	})
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		<-ctxDone
		_ = server.Close()
	}()
	logger.Infof("metrics listening on http://%s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && err.Error() != "http: Server closed" {
		logger.Warnf("metrics server: %v", err)
	}
}
