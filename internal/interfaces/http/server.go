package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Server exposes /metrics, /health, and a plain-JSON metrics summary
// for dashboards that don't speak Prometheus.
type Server struct {
	metrics *MetricsRegistry
	srv     *http.Server
	started time.Time
}

// NewServer builds the HTTP surface around a metrics registry
func NewServer(addr string, metrics *MetricsRegistry) *Server {
	s := &Server{metrics: metrics, started: time.Now()}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/metrics/summary", s.handleSummary).Methods("GET")

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails; run it in its own goroutine
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("Metrics server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSummary walks the gathered metric families and flattens gauges
// and counters into a simple name->value JSON map.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	families, err := s.metrics.Registry().Gather()
	if err != nil {
		http.Error(w, fmt.Sprintf("gather failed: %v", err), http.StatusInternalServerError)
		return
	}

	summary := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			name := family.GetName()
			if labels := metric.GetLabel(); len(labels) > 0 {
				parts := make([]string, len(labels))
				for i, label := range labels {
					parts[i] = label.GetName() + "=" + label.GetValue()
				}
				name += "{" + strings.Join(parts, ",") + "}"
			}
			switch family.GetType() {
			case dto.MetricType_GAUGE:
				summary[name] = metric.GetGauge().GetValue()
			case dto.MetricType_COUNTER:
				summary[name] = metric.GetCounter().GetValue()
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
