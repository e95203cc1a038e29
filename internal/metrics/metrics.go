package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the console's request and aggregation metrics on a private
// prometheus registry, so several instances (tests) never collide.
type Registry struct {
	reg *prometheus.Registry

	hubRequests *prometheus.CounterVec
	hubDuration *prometheus.HistogramVec
	mpFailures  *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		hubRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketdesk",
			Name:      "hub_requests_total",
			Help:      "Requests made to the marketplace hub, by operation and outcome.",
		}, []string{"op", "outcome"}),
		hubDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "marketdesk",
			Name:      "hub_request_duration_seconds",
			Help:      "Marketplace hub round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		mpFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketdesk",
			Name:      "aggregator_marketplace_failures_total",
			Help:      "Marketplaces dropped from an aggregated list because their adapter failed.",
		}, []string{"marketplace"}),
	}
	r.reg.MustRegister(r.hubRequests, r.hubDuration, r.mpFailures)
	return r
}

// ObserveRequest records one hub call. A nil Registry is a no-op.
func (r *Registry) ObserveRequest(op string, d time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.hubRequests.WithLabelValues(op, outcome).Inc()
	r.hubDuration.WithLabelValues(op).Observe(d.Seconds())
}

// MarketplaceFailed counts a marketplace dropped from a fan-out.
func (r *Registry) MarketplaceFailed(marketplace string) {
	if r == nil {
		return
	}
	r.mpFailures.WithLabelValues(marketplace).Inc()
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
