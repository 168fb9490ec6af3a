package instrumentation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Provider owns the meter provider backing Metrics and exposes it for scraping.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	metrics       *Metrics
	enabled       bool
}

// NewProvider wires a Prometheus exporter into a meter provider and installs it
// globally. A disabled provider hands out a no-op Metrics.
func NewProvider(serviceName string, enabled bool) (*Provider, error) {
	if !enabled {
		return &Provider{metrics: &Metrics{}}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)

	metrics, err := NewMetrics(mp.Meter(serviceName))
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create metrics recorder: %w", err)
	}

	return &Provider{
		meterProvider: mp,
		metrics:       metrics,
		enabled:       true,
	}, nil
}

// Metrics returns the recorder. It is never nil.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Enabled reports whether metrics are exported.
func (p *Provider) Enabled() bool {
	return p.enabled
}

// Handler serves the Prometheus scrape endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}
	return nil
}

// Router serves /metrics and a /healthz liveness probe.
func (p *Provider) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", p.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}
