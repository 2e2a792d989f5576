// Package telemetry exposes pipeline metrics through OpenTelemetry and a
// Prometheus scrape endpoint.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/yourusername/aurora-dl"

// Metrics holds the pipeline instruments. A nil *Metrics records nothing.
type Metrics struct {
	provider metric.MeterProvider
	sdk      *sdkmetric.MeterProvider
	registry *prometheus.Registry

	downloadsTotal  metric.Int64Counter
	downloadsActive metric.Int64UpDownCounter
	downloadedBytes metric.Int64Counter
	installsTotal   metric.Int64Counter
	eventsDropped   metric.Int64Counter

	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
}

// Config holds telemetry configuration
type Config struct {
	Enabled bool
}

// New creates the metric instruments. When disabled the instruments are no-ops
// and Handler serves 404.
func New(cfg Config) (*Metrics, error) {
	m := &Metrics{}

	if cfg.Enabled {
		m.registry = prometheus.NewRegistry()
		exporter, err := otelprom.New(otelprom.WithRegisterer(m.registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		m.sdk = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
		m.provider = m.sdk
	} else {
		m.provider = noop.NewMeterProvider()
	}

	if err := m.initialize(m.provider.Meter(meterName)); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initialize(meter metric.Meter) error {
	var err error

	if m.downloadsTotal, err = meter.Int64Counter("downloads_total",
		metric.WithDescription("Download groups that reached a final state"),
	); err != nil {
		return err
	}
	if m.downloadsActive, err = meter.Int64UpDownCounter("downloads_active",
		metric.WithDescription("Download groups currently holding the download slot"),
	); err != nil {
		return err
	}
	if m.downloadedBytes, err = meter.Int64Counter("downloaded",
		metric.WithDescription("Bytes of completed download groups"),
		metric.WithUnit("By"),
	); err != nil {
		return err
	}
	if m.installsTotal, err = meter.Int64Counter("installs_total",
		metric.WithDescription("Install attempts by strategy and result"),
	); err != nil {
		return err
	}
	if m.eventsDropped, err = meter.Int64Counter("events_dropped_total",
		metric.WithDescription("Pipeline events dropped because a subscriber was full"),
	); err != nil {
		return err
	}
	if m.httpRequestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("API requests by route and status class"),
	); err != nil {
		return err
	}
	if m.httpRequestDuration, err = meter.Float64Histogram("http_request_duration",
		metric.WithDescription("API request latency"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}
	return nil
}

// RecordDownload counts a download group reaching status
func (m *Metrics) RecordDownload(status string) {
	if m == nil {
		return
	}
	m.downloadsTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDownloadedBytes adds the size of a completed group
func (m *Metrics) RecordDownloadedBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.downloadedBytes.Add(context.Background(), n)
}

// IncrementActiveDownloads marks a group as holding the slot
func (m *Metrics) IncrementActiveDownloads() {
	if m == nil {
		return
	}
	m.downloadsActive.Add(context.Background(), 1)
}

// DecrementActiveDownloads releases the slot
func (m *Metrics) DecrementActiveDownloads() {
	if m == nil {
		return
	}
	m.downloadsActive.Add(context.Background(), -1)
}

// RecordInstall counts an install outcome
func (m *Metrics) RecordInstall(strategy, result string) {
	if m == nil {
		return
	}
	m.installsTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("result", result),
	))
}

// RecordDroppedEvent counts an event a subscriber could not take
func (m *Metrics) RecordDroppedEvent(kind string) {
	if m == nil {
		return
	}
	m.eventsDropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordHTTPRequest records one API request. route must be the route
// template, not the raw path, to keep series bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", fmt.Sprintf("%dxx", status/100)),
	)
	m.httpRequestsTotal.Add(context.Background(), 1, attrs)
	m.httpRequestDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// Handler serves the Prometheus scrape endpoint
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.sdk == nil {
		return nil
	}
	return m.sdk.Shutdown(ctx)
}
