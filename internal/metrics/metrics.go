package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	export "go.opentelemetry.io/otel/sdk/export/metric"
	"go.opentelemetry.io/otel/sdk/metric/aggregator/histogram"
	controller "go.opentelemetry.io/otel/sdk/metric/controller/basic"
	processor "go.opentelemetry.io/otel/sdk/metric/processor/basic"
	selector "go.opentelemetry.io/otel/sdk/metric/selector/simple"
)

var (
	methodKey = attribute.Key("http.method")
	statusKey = attribute.Key("http.status_code")
	kindKey   = attribute.Key("blog.mutation")
	tableKey  = attribute.Key("blog.table")
)

// Metrics holds the service instruments.
type Metrics struct {
	requests    metric.Int64Counter
	latency     metric.Float64ValueRecorder
	mutations   metric.Int64Counter
	published   metric.Int64Counter
	dropped     metric.Int64Counter
	subscribers metric.Int64UpDownCounter
}

func New(meter metric.Meter) *Metrics {
	m := metric.Must(meter)

	return &Metrics{
		requests: m.NewInt64Counter(
			"http/server/completed_count",
			metric.WithDescription("Count of completed requests, by HTTP method and response status"),
		),
		latency: m.NewFloat64ValueRecorder(
			"http/server/latency_ms",
			metric.WithDescription("Request latency in milliseconds, by HTTP method"),
		),
		mutations: m.NewInt64Counter(
			"articles/mutations",
			metric.WithDescription("Article writes that changed at least one row, by kind"),
		),
		published: m.NewInt64Counter(
			"realtime/published_count",
			metric.WithDescription("Change events fanned out to realtime subscribers"),
		),
		dropped: m.NewInt64Counter(
			"realtime/dropped_subscribers",
			metric.WithDescription("Realtime subscribers dropped for falling behind"),
		),
		subscribers: m.NewInt64UpDownCounter(
			"realtime/subscribers",
			metric.WithDescription("Open realtime subscriptions"),
		),
	}
}

// NewExporter builds the prometheus exporter with a pull controller. Its
// MeterProvider backs the instruments; ServeHTTP serves /metrics.
func NewExporter() (*prometheus.Exporter, error) {
	config := prometheus.Config{}
	c := controller.New(
		processor.New(
			selector.NewWithHistogramDistribution(
				histogram.WithExplicitBoundaries(config.DefaultHistogramBoundaries),
			),
			export.CumulativeExportKindSelector(),
			processor.WithMemory(true),
		),
	)

	return prometheus.New(config, c)
}

// Middleware counts completed requests and records their latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.Add(r.Context(), 1, methodKey.String(r.Method), statusKey.String(strconv.Itoa(status)))
		m.latency.Record(r.Context(), float64(time.Since(start))/float64(time.Millisecond), methodKey.String(r.Method))
	})
}

func (m *Metrics) Mutation(ctx context.Context, kind string) {
	m.mutations.Add(ctx, 1, kindKey.String(kind))
}

func (m *Metrics) Published(ctx context.Context, table string, n int) {
	m.published.Add(ctx, int64(n), tableKey.String(table))
}

func (m *Metrics) Dropped(ctx context.Context, table string) {
	m.dropped.Add(ctx, 1, tableKey.String(table))
}

func (m *Metrics) Subscribed(ctx context.Context, table string, delta int64) {
	m.subscribers.Add(ctx, delta, tableKey.String(table))
}
