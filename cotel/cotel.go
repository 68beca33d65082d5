package cotel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/chenjie199234/segstack/internal/version"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/host"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	oprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"google.golang.org/grpc"
)

var ErrMetricEnv = errors.New("[cotel] os env METRIC error,must in [\"\",\"log\",\"otlphttp\",\"otlpgrpc\",\"prometheus\"]")
var ErrMetricEndpoint = errors.New("[cotel] os env OTEL_EXPORTER_OTLP_METRICS_ENDPOINT or OTEL_EXPORTER_OTLP_ENDPOINT missing,when os env METRIC is otlp...")

var needmetric bool
var promRegister *prometheus.Registry

// Init builds the global otel meter provider from os env METRIC.
// Empty or "<METRIC>" leaves metrics off, every Register call is then a noop.
func Init() error {
	needmetric = false
	promRegister = nil
	metricenv := getEnv("METRIC")
	if metricenv != "" && metricenv != "log" && metricenv != "otlphttp" && metricenv != "otlpgrpc" && metricenv != "prometheus" {
		return fmt.Errorf("%w: %s", ErrMetricEnv, metricenv)
	}
	if metricenv == "" {
		otel.SetMeterProvider(noop.NewMeterProvider())
		return nil
	}
	mopts := make([]metric.Option, 0, 2)
	mopts = append(mopts, metric.WithResource(newResource()))
	switch metricenv {
	case "log":
		mopts = append(mopts, metric.WithReader(metric.NewPeriodicReader(&slogMetricExporter{})))
	case "otlphttp":
		if getEnv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT") == "" && getEnv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
			return ErrMetricEndpoint
		}
		exporter, e := otlpmetrichttp.New(context.Background(), otlpmetrichttp.WithHeaders(map[string]string{"User-Agent": version.UserAgent()}))
		if e != nil {
			return fmt.Errorf("[cotel] new otlp http metric exporter failed: %w", e)
		}
		mopts = append(mopts, metric.WithReader(metric.NewPeriodicReader(exporter)))
	case "otlpgrpc":
		if getEnv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT") == "" && getEnv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
			return ErrMetricEndpoint
		}
		exporter, e := otlpmetricgrpc.New(context.Background(), otlpmetricgrpc.WithDialOption(grpc.WithUserAgent(version.UserAgent())))
		if e != nil {
			return fmt.Errorf("[cotel] new otlp grpc metric exporter failed: %w", e)
		}
		mopts = append(mopts, metric.WithReader(metric.NewPeriodicReader(exporter)))
	case "prometheus":
		promRegister = prometheus.NewRegistry()
		exporter, e := oprometheus.New(oprometheus.WithoutUnits(), oprometheus.WithRegisterer(promRegister), oprometheus.WithoutCounterSuffixes())
		if e != nil {
			promRegister = nil
			return fmt.Errorf("[cotel] new prometheus metric exporter failed: %w", e)
		}
		mopts = append(mopts, metric.WithReader(exporter))
	}
	otel.SetMeterProvider(metric.NewMeterProvider(mopts...))
	needmetric = true
	if e := registerProcess(); e != nil {
		return e
	}
	slog.Info("[cotel] metric exporter started", slog.String("exporter", metricenv), slog.String("version", version.String()))
	return nil
}

// getEnv treats the "<NAME>" placeholder as unset
func getEnv(name string) string {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if v == "<"+strings.ToLower(name)+">" {
		return ""
	}
	return v
}

func newResource() *resource.Resource {
	attrs := []attribute.KeyValue{attribute.String("service.name", filepath.Base(os.Args[0]))}
	if info, e := host.Info(); e == nil {
		attrs = append(attrs, attribute.String("host.name", info.Hostname), attribute.String("host.id", info.HostID))
	}
	return resource.NewSchemaless(attrs...)
}

func Stop() {
	if !needmetric {
		return
	}
	if mp, ok := otel.GetMeterProvider().(*metric.MeterProvider); ok {
		if e := mp.Shutdown(context.Background()); e != nil {
			slog.Error("[cotel] stop metric exporter failed", slog.String("error", e.Error()))
		}
	}
	needmetric = false
}

func NeedMetric() bool {
	return needmetric
}

// GetPrometheusHandler returns nil unless os env METRIC is prometheus
func GetPrometheusHandler() http.Handler {
	if promRegister == nil {
		return nil
	}
	return promhttp.HandlerFor(promRegister, promhttp.HandlerOpts{ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo)})
}

type slogMetricExporter struct {
	stopped atomic.Bool
}

func (s *slogMetricExporter) Temporality(p metric.InstrumentKind) metricdata.Temporality {
	return metric.DefaultTemporalitySelector(p)
}
func (s *slogMetricExporter) Aggregation(p metric.InstrumentKind) metric.Aggregation {
	return metric.DefaultAggregationSelector(p)
}
func (s *slogMetricExporter) Export(ctx context.Context, metrics *metricdata.ResourceMetrics) error {
	if s.stopped.Load() {
		return nil
	}
	attrs := make([]any, 0, len(metrics.ScopeMetrics)+1)
	attrs = append(attrs, slog.Any("Resource", metrics.Resource))
	for _, m := range metrics.ScopeMetrics {
		gattrs := make([]any, 0, len(m.Metrics))
		for _, mm := range m.Metrics {
			gattrs = append(gattrs, slog.Any(mm.Name+"("+mm.Unit+")", mm.Data))
		}
		attrs = append(attrs, slog.Group(m.Scope.Name, gattrs...))
	}
	slog.Info("metric", attrs...)
	return nil
}
func (s *slogMetricExporter) ForceFlush(context.Context) error {
	return nil
}
func (s *slogMetricExporter) Shutdown(context.Context) error {
	s.stopped.Store(true)
	return nil
}
