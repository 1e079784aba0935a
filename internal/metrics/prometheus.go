package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const metricNamespace = "gaslift"

type PrometheusMetricsClient struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
}

func NewPrometheusMetricsClient(port int, l *zap.Logger) (*PrometheusMetricsClient, error) {
	client := &PrometheusMetricsClient{
		registry: prometheus.NewRegistry(),
		logger:   l,
		counters: make(map[string]*prometheus.CounterVec),
		gauges:   make(map[string]*prometheus.GaugeVec),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(client.registry, promhttp.HandlerOpts{}))

	go func() {
		addr := fmt.Sprintf(":%d", port)
		l.Sugar().Infow("Starting prometheus metrics server", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			l.Sugar().Errorw("Prometheus metrics server exited", zap.Error(err))
		}
	}()

	return client, nil
}

func labelNamesAndValues(labels []MetricsLabel) ([]string, []string) {
	names := make([]string, 0, len(labels))
	values := make([]string, 0, len(labels))
	for _, label := range labels {
		names = append(names, label.Name)
		values = append(values, label.Value)
	}
	return names, values
}

// Metric vectors are registered on first use with the label names seen then;
// later calls must use the same label set.
func (pc *PrometheusMetricsClient) counter(name string, labelNames []string) *prometheus.CounterVec {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if c, ok := pc.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricNamespace,
		Name:      name,
	}, labelNames)
	pc.registry.MustRegister(c)
	pc.counters[name] = c
	return c
}

func (pc *PrometheusMetricsClient) gauge(name string, labelNames []string) *prometheus.GaugeVec {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if g, ok := pc.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      name,
	}, labelNames)
	pc.registry.MustRegister(g)
	pc.gauges[name] = g
	return g
}

func (pc *PrometheusMetricsClient) Incr(name string, labels []MetricsLabel, value float64) error {
	names, values := labelNamesAndValues(labels)
	pc.counter(name, names).WithLabelValues(values...).Add(value)
	return nil
}

func (pc *PrometheusMetricsClient) Gauge(name string, value float64, labels []MetricsLabel) error {
	names, values := labelNamesAndValues(labels)
	pc.gauge(name, names).WithLabelValues(values...).Set(value)
	return nil
}
