package metrics

import (
	"github.com/gaslift-labs/gaslift/internal/config"
	"go.uber.org/zap"
)

const (
	Counter_SponsorshipsAttempted         = "sponsorships_attempted"
	Counter_SponsorshipsConfirmed         = "sponsorships_confirmed"
	Counter_SponsorshipsLoggedNotExecuted = "sponsorships_logged_not_executed"
	Counter_SponsorshipsAborted           = "sponsorships_aborted"
	Counter_SponsorshipsSimulated         = "sponsorships_simulated"
	Counter_BreakerOpenRejections         = "breaker_open_rejections"
	Counter_WalletLockTimeouts            = "wallet_lock_timeouts"

	Gauge_ReserveEth      = "reserve_eth"
	Gauge_ProtocolBudgets = "protocol_budgets_usd"
)

type MetricsLabel struct {
	Name  string
	Value string
}

type IMetricsClient interface {
	Incr(name string, labels []MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []MetricsLabel) error
}

type MetricsSinkConfig struct {
	DefaultLabels []MetricsLabel
}

// MetricsSink fans metrics out to every configured client.
type MetricsSink struct {
	clients []IMetricsClient
	config  *MetricsSinkConfig
	logger  *zap.Logger
}

func NewMetricsSink(cfg *MetricsSinkConfig, clients []IMetricsClient, l *zap.Logger) (*MetricsSink, error) {
	if cfg.DefaultLabels == nil {
		cfg.DefaultLabels = []MetricsLabel{}
	}
	return &MetricsSink{
		clients: clients,
		config:  cfg,
		logger:  l,
	}, nil
}

func mergeLabels(labels []MetricsLabel, defaultLabels []MetricsLabel) []MetricsLabel {
	if labels == nil {
		return defaultLabels
	}
	mergedLabels := make([]MetricsLabel, 0)
	mergedLabels = append(mergedLabels, defaultLabels...)
	mergedLabels = append(mergedLabels, labels...)
	return mergedLabels
}

func (ms *MetricsSink) Incr(name string, labels []MetricsLabel, value float64) {
	mergedLabels := mergeLabels(labels, ms.config.DefaultLabels)
	for _, client := range ms.clients {
		if err := client.Incr(name, mergedLabels, value); err != nil {
			ms.logger.Sugar().Warnw("Failed to emit counter", zap.Error(err), zap.String("metric", name))
		}
	}
}

func (ms *MetricsSink) Gauge(name string, value float64, labels []MetricsLabel) {
	mergedLabels := mergeLabels(labels, ms.config.DefaultLabels)
	for _, client := range ms.clients {
		if err := client.Gauge(name, value, mergedLabels); err != nil {
			ms.logger.Sugar().Warnw("Failed to emit gauge", zap.Error(err), zap.String("metric", name))
		}
	}
}

func InitMetricsSinksFromConfig(cfg *config.Config, l *zap.Logger) ([]IMetricsClient, error) {
	clients := []IMetricsClient{}

	if cfg.StatsdConfig.Enabled {
		dd, err := NewDogStatsdMetricsClient(cfg.StatsdConfig.Url, l)
		if err != nil {
			return nil, err
		}
		clients = append(clients, dd)
	}

	if cfg.PrometheusConfig.Enabled {
		pm, err := NewPrometheusMetricsClient(cfg.PrometheusConfig.Port, l)
		if err != nil {
			return nil, err
		}
		clients = append(clients, pm)
	}

	return clients, nil
}
