package metrics

import (
	"fmt"

	"github.com/DataDog/datadog-go/v5/statsd"
	"go.uber.org/zap"
)

type DogStatsdMetricsClient struct {
	client *statsd.Client
	logger *zap.Logger
}

func NewDogStatsdMetricsClient(url string, l *zap.Logger) (*DogStatsdMetricsClient, error) {
	client, err := statsd.New(url)
	if err != nil {
		return nil, err
	}
	return &DogStatsdMetricsClient{
		client: client,
		logger: l,
	}, nil
}

func labelsToTags(labels []MetricsLabel) []string {
	tags := make([]string, 0, len(labels))
	for _, label := range labels {
		tags = append(tags, fmt.Sprintf("%s:%s", label.Name, label.Value))
	}
	return tags
}

func (dc *DogStatsdMetricsClient) Incr(name string, labels []MetricsLabel, value float64) error {
	return dc.client.Count(name, int64(value), labelsToTags(labels), 1)
}

func (dc *DogStatsdMetricsClient) Gauge(name string, value float64, labels []MetricsLabel) error {
	return dc.client.Gauge(name, value, labelsToTags(labels), 1)
}
