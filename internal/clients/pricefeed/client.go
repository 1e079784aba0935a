package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var backoffSchedule = []time.Duration{
	1 * time.Second,
	3 * time.Second,
	10 * time.Second,
}

// RateSource supplies the ETH/USD rate for cost reconciliation.
type RateSource interface {
	EthUsdRate(ctx context.Context) (float64, error)
}

// FixedRate is the config-supplied fallback used when no feed is configured.
type FixedRate float64

func (r FixedRate) EthUsdRate(_ context.Context) (float64, error) {
	return float64(r), nil
}

const defaultFeedUrl = "https://api.coingecko.com/api/v3/simple/price?ids=ethereum&vs_currencies=usd"

type Client struct {
	BaseUrl  string
	fallback float64
	client   *http.Client
	logger   *zap.Logger
}

// NewClient builds a price feed client. fallback is returned when every fetch
// attempt fails and is expected to come from configuration.
func NewClient(baseUrl string, fallback float64, l *zap.Logger) *Client {
	if baseUrl == "" {
		baseUrl = defaultFeedUrl
	}
	return &Client{
		BaseUrl:  baseUrl,
		fallback: fallback,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: l,
	}
}

type feedResponse struct {
	Ethereum struct {
		Usd float64 `json:"usd"`
	} `json:"ethereum"`
}

func (c *Client) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseUrl, http.NoBody)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, err
	}
	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price feed returned http %d", res.StatusCode)
	}

	parsed := &feedResponse{}
	if err := json.Unmarshal(body, parsed); err != nil {
		return 0, err
	}
	if parsed.Ethereum.Usd <= 0 {
		return 0, fmt.Errorf("price feed returned non-positive rate")
	}
	return parsed.Ethereum.Usd, nil
}

// EthUsdRate fetches the current rate, retrying on a short backoff schedule
// and falling back to the configured rate when the feed stays unreachable.
func (c *Client) EthUsdRate(ctx context.Context) (float64, error) {
	var lastErr error
	for _, backoff := range backoffSchedule {
		rate, err := c.fetch(ctx)
		if err == nil {
			return rate, nil
		}
		lastErr = err
		c.logger.Sugar().Warnw("Price feed fetch failed", zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return c.fallback, ctx.Err()
		case <-time.After(backoff):
		}
	}

	c.logger.Sugar().Errorw("Exceeded retries fetching ETH/USD rate, using fallback",
		zap.Error(lastErr),
		zap.Float64("fallback", c.fallback),
	)
	return c.fallback, nil
}
