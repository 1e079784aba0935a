package pricefeed

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gaslift-labs/gaslift/internal/logger"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
)

const testFeedUrl = "http://localhost:9999/price"

func newTestClient(t *testing.T, fallback float64) *Client {
	c := NewClient(testFeedUrl, fallback, logger.NewNoopLogger())
	httpmock.ActivateNonDefault(c.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func shortBackoff(t *testing.T) {
	original := backoffSchedule
	backoffSchedule = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	t.Cleanup(func() {
		backoffSchedule = original
	})
}

func Test_PriceFeedClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return the feed's rate", func(t *testing.T) {
		c := newTestClient(t, 1500)
		httpmock.RegisterResponder("GET", testFeedUrl,
			httpmock.NewJsonResponderOrPanic(200, map[string]any{
				"ethereum": map[string]float64{"usd": 2345.67},
			}))

		rate, err := c.EthUsdRate(ctx)
		assert.Nil(t, err)
		assert.Equal(t, 2345.67, rate)
	})

	t.Run("Should retry a transient failure", func(t *testing.T) {
		c := newTestClient(t, 1500)
		shortBackoff(t)
		calls := 0
		httpmock.RegisterResponder("GET", testFeedUrl, func(_ *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(500, "err"), nil
			}
			return httpmock.NewJsonResponse(200, map[string]any{
				"ethereum": map[string]float64{"usd": 2000.0},
			})
		})

		rate, err := c.EthUsdRate(ctx)
		assert.Nil(t, err)
		assert.Equal(t, 2000.0, rate)
		assert.Equal(t, 2, calls)
	})

	t.Run("FixedRate should return its configured value", func(t *testing.T) {
		rate, err := FixedRate(1800).EthUsdRate(ctx)
		assert.Nil(t, err)
		assert.Equal(t, 1800.0, rate)
	})

	t.Run("Should reject a non-positive rate", func(t *testing.T) {
		c := newTestClient(t, 1500)
		shortBackoff(t)
		httpmock.RegisterResponder("GET", testFeedUrl,
			httpmock.NewJsonResponderOrPanic(200, map[string]any{
				"ethereum": map[string]float64{"usd": 0},
			}))

		// Every attempt fails on the bad payload, so the fallback comes back.
		rate, err := c.EthUsdRate(ctx)
		assert.Nil(t, err)
		assert.Equal(t, 1500.0, rate)
	})
}
