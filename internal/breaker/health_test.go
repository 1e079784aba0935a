package breaker

import (
	"context"
	"errors"
	"testing"

	"github.com/gaslift-labs/gaslift/internal/economics"
	"github.com/gaslift-labs/gaslift/internal/kvstore"
	"github.com/gaslift-labs/gaslift/internal/logger"
	"github.com/gaslift-labs/gaslift/internal/wallet"
	"github.com/stretchr/testify/assert"
)

type fakeBalanceProvider struct {
	balances *wallet.Balances
	err      error
}

func (f *fakeBalanceProvider) GetAgentWalletBalance(_ context.Context) (*wallet.Balances, error) {
	return f.balances, f.err
}

type fakeEconChecker struct {
	report *economics.Report
	err    error
}

func (f *fakeEconChecker) Check(_ context.Context, _ economics.Reserves) (*economics.Report, error) {
	return f.report, f.err
}

func Test_HealthChecker(t *testing.T) {
	ctx := context.Background()
	l := logger.NewNoopLogger()

	healthyBalances := &fakeBalanceProvider{balances: &wallet.Balances{ETH: 1.5, USDC: 100}}
	healthyEcon := &fakeEconChecker{report: &economics.Report{Healthy: true, Warnings: []string{}}}

	newChecker := func(b *Breaker, balances wallet.BalanceProvider, econ economics.Checker) *HealthChecker {
		return NewHealthChecker(b, balances, nil, econ, HealthCheckerConfig{
			ReserveCriticalEth: 0.05,
		}, l)
	}

	t.Run("Should pass when every check passes", func(t *testing.T) {
		b := NewBreaker("bundler", nil, kvstore.NewInMemoryStore(), l)

		report := newChecker(b, healthyBalances, healthyEcon).CheckHealthBeforeExecution(ctx)
		assert.True(t, report.Healthy)
		assert.Empty(t, report.Warnings)
		assert.Equal(t, "CLOSED", report.Details["circuitState"])
	})

	t.Run("Should block when the circuit is open", func(t *testing.T) {
		b := NewBreaker("bundler", &Config{FailureThreshold: 1}, kvstore.NewInMemoryStore(), l)
		_ = b.Execute(ctx, func(_ context.Context) error { return errors.New("boom") })

		report := newChecker(b, healthyBalances, healthyEcon).CheckHealthBeforeExecution(ctx)
		assert.False(t, report.Healthy)
		assert.Contains(t, report.Reason, "Circuit breaker OPEN")
	})

	t.Run("Should block when the reserve is below the critical threshold", func(t *testing.T) {
		b := NewBreaker("bundler", nil, kvstore.NewInMemoryStore(), l)
		low := &fakeBalanceProvider{balances: &wallet.Balances{ETH: 0.02}}

		report := newChecker(b, low, healthyEcon).CheckHealthBeforeExecution(ctx)
		assert.False(t, report.Healthy)
		assert.Contains(t, report.Reason, "Reserve below critical threshold")
	})

	t.Run("Should block when balances cannot be fetched", func(t *testing.T) {
		b := NewBreaker("bundler", nil, kvstore.NewInMemoryStore(), l)
		broken := &fakeBalanceProvider{err: errors.New("rpc unreachable")}

		report := newChecker(b, broken, healthyEcon).CheckHealthBeforeExecution(ctx)
		assert.False(t, report.Healthy)
		assert.Contains(t, report.Reason, "Failed to fetch reserve balances")
	})

	t.Run("Should block on an unhealthy economic verdict", func(t *testing.T) {
		b := NewBreaker("bundler", nil, kvstore.NewInMemoryStore(), l)
		econ := &fakeEconChecker{report: &economics.Report{Healthy: false, Reason: "Runway 1.0 days below minimum of 3.0 days"}}

		report := newChecker(b, healthyBalances, econ).CheckHealthBeforeExecution(ctx)
		assert.False(t, report.Healthy)
		assert.Contains(t, report.Reason, "Runway")
	})

	t.Run("Should degrade to a warning when the economic check itself fails", func(t *testing.T) {
		b := NewBreaker("bundler", nil, kvstore.NewInMemoryStore(), l)
		econ := &fakeEconChecker{err: errors.New("gas oracle unreachable")}

		report := newChecker(b, healthyBalances, econ).CheckHealthBeforeExecution(ctx)
		assert.True(t, report.Healthy)
		assert.Len(t, report.Warnings, 1)
		assert.Contains(t, report.Warnings[0], "Economic check unavailable")
	})

	t.Run("Should carry economic warnings through a healthy verdict", func(t *testing.T) {
		b := NewBreaker("bundler", nil, kvstore.NewInMemoryStore(), l)
		econ := &fakeEconChecker{report: &economics.Report{
			Healthy:  true,
			Warnings: []string{"Gas price 45.00 gwei approaching cap of 50.00 gwei"},
		}}

		report := newChecker(b, healthyBalances, econ).CheckHealthBeforeExecution(ctx)
		assert.True(t, report.Healthy)
		assert.Len(t, report.Warnings, 1)
	})
}
