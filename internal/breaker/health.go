package breaker

import (
	"context"
	"fmt"
	"time"

	"github.com/gaslift-labs/gaslift/internal/clients/bundler"
	"github.com/gaslift-labs/gaslift/internal/economics"
	"github.com/gaslift-labs/gaslift/internal/wallet"
	"go.uber.org/zap"
)

const highLatencyThreshold = 5 * time.Second

type HealthReport struct {
	Healthy  bool
	Reason   string
	Details  map[string]any
	Warnings []string
}

// BundlerHealthClient is satisfied by bundler.Client.
type BundlerHealthClient interface {
	CheckHealth(ctx context.Context) (*bundler.HealthStatus, error)
}

type HealthCheckerConfig struct {
	ReserveCriticalEth  float64
	BundlerCheckEnabled bool
}

// HealthChecker is the composite pre-execution check. It evaluates circuit
// state, reserve balance, bundler liveness and economic conditions in order.
type HealthChecker struct {
	breaker  *Breaker
	balances wallet.BalanceProvider
	bundler  BundlerHealthClient
	econ     economics.Checker
	cfg      HealthCheckerConfig
	logger   *zap.Logger
}

func NewHealthChecker(
	b *Breaker,
	balances wallet.BalanceProvider,
	bundlerClient BundlerHealthClient,
	econ economics.Checker,
	cfg HealthCheckerConfig,
	l *zap.Logger,
) *HealthChecker {
	if cfg.ReserveCriticalEth <= 0 {
		cfg.ReserveCriticalEth = 0.05
	}
	return &HealthChecker{
		breaker:  b,
		balances: balances,
		bundler:  bundlerClient,
		econ:     econ,
		cfg:      cfg,
		logger:   l,
	}
}

func unhealthy(reason string, details map[string]any, warnings []string) *HealthReport {
	return &HealthReport{
		Healthy:  false,
		Reason:   reason,
		Details:  details,
		Warnings: warnings,
	}
}

func (h *HealthChecker) CheckHealthBeforeExecution(ctx context.Context) *HealthReport {
	details := map[string]any{}
	warnings := []string{}

	// 1. Circuit state.
	state := h.breaker.CurrentState(ctx)
	details["circuitState"] = string(state.State)
	details["failureCount"] = state.FailureCount
	if state.State == StateOpen {
		return unhealthy(
			fmt.Sprintf("Circuit breaker OPEN (%d recent failures)", state.FailureCount),
			details, warnings,
		)
	}

	// 2. Reserve balance.
	balances, err := h.balances.GetAgentWalletBalance(ctx)
	if err != nil {
		return unhealthy(
			fmt.Sprintf("Failed to fetch reserve balances: %s", err.Error()),
			details, warnings,
		)
	}
	details["reserveEth"] = balances.ETH
	details["reserveUsdc"] = balances.USDC
	if balances.ETH < h.cfg.ReserveCriticalEth {
		return unhealthy(
			fmt.Sprintf("Reserve below critical threshold: %.4f ETH < %.4f ETH", balances.ETH, h.cfg.ReserveCriticalEth),
			details, warnings,
		)
	}

	// 3. Bundler liveness (skippable via config).
	if h.cfg.BundlerCheckEnabled && h.bundler != nil {
		status, err := h.bundler.CheckHealth(ctx)
		if err != nil {
			return unhealthy(
				fmt.Sprintf("Bundler unavailable: %s", err.Error()),
				details, warnings,
			)
		}
		details["bundlerLatencyMs"] = status.Latency.Milliseconds()
		if status.Latency > highLatencyThreshold {
			warnings = append(warnings, fmt.Sprintf("Bundler latency high: %s", status.Latency.Round(time.Millisecond)))
		}
	}

	// 4. Economic conditions. An error from the check itself degrades
	// gracefully; an unhealthy verdict blocks.
	if h.econ != nil {
		report, err := h.econ.Check(ctx, economics.Reserves{
			ETH:  balances.ETH,
			USDC: balances.USDC,
		})
		if err != nil {
			h.logger.Sugar().Warnw("Economic health check failed, continuing without it",
				zap.Error(err),
			)
			warnings = append(warnings, fmt.Sprintf("Economic check unavailable: %s", err.Error()))
		} else {
			warnings = append(warnings, report.Warnings...)
			if !report.Healthy {
				return unhealthy(report.Reason, details, warnings)
			}
		}
	}

	return &HealthReport{
		Healthy:  true,
		Details:  details,
		Warnings: warnings,
	}
}
