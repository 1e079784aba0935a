package agent

import (
	"context"
	"time"

	"github.com/gaslift-labs/gaslift/internal/metrics"
	"github.com/gaslift-labs/gaslift/internal/sponsorship"
	"github.com/gaslift-labs/gaslift/internal/storage"
	"github.com/gaslift-labs/gaslift/internal/wallet"
	"go.uber.org/zap"
)

const reserveSampleInterval = 60 * time.Second

type AgentConfig struct {
	ChainId uint64
}

// Agent is the long-running service wrapper around the sponsorship
// orchestrator. It owns the background reserve sampling loop; sponsorship
// requests arrive through Sponsor.
type Agent struct {
	config       *AgentConfig
	orchestrator *sponsorship.Orchestrator
	balances     wallet.BalanceProvider
	budgets      storage.BudgetStore
	metrics      *metrics.MetricsSink
	logger       *zap.Logger

	ShutdownChan chan bool
}

func NewAgent(
	cfg *AgentConfig,
	orchestrator *sponsorship.Orchestrator,
	balances wallet.BalanceProvider,
	budgets storage.BudgetStore,
	sink *metrics.MetricsSink,
	l *zap.Logger,
) *Agent {
	return &Agent{
		config:       cfg,
		orchestrator: orchestrator,
		balances:     balances,
		budgets:      budgets,
		metrics:      sink,
		logger:       l,
		ShutdownChan: make(chan bool),
	}
}

func (a *Agent) Sponsor(ctx context.Context, decision *sponsorship.Decision, mode sponsorship.Mode) (*sponsorship.Result, error) {
	return a.orchestrator.Sponsor(ctx, decision, mode)
}

// Start runs the reserve sampling loop until shutdown. It blocks; callers run
// it in a goroutine.
func (a *Agent) Start(ctx context.Context) {
	a.logger.Sugar().Infow("Starting agent", zap.Uint64("chainId", a.config.ChainId))

	a.sampleReserves(ctx)

	ticker := time.NewTicker(reserveSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.sampleReserves(ctx)
		case <-a.ShutdownChan:
			a.logger.Sugar().Infow("Agent received shutdown signal")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (a *Agent) sampleReserves(ctx context.Context) {
	sampleCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if a.balances != nil {
		balances, err := a.balances.GetAgentWalletBalance(sampleCtx)
		if err != nil {
			a.logger.Sugar().Warnw("Failed to sample reserve balances", zap.Error(err))
		} else if a.metrics != nil {
			a.metrics.Gauge(metrics.Gauge_ReserveEth, balances.ETH, nil)
		}
	}

	if a.budgets != nil && a.metrics != nil {
		total, err := a.budgets.TotalBalances(sampleCtx)
		if err != nil {
			a.logger.Sugar().Warnw("Failed to sample budget totals", zap.Error(err))
		} else {
			totalFloat, _ := total.Float64()
			a.metrics.Gauge(metrics.Gauge_ProtocolBudgets, totalFloat, nil)
		}
	}
}
