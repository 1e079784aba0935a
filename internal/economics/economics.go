package economics

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// Reserves is the wallet snapshot handed to the economic check.
type Reserves struct {
	ETH  float64
	USDC float64
}

type Report struct {
	Healthy  bool
	Reason   string
	Warnings []string
}

// Checker combines gas price, runway and budget conditions into a single
// verdict. An error from Check means the check itself failed; callers degrade
// gracefully instead of blocking sponsorship. An unhealthy Report does block.
type Checker interface {
	Check(ctx context.Context, reserves Reserves) (*Report, error)
}

// GasPriceSource is satisfied by ethclient.Client.
type GasPriceSource interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

type BudgetTotals interface {
	TotalBalances(ctx context.Context) (decimal.Decimal, error)
}

type ConditionsCheckerConfig struct {
	MaxGasPriceGwei float64
	DailyBurnUsd    float64
	MinRunwayDays   float64
}

func (c *ConditionsCheckerConfig) withDefaults() ConditionsCheckerConfig {
	cfg := *c
	if cfg.MaxGasPriceGwei <= 0 {
		cfg.MaxGasPriceGwei = 50
	}
	if cfg.DailyBurnUsd <= 0 {
		cfg.DailyBurnUsd = 10
	}
	if cfg.MinRunwayDays <= 0 {
		cfg.MinRunwayDays = 3
	}
	return cfg
}

type ConditionsChecker struct {
	gasPrices GasPriceSource
	budgets   BudgetTotals
	cfg       ConditionsCheckerConfig
	logger    *zap.Logger
}

func NewConditionsChecker(gasPrices GasPriceSource, budgets BudgetTotals, cfg *ConditionsCheckerConfig, l *zap.Logger) *ConditionsChecker {
	return &ConditionsChecker{
		gasPrices: gasPrices,
		budgets:   budgets,
		cfg:       cfg.withDefaults(),
		logger:    l,
	}
}

func (c *ConditionsChecker) Check(ctx context.Context, reserves Reserves) (*Report, error) {
	report := &Report{
		Healthy:  true,
		Warnings: []string{},
	}

	if c.gasPrices != nil {
		gasPriceWei, err := c.gasPrices.SuggestGasPrice(ctx)
		if err != nil {
			return nil, xerrors.Errorf("failed to fetch gas price: %w", err)
		}
		gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(gasPriceWei), big.NewFloat(1e9)).Float64()

		if gwei > c.cfg.MaxGasPriceGwei {
			report.Healthy = false
			report.Reason = fmt.Sprintf("Gas price %.2f gwei above cap of %.2f gwei", gwei, c.cfg.MaxGasPriceGwei)
			return report, nil
		}
		if gwei > c.cfg.MaxGasPriceGwei*0.8 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("Gas price %.2f gwei approaching cap of %.2f gwei", gwei, c.cfg.MaxGasPriceGwei))
		}
	}

	totalBudgets := decimal.Zero
	if c.budgets != nil {
		total, err := c.budgets.TotalBalances(ctx)
		if err != nil {
			return nil, xerrors.Errorf("failed to fetch budget totals: %w", err)
		}
		totalBudgets = total
	}

	// Runway counts prepaid budgets plus the agent's own USDC reserve.
	availableUsd, _ := totalBudgets.Float64()
	availableUsd += reserves.USDC
	runwayDays := availableUsd / c.cfg.DailyBurnUsd

	if runwayDays < c.cfg.MinRunwayDays {
		report.Healthy = false
		report.Reason = fmt.Sprintf("Runway %.1f days below minimum of %.1f days", runwayDays, c.cfg.MinRunwayDays)
		return report, nil
	}
	if runwayDays < c.cfg.MinRunwayDays*2 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("Runway %.1f days approaching minimum of %.1f days", runwayDays, c.cfg.MinRunwayDays))
	}

	return report, nil
}
