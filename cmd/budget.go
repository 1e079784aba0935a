package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gaslift-labs/gaslift/internal/config"
	"github.com/gaslift-labs/gaslift/internal/logger"
	"github.com/gaslift-labs/gaslift/internal/postgres"
	pgStorage "github.com/gaslift-labs/gaslift/internal/storage/postgres"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect and top up protocol budgets",
}

var budgetCreditCmd = &cobra.Command{
	Use:   "credit",
	Short: "Credit a protocol's prepaid budget",
	Run: func(cmd *cobra.Command, args []string) {
		initBudgetCmd(cmd)
		cfg := config.NewConfig()
		ctx := context.Background()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		protocolId := viper.GetString(config.KebabToSnakeCase(config.BudgetProtocolId))
		if protocolId == "" {
			l.Sugar().Fatalw("No protocol id provided")
		}
		amount, err := decimal.NewFromString(viper.GetString(config.KebabToSnakeCase(config.BudgetAmountUsd)))
		if err != nil || amount.LessThanOrEqual(decimal.Zero) {
			l.Sugar().Fatalw("Credit amount must be a positive decimal", zap.Error(err))
		}

		budgets := buildBudgetStore(cfg, l)

		budget, err := budgets.CreditBudget(ctx, protocolId, amount)
		if err != nil {
			l.Sugar().Fatalw("Failed to credit budget", zap.Error(err))
		}

		fmt.Printf("Credited %s USD to '%s'; new balance: %s USD\n", amount, protocolId, budget.BalanceUsd)
	},
}

var budgetShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a protocol's budget and recent sponsorships",
	Run: func(cmd *cobra.Command, args []string) {
		initBudgetCmd(cmd)
		cfg := config.NewConfig()
		ctx := context.Background()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		protocolId := viper.GetString(config.KebabToSnakeCase(config.BudgetProtocolId))
		if protocolId == "" {
			l.Sugar().Fatalw("No protocol id provided")
		}

		budgets := buildBudgetStore(cfg, l)

		budget, err := budgets.GetProtocolBudget(ctx, protocolId)
		if err != nil {
			l.Sugar().Fatalw("Failed to fetch budget", zap.Error(err))
		}
		records, err := budgets.ListSponsorshipRecords(ctx, protocolId, 10)
		if err != nil {
			l.Sugar().Fatalw("Failed to list sponsorship records", zap.Error(err))
		}

		out, _ := json.MarshalIndent(map[string]any{
			"budget":             budget,
			"recentSponsorships": records,
		}, "", "  ")
		fmt.Println(string(out))
	},
}

func buildBudgetStore(cfg *config.Config, l *zap.Logger) *pgStorage.PostgresBudgetStore {
	pg, err := postgres.NewPostgres(&cfg.DatabaseConfig)
	if err != nil {
		l.Sugar().Fatalw("Failed to setup postgres connection", zap.Error(err))
	}
	grm, err := postgres.NewGormFromPostgresConnection(pg.Db)
	if err != nil {
		l.Sugar().Fatalw("Failed to create gorm instance", zap.Error(err))
	}
	if err := postgres.Migrate(grm); err != nil {
		l.Sugar().Fatalw("Failed to migrate ledger schema", zap.Error(err))
	}
	return pgStorage.NewPostgresBudgetStore(grm, l)
}

func initBudgetCmd(cmd *cobra.Command) {
	bind := func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(f.Name); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	}
	cmd.Flags().VisitAll(bind)
	cmd.InheritedFlags().VisitAll(bind)
}
