package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gaslift-labs/gaslift/internal/config"
	"github.com/gaslift-labs/gaslift/internal/logger"
	"github.com/gaslift-labs/gaslift/internal/sponsorship"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var sponsorCmd = &cobra.Command{
	Use:   "sponsor",
	Short: "Execute a single sponsorship decision",
	Run: func(cmd *cobra.Command, args []string) {
		initSponsorCmd(cmd)
		cfg := config.NewConfig()
		ctx := context.Background()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		decision, err := readDecision(viper.GetString(config.KebabToSnakeCase(config.SponsorDecisionFile)))
		if err != nil {
			l.Sugar().Fatalw("Failed to read decision", zap.Error(err))
		}

		mode := sponsorship.ModeLive
		if viper.GetBool(config.KebabToSnakeCase(config.SponsorSimulate)) {
			mode = sponsorship.ModeSimulation
		}

		a := buildAgent(cfg, l)

		result, err := a.Sponsor(ctx, decision, mode)
		if err != nil {
			l.Sugar().Fatalw("Sponsorship rejected", zap.Error(err))
		}

		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))

		if !result.Success {
			os.Exit(1)
		}
	},
}

func readDecision(path string) (*sponsorship.Decision, error) {
	if path == "" {
		return nil, fmt.Errorf("no decision file provided (use --%s)", config.SponsorDecisionFile)
	}

	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	decision := &sponsorship.Decision{}
	if err := json.Unmarshal(raw, decision); err != nil {
		return nil, fmt.Errorf("failed to parse decision json: %w", err)
	}
	return decision, nil
}

func initSponsorCmd(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(f.Name); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	})
}
