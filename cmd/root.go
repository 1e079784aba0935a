package cmd

import (
	"os"
	"strings"

	"github.com/gaslift-labs/gaslift/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "gaslift",
	Short: "Gaslift sponsors gas for whitelisted protocol operations via ERC-4337",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	initConfig(rootCmd)

	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)
	rootCmd.PersistentFlags().Uint64(config.ChainId, 1, `Chain id the agent operates on`)

	rootCmd.PersistentFlags().String(config.AgentPrivateKey, "", `Hex-encoded agent signing key`)
	rootCmd.PersistentFlags().String(config.AgentVersion, "", `Agent version tag embedded in signed decisions`)

	rootCmd.PersistentFlags().String(config.EthereumRpcUrl, "", `e.g. "http://<hostname>:8545"`)

	rootCmd.PersistentFlags().String(config.BundlerRpcUrl, "", `ERC-4337 bundler JSON-RPC url`)
	rootCmd.PersistentFlags().String(config.BundlerPimlicoRpcUrl, "", `Pimlico bundler JSON-RPC url`)
	rootCmd.PersistentFlags().String(config.BundlerProvider, "", `Which bundler endpoint to use ("pimlico" or empty for the primary)`)
	rootCmd.PersistentFlags().String(config.BundlerEntryPoint, "", `EntryPoint contract override (default: canonical v0.7 deployment)`)
	rootCmd.PersistentFlags().Bool(config.BundlerHealthCheckEnabled, true, `Check bundler liveness before execution`)
	rootCmd.PersistentFlags().Int(config.BundlerReceiptTimeoutMs, 120_000, `How long to poll for a user operation receipt`)
	rootCmd.PersistentFlags().Int(config.BundlerReceiptPollIntervalMs, 2_000, `Receipt poll interval`)

	rootCmd.PersistentFlags().Float64(config.ReserveCriticalEth, 0.05, `Block sponsorship when the reserve drops below this`)
	rootCmd.PersistentFlags().String(config.ReserveUsdcContract, "", `USDC contract address for reserve reporting (optional)`)

	rootCmd.PersistentFlags().Int(config.BreakerFailureThreshold, 5, `Bundler failures within the window before the circuit opens`)
	rootCmd.PersistentFlags().Int(config.BreakerWindowMs, 60_000, `Failure counting window`)
	rootCmd.PersistentFlags().Int(config.BreakerCooldownMs, 30_000, `How long the circuit stays open before a half-open probe`)

	rootCmd.PersistentFlags().Float64(config.GasMaxPriceGwei, 50, `Block sponsorship above this gas price`)
	rootCmd.PersistentFlags().Float64(config.GasEthUsdRate, 0, `Fallback ETH/USD rate when the price feed is unreachable`)

	rootCmd.PersistentFlags().Int(config.WalletLockTtlMs, 30_000, `Wallet lock acquisition timeout and TTL`)

	rootCmd.PersistentFlags().String(config.SponsorshipTargetAllowlist, "", `Comma-separated list of allowed target contracts (empty allows all whitelisted)`)
	rootCmd.PersistentFlags().String(config.SponsorshipAuditLogContract, "", `On-chain decision log contract address`)

	rootCmd.PersistentFlags().Float64(config.EconomicsDailyBurnUsd, 10, `Assumed daily burn for runway calculation`)
	rootCmd.PersistentFlags().Float64(config.EconomicsMinRunwayDays, 3, `Block sponsorship below this runway`)

	rootCmd.PersistentFlags().String(config.RedisUrl, "", `e.g. "redis://localhost:6379/0"; empty falls back to in-process state`)

	rootCmd.PersistentFlags().String(config.DatabaseHost, "localhost", `PostgreSQL host`)
	rootCmd.PersistentFlags().Int(config.DatabasePort, 5432, `PostgreSQL port`)
	rootCmd.PersistentFlags().String(config.DatabaseUser, "gaslift", `PostgreSQL username`)
	rootCmd.PersistentFlags().String(config.DatabasePassword, "", `PostgreSQL password`)
	rootCmd.PersistentFlags().String(config.DatabaseDbName, "gaslift", `PostgreSQL database name`)
	rootCmd.PersistentFlags().String(config.DatabaseSchemaName, "", `PostgreSQL schema name (default "public")`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLMode, "", `PostgreSQL ssl mode`)

	rootCmd.PersistentFlags().String(config.IpfsApiUrl, "", `Pinning service api url for decision backups`)
	rootCmd.PersistentFlags().String(config.IpfsApiKey, "", `Pinning service api key`)
	rootCmd.PersistentFlags().String(config.IpfsGatewayUrl, "", `Gateway used to build backup urls`)

	rootCmd.PersistentFlags().String(config.PriceFeedUrl, "", `ETH/USD price feed url (default: coingecko simple price)`)

	rootCmd.PersistentFlags().Bool(config.PrometheusEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().Int(config.PrometheusPort, 2112, `The port to run the prometheus server on`)
	rootCmd.PersistentFlags().Bool(config.StatsdEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().String(config.StatsdUrl, "", `e.g. "localhost:8125"`)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sponsorCmd)
	rootCmd.AddCommand(budgetCmd)
	rootCmd.AddCommand(whitelistCmd)
	rootCmd.AddCommand(runVersionCmd)

	budgetCmd.AddCommand(budgetCreditCmd)
	budgetCmd.AddCommand(budgetShowCmd)
	whitelistCmd.AddCommand(whitelistSetCmd)
	whitelistCmd.AddCommand(whitelistShowCmd)

	sponsorCmd.PersistentFlags().String(config.SponsorDecisionFile, "", `Path to a decision JSON file; "-" reads stdin`)
	sponsorCmd.PersistentFlags().Bool(config.SponsorSimulate, false, `Sign and validate without executing`)

	budgetCmd.PersistentFlags().String(config.BudgetProtocolId, "", `Protocol identifier (required)`)
	budgetCreditCmd.PersistentFlags().String(config.BudgetAmountUsd, "", `Amount to credit in USD (required)`)

	whitelistCmd.PersistentFlags().String(config.WhitelistProtocolId, "", `Protocol identifier (required)`)
	whitelistSetCmd.PersistentFlags().String(config.WhitelistAddresses, "", `Comma-separated target contract addresses`)

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.AutomaticEnv()
}
