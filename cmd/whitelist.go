package cmd

import (
	"context"
	"fmt"

	"github.com/gaslift-labs/gaslift/internal/config"
	"github.com/gaslift-labs/gaslift/internal/kvstore"
	"github.com/gaslift-labs/gaslift/internal/logger"
	"github.com/gaslift-labs/gaslift/internal/protocolcache"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var whitelistCmd = &cobra.Command{
	Use:   "whitelist",
	Short: "Manage cached protocol target whitelists",
}

var whitelistSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace a protocol's cached target whitelist",
	Run: func(cmd *cobra.Command, args []string) {
		initWhitelistCmd(cmd)
		cfg := config.NewConfig()
		ctx := context.Background()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		protocolId := viper.GetString(config.KebabToSnakeCase(config.WhitelistProtocolId))
		if protocolId == "" {
			l.Sugar().Fatalw("No protocol id provided")
		}
		addresses := config.ParseListEnvVar(viper.GetString(config.KebabToSnakeCase(config.WhitelistAddresses)))
		if len(addresses) == 0 {
			l.Sugar().Fatalw("No addresses provided")
		}

		cache := protocolcache.NewCache(buildKvStore(cfg, l), l)
		if err := cache.SetProtocolWhitelist(ctx, protocolId, addresses); err != nil {
			l.Sugar().Fatalw("Failed to set whitelist", zap.Error(err))
		}

		fmt.Printf("Cached %d whitelisted targets for '%s'\n", len(addresses), protocolId)
	},
}

var whitelistShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a protocol's cached target whitelist",
	Run: func(cmd *cobra.Command, args []string) {
		initWhitelistCmd(cmd)
		cfg := config.NewConfig()
		ctx := context.Background()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		protocolId := viper.GetString(config.KebabToSnakeCase(config.WhitelistProtocolId))
		if protocolId == "" {
			l.Sugar().Fatalw("No protocol id provided")
		}

		cache := protocolcache.NewCache(buildKvStore(cfg, l), l)
		addresses, err := cache.GetCachedProtocolWhitelist(ctx, protocolId)
		if err != nil {
			l.Sugar().Fatalw("Failed to fetch whitelist", zap.Error(err))
		}

		for _, addr := range addresses {
			fmt.Println(addr)
		}
	},
}

func buildKvStore(cfg *config.Config, l *zap.Logger) kvstore.Store {
	if cfg.RedisConfig.Url == "" {
		l.Sugar().Fatalw("A redis url is required; the whitelist cache is shared state")
	}
	kv, err := kvstore.NewRedisStore(cfg.RedisConfig.Url, l)
	if err != nil {
		l.Sugar().Fatalw("Failed to connect to redis", zap.Error(err))
	}
	return kv
}

func initWhitelistCmd(cmd *cobra.Command) {
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
