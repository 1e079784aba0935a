package cmd

import (
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gaslift-labs/gaslift/internal/agent"
	"github.com/gaslift-labs/gaslift/internal/auditlog"
	"github.com/gaslift-labs/gaslift/internal/breaker"
	"github.com/gaslift-labs/gaslift/internal/clients/bundler"
	"github.com/gaslift-labs/gaslift/internal/clients/pricefeed"
	"github.com/gaslift-labs/gaslift/internal/config"
	"github.com/gaslift-labs/gaslift/internal/contentstore"
	"github.com/gaslift-labs/gaslift/internal/economics"
	"github.com/gaslift-labs/gaslift/internal/kvstore"
	"github.com/gaslift-labs/gaslift/internal/metrics"
	"github.com/gaslift-labs/gaslift/internal/postgres"
	"github.com/gaslift-labs/gaslift/internal/protocolcache"
	"github.com/gaslift-labs/gaslift/internal/sponsorship"
	pgStorage "github.com/gaslift-labs/gaslift/internal/storage/postgres"
	"github.com/gaslift-labs/gaslift/internal/wallet"
	"github.com/gaslift-labs/gaslift/internal/walletlock"
	"go.uber.org/zap"
)

// buildAgent wires the full service graph from config. Fatal on anything the
// agent cannot run without; degraded paths (no redis, no bundler, no content
// store) are handled by the components themselves.
func buildAgent(cfg *config.Config, l *zap.Logger) *agent.Agent {
	metricsClients, err := metrics.InitMetricsSinksFromConfig(cfg, l)
	if err != nil {
		l.Sugar().Fatalw("Failed to setup metrics clients", zap.Error(err))
	}
	sink, err := metrics.NewMetricsSink(&metrics.MetricsSinkConfig{}, metricsClients, l)
	if err != nil {
		l.Sugar().Fatalw("Failed to setup metrics sink", zap.Error(err))
	}

	var kv kvstore.Store
	if cfg.RedisConfig.Url != "" {
		redisStore, err := kvstore.NewRedisStore(cfg.RedisConfig.Url, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to connect to redis", zap.Error(err))
		}
		kv = redisStore
	} else {
		l.Sugar().Warnw("No redis url configured; breaker state and wallet locks are process-local")
		kv = kvstore.NewInMemoryStore()
	}

	w, err := wallet.NewWallet(cfg.AgentPrivateKey, cfg.ChainId)
	if err != nil {
		l.Sugar().Fatalw("Failed to load agent wallet", zap.Error(err))
	}

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
	budgets := pgStorage.NewPostgresBudgetStore(grm, l)

	balances := wallet.NewChainBalanceProvider(cfg.EthereumRpcUrl, w.Address(), cfg.ReserveConfig.UsdcContract, cfg.ChainId, l)

	var gasPrices economics.GasPriceSource
	if cfg.EthereumRpcUrl != "" {
		ethClient, err := ethclient.Dial(cfg.EthereumRpcUrl)
		if err != nil {
			l.Sugar().Fatalw("Failed to dial ethereum node", zap.Error(err))
		}
		gasPrices = ethClient
	}
	econ := economics.NewConditionsChecker(gasPrices, budgets, &economics.ConditionsCheckerConfig{
		MaxGasPriceGwei: cfg.GasConfig.MaxPriceGwei,
		DailyBurnUsd:    cfg.EconomicsConfig.DailyBurnUsd,
		MinRunwayDays:   cfg.EconomicsConfig.MinRunwayDays,
	}, l)

	// An empty entry point makes the client adopt the first one the bundler
	// reports; the configured override always wins.
	bundlerClient := bundler.NewClient(cfg.BundlerConfig.BaseUrl(), cfg.BundlerConfig.EntryPoint, l)

	registry := breaker.NewRegistry(kv, nil, l)
	guard := registry.GetWithConfig("bundler", &breaker.Config{
		FailureThreshold: cfg.BreakerConfig.FailureThreshold,
		Window:           cfg.BreakerConfig.Window,
		Cooldown:         cfg.BreakerConfig.Cooldown,
	})

	health := breaker.NewHealthChecker(guard, balances, bundlerClient, econ, breaker.HealthCheckerConfig{
		ReserveCriticalEth:  cfg.ReserveConfig.CriticalEth,
		BundlerCheckEnabled: cfg.BundlerConfig.HealthCheckEnabled,
	}, l)

	locker := walletlock.NewLocker(kv, w.Address().Hex(), l)

	var decisionLog sponsorship.DecisionLogger
	if cfg.SponsorshipConfig.AuditLogContract != "" {
		dl, err := auditlog.NewDecisionLog(cfg.SponsorshipConfig.AuditLogContract, cfg.EthereumRpcUrl, w, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup decision log", zap.Error(err))
		}
		decisionLog = dl
	}

	content := contentstore.NewClient(&cfg.IpfsConfig, l)
	rates := pricefeed.NewClient(cfg.PriceFeedConfig.Url, cfg.GasConfig.EthUsdRate, l)
	cache := protocolcache.NewCache(kv, l)
	signer := sponsorship.NewSigner(w, cfg.AgentVersion)

	var nonces sponsorship.NonceSource
	if cfg.EthereumRpcUrl != "" {
		nonces = wallet.NewEntryPointNonceSource(cfg.EthereumRpcUrl, cfg.ResolvedEntryPoint(), l)
	}

	orchestrator, err := sponsorship.NewOrchestrator(
		sponsorship.OrchestratorConfig{
			ChainId:             cfg.ChainId,
			WalletLockTimeout:   cfg.WalletConfig.LockTtl,
			ReceiptTimeout:      cfg.BundlerConfig.ReceiptTimeout,
			ReceiptPollInterval: cfg.BundlerConfig.ReceiptPollInterval,
			MaxGasPriceGwei:     cfg.GasConfig.MaxPriceGwei,
			EthUsdFallbackRate:  cfg.GasConfig.EthUsdRate,
			TargetAllowlist:     cfg.SponsorshipConfig.TargetAllowlist,
		},
		signer, w, decisionLog, content, cache, budgets, cache,
		bundlerClient, nonces, health, guard, locker, kv, rates, sink, l,
	)
	if err != nil {
		l.Sugar().Fatalw("Failed to setup sponsorship orchestrator", zap.Error(err))
	}

	return agent.NewAgent(&agent.AgentConfig{
		ChainId: cfg.ChainId,
	}, orchestrator, balances, budgets, sink, l)
}
