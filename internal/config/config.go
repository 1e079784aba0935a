package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const ENV_PREFIX = "GASLIFT"

// Flag/env keys. Flags use kebab-case with dot scoping; the matching environment
// variable is GASLIFT_ + KebabToSnakeCase(key), e.g. GASLIFT_BUNDLER_RPC_URL.
const (
	Debug   = "debug"
	ChainId = "chain-id"

	AgentPrivateKey = "agent.private-key"
	AgentVersion    = "agent.version"

	EthereumRpcUrl = "ethereum.rpc-url"

	BundlerRpcUrl                = "bundler.rpc-url"
	BundlerPimlicoRpcUrl         = "bundler.pimlico-rpc-url"
	BundlerProvider              = "bundler.provider"
	BundlerEntryPoint            = "bundler.entry-point"
	BundlerHealthCheckEnabled    = "bundler.health-check-enabled"
	BundlerReceiptTimeoutMs      = "bundler.receipt-timeout-ms"
	BundlerReceiptPollIntervalMs = "bundler.receipt-poll-interval-ms"

	ReserveCriticalEth  = "reserve.critical-eth"
	ReserveUsdcContract = "reserve.usdc-contract"

	BreakerFailureThreshold = "breaker.failure-threshold"
	BreakerWindowMs         = "breaker.window-ms"
	BreakerCooldownMs       = "breaker.cooldown-ms"

	GasMaxPriceGwei = "gas.max-price-gwei"
	GasEthUsdRate   = "gas.eth-usd-rate"

	WalletLockTtlMs = "wallet.lock-ttl-ms"

	SponsorshipTargetAllowlist  = "sponsorship.target-allowlist"
	SponsorshipAuditLogContract = "sponsorship.audit-log-contract"

	EconomicsDailyBurnUsd  = "economics.daily-burn-usd"
	EconomicsMinRunwayDays = "economics.min-runway-days"

	RedisUrl = "redis.url"

	DatabaseHost       = "database.host"
	DatabasePort       = "database.port"
	DatabaseUser       = "database.user"
	DatabasePassword   = "database.password"
	DatabaseDbName     = "database.db_name"
	DatabaseSchemaName = "database.schema_name"
	DatabaseSSLMode    = "database.ssl_mode"

	IpfsApiUrl     = "ipfs.api-url"
	IpfsApiKey     = "ipfs.api-key"
	IpfsGatewayUrl = "ipfs.gateway-url"

	PriceFeedUrl = "pricefeed.url"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"
	StatsdEnabled     = "datadog.statsd.enabled"
	StatsdUrl         = "datadog.statsd.url"

	SponsorDecisionFile = "sponsor.decision-file"
	SponsorSimulate     = "sponsor.simulate"

	BudgetProtocolId = "budget.protocol-id"
	BudgetAmountUsd  = "budget.amount-usd"

	WhitelistProtocolId = "whitelist.protocol-id"
	WhitelistAddresses  = "whitelist.addresses"
)

// EntryPointV07 is the canonical v0.7 EntryPoint deployment, used when no
// override is configured.
const EntryPointV07 = "0x0000000071727De22E5E9d8BAf0edAc6f37da032"

type Config struct {
	Debug   bool
	ChainId uint64

	AgentPrivateKey string
	AgentVersion    string

	EthereumRpcUrl string

	BundlerConfig     BundlerConfig
	ReserveConfig     ReserveConfig
	BreakerConfig     BreakerConfig
	GasConfig         GasConfig
	WalletConfig      WalletConfig
	SponsorshipConfig SponsorshipConfig
	EconomicsConfig   EconomicsConfig
	RedisConfig       RedisConfig
	DatabaseConfig    DatabaseConfig
	IpfsConfig        IpfsConfig
	PriceFeedConfig   PriceFeedConfig
	PrometheusConfig  PrometheusConfig
	StatsdConfig      StatsdConfig
}

type BundlerConfig struct {
	RpcUrl              string
	PimlicoRpcUrl       string
	Provider            string
	EntryPoint          string
	HealthCheckEnabled  bool
	ReceiptTimeout      time.Duration
	ReceiptPollInterval time.Duration
}

// BaseUrl resolves the bundler endpoint from the provider flag. An empty
// return value means no bundler is configured, which downstream components
// report as "bundler unavailable" rather than a transient failure.
func (bc *BundlerConfig) BaseUrl() string {
	if bc.Provider == "pimlico" && bc.PimlicoRpcUrl != "" {
		return bc.PimlicoRpcUrl
	}
	return bc.RpcUrl
}

type ReserveConfig struct {
	CriticalEth  float64
	UsdcContract string
}

type BreakerConfig struct {
	FailureThreshold int
	Window           time.Duration
	Cooldown         time.Duration
}

type GasConfig struct {
	MaxPriceGwei float64
	EthUsdRate   float64
}

type WalletConfig struct {
	LockTtl time.Duration
}

type SponsorshipConfig struct {
	TargetAllowlist  []string
	AuditLogContract string
}

type EconomicsConfig struct {
	DailyBurnUsd  float64
	MinRunwayDays float64
}

type RedisConfig struct {
	Url string
}

type DatabaseConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	DbName     string
	SchemaName string
	SSLMode    string
}

type IpfsConfig struct {
	ApiUrl     string
	ApiKey     string
	GatewayUrl string
}

type PriceFeedConfig struct {
	Url string
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

type StatsdConfig struct {
	Enabled bool
	Url     string
}

func KebabToSnakeCase(str string) string {
	str = strings.ReplaceAll(str, "-", "_")
	return strings.ReplaceAll(str, ".", "_")
}

func getString(key string) string {
	return viper.GetString(KebabToSnakeCase(key))
}

func getInt(key string) int {
	return viper.GetInt(KebabToSnakeCase(key))
}

func getBool(key string) bool {
	return viper.GetBool(KebabToSnakeCase(key))
}

func getFloat64(key string) float64 {
	return viper.GetFloat64(KebabToSnakeCase(key))
}

func ParseListEnvVar(envVar string) []string {
	if envVar == "" {
		return []string{}
	}
	stringList := strings.Split(envVar, ",")

	l := make([]string, 0)
	for _, s := range stringList {
		s = strings.TrimSpace(s)
		if s != "" {
			l = append(l, s)
		}
	}
	return l
}

func NewConfig() *Config {
	return &Config{
		Debug:   getBool(Debug),
		ChainId: uint64(getInt(ChainId)),

		AgentPrivateKey: getString(AgentPrivateKey),
		AgentVersion:    getString(AgentVersion),

		EthereumRpcUrl: getString(EthereumRpcUrl),

		BundlerConfig: BundlerConfig{
			RpcUrl:              getString(BundlerRpcUrl),
			PimlicoRpcUrl:       getString(BundlerPimlicoRpcUrl),
			Provider:            getString(BundlerProvider),
			EntryPoint:          getString(BundlerEntryPoint),
			HealthCheckEnabled:  getBool(BundlerHealthCheckEnabled),
			ReceiptTimeout:      time.Duration(getInt(BundlerReceiptTimeoutMs)) * time.Millisecond,
			ReceiptPollInterval: time.Duration(getInt(BundlerReceiptPollIntervalMs)) * time.Millisecond,
		},

		ReserveConfig: ReserveConfig{
			CriticalEth:  getFloat64(ReserveCriticalEth),
			UsdcContract: getString(ReserveUsdcContract),
		},

		BreakerConfig: BreakerConfig{
			FailureThreshold: getInt(BreakerFailureThreshold),
			Window:           time.Duration(getInt(BreakerWindowMs)) * time.Millisecond,
			Cooldown:         time.Duration(getInt(BreakerCooldownMs)) * time.Millisecond,
		},

		GasConfig: GasConfig{
			MaxPriceGwei: getFloat64(GasMaxPriceGwei),
			EthUsdRate:   getFloat64(GasEthUsdRate),
		},

		WalletConfig: WalletConfig{
			LockTtl: time.Duration(getInt(WalletLockTtlMs)) * time.Millisecond,
		},

		SponsorshipConfig: SponsorshipConfig{
			TargetAllowlist:  ParseListEnvVar(getString(SponsorshipTargetAllowlist)),
			AuditLogContract: getString(SponsorshipAuditLogContract),
		},

		EconomicsConfig: EconomicsConfig{
			DailyBurnUsd:  getFloat64(EconomicsDailyBurnUsd),
			MinRunwayDays: getFloat64(EconomicsMinRunwayDays),
		},

		RedisConfig: RedisConfig{
			Url: getString(RedisUrl),
		},

		DatabaseConfig: DatabaseConfig{
			Host:       getString(DatabaseHost),
			Port:       getInt(DatabasePort),
			User:       getString(DatabaseUser),
			Password:   getString(DatabasePassword),
			DbName:     getString(DatabaseDbName),
			SchemaName: getString(DatabaseSchemaName),
			SSLMode:    getString(DatabaseSSLMode),
		},

		IpfsConfig: IpfsConfig{
			ApiUrl:     getString(IpfsApiUrl),
			ApiKey:     getString(IpfsApiKey),
			GatewayUrl: getString(IpfsGatewayUrl),
		},

		PriceFeedConfig: PriceFeedConfig{
			Url: getString(PriceFeedUrl),
		},

		PrometheusConfig: PrometheusConfig{
			Enabled: getBool(PrometheusEnabled),
			Port:    getInt(PrometheusPort),
		},

		StatsdConfig: StatsdConfig{
			Enabled: getBool(StatsdEnabled),
			Url:     getString(StatsdUrl),
		},
	}
}

// ResolvedEntryPoint returns the configured entry point or the canonical v0.7
// deployment when no override is set.
func (c *Config) ResolvedEntryPoint() string {
	if c.BundlerConfig.EntryPoint != "" {
		return c.BundlerConfig.EntryPoint
	}
	return EntryPointV07
}
