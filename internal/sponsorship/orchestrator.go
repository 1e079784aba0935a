package sponsorship

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gaslift-labs/gaslift/internal/breaker"
	"github.com/gaslift-labs/gaslift/internal/clients/bundler"
	"github.com/gaslift-labs/gaslift/internal/contentstore"
	"github.com/gaslift-labs/gaslift/internal/kvstore"
	"github.com/gaslift-labs/gaslift/internal/metrics"
	"github.com/gaslift-labs/gaslift/internal/storage"
	"github.com/gaslift-labs/gaslift/internal/wallet"
	"github.com/gaslift-labs/gaslift/internal/walletlock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Terminal saga states.
const (
	StatusSuccess           = "success"
	StatusSimulated         = "simulated"
	StatusAborted           = "aborted"
	StatusLoggedNotExecuted = "logged-not-executed"
)

const (
	paymasterCacheTtl      = 5 * time.Minute
	backupUploadTimeout    = 15 * time.Second
	defaultPriorityFeeGwei = 2.0

	defaultCallGasLimit         = 200_000
	defaultVerificationGasLimit = 150_000
	defaultPreVerificationGas   = 50_000
)

const executeAbi = `[{"inputs":[{"internalType":"address","name":"dest","type":"address"},{"internalType":"uint256","name":"value","type":"uint256"},{"internalType":"bytes","name":"func","type":"bytes"}],"name":"execute","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// DecisionLogger is the on-chain audit log (step 3 of the saga).
type DecisionLogger interface {
	LogDecision(ctx context.Context, protocolId string, decisionHash common.Hash, costUsd6 *big.Int, metadata string) (string, error)
	ContractAddress() common.Address
}

// ContentStore is the best-effort off-chain backup (step 4).
type ContentStore interface {
	Configured() bool
	UploadJSON(ctx context.Context, payload any) (*contentstore.UploadResult, error)
}

type WhitelistProvider interface {
	GetCachedProtocolWhitelist(ctx context.Context, protocolId string) ([]string, error)
}

// BudgetCache receives fire-and-forget balance refreshes after a confirmed
// ledger write. Failures are logged, never propagated.
type BudgetCache interface {
	UpdateCachedProtocolBudget(ctx context.Context, protocolId string, newBalance decimal.Decimal, cost decimal.Decimal) error
}

type BundlerClient interface {
	CheckHealth(ctx context.Context) (*bundler.HealthStatus, error)
	ChainId(ctx context.Context) (uint64, error)
	EstimateGas(ctx context.Context, userOp *bundler.UserOperation) (*bundler.GasEstimate, error)
	PreparePaymasterData(ctx context.Context, userOp *bundler.UserOperation, chainId uint64) (*bundler.PaymasterStubData, error)
	Submit(ctx context.Context, userOp *bundler.UserOperation) (string, error)
	WaitForReceipt(ctx context.Context, userOpHash string, opts *bundler.WaitOpts) (*bundler.UserOpReceipt, error)
}

type HealthChecker interface {
	CheckHealthBeforeExecution(ctx context.Context) *breaker.HealthReport
}

type WalletLocker interface {
	ExecuteWithWalletLock(ctx context.Context, timeout time.Duration, operation func(ctx context.Context) error) error
}

type RateSource interface {
	EthUsdRate(ctx context.Context) (float64, error)
}

// NonceSource reads the sender's next nonce from the entry point. The read
// happens inside the wallet lock so concurrent sagas never reuse a nonce.
type NonceSource interface {
	GetNonce(ctx context.Context, sender common.Address) (*big.Int, error)
}

type Result struct {
	Success        bool
	Status         string
	DecisionHash   string
	Signature      string
	OnChainTxHash  string
	UserOpHash     string
	BundlerTxHash  string
	IpfsCid        string
	ActualCostUsd  *decimal.Decimal
	BudgetDeducted bool
	Error          string
}

type OrchestratorConfig struct {
	ChainId             uint64
	WalletLockTimeout   time.Duration
	ReceiptTimeout      time.Duration
	ReceiptPollInterval time.Duration
	MaxGasPriceGwei     float64
	EthUsdFallbackRate  float64
	TargetAllowlist     []string
}

// Orchestrator executes the sponsorship saga. One invocation owns its
// SponsorshipAttempt exclusively; concurrent invocations only meet at the
// wallet lock and the ledger.
type Orchestrator struct {
	cfg         OrchestratorConfig
	signer      *Signer
	wallet      *wallet.Wallet
	decisionLog DecisionLogger
	content     ContentStore
	whitelist   WhitelistProvider
	budgets     storage.BudgetStore
	budgetCache BudgetCache
	bundler     BundlerClient
	nonces      NonceSource
	health      HealthChecker
	guard       *breaker.Breaker
	lock        WalletLocker
	kv          kvstore.Store
	rates       RateSource
	metrics     *metrics.MetricsSink
	logger      *zap.Logger

	executeAbi abi.ABI
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	signer *Signer,
	w *wallet.Wallet,
	decisionLog DecisionLogger,
	content ContentStore,
	whitelist WhitelistProvider,
	budgets storage.BudgetStore,
	budgetCache BudgetCache,
	bundlerClient BundlerClient,
	nonces NonceSource,
	health HealthChecker,
	guard *breaker.Breaker,
	lock WalletLocker,
	kv kvstore.Store,
	rates RateSource,
	sink *metrics.MetricsSink,
	l *zap.Logger,
) (*Orchestrator, error) {
	parsedAbi, err := abi.JSON(strings.NewReader(executeAbi))
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:         cfg,
		signer:      signer,
		wallet:      w,
		decisionLog: decisionLog,
		content:     content,
		whitelist:   whitelist,
		budgets:     budgets,
		budgetCache: budgetCache,
		bundler:     bundlerClient,
		nonces:      nonces,
		health:      health,
		guard:       guard,
		lock:        lock,
		kv:          kv,
		rates:       rates,
		metrics:     sink,
		logger:      l,
		executeAbi:  parsedAbi,
	}, nil
}

func (o *Orchestrator) incr(name string) {
	if o.metrics != nil {
		o.metrics.Incr(name, nil, 1)
	}
}

// Sponsor runs the saga end to end. A non-nil error is only returned for
// precondition violations; every saga outcome past validation is expressed in
// the Result. Result.Success mirrors the bundler's confirmation, never merely
// "no exception was thrown".
func (o *Orchestrator) Sponsor(ctx context.Context, decision *Decision, mode Mode) (*Result, error) {
	if err := decision.Validate(); err != nil {
		return nil, err
	}

	o.incr(metrics.Counter_SponsorshipsAttempted)

	// Step 1: sign. Always performed, simulation included.
	signed, err := o.signer.SignDecision(decision, map[string]any{
		"chainId":          o.cfg.ChainId,
		"protocolId":       decision.ProtocolId,
		"estimatedCostUsd": decision.EstimatedCostUsd.String(),
	}, time.Now())
	if err != nil {
		return nil, err
	}

	result := &Result{
		Status:       StatusAborted,
		DecisionHash: signed.DecisionHash.Hex(),
		Signature:    signed.Signature,
	}

	// Step 2: simulation short-circuit.
	if mode == ModeSimulation {
		o.incr(metrics.Counter_SponsorshipsSimulated)
		result.Success = true
		result.Status = StatusSimulated
		return result, nil
	}

	// Step 3: immutable on-chain audit log. Failure aborts the saga before
	// any ledger or bundler side effect.
	if o.decisionLog != nil {
		err := o.lock.ExecuteWithWalletLock(ctx, o.cfg.WalletLockTimeout, func(ctx context.Context) error {
			txHash, err := o.decisionLog.LogDecision(
				ctx,
				decision.ProtocolId,
				signed.DecisionHash,
				usdToScaled6(decision.EstimatedCostUsd),
				decision.Reasoning,
			)
			result.OnChainTxHash = txHash
			return err
		})
		if err != nil {
			o.incr(metrics.Counter_SponsorshipsAborted)
			result.Error = fmt.Sprintf("on-chain decision log failed: %s", err.Error())
			o.logger.Sugar().Errorw("Aborting sponsorship: on-chain decision log failed",
				zap.Error(err),
				zap.String("protocolId", decision.ProtocolId),
				zap.String("decisionHash", result.DecisionHash),
			)
			return result, nil
		}
	} else {
		o.logger.Sugar().Warnw("No decision log contract configured; skipping on-chain audit log",
			zap.String("protocolId", decision.ProtocolId),
		)
	}

	// Step 4: best-effort off-chain backup.
	result.IpfsCid = o.backupDecision(ctx, signed)

	// Step 5: target resolution.
	target, err := o.resolveTarget(ctx, decision)
	if err != nil {
		return o.finishNotExecuted(ctx, decision, signed, result, fmt.Sprintf("target resolution failed: %s", err.Error())), nil
	}

	// Step 6: composite health, paymaster preparation, submission and
	// confirmation.
	health := o.health.CheckHealthBeforeExecution(ctx)
	for _, warning := range health.Warnings {
		o.logger.Sugar().Warnw("Pre-execution health warning",
			zap.String("warning", warning),
			zap.String("protocolId", decision.ProtocolId),
		)
	}
	if !health.Healthy {
		return o.finishNotExecuted(ctx, decision, signed, result, health.Reason), nil
	}

	// Submission and confirmation run inside the circuit breaker so repeated
	// bundler failures trip it. An operation that lands but reverts is not a
	// bundler failure and does not count against the circuit.
	var receipt *bundler.UserOpReceipt
	submitErr := o.guard.Execute(ctx, func(ctx context.Context) error {
		r, err := o.submitUserOperation(ctx, decision, signed, target, result)
		receipt = r
		return err
	})
	if submitErr != nil {
		var open *breaker.ErrCircuitOpen
		var lockTimeout *walletlock.ErrLockNotAcquired
		if errors.As(submitErr, &open) {
			o.incr(metrics.Counter_BreakerOpenRejections)
		} else if errors.As(submitErr, &lockTimeout) {
			o.incr(metrics.Counter_WalletLockTimeouts)
		}
	}
	confirmed := submitErr == nil && receipt != nil && receipt.Success

	// Steps 7 and 8: cost reconciliation and the conditional deduction.
	// balance_usd moves if and only if the bundler confirmed execution.
	if confirmed {
		result.Success = true
		result.Status = StatusSuccess
		o.incr(metrics.Counter_SponsorshipsConfirmed)

		actualCost := o.reconcileCost(ctx, receipt, decision.EstimatedCostUsd)

		budget, err := o.budgets.DeductBudget(ctx, decision.ProtocolId, actualCost)
		if err != nil {
			o.logger.Sugar().Errorw("CRITICAL: sponsorship executed on-chain but budget write failed; reconcile manually",
				zap.Error(err),
				zap.String("reconcile", "ledger"),
				zap.String("protocolId", decision.ProtocolId),
				zap.String("userOpHash", result.UserOpHash),
				zap.String("actualCostUsd", actualCost.String()),
			)
		} else {
			result.BudgetDeducted = true
			result.ActualCostUsd = &actualCost
			o.refreshBudgetCache(ctx, decision.ProtocolId, budget.BalanceUsd, actualCost)
		}
	} else {
		result.Status = StatusLoggedNotExecuted
		if submitErr != nil {
			result.Error = submitErr.Error()
		} else if receipt != nil {
			result.Error = "user operation included but reverted"
		}
		o.incr(metrics.Counter_SponsorshipsLoggedNotExecuted)
		o.logger.Sugar().Errorw(notExecutedMessage(result),
			zap.String("protocolId", decision.ProtocolId),
			zap.String("onChainTxHash", result.OnChainTxHash),
			zap.String("userOpHash", result.UserOpHash),
			zap.String("error", result.Error),
		)
	}

	// Step 9: audit record, written regardless of the saga outcome.
	o.writeAuditRecord(ctx, decision, signed, result)

	return result, nil
}

// finishNotExecuted closes the saga in the logged-not-executed state: the
// on-chain audit entry (if any) stands, the ledger stays untouched, and the
// audit record is still written.
func (o *Orchestrator) finishNotExecuted(ctx context.Context, decision *Decision, signed *SignedDecision, result *Result, reason string) *Result {
	result.Status = StatusLoggedNotExecuted
	result.Error = reason
	o.incr(metrics.Counter_SponsorshipsLoggedNotExecuted)
	o.logger.Sugar().Errorw(notExecutedMessage(result),
		zap.String("protocolId", decision.ProtocolId),
		zap.String("onChainTxHash", result.OnChainTxHash),
		zap.String("reason", reason),
	)
	o.writeAuditRecord(ctx, decision, signed, result)
	return result
}

// notExecutedMessage only claims an on-chain record when one was written.
func notExecutedMessage(result *Result) string {
	if result.OnChainTxHash != "" {
		return "On-chain audit record exists but sponsorship did not execute; ledger untouched"
	}
	return "Sponsorship did not execute; ledger untouched"
}

func (o *Orchestrator) backupDecision(ctx context.Context, signed *SignedDecision) string {
	if o.content == nil {
		return ""
	}
	if !o.content.Configured() {
		o.logger.Sugar().Warnw("Content store not configured; skipping decision backup")
		return ""
	}

	uploadCtx, cancel := context.WithTimeout(ctx, backupUploadTimeout)
	defer cancel()

	uploaded, err := o.content.UploadJSON(uploadCtx, map[string]any{
		"payload":      json.RawMessage(signed.Payload),
		"decisionHash": signed.DecisionHash.Hex(),
		"signature":    signed.Signature,
	})
	if err != nil {
		o.logger.Sugar().Errorw("Decision backup upload failed; continuing without backup",
			zap.Error(err),
			zap.String("decisionHash", signed.DecisionHash.Hex()),
		)
		return ""
	}
	return uploaded.Cid
}

// resolveTarget picks the contract the sponsored operation calls: an
// explicitly requested whitelisted target, else the first whitelisted entry,
// else the decision log contract.
func (o *Orchestrator) resolveTarget(ctx context.Context, decision *Decision) (common.Address, error) {
	whitelisted := []string{}
	if o.whitelist != nil {
		list, err := o.whitelist.GetCachedProtocolWhitelist(ctx, decision.ProtocolId)
		if err != nil {
			o.logger.Sugar().Warnw("Failed to fetch protocol whitelist",
				zap.Error(err),
				zap.String("protocolId", decision.ProtocolId),
			)
		} else {
			whitelisted = list
		}
	}

	allowed := func(addr string) bool {
		if len(o.cfg.TargetAllowlist) == 0 {
			return true
		}
		for _, a := range o.cfg.TargetAllowlist {
			if strings.EqualFold(a, addr) {
				return true
			}
		}
		return false
	}

	if decision.TargetContract != "" {
		for _, addr := range whitelisted {
			if strings.EqualFold(addr, decision.TargetContract) && allowed(addr) {
				return common.HexToAddress(addr), nil
			}
		}
		o.logger.Sugar().Warnw("Requested target is not whitelisted; falling back",
			zap.String("target", decision.TargetContract),
			zap.String("protocolId", decision.ProtocolId),
		)
	}

	for _, addr := range whitelisted {
		if allowed(addr) {
			return common.HexToAddress(addr), nil
		}
	}

	if o.decisionLog != nil {
		return o.decisionLog.ContractAddress(), nil
	}
	return common.Address{}, fmt.Errorf("no whitelisted target for protocol %s and no default logging contract", decision.ProtocolId)
}

// submitUserOperation builds, signs and submits the UserOperation. The wallet
// lock covers signing and submission only; receipt polling happens outside
// the lock so the critical section stays well under the lock TTL.
func (o *Orchestrator) submitUserOperation(
	ctx context.Context,
	decision *Decision,
	signed *SignedDecision,
	target common.Address,
	result *Result,
) (*bundler.UserOpReceipt, error) {
	callData, err := o.executeAbi.Pack("execute", target, big.NewInt(0), []byte{})
	if err != nil {
		return nil, fmt.Errorf("failed to build calldata: %w", err)
	}

	userOp := &bundler.UserOperation{
		Sender:               o.wallet.Address().Hex(),
		Nonce:                "0x0",
		CallData:             hexutil.Encode(callData),
		MaxFeePerGas:         gweiToHexWei(o.cfg.MaxGasPriceGwei),
		MaxPriorityFeePerGas: gweiToHexWei(minFloat(defaultPriorityFeeGwei, o.cfg.MaxGasPriceGwei)),
		CallGasLimit:         hexutil.EncodeUint64(defaultCallGasLimit),
		VerificationGasLimit: hexutil.EncodeUint64(defaultVerificationGasLimit),
		PreVerificationGas:   hexutil.EncodeUint64(defaultPreVerificationGas),
	}

	if estimate, err := o.bundler.EstimateGas(ctx, userOp); err != nil {
		o.logger.Sugar().Warnw("Gas estimation failed; using defaults", zap.Error(err))
	} else if estimate != nil {
		if estimate.CallGasLimit != "" {
			userOp.CallGasLimit = estimate.CallGasLimit
		}
		if estimate.VerificationGasLimit != "" {
			userOp.VerificationGasLimit = estimate.VerificationGasLimit
		}
		if estimate.PreVerificationGas != "" {
			userOp.PreVerificationGas = estimate.PreVerificationGas
		}
	}

	o.applyPaymasterData(ctx, decision.ProtocolId, userOp)

	var userOpHash string
	err = o.lock.ExecuteWithWalletLock(ctx, o.cfg.WalletLockTimeout, func(ctx context.Context) error {
		nonce, err := o.nextNonce(ctx)
		if err != nil {
			return err
		}
		userOp.Nonce = nonce

		opHash := crypto.Keccak256Hash(userOpPackForSigning(userOp, signed.DecisionHash))
		signature, err := o.wallet.SignHash(opHash.Bytes())
		if err != nil {
			return fmt.Errorf("failed to sign user operation: %w", err)
		}
		userOp.Signature = hexutil.Encode(signature)

		userOpHash, err = o.bundler.Submit(ctx, userOp)
		return err
	})
	if err != nil {
		return nil, err
	}
	result.UserOpHash = userOpHash

	receipt, err := o.bundler.WaitForReceipt(ctx, userOpHash, &bundler.WaitOpts{
		Timeout:      o.cfg.ReceiptTimeout,
		PollInterval: o.cfg.ReceiptPollInterval,
	})
	if err != nil {
		return nil, err
	}

	result.BundlerTxHash = receipt.TransactionHash
	return receipt, nil
}

// applyPaymasterData fills paymaster fields from the kvstore cache or the
// bundler's paymaster endpoint. A miss is non-fatal; the operation is then
// submitted unsponsored and the bundler decides.
func (o *Orchestrator) applyPaymasterData(ctx context.Context, protocolId string, userOp *bundler.UserOperation) {
	cacheKey := fmt.Sprintf("gaslift:paymaster:%s", protocolId)

	if o.kv != nil {
		if raw, found, err := o.kv.Get(ctx, cacheKey); err == nil && found {
			stub := &bundler.PaymasterStubData{}
			if err := json.Unmarshal([]byte(raw), stub); err == nil {
				applyStub(userOp, stub)
				return
			}
		}
	}

	stub, err := o.bundler.PreparePaymasterData(ctx, userOp, o.cfg.ChainId)
	if err != nil {
		o.logger.Sugar().Warnw("Paymaster preparation failed; submitting without paymaster",
			zap.Error(err),
			zap.String("protocolId", protocolId),
		)
		return
	}
	if stub == nil {
		return
	}
	applyStub(userOp, stub)

	if o.kv != nil {
		if raw, err := json.Marshal(stub); err == nil {
			if err := o.kv.Set(ctx, cacheKey, string(raw), paymasterCacheTtl); err != nil {
				o.logger.Sugar().Debugw("Failed to cache paymaster stub data", zap.Error(err))
			}
		}
	}
}

// nextNonce fetches the sender's current entry point nonce. Without a nonce
// source the operation keeps nonce zero, which only works for a fresh account;
// production wiring always configures one.
func (o *Orchestrator) nextNonce(ctx context.Context) (string, error) {
	if o.nonces == nil {
		o.logger.Sugar().Warnw("No nonce source configured; submitting with nonce 0")
		return "0x0", nil
	}
	nonce, err := o.nonces.GetNonce(ctx, o.wallet.Address())
	if err != nil {
		return "", fmt.Errorf("failed to fetch entry point nonce: %w", err)
	}
	return hexutil.EncodeBig(nonce), nil
}

func applyStub(userOp *bundler.UserOperation, stub *bundler.PaymasterStubData) {
	userOp.Paymaster = stub.Paymaster
	userOp.PaymasterData = stub.PaymasterData
	userOp.PaymasterVerificationGasLimit = stub.PaymasterVerificationGasLimit
	userOp.PaymasterPostOpGasLimit = stub.PaymasterPostOpGasLimit
}

// reconcileCost recomputes the USD cost from the receipt when actual gas data
// is available, falling back to the original estimate.
func (o *Orchestrator) reconcileCost(ctx context.Context, receipt *bundler.UserOpReceipt, estimated decimal.Decimal) decimal.Decimal {
	rate := o.cfg.EthUsdFallbackRate
	if o.rates != nil {
		if fetched, err := o.rates.EthUsdRate(ctx); err == nil && fetched > 0 {
			rate = fetched
		}
	}

	if receipt.ActualGasCost != "" && rate > 0 {
		if costWei, err := hexutil.DecodeBig(receipt.ActualGasCost); err == nil {
			costEth, _ := new(big.Float).Quo(new(big.Float).SetInt(costWei), big.NewFloat(1e18)).Float64()
			return decimal.NewFromFloat(costEth * rate).Round(6)
		}
	}
	if receipt.ActualGasUsed > 0 && rate > 0 && o.cfg.MaxGasPriceGwei > 0 {
		costEth := float64(receipt.ActualGasUsed) * o.cfg.MaxGasPriceGwei * 1e-9
		return decimal.NewFromFloat(costEth * rate).Round(6)
	}
	return estimated
}

// refreshBudgetCache is a detached best-effort side effect; the saga's
// success path never waits on it.
func (o *Orchestrator) refreshBudgetCache(ctx context.Context, protocolId string, newBalance decimal.Decimal, cost decimal.Decimal) {
	if o.budgetCache == nil {
		return
	}
	detachedCtx := context.WithoutCancel(ctx)
	go func() {
		if err := o.budgetCache.UpdateCachedProtocolBudget(detachedCtx, protocolId, newBalance, cost); err != nil {
			o.logger.Sugar().Warnw("Failed to refresh cached protocol budget",
				zap.Error(err),
				zap.String("protocolId", protocolId),
			)
		}
	}()
}

func (o *Orchestrator) writeAuditRecord(ctx context.Context, decision *Decision, signed *SignedDecision, result *Result) {
	record := &storage.SponsorshipRecord{
		ProtocolId:       decision.ProtocolId,
		DecisionHash:     signed.DecisionHash.Hex(),
		Signature:        signed.Signature,
		Status:           result.Status,
		EstimatedCostUsd: decision.EstimatedCostUsd,
		ActualCostUsd:    result.ActualCostUsd,
		OnchainTxHash:    result.OnChainTxHash,
		UserOpHash:       result.UserOpHash,
		BundlerTxHash:    result.BundlerTxHash,
		IpfsCid:          result.IpfsCid,
	}
	if err := o.budgets.InsertSponsorshipRecord(ctx, record); err != nil {
		o.logger.Sugar().Errorw("CRITICAL: failed to write sponsorship audit record; audit trail gap",
			zap.Error(err),
			zap.String("reconcile", "audit"),
			zap.String("protocolId", decision.ProtocolId),
			zap.String("decisionHash", signed.DecisionHash.Hex()),
			zap.String("status", result.Status),
		)
	}
}

func usdToScaled6(usd decimal.Decimal) *big.Int {
	return usd.Shift(6).BigInt()
}

func gweiToHexWei(gwei float64) string {
	wei, _ := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9)).Int(nil)
	return hexutil.EncodeBig(wei)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// userOpPackForSigning builds the byte payload the agent signs. The bundler
// derives the canonical userOpHash at submission; this signature binds the
// operation to the approved decision.
func userOpPackForSigning(userOp *bundler.UserOperation, decisionHash common.Hash) []byte {
	packed, _ := json.Marshal(userOp)
	return append(packed, decisionHash.Bytes()...)
}
