package sponsorship

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gaslift-labs/gaslift/internal/breaker"
	"github.com/gaslift-labs/gaslift/internal/clients/bundler"
	"github.com/gaslift-labs/gaslift/internal/contentstore"
	"github.com/gaslift-labs/gaslift/internal/kvstore"
	"github.com/gaslift-labs/gaslift/internal/logger"
	"github.com/gaslift-labs/gaslift/internal/storage"
	"github.com/gaslift-labs/gaslift/internal/walletlock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeBudgetStore struct {
	mu      sync.Mutex
	budgets map[string]*storage.ProtocolBudget
	records []*storage.SponsorshipRecord

	deductCalls int
	deductErr   error
}

func newFakeBudgetStore(protocolId string, balance float64) *fakeBudgetStore {
	return &fakeBudgetStore{
		budgets: map[string]*storage.ProtocolBudget{
			protocolId: {
				ProtocolId: protocolId,
				BalanceUsd: decimal.NewFromFloat(balance),
			},
		},
	}
}

func (s *fakeBudgetStore) GetProtocolBudget(_ context.Context, protocolId string) (*storage.ProtocolBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	budget, ok := s.budgets[protocolId]
	if !ok {
		return nil, storage.ErrBudgetNotFound
	}
	return budget, nil
}

func (s *fakeBudgetStore) CreditBudget(_ context.Context, protocolId string, amount decimal.Decimal) (*storage.ProtocolBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	budget, ok := s.budgets[protocolId]
	if !ok {
		budget = &storage.ProtocolBudget{ProtocolId: protocolId}
		s.budgets[protocolId] = budget
	}
	budget.BalanceUsd = budget.BalanceUsd.Add(amount)
	return budget, nil
}

func (s *fakeBudgetStore) DeductBudget(_ context.Context, protocolId string, amount decimal.Decimal) (*storage.ProtocolBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deductCalls++
	if s.deductErr != nil {
		return nil, s.deductErr
	}
	budget, ok := s.budgets[protocolId]
	if !ok {
		return nil, storage.ErrBudgetNotFound
	}
	if budget.BalanceUsd.LessThan(amount) {
		return nil, storage.ErrInsufficientBudget
	}
	budget.BalanceUsd = budget.BalanceUsd.Sub(amount)
	budget.TotalSpentUsd = budget.TotalSpentUsd.Add(amount)
	budget.SponsorshipCount++
	return budget, nil
}

func (s *fakeBudgetStore) TotalBalances(_ context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, budget := range s.budgets {
		total = total.Add(budget.BalanceUsd)
	}
	return total, nil
}

func (s *fakeBudgetStore) InsertSponsorshipRecord(_ context.Context, record *storage.SponsorshipRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *fakeBudgetStore) ListSponsorshipRecords(_ context.Context, _ string, _ int) ([]*storage.SponsorshipRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records, nil
}

func (s *fakeBudgetStore) balance(protocolId string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budgets[protocolId].BalanceUsd
}

func (s *fakeBudgetStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *fakeBudgetStore) lastRecord() *storage.SponsorshipRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return nil
	}
	return s.records[len(s.records)-1]
}

type fakeBundlerClient struct {
	mu sync.Mutex

	estimate  *bundler.GasEstimate
	stub      *bundler.PaymasterStubData
	stubErr   error
	submitErr error
	receipt   *bundler.UserOpReceipt
	waitErr   error

	stubCalls   int
	submitCalls int
	lastUserOp  *bundler.UserOperation
}

func (f *fakeBundlerClient) CheckHealth(_ context.Context) (*bundler.HealthStatus, error) {
	return &bundler.HealthStatus{Available: true, EntryPointSupported: true}, nil
}

func (f *fakeBundlerClient) ChainId(_ context.Context) (uint64, error) {
	return 1, nil
}

func (f *fakeBundlerClient) EstimateGas(_ context.Context, _ *bundler.UserOperation) (*bundler.GasEstimate, error) {
	return f.estimate, nil
}

func (f *fakeBundlerClient) PreparePaymasterData(_ context.Context, _ *bundler.UserOperation, _ uint64) (*bundler.PaymasterStubData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubCalls++
	if f.stubErr != nil {
		return nil, f.stubErr
	}
	return f.stub, nil
}

func (f *fakeBundlerClient) Submit(_ context.Context, userOp *bundler.UserOperation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.lastUserOp = userOp
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "0xdeadbeef", nil
}

func (f *fakeBundlerClient) WaitForReceipt(_ context.Context, _ string, _ *bundler.WaitOpts) (*bundler.UserOpReceipt, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return f.receipt, nil
}

type fakeDecisionLog struct {
	mu     sync.Mutex
	txHash string
	err    error
	calls  int
}

func (f *fakeDecisionLog) LogDecision(_ context.Context, _ string, _ common.Hash, _ *big.Int, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.txHash, nil
}

func (f *fakeDecisionLog) ContractAddress() common.Address {
	return common.HexToAddress("0x000000000000000000000000000000000000c0de")
}

type fakeContentStore struct {
	configured bool
	result     *contentstore.UploadResult
	err        error
	calls      int
}

func (f *fakeContentStore) Configured() bool {
	return f.configured
}

func (f *fakeContentStore) UploadJSON(_ context.Context, _ any) (*contentstore.UploadResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeWhitelist struct {
	addresses []string
	err       error
}

func (f *fakeWhitelist) GetCachedProtocolWhitelist(_ context.Context, _ string) ([]string, error) {
	return f.addresses, f.err
}

type fakeBudgetCache struct {
	updates chan decimal.Decimal
}

func (f *fakeBudgetCache) UpdateCachedProtocolBudget(_ context.Context, _ string, newBalance decimal.Decimal, _ decimal.Decimal) error {
	f.updates <- newBalance
	return nil
}

// fakeNonceSource hands out sequential nonces the way the entry point does.
type fakeNonceSource struct {
	mu    sync.Mutex
	next  int64
	calls int
}

func (f *fakeNonceSource) GetNonce(_ context.Context, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nonce := big.NewInt(f.next)
	f.next++
	f.calls++
	return nonce, nil
}

type fakeHealthChecker struct {
	report *breaker.HealthReport
}

func (f *fakeHealthChecker) CheckHealthBeforeExecution(_ context.Context) *breaker.HealthReport {
	return f.report
}

type fixedRate float64

func (r fixedRate) EthUsdRate(_ context.Context) (float64, error) {
	return float64(r), nil
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	budgets      *fakeBudgetStore
	bundler      *fakeBundlerClient
	decisionLog  *fakeDecisionLog
	content      *fakeContentStore
	budgetCache  *fakeBudgetCache
	nonces       *fakeNonceSource
	guard        *breaker.Breaker
	kv           kvstore.Store
}

// confirmedReceipt costs 0.001 ETH, which is $2.00 at the fixture's fixed rate
// of 2000.
func confirmedReceipt() *bundler.UserOpReceipt {
	return &bundler.UserOpReceipt{
		UserOpHash:      "0xdeadbeef",
		TransactionHash: "0xc0ffee",
		ActualGasUsed:   200000,
		ActualGasCost:   "0x38d7ea4c68000",
		Success:         true,
	}
}

func newFixture(t *testing.T) *orchestratorFixture {
	l := logger.NewNoopLogger()
	kv := kvstore.NewInMemoryStore()
	w := newTestWallet(t)

	budgets := newFakeBudgetStore("uniswap-v3", 10)
	bundlerClient := &fakeBundlerClient{receipt: confirmedReceipt()}
	decisionLog := &fakeDecisionLog{txHash: "0xabc123"}
	content := &fakeContentStore{configured: true, result: &contentstore.UploadResult{Cid: "QmTestCid"}}
	budgetCache := &fakeBudgetCache{updates: make(chan decimal.Decimal, 8)}
	nonces := &fakeNonceSource{}
	guard := breaker.NewBreaker("bundler", nil, kv, l)

	orchestrator, err := NewOrchestrator(
		OrchestratorConfig{
			ChainId:             1,
			WalletLockTimeout:   5 * time.Second,
			ReceiptTimeout:      time.Second,
			ReceiptPollInterval: 50 * time.Millisecond,
			MaxGasPriceGwei:     50,
			EthUsdFallbackRate:  2000,
		},
		NewSigner(w, "1.4.2"),
		w,
		decisionLog,
		content,
		&fakeWhitelist{addresses: []string{"0x1111111111111111111111111111111111111111"}},
		budgets,
		budgetCache,
		bundlerClient,
		nonces,
		&fakeHealthChecker{report: &breaker.HealthReport{Healthy: true}},
		guard,
		walletlock.NewLocker(kv, w.Address().Hex(), l),
		kv,
		fixedRate(2000),
		nil,
		l,
	)
	assert.Nil(t, err)

	return &orchestratorFixture{
		orchestrator: orchestrator,
		budgets:      budgets,
		bundler:      bundlerClient,
		decisionLog:  decisionLog,
		content:      content,
		budgetCache:  budgetCache,
		nonces:       nonces,
		guard:        guard,
		kv:           kv,
	}
}

func Test_Orchestrator(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return a validation error with no side effects", func(t *testing.T) {
		f := newFixture(t)

		invalid := validDecision()
		invalid.Action = ActionSkip

		result, err := f.orchestrator.Sponsor(ctx, invalid, ModeLive)
		assert.Nil(t, result)

		var validationErr *ValidationError
		assert.ErrorAs(t, err, &validationErr)
		assert.Equal(t, 0, f.decisionLog.calls)
		assert.Equal(t, 0, f.bundler.submitCalls)
		assert.Equal(t, 0, f.budgets.recordCount())
	})

	t.Run("Simulation should sign but touch nothing", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.orchestrator.Sponsor(ctx, validDecision(), ModeSimulation)
		assert.Nil(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, StatusSimulated, result.Status)
		assert.NotEmpty(t, result.DecisionHash)
		assert.NotEmpty(t, result.Signature)

		assert.Equal(t, 0, f.decisionLog.calls)
		assert.Equal(t, 0, f.content.calls)
		assert.Equal(t, 0, f.bundler.submitCalls)
		assert.Equal(t, 0, f.budgets.recordCount())
		assert.True(t, f.budgets.balance("uniswap-v3").Equal(decimal.NewFromInt(10)))
	})

	t.Run("Confirmed execution should deduct the reconciled cost", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.orchestrator.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, StatusSuccess, result.Status)
		assert.Equal(t, "0xabc123", result.OnChainTxHash)
		assert.Equal(t, "0xdeadbeef", result.UserOpHash)
		assert.Equal(t, "0xc0ffee", result.BundlerTxHash)
		assert.Equal(t, "QmTestCid", result.IpfsCid)
		assert.True(t, result.BudgetDeducted)
		assert.NotNil(t, result.ActualCostUsd)
		assert.True(t, result.ActualCostUsd.Equal(decimal.NewFromInt(2)))

		assert.True(t, f.budgets.balance("uniswap-v3").Equal(decimal.NewFromInt(8)))

		record := f.budgets.lastRecord()
		assert.Equal(t, StatusSuccess, record.Status)
		assert.NotNil(t, record.ActualCostUsd)

		select {
		case newBalance := <-f.budgetCache.updates:
			assert.True(t, newBalance.Equal(decimal.NewFromInt(8)))
		case <-time.After(time.Second):
			t.Fatal("expected a budget cache refresh")
		}
	})

	t.Run("A reverted operation must not deduct budget", func(t *testing.T) {
		f := newFixture(t)
		f.bundler.receipt = &bundler.UserOpReceipt{
			UserOpHash: "0xdeadbeef",
			Success:    false,
		}

		result, err := f.orchestrator.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, StatusLoggedNotExecuted, result.Status)
		assert.Nil(t, result.ActualCostUsd)
		assert.False(t, result.BudgetDeducted)

		assert.Equal(t, 0, f.budgets.deductCalls)
		assert.True(t, f.budgets.balance("uniswap-v3").Equal(decimal.NewFromInt(10)))

		record := f.budgets.lastRecord()
		assert.Equal(t, StatusLoggedNotExecuted, record.Status)
		assert.Nil(t, record.ActualCostUsd)
	})

	t.Run("A submission failure must not deduct budget", func(t *testing.T) {
		f := newFixture(t)
		f.bundler.submitErr = &bundler.SubmissionError{Message: "bundler rejected the operation"}

		result, err := f.orchestrator.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, StatusLoggedNotExecuted, result.Status)
		assert.Contains(t, result.Error, "bundler rejected")
		assert.Equal(t, "0xabc123", result.OnChainTxHash)

		assert.Equal(t, 0, f.budgets.deductCalls)
		assert.True(t, f.budgets.balance("uniswap-v3").Equal(decimal.NewFromInt(10)))
		assert.Equal(t, 1, f.budgets.recordCount())
	})

	t.Run("A receipt timeout must not deduct budget", func(t *testing.T) {
		f := newFixture(t)
		f.bundler.waitErr = &bundler.SubmissionError{
			Message:    "timed out waiting for user operation receipt",
			UserOpHash: "0xdeadbeef",
			Timeout:    true,
		}

		result, err := f.orchestrator.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, StatusLoggedNotExecuted, result.Status)
		assert.Equal(t, 0, f.budgets.deductCalls)
		assert.True(t, f.budgets.balance("uniswap-v3").Equal(decimal.NewFromInt(10)))
	})

	t.Run("An audit log failure should abort before any execution", func(t *testing.T) {
		f := newFixture(t)
		f.decisionLog.err = errors.New("transaction reverted")

		result, err := f.orchestrator.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, StatusAborted, result.Status)

		assert.Equal(t, 0, f.content.calls)
		assert.Equal(t, 0, f.bundler.submitCalls)
		assert.Equal(t, 0, f.budgets.deductCalls)
		assert.True(t, f.budgets.balance("uniswap-v3").Equal(decimal.NewFromInt(10)))
	})

	t.Run("An unhealthy pre-execution check should skip submission", func(t *testing.T) {
		f := newFixture(t)

		orchestratorUnhealthy := f.orchestrator
		orchestratorUnhealthy.health = &fakeHealthChecker{report: &breaker.HealthReport{
			Healthy: false,
			Reason:  "Reserve below critical threshold: 0.0200 ETH < 0.0500 ETH",
		}}

		result, err := orchestratorUnhealthy.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, StatusLoggedNotExecuted, result.Status)
		assert.Contains(t, result.Error, "Reserve below critical threshold")

		assert.Equal(t, 1, f.decisionLog.calls)
		assert.Equal(t, 0, f.bundler.submitCalls)
		assert.Equal(t, 1, f.budgets.recordCount())
	})

	t.Run("An open circuit should reject before submission", func(t *testing.T) {
		f := newFixture(t)

		// Trip the breaker.
		boom := errors.New("boom")
		for i := 0; i < 5; i++ {
			_ = f.guard.Execute(ctx, func(_ context.Context) error { return boom })
		}

		result, err := f.orchestrator.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, StatusLoggedNotExecuted, result.Status)
		assert.Contains(t, result.Error, "circuit breaker OPEN")
		assert.Equal(t, 0, f.bundler.submitCalls)
		assert.True(t, f.budgets.balance("uniswap-v3").Equal(decimal.NewFromInt(10)))
	})

	t.Run("A failed decision backup should not block execution", func(t *testing.T) {
		f := newFixture(t)
		f.content.err = &contentstore.UploadError{Reason: contentstore.ReasonNetworkError}

		result, err := f.orchestrator.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		assert.True(t, result.Success)
		assert.Empty(t, result.IpfsCid)
	})

	t.Run("Paymaster stub data should be applied and cached", func(t *testing.T) {
		f := newFixture(t)
		f.bundler.stub = &bundler.PaymasterStubData{
			Paymaster:     "0x2222222222222222222222222222222222222222",
			PaymasterData: "0x1234",
		}

		_, err := f.orchestrator.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		assert.Equal(t, "0x2222222222222222222222222222222222222222", f.bundler.lastUserOp.Paymaster)

		_, found, _ := f.kv.Get(ctx, "gaslift:paymaster:uniswap-v3")
		assert.True(t, found)

		// Second run hits the cache instead of the paymaster endpoint.
		_, err = f.orchestrator.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		assert.Equal(t, 1, f.bundler.stubCalls)
	})

	t.Run("A failing ledger write after confirmation keeps success but no deduction flag", func(t *testing.T) {
		f := newFixture(t)
		f.budgets.deductErr = errors.New("connection refused")

		result, err := f.orchestrator.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, StatusSuccess, result.Status)
		assert.False(t, result.BudgetDeducted)
		assert.Nil(t, result.ActualCostUsd)

		record := f.budgets.lastRecord()
		assert.Equal(t, StatusSuccess, record.Status)
		assert.Nil(t, record.ActualCostUsd)
	})

	t.Run("A missing paymaster stub should submit without a paymaster", func(t *testing.T) {
		f := newFixture(t)
		f.bundler.stub = nil

		result, err := f.orchestrator.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		assert.True(t, result.Success)
		assert.Empty(t, f.bundler.lastUserOp.Paymaster)
		assert.Empty(t, f.bundler.lastUserOp.PaymasterData)

		_, found, _ := f.kv.Get(ctx, "gaslift:paymaster:uniswap-v3")
		assert.False(t, found)
	})

	t.Run("Consecutive sponsorships should submit fresh entry point nonces", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.orchestrator.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		first := f.bundler.lastUserOp.Nonce

		_, err = f.orchestrator.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		second := f.bundler.lastUserOp.Nonce

		assert.Equal(t, "0x0", first)
		assert.Equal(t, "0x1", second)
		assert.Equal(t, 2, f.nonces.calls)
	})

	t.Run("Reconciliation logging should not claim an on-chain record when none exists", func(t *testing.T) {
		f := newFixture(t)
		core, logs := observer.New(zap.ErrorLevel)
		f.orchestrator.logger = zap.New(core)
		f.orchestrator.decisionLog = nil
		f.bundler.submitErr = &bundler.SubmissionError{Message: "bundler rejected the operation"}

		result, err := f.orchestrator.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		assert.False(t, result.Success)
		assert.Empty(t, result.OnChainTxHash)

		for _, entry := range logs.All() {
			assert.NotContains(t, entry.Message, "On-chain audit record exists")
		}
		assert.Equal(t, 1, logs.FilterMessage("Sponsorship did not execute; ledger untouched").Len())
	})

	t.Run("Target resolution should fall back to the decision log contract", func(t *testing.T) {
		f := newFixture(t)
		f.orchestrator.whitelist = &fakeWhitelist{addresses: []string{}}

		result, err := f.orchestrator.Sponsor(ctx, validDecision(), ModeLive)
		assert.Nil(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 1, f.bundler.submitCalls)
	})
}
