package bundler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

var jsonRPCVersion = "2.0"

// ErrNotConfigured is returned when no bundler endpoint was configured. It is
// deliberately distinct from a transient RPC failure so that health checks can
// report "bundler unavailable" instead of tripping retry logic.
var ErrNotConfigured = errors.New("no bundler endpoint configured")

const (
	DefaultReceiptTimeout      = 120 * time.Second
	DefaultReceiptPollInterval = 2 * time.Second
)

type RPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      uint   `json:"id"`
}

type RPCError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint           `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type Client struct {
	BaseURL    string
	EntryPoint string
	Logger     *zap.Logger

	httpClient *http.Client

	// Lazily resolved from the bundler and cached; Reset clears it.
	mu                 sync.Mutex
	resolvedEntryPoint string
	cachedChainId      uint64
}

func NewClient(baseUrl string, entryPoint string, l *zap.Logger) *Client {
	client := &http.Client{
		Timeout: time.Second * 30,
	}

	l.Sugar().Debugw(fmt.Sprintf("Creating new bundler client with url '%s'", baseUrl))

	return &Client{
		BaseURL:    baseUrl,
		EntryPoint: entryPoint,
		httpClient: client,
		Logger:     l,
	}
}

// Reset drops the cached entry-point/chain-id handle so the next call
// re-resolves them. Used for recovery and in tests.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolvedEntryPoint = ""
	c.cachedChainId = 0
}

func (c *Client) call(ctx context.Context, rpcRequest *RPCRequest) (*RPCResponse, error) {
	if c.BaseURL == "" {
		return nil, ErrNotConfigured
	}

	requestBody, err := json.Marshal(rpcRequest)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*20)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(requestBody))
	if err != nil {
		return nil, xerrors.Errorf("Failed to make request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, xerrors.Errorf("Request failed: %w", err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, xerrors.Errorf("Failed to read body: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("received http error code %+v", response.StatusCode)
	}

	destination := &RPCResponse{}
	if err := json.Unmarshal(responseBody, destination); err != nil {
		return nil, xerrors.Errorf("failed to unmarshal response: %w", err)
	}

	if destination.Error != nil {
		return nil, xerrors.Errorf("received error response: %+v", destination.Error)
	}

	return destination, nil
}

// CheckHealth verifies the bundler is reachable and supports the configured
// entry point. Latency of the supported-entry-points call is reported so the
// composite health check can warn on slow-but-available bundlers.
func (c *Client) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()

	res, err := c.call(ctx, &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  "eth_supportedEntryPoints",
		Params:  []any{},
		ID:      1,
	})
	if err != nil {
		return nil, err
	}
	latency := time.Since(start)

	var entryPoints []string
	if err := json.Unmarshal(res.Result, &entryPoints); err != nil {
		return nil, xerrors.Errorf("failed to parse supported entry points: %w", err)
	}

	// With no configured override the first reported entry point is adopted
	// and cached for subsequent calls.
	entryPoint := c.EntryPoint
	if entryPoint == "" {
		if len(entryPoints) == 0 {
			return &HealthStatus{
				Available:            true,
				SupportedEntryPoints: entryPoints,
				Latency:              latency,
			}, xerrors.Errorf("bundler reports no supported entry points")
		}
		entryPoint = entryPoints[0]
		c.mu.Lock()
		c.resolvedEntryPoint = entryPoint
		c.mu.Unlock()
	}

	supported := false
	for _, ep := range entryPoints {
		if strings.EqualFold(ep, entryPoint) {
			supported = true
			break
		}
	}
	if !supported {
		return &HealthStatus{
			Available:            true,
			EntryPointSupported:  false,
			SupportedEntryPoints: entryPoints,
			Latency:              latency,
		}, xerrors.Errorf("entry point %s not supported by bundler", entryPoint)
	}

	chainId, err := c.ChainId(ctx)
	if err != nil {
		c.Logger.Sugar().Warnw("Failed to fetch bundler chain id", zap.Error(err))
	}

	return &HealthStatus{
		Available:            true,
		EntryPointSupported:  true,
		SupportedEntryPoints: entryPoints,
		ChainId:              chainId,
		Latency:              latency,
	}, nil
}

func (c *Client) ChainId(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	if c.cachedChainId != 0 {
		defer c.mu.Unlock()
		return c.cachedChainId, nil
	}
	c.mu.Unlock()

	res, err := c.call(ctx, &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  "eth_chainId",
		Params:  []any{},
		ID:      1,
	})
	if err != nil {
		return 0, err
	}

	var chainIdHex string
	if err := json.Unmarshal(res.Result, &chainIdHex); err != nil {
		return 0, xerrors.Errorf("failed to parse chain id: %w", err)
	}
	chainId, err := hexutil.DecodeUint64(chainIdHex)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.cachedChainId = chainId
	c.mu.Unlock()

	return chainId, nil
}

// ResolveEntryPoint returns the configured entry point, or the first entry
// point the bundler reports when none is configured. The result is cached.
func (c *Client) ResolveEntryPoint(ctx context.Context) (string, error) {
	if c.EntryPoint != "" {
		return c.EntryPoint, nil
	}

	c.mu.Lock()
	if c.resolvedEntryPoint != "" {
		defer c.mu.Unlock()
		return c.resolvedEntryPoint, nil
	}
	c.mu.Unlock()

	res, err := c.call(ctx, &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  "eth_supportedEntryPoints",
		Params:  []any{},
		ID:      1,
	})
	if err != nil {
		return "", err
	}

	var entryPoints []string
	if err := json.Unmarshal(res.Result, &entryPoints); err != nil {
		return "", xerrors.Errorf("failed to parse supported entry points: %w", err)
	}
	if len(entryPoints) == 0 {
		return "", xerrors.Errorf("bundler reports no supported entry points")
	}

	c.mu.Lock()
	c.resolvedEntryPoint = entryPoints[0]
	c.mu.Unlock()

	return entryPoints[0], nil
}

// EstimateGas asks the bundler for gas limits for a partial UserOperation.
// Returns nil when no bundler is configured.
func (c *Client) EstimateGas(ctx context.Context, userOp *UserOperation) (*GasEstimate, error) {
	if c.BaseURL == "" {
		return nil, nil
	}

	entryPoint, err := c.ResolveEntryPoint(ctx)
	if err != nil {
		return nil, err
	}

	res, err := c.call(ctx, &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  "eth_estimateUserOperationGas",
		Params:  []any{userOp, entryPoint},
		ID:      1,
	})
	if err != nil {
		return nil, err
	}

	estimate := &GasEstimate{}
	if err := json.Unmarshal(res.Result, estimate); err != nil {
		c.Logger.Sugar().Errorw("failed to parse gas estimate",
			zap.Error(err),
			zap.Any("raw response", res.Result),
		)
		return nil, err
	}
	return estimate, nil
}

// PreparePaymasterData fetches paymaster stub data for the UserOperation.
func (c *Client) PreparePaymasterData(ctx context.Context, userOp *UserOperation, chainId uint64) (*PaymasterStubData, error) {
	entryPoint, err := c.ResolveEntryPoint(ctx)
	if err != nil {
		return nil, err
	}

	res, err := c.call(ctx, &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  "pm_getPaymasterStubData",
		Params:  []any{userOp, entryPoint, hexutil.EncodeUint64(chainId), map[string]any{}},
		ID:      1,
	})
	if err != nil {
		return nil, err
	}

	stub := &PaymasterStubData{}
	if err := json.Unmarshal(res.Result, stub); err != nil {
		c.Logger.Sugar().Errorw("failed to parse paymaster stub data",
			zap.Error(err),
			zap.Any("raw response", res.Result),
		)
		return nil, err
	}
	return stub, nil
}

// Submit sends the UserOperation to the bundler and returns the bundler
// assigned userOpHash immediately, without waiting for inclusion.
func (c *Client) Submit(ctx context.Context, userOp *UserOperation) (string, error) {
	entryPoint, err := c.ResolveEntryPoint(ctx)
	if err != nil {
		return "", &SubmissionError{
			Message: "failed to resolve entry point",
			Err:     err,
		}
	}

	res, err := c.call(ctx, &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  "eth_sendUserOperation",
		Params:  []any{userOp, entryPoint},
		ID:      1,
	})
	if err != nil {
		return "", &SubmissionError{
			Message: "failed to submit user operation",
			Err:     err,
		}
	}

	var userOpHash string
	if err := json.Unmarshal(res.Result, &userOpHash); err != nil {
		return "", &SubmissionError{
			Message: "failed to parse userOpHash from bundler response",
			Err:     err,
		}
	}

	c.Logger.Sugar().Infow("Submitted user operation",
		zap.String("userOpHash", userOpHash),
	)
	return userOpHash, nil
}

type WaitOpts struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

func (o *WaitOpts) withDefaults() WaitOpts {
	opts := WaitOpts{
		Timeout:      DefaultReceiptTimeout,
		PollInterval: DefaultReceiptPollInterval,
	}
	if o == nil {
		return opts
	}
	if o.Timeout > 0 {
		opts.Timeout = o.Timeout
	}
	if o.PollInterval > 0 {
		opts.PollInterval = o.PollInterval
	}
	return opts
}

// WaitForReceipt polls eth_getUserOperationReceipt until the bundler returns a
// non-null receipt or the deadline elapses. Transient RPC errors during
// polling are logged and retried on the next tick.
func (c *Client) WaitForReceipt(ctx context.Context, userOpHash string, opts *WaitOpts) (*UserOpReceipt, error) {
	o := opts.withDefaults()
	deadline := time.Now().Add(o.Timeout)

	for {
		receipt, err := c.getReceipt(ctx, userOpHash)
		if err != nil {
			c.Logger.Sugar().Warnw("Receipt poll failed, retrying",
				zap.Error(err),
				zap.String("userOpHash", userOpHash),
			)
		} else if receipt != nil {
			return receipt, nil
		}

		if time.Now().Add(o.PollInterval).After(deadline) {
			return nil, &SubmissionError{
				Message:    fmt.Sprintf("timed out after %s waiting for user operation receipt", o.Timeout),
				UserOpHash: userOpHash,
				Timeout:    true,
			}
		}

		select {
		case <-ctx.Done():
			return nil, &SubmissionError{
				Message:    "context cancelled while waiting for user operation receipt",
				UserOpHash: userOpHash,
				Timeout:    true,
				Err:        ctx.Err(),
			}
		case <-time.After(o.PollInterval):
		}
	}
}

func (c *Client) getReceipt(ctx context.Context, userOpHash string) (*UserOpReceipt, error) {
	res, err := c.call(ctx, &RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  "eth_getUserOperationReceipt",
		Params:  []any{userOpHash},
		ID:      1,
	})
	if err != nil {
		return nil, err
	}

	if len(res.Result) == 0 || string(res.Result) == "null" {
		return nil, nil
	}

	raw := &rpcUserOpReceipt{}
	if err := json.Unmarshal(res.Result, raw); err != nil {
		return nil, xerrors.Errorf("failed to parse user operation receipt: %w", err)
	}

	receipt := &UserOpReceipt{
		UserOpHash:    raw.UserOpHash,
		ActualGasCost: raw.ActualGasCost,
		Success:       raw.Success,
	}
	if raw.ActualGasUsed != "" {
		if gasUsed, err := hexutil.DecodeUint64(raw.ActualGasUsed); err == nil {
			receipt.ActualGasUsed = gasUsed
		}
	}
	if len(raw.Receipt) > 0 {
		txReceipt := &rpcTransactionReceipt{}
		if err := json.Unmarshal(raw.Receipt, txReceipt); err == nil {
			receipt.TransactionHash = txReceipt.TransactionHash
		}
	}
	return receipt, nil
}

// SubmitAndWait composes a health check, Submit and WaitForReceipt, and folds
// every failure into the result rather than propagating. Callers that need the
// individual steps (to hold a wallet lock over submission only) use Submit and
// WaitForReceipt directly.
func (c *Client) SubmitAndWait(ctx context.Context, userOp *UserOperation, opts *WaitOpts) *SubmitResult {
	if _, err := c.CheckHealth(ctx); err != nil {
		return &SubmitResult{
			Success: false,
			Error:   fmt.Sprintf("bundler unhealthy: %s", err.Error()),
		}
	}

	userOpHash, err := c.Submit(ctx, userOp)
	if err != nil {
		return &SubmitResult{
			Success: false,
			Error:   err.Error(),
		}
	}

	receipt, err := c.WaitForReceipt(ctx, userOpHash, opts)
	if err != nil {
		return &SubmitResult{
			Success:    false,
			UserOpHash: userOpHash,
			Error:      err.Error(),
		}
	}

	return &SubmitResult{
		Success:         receipt.Success,
		UserOpHash:      userOpHash,
		TransactionHash: receipt.TransactionHash,
		ActualGasUsed:   receipt.ActualGasUsed,
		ActualGasCost:   receipt.ActualGasCost,
	}
}
