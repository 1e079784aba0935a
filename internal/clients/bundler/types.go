package bundler

import (
	"encoding/json"
	"fmt"
	"time"
)

// UserOperation is the v0.7 wire shape submitted to the bundler. All quantity
// fields are hex-encoded strings, matching the JSON-RPC dialect. The struct is
// treated as immutable once submitted.
type UserOperation struct {
	Sender                        string `json:"sender"`
	Nonce                         string `json:"nonce"`
	CallData                      string `json:"callData"`
	CallGasLimit                  string `json:"callGasLimit"`
	VerificationGasLimit          string `json:"verificationGasLimit"`
	PreVerificationGas            string `json:"preVerificationGas"`
	MaxFeePerGas                  string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          string `json:"maxPriorityFeePerGas"`
	Signature                     string `json:"signature"`
	Factory                       string `json:"factory,omitempty"`
	FactoryData                   string `json:"factoryData,omitempty"`
	Paymaster                     string `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit string `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       string `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 string `json:"paymasterData,omitempty"`
}

type GasEstimate struct {
	CallGasLimit         string `json:"callGasLimit"`
	VerificationGasLimit string `json:"verificationGasLimit"`
	PreVerificationGas   string `json:"preVerificationGas"`
}

type PaymasterStubData struct {
	Paymaster                     string `json:"paymaster"`
	PaymasterData                 string `json:"paymasterData"`
	PaymasterVerificationGasLimit string `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       string `json:"paymasterPostOpGasLimit,omitempty"`
}

type HealthStatus struct {
	Available            bool
	EntryPointSupported  bool
	SupportedEntryPoints []string
	ChainId              uint64
	Latency              time.Duration
}

// UserOpReceipt is the confirmation result for a submitted UserOperation.
type UserOpReceipt struct {
	UserOpHash      string
	TransactionHash string
	ActualGasUsed   uint64
	ActualGasCost   string
	Success         bool
}

type rpcUserOpReceipt struct {
	UserOpHash    string          `json:"userOpHash"`
	Sender        string          `json:"sender"`
	Nonce         string          `json:"nonce"`
	ActualGasCost string          `json:"actualGasCost"`
	ActualGasUsed string          `json:"actualGasUsed"`
	Success       bool            `json:"success"`
	Reason        string          `json:"reason"`
	Receipt       json.RawMessage `json:"receipt"`
}

type rpcTransactionReceipt struct {
	TransactionHash string `json:"transactionHash"`
}

type SubmitResult struct {
	Success         bool
	UserOpHash      string
	TransactionHash string
	ActualGasUsed   uint64
	ActualGasCost   string
	Error           string
}

// SubmissionError carries whatever progress was made before the failure. A
// timeout after a successful submit still has the userOpHash, which the caller
// needs for manual reconciliation.
type SubmissionError struct {
	Message    string
	UserOpHash string
	Timeout    bool
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.UserOpHash != "" {
		return fmt.Sprintf("%s (userOpHash: %s)", e.Message, e.UserOpHash)
	}
	return e.Message
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
