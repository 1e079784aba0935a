package auditlog

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gaslift-labs/gaslift/internal/wallet"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

const decisionLogAbi = `[{"inputs":[{"internalType":"address","name":"agentWallet","type":"address"},{"internalType":"bytes32","name":"protocolId","type":"bytes32"},{"internalType":"bytes32","name":"decisionHash","type":"bytes32"},{"internalType":"uint256","name":"estimatedCostUsd","type":"uint256"},{"internalType":"string","name":"metadata","type":"string"}],"name":"logDecision","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// DecisionLog writes the immutable on-chain audit entry before any
// sponsorship executes. This write is not reversible; the saga compensates by
// never deducting budget unless the bundler later confirms.
type DecisionLog struct {
	contractAddress common.Address
	rpcUrl          string
	wallet          *wallet.Wallet
	abi             abi.ABI
	logger          *zap.Logger

	mu     sync.Mutex
	client *ethclient.Client
}

func NewDecisionLog(contractAddress string, rpcUrl string, w *wallet.Wallet, l *zap.Logger) (*DecisionLog, error) {
	a, err := abi.JSON(strings.NewReader(decisionLogAbi))
	if err != nil {
		return nil, xerrors.Errorf("failed to parse decision log abi: %w", err)
	}

	return &DecisionLog{
		contractAddress: common.HexToAddress(contractAddress),
		rpcUrl:          rpcUrl,
		wallet:          w,
		abi:             a,
		logger:          l,
	}, nil
}

func (d *DecisionLog) ContractAddress() common.Address {
	return d.contractAddress
}

func (d *DecisionLog) getClient() (*ethclient.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, nil
	}
	if d.rpcUrl == "" {
		return nil, xerrors.Errorf("no ethereum rpc url configured")
	}
	client, err := ethclient.Dial(d.rpcUrl)
	if err != nil {
		return nil, xerrors.Errorf("failed to dial ethereum node: %w", err)
	}
	d.client = client
	return client, nil
}

// ProtocolIdHash maps a protocol identifier string onto the contract's
// bytes32 key.
func ProtocolIdHash(protocolId string) common.Hash {
	return crypto.Keccak256Hash([]byte(protocolId))
}

// LogDecision submits the logDecision transaction and waits for inclusion.
// costUsd6 is the estimated cost in USD scaled by 10^6.
func (d *DecisionLog) LogDecision(
	ctx context.Context,
	protocolId string,
	decisionHash common.Hash,
	costUsd6 *big.Int,
	metadata string,
) (string, error) {
	client, err := d.getClient()
	if err != nil {
		return "", err
	}

	opts, err := d.wallet.TransactOpts()
	if err != nil {
		return "", xerrors.Errorf("failed to build transact opts: %w", err)
	}
	opts.Context = ctx

	contract := bind.NewBoundContract(d.contractAddress, d.abi, client, client, client)

	tx, err := contract.Transact(opts, "logDecision",
		d.wallet.Address(),
		ProtocolIdHash(protocolId),
		decisionHash,
		costUsd6,
		metadata,
	)
	if err != nil {
		return "", xerrors.Errorf("failed to submit decision log transaction: %w", err)
	}

	d.logger.Sugar().Infow("Submitted decision log transaction",
		zap.String("txHash", tx.Hash().Hex()),
		zap.String("protocolId", protocolId),
	)

	receipt, err := bind.WaitMined(ctx, client, tx)
	if err != nil {
		return tx.Hash().Hex(), xerrors.Errorf("failed waiting for decision log inclusion: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash().Hex(), xerrors.Errorf("decision log transaction reverted: %s", tx.Hash().Hex())
	}

	return tx.Hash().Hex(), nil
}
