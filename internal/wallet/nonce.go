package wallet

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

const entryPointAbi = `[{"inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"name":"getNonce","outputs":[{"name":"nonce","type":"uint256"}],"stateMutability":"view","type":"function"}]`

// EntryPointNonceSource reads the sender's next nonce from the entry point
// contract. The ethclient handle is dialed lazily and reused.
type EntryPointNonceSource struct {
	rpcUrl     string
	entryPoint common.Address
	logger     *zap.Logger

	mu     sync.Mutex
	client *ethclient.Client
}

func NewEntryPointNonceSource(rpcUrl string, entryPoint string, l *zap.Logger) *EntryPointNonceSource {
	return &EntryPointNonceSource{
		rpcUrl:     rpcUrl,
		entryPoint: common.HexToAddress(entryPoint),
		logger:     l,
	}
}

func (s *EntryPointNonceSource) getClient() (*ethclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	if s.rpcUrl == "" {
		return nil, xerrors.Errorf("no ethereum rpc url configured")
	}
	client, err := ethclient.Dial(s.rpcUrl)
	if err != nil {
		return nil, xerrors.Errorf("failed to dial ethereum node: %w", err)
	}
	s.client = client
	return client, nil
}

// GetNonce calls getNonce(sender, 0) on the entry point. Nonce key zero is the
// sequential key; the agent never uses parallel nonce keys.
func (s *EntryPointNonceSource) GetNonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	client, err := s.getClient()
	if err != nil {
		return nil, err
	}

	a, err := abi.JSON(strings.NewReader(entryPointAbi))
	if err != nil {
		return nil, err
	}

	contract := bind.NewBoundContract(s.entryPoint, a, client, nil, nil)

	results := make([]interface{}, 0)
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &results, "getNonce", sender, big.NewInt(0)); err != nil {
		return nil, xerrors.Errorf("failed to fetch entry point nonce: %w", err)
	}

	nonce, ok := results[0].(*big.Int)
	if !ok {
		return nil, xerrors.Errorf("unexpected getNonce result type")
	}
	return nonce, nil
}
