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

// Balances is a reserve snapshot used by health checks.
type Balances struct {
	ETH     float64
	USDC    float64
	ChainId uint64
}

type BalanceProvider interface {
	GetAgentWalletBalance(ctx context.Context) (*Balances, error)
}

const erc20Abi = `[{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

// ChainBalanceProvider reads the agent wallet's ETH (and optionally USDC)
// balances from a node. The ethclient handle is dialed lazily and reused.
type ChainBalanceProvider struct {
	rpcUrl       string
	address      common.Address
	usdcContract string
	chainId      uint64
	logger       *zap.Logger

	mu     sync.Mutex
	client *ethclient.Client
}

func NewChainBalanceProvider(rpcUrl string, address common.Address, usdcContract string, chainId uint64, l *zap.Logger) *ChainBalanceProvider {
	return &ChainBalanceProvider{
		rpcUrl:       rpcUrl,
		address:      address,
		usdcContract: usdcContract,
		chainId:      chainId,
		logger:       l,
	}
}

func (p *ChainBalanceProvider) getClient() (*ethclient.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	if p.rpcUrl == "" {
		return nil, xerrors.Errorf("no ethereum rpc url configured")
	}
	client, err := ethclient.Dial(p.rpcUrl)
	if err != nil {
		return nil, xerrors.Errorf("failed to dial ethereum node: %w", err)
	}
	p.client = client
	return client, nil
}

func (p *ChainBalanceProvider) GetAgentWalletBalance(ctx context.Context) (*Balances, error) {
	client, err := p.getClient()
	if err != nil {
		return nil, err
	}

	weiBalance, err := client.BalanceAt(ctx, p.address, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to fetch ETH balance: %w", err)
	}

	balances := &Balances{
		ETH:     weiToEth(weiBalance),
		ChainId: p.chainId,
	}

	if p.usdcContract != "" {
		usdc, err := p.getUsdcBalance(ctx, client)
		if err != nil {
			p.logger.Sugar().Warnw("Failed to fetch USDC balance", zap.Error(err))
		} else {
			balances.USDC = usdc
		}
	}

	return balances, nil
}

func (p *ChainBalanceProvider) getUsdcBalance(ctx context.Context, client *ethclient.Client) (float64, error) {
	a, err := abi.JSON(strings.NewReader(erc20Abi))
	if err != nil {
		return 0, err
	}

	contract := bind.NewBoundContract(common.HexToAddress(p.usdcContract), a, client, nil, nil)

	results := make([]interface{}, 0)
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &results, "balanceOf", p.address); err != nil {
		return 0, err
	}

	raw, ok := results[0].(*big.Int)
	if !ok {
		return 0, xerrors.Errorf("unexpected balanceOf result type")
	}

	// USDC has 6 decimals.
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), big.NewFloat(1e6)).Float64()
	return f, nil
}

func weiToEth(wei *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	return f
}
