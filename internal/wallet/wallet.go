package wallet

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/xerrors"
)

var ErrNoPrivateKey = errors.New("no agent private key configured")

// Wallet holds the agent's signing key. Every signing or broadcasting path
// goes through the wallet lock, so the wallet itself carries no locking.
type Wallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainId    *big.Int
}

func NewWallet(privateKeyHex string, chainId uint64) (*Wallet, error) {
	if privateKeyHex == "" {
		return nil, ErrNoPrivateKey
	}

	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse agent private key: %w", err)
	}

	return &Wallet{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chainId:    new(big.Int).SetUint64(chainId),
	}, nil
}

func (w *Wallet) Address() common.Address {
	return w.address
}

func (w *Wallet) ChainId() *big.Int {
	return new(big.Int).Set(w.chainId)
}

// SignHash signs a 32-byte hash with the agent key.
func (w *Wallet) SignHash(hash []byte) ([]byte, error) {
	return crypto.Sign(hash, w.privateKey)
}

func (w *Wallet) TransactOpts() (*bind.TransactOpts, error) {
	return bind.NewKeyedTransactorWithChainID(w.privateKey, w.chainId)
}
