package sponsorship

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gaslift-labs/gaslift/internal/wallet"
	"golang.org/x/xerrors"
)

// signingPayload is the canonical form that gets hashed and signed. Field
// order is fixed by the struct; map-valued preconditions marshal with sorted
// keys, so the payload is deterministic for identical inputs.
type signingPayload struct {
	Decision      *Decision      `json:"decision"`
	Timestamp     int64          `json:"timestamp"`
	AgentVersion  string         `json:"agentVersion"`
	Preconditions map[string]any `json:"preconditions,omitempty"`
}

type SignedDecision struct {
	Decision     *Decision
	DecisionHash common.Hash
	Signature    string
	Payload      []byte
	Timestamp    time.Time
}

type Signer struct {
	wallet       *wallet.Wallet
	agentVersion string
}

func NewSigner(w *wallet.Wallet, agentVersion string) *Signer {
	return &Signer{
		wallet:       w,
		agentVersion: agentVersion,
	}
}

// SignDecision hashes the canonical payload with keccak256 and signs the hash
// with the agent key. This runs for every sponsorship, simulation included.
func (s *Signer) SignDecision(d *Decision, preconditions map[string]any, now time.Time) (*SignedDecision, error) {
	payload := signingPayload{
		Decision:      d,
		Timestamp:     now.UnixMilli(),
		AgentVersion:  s.agentVersion,
		Preconditions: preconditions,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal decision payload: %w", err)
	}

	hash := crypto.Keccak256Hash(raw)

	signature, err := s.wallet.SignHash(hash.Bytes())
	if err != nil {
		return nil, xerrors.Errorf("failed to sign decision hash: %w", err)
	}

	return &SignedDecision{
		Decision:     d,
		DecisionHash: hash,
		Signature:    hexutil.Encode(signature),
		Payload:      raw,
		Timestamp:    now,
	}, nil
}
