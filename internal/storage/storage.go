package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrBudgetNotFound     = errors.New("protocol budget not found")
	ErrInsufficientBudget = errors.New("insufficient protocol budget")
)

// BudgetStore owns the relational ledger. The sponsorship orchestrator is the
// only writer path for sponsorship-driven changes; DeductBudget must only be
// called once the bundler has confirmed execution.
type BudgetStore interface {
	GetProtocolBudget(ctx context.Context, protocolId string) (*ProtocolBudget, error)

	// CreditBudget tops up a protocol's prepaid balance, creating the row on
	// first use.
	CreditBudget(ctx context.Context, protocolId string, amount decimal.Decimal) (*ProtocolBudget, error)

	// DeductBudget atomically decrements balance_usd and bumps the spend
	// counters. It refuses to overdraw and returns ErrInsufficientBudget
	// instead.
	DeductBudget(ctx context.Context, protocolId string, amount decimal.Decimal) (*ProtocolBudget, error)

	// TotalBalances sums all prepaid balances; used by the runway check.
	TotalBalances(ctx context.Context) (decimal.Decimal, error)

	InsertSponsorshipRecord(ctx context.Context, record *SponsorshipRecord) error
	ListSponsorshipRecords(ctx context.Context, protocolId string, limit int) ([]*SponsorshipRecord, error)
}
