package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

/*
create table if not exists protocol_budgets (

	protocol_id varchar primary key,
	balance_usd numeric not null default 0,
	total_spent_usd numeric not null default 0,
	sponsorship_count bigint not null default 0,
	created_at timestamp with time zone,
	updated_at timestamp with time zone

);
*/
type ProtocolBudget struct {
	ProtocolId       string          `gorm:"primaryKey"`
	BalanceUsd       decimal.Decimal `gorm:"type:numeric"`
	TotalSpentUsd    decimal.Decimal `gorm:"type:numeric"`
	SponsorshipCount uint64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

/*
create table if not exists sponsorship_records (

	id uuid primary key,
	protocol_id varchar,
	decision_hash varchar,
	signature varchar,
	status varchar,
	estimated_cost_usd numeric,
	actual_cost_usd numeric,
	onchain_tx_hash varchar,
	user_op_hash varchar,
	bundler_tx_hash varchar,
	ipfs_cid varchar,
	created_at timestamp with time zone

);
*/
type SponsorshipRecord struct {
	Id               string `gorm:"primaryKey;type:uuid"`
	ProtocolId       string
	DecisionHash     string
	Signature        string
	Status           string
	EstimatedCostUsd decimal.Decimal `gorm:"type:numeric"`
	// ActualCostUsd stays null unless budget was actually deducted.
	ActualCostUsd *decimal.Decimal `gorm:"type:numeric"`
	OnchainTxHash string
	UserOpHash    string
	BundlerTxHash string
	IpfsCid       string
	CreatedAt     time.Time
}
