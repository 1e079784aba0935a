package protocolcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gaslift-labs/gaslift/internal/kvstore"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

const (
	whitelistCacheTtl = 10 * time.Minute
	budgetCacheTtl    = 5 * time.Minute
)

type cachedBudget struct {
	BalanceUsd  string `json:"balanceUsd"`
	LastCostUsd string `json:"lastCostUsd"`
	UpdatedAtMs int64  `json:"updatedAtMs"`
}

// Cache keeps protocol whitelists and budget snapshots in the kvstore so hot
// paths avoid a database round trip. All values are advisory; the postgres
// ledger stays authoritative.
type Cache struct {
	kv     kvstore.Store
	logger *zap.Logger
}

func NewCache(kv kvstore.Store, l *zap.Logger) *Cache {
	return &Cache{
		kv:     kv,
		logger: l,
	}
}

func whitelistKey(protocolId string) string {
	return fmt.Sprintf("gaslift:whitelist:%s", protocolId)
}

func budgetKey(protocolId string) string {
	return fmt.Sprintf("gaslift:budget:%s", protocolId)
}

func (c *Cache) GetCachedProtocolWhitelist(ctx context.Context, protocolId string) ([]string, error) {
	raw, found, err := c.kv.Get(ctx, whitelistKey(protocolId))
	if err != nil {
		return nil, xerrors.Errorf("failed to read whitelist for protocol '%s': %w", protocolId, err)
	}
	if !found {
		return []string{}, nil
	}

	var addresses []string
	if err := json.Unmarshal([]byte(raw), &addresses); err != nil {
		return nil, xerrors.Errorf("malformed cached whitelist for protocol '%s': %w", protocolId, err)
	}
	return addresses, nil
}

func (c *Cache) SetProtocolWhitelist(ctx context.Context, protocolId string, addresses []string) error {
	raw, err := json.Marshal(addresses)
	if err != nil {
		return xerrors.Errorf("failed to marshal whitelist for protocol '%s': %w", protocolId, err)
	}
	return c.kv.Set(ctx, whitelistKey(protocolId), string(raw), whitelistCacheTtl)
}

func (c *Cache) UpdateCachedProtocolBudget(ctx context.Context, protocolId string, newBalance decimal.Decimal, cost decimal.Decimal) error {
	entry := cachedBudget{
		BalanceUsd:  newBalance.String(),
		LastCostUsd: cost.String(),
		UpdatedAtMs: time.Now().UnixMilli(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return xerrors.Errorf("failed to marshal budget snapshot for protocol '%s': %w", protocolId, err)
	}
	return c.kv.Set(ctx, budgetKey(protocolId), string(raw), budgetCacheTtl)
}

func (c *Cache) GetCachedProtocolBudget(ctx context.Context, protocolId string) (decimal.Decimal, bool, error) {
	raw, found, err := c.kv.Get(ctx, budgetKey(protocolId))
	if err != nil || !found {
		return decimal.Zero, false, err
	}

	var entry cachedBudget
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Sugar().Warnw("Dropping malformed cached budget snapshot",
			zap.Error(err),
			zap.String("protocolId", protocolId),
		)
		return decimal.Zero, false, nil
	}
	balance, err := decimal.NewFromString(entry.BalanceUsd)
	if err != nil {
		return decimal.Zero, false, nil
	}
	return balance, true, nil
}
