package postgres

import (
	"context"
	"time"

	"github.com/gaslift-labs/gaslift/internal/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PostgresBudgetStore struct {
	Db     *gorm.DB
	logger *zap.Logger
}

func NewPostgresBudgetStore(db *gorm.DB, l *zap.Logger) *PostgresBudgetStore {
	return &PostgresBudgetStore{
		Db:     db,
		logger: l,
	}
}

func (s *PostgresBudgetStore) GetProtocolBudget(ctx context.Context, protocolId string) (*storage.ProtocolBudget, error) {
	budget := &storage.ProtocolBudget{}
	res := s.Db.WithContext(ctx).First(budget, "protocol_id = ?", protocolId)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, storage.ErrBudgetNotFound
		}
		return nil, errors.Wrap(res.Error, "failed to fetch protocol budget")
	}
	return budget, nil
}

func (s *PostgresBudgetStore) CreditBudget(ctx context.Context, protocolId string, amount decimal.Decimal) (*storage.ProtocolBudget, error) {
	budget := &storage.ProtocolBudget{}

	err := s.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(`
			insert into protocol_budgets (protocol_id, balance_usd, total_spent_usd, sponsorship_count, created_at, updated_at)
			values (?, ?, 0, 0, now(), now())
			on conflict (protocol_id) do update
			set balance_usd = protocol_budgets.balance_usd + excluded.balance_usd,
				updated_at = now()
		`, protocolId, amount)
		if res.Error != nil {
			return res.Error
		}
		return tx.First(budget, "protocol_id = ?", protocolId).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to credit protocol budget")
	}
	return budget, nil
}

// DeductBudget is the single ledger write path for confirmed sponsorships.
// The update is a guarded row-level decrement: it never overdraws and never
// races another deduction into a negative balance.
func (s *PostgresBudgetStore) DeductBudget(ctx context.Context, protocolId string, amount decimal.Decimal) (*storage.ProtocolBudget, error) {
	budget := &storage.ProtocolBudget{}

	err := s.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(`
			update protocol_budgets
			set balance_usd = balance_usd - ?,
				total_spent_usd = total_spent_usd + ?,
				sponsorship_count = sponsorship_count + 1,
				updated_at = now()
			where protocol_id = ?
				and balance_usd >= ?
		`, amount, amount, protocolId, amount)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&storage.ProtocolBudget{}).Where("protocol_id = ?", protocolId).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return storage.ErrBudgetNotFound
			}
			return storage.ErrInsufficientBudget
		}
		return tx.First(budget, "protocol_id = ?", protocolId).Error
	})
	if err != nil {
		if errors.Is(err, storage.ErrBudgetNotFound) || errors.Is(err, storage.ErrInsufficientBudget) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to deduct protocol budget")
	}
	return budget, nil
}

func (s *PostgresBudgetStore) TotalBalances(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	res := s.Db.WithContext(ctx).Raw(`select coalesce(sum(balance_usd), 0) from protocol_budgets`).Scan(&total)
	if res.Error != nil {
		return decimal.Zero, errors.Wrap(res.Error, "failed to sum protocol budgets")
	}
	return total, nil
}

func (s *PostgresBudgetStore) InsertSponsorshipRecord(ctx context.Context, record *storage.SponsorshipRecord) error {
	if record.Id == "" {
		record.Id = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	res := s.Db.WithContext(ctx).Create(record)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to insert sponsorship record")
	}
	return nil
}

func (s *PostgresBudgetStore) ListSponsorshipRecords(ctx context.Context, protocolId string, limit int) ([]*storage.SponsorshipRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	records := make([]*storage.SponsorshipRecord, 0)
	query := s.Db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if protocolId != "" {
		query = query.Where("protocol_id = ?", protocolId)
	}
	res := query.Find(&records)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "failed to list sponsorship records")
	}
	return records, nil
}
