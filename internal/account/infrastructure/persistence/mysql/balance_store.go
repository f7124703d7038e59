package mysql

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/optionsvenue/internal/account/domain"
	"gorm.io/gorm"
)

// BalanceModel 资金账户写模型。
type BalanceModel struct {
	gorm.Model
	TraderID       string          `gorm:"column:trader_id;type:varchar(64);uniqueIndex;not null;comment:交易者ID"`
	Available      decimal.Decimal `gorm:"column:available;type:decimal(32,8);default:0;not null;comment:可用余额"`
	Locked         decimal.Decimal `gorm:"column:locked;type:decimal(32,8);default:0;not null;comment:锁定保证金"`
	TotalDeposited decimal.Decimal `gorm:"column:total_deposited;type:decimal(32,8);default:0;not null;comment:累计入金"`
	TotalWithdrawn decimal.Decimal `gorm:"column:total_withdrawn;type:decimal(32,8);default:0;not null;comment:累计出金"`
	Frozen         bool            `gorm:"column:frozen;not null;default:false;comment:冻结标志"`
}

func (BalanceModel) TableName() string { return "balances" }

// balanceStore 余额仓储实现
type balanceStore struct {
	db *gorm.DB
}

// NewBalanceStore 创建并返回一个新的 balanceStore 实例。
func NewBalanceStore(db *gorm.DB) domain.BalanceStore {
	return &balanceStore{db: db}
}

// UpsertBalance 保存账户，按 trader_id 幂等覆盖。
func (s *balanceStore) UpsertBalance(ctx context.Context, balance *domain.Balance) error {
	model := &BalanceModel{
		TraderID:       balance.TraderID,
		Available:      balance.Available,
		Locked:         balance.Locked,
		TotalDeposited: balance.TotalDeposited,
		TotalWithdrawn: balance.TotalWithdrawn,
		Frozen:         balance.Frozen,
	}

	var exist BalanceModel
	if err := s.db.WithContext(ctx).Where("trader_id = ?", balance.TraderID).First(&exist).Error; err == nil {
		model.ID = exist.ID
		model.CreatedAt = exist.CreatedAt
	}
	return s.db.WithContext(ctx).Save(model).Error
}

// LoadAllBalances 启动回放：加载全部账户。
func (s *balanceStore) LoadAllBalances(ctx context.Context) ([]*domain.Balance, error) {
	var models []*BalanceModel
	if err := s.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Balance, 0, len(models))
	for _, model := range models {
		out = append(out, &domain.Balance{
			TraderID:       model.TraderID,
			Available:      model.Available,
			Locked:         model.Locked,
			TotalDeposited: model.TotalDeposited,
			TotalWithdrawn: model.TotalWithdrawn,
			Frozen:         model.Frozen,
			UpdatedAt:      model.UpdatedAt,
		})
	}
	return out, nil
}
