package mysql

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/optionsvenue/internal/risk/domain"
	"gorm.io/gorm"
)

// LiquidationModel 强平台账写模型。
type LiquidationModel struct {
	gorm.Model
	PositionID            string          `gorm:"column:position_id;type:varchar(32);index;not null;comment:持仓ID"`
	OwnerID               string          `gorm:"column:owner_id;type:varchar(64);index;not null;comment:持有人"`
	Reason                string          `gorm:"column:reason;type:varchar(128);not null;comment:强平原因"`
	RealizedPnL           decimal.Decimal `gorm:"column:realized_pnl;type:decimal(32,8);not null;comment:已实现盈亏"`
	Fee                   decimal.Decimal `gorm:"column:fee;type:decimal(32,8);not null;comment:强平费"`
	InsuranceContribution decimal.Decimal `gorm:"column:insurance_contribution;type:decimal(32,8);not null;comment:保险基金注入"`
	LiquidatedAt          time.Time       `gorm:"column:liquidated_at;index;not null;comment:强平时间"`
}

func (LiquidationModel) TableName() string { return "liquidations" }

// LiquidationStore 强平记录仓储实现
type LiquidationStore struct {
	db *gorm.DB
}

// NewLiquidationStore 创建并返回一个新的 LiquidationStore 实例。
func NewLiquidationStore(db *gorm.DB) *LiquidationStore {
	return &LiquidationStore{db: db}
}

// SaveLiquidation 追加强平记录。
func (s *LiquidationStore) SaveLiquidation(ctx context.Context, record *domain.LiquidationRecord) error {
	return s.db.WithContext(ctx).Create(&LiquidationModel{
		PositionID:            record.PositionID,
		OwnerID:               record.OwnerID,
		Reason:                record.Reason,
		RealizedPnL:           record.RealizedPnL,
		Fee:                   record.Fee,
		InsuranceContribution: record.InsuranceContribution,
		LiquidatedAt:          record.LiquidatedAt,
	}).Error
}

// ListByOwner 按持有人查询强平历史。
func (s *LiquidationStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.LiquidationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []*LiquidationModel
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("liquidated_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.LiquidationRecord, 0, len(models))
	for _, model := range models {
		out = append(out, &domain.LiquidationRecord{
			PositionID:            model.PositionID,
			OwnerID:               model.OwnerID,
			Reason:                model.Reason,
			RealizedPnL:           model.RealizedPnL,
			Fee:                   model.Fee,
			InsuranceContribution: model.InsuranceContribution,
			LiquidatedAt:          model.LiquidatedAt,
		})
	}
	return out, nil
}
