package mysql

import (
	"context"

	"github.com/wyfcoding/optionsvenue/internal/contract/domain"
	"gorm.io/gorm"
)

// optionStore 期权仓储实现
type optionStore struct {
	db *gorm.DB
}

// NewOptionStore 创建并返回一个新的 optionStore 实例。
func NewOptionStore(db *gorm.DB) domain.OptionStore {
	return &optionStore{db: db}
}

// UpsertOption 保存合约，按 option_id 幂等覆盖。
func (s *optionStore) UpsertOption(ctx context.Context, option *domain.Option) error {
	model := toOptionModel(option)

	var exist OptionModel
	if err := s.db.WithContext(ctx).Where("option_id = ?", option.ID).First(&exist).Error; err == nil {
		model.ID = exist.ID
		model.CreatedAt = exist.CreatedAt
	}
	return s.db.WithContext(ctx).Save(model).Error
}

// RecordTrade 追加成交流水。
func (s *optionStore) RecordTrade(ctx context.Context, trade *domain.TradeRecord) error {
	return s.db.WithContext(ctx).Create(&TradeModel{
		OptionID: trade.OptionID,
		Buyer:    trade.Buyer,
		Seller:   trade.Seller,
		Premium:  trade.Premium,
		Size:     trade.Size,
		TradedAt: trade.TradedAt,
	}).Error
}

// LoadAllOptions 启动回放：加载全部合约。
func (s *optionStore) LoadAllOptions(ctx context.Context) ([]*domain.Option, error) {
	var models []*OptionModel
	if err := s.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Option, 0, len(models))
	for _, model := range models {
		out = append(out, toOptionEntity(model))
	}
	return out, nil
}
