package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/optionsvenue/internal/contract/domain"
	"gorm.io/gorm"
)

// OptionModel 期权合约写模型。
type OptionModel struct {
	gorm.Model
	OptionID        string          `gorm:"column:option_id;type:varchar(32);uniqueIndex;not null;comment:合约ID"`
	IssuerID        string          `gorm:"column:issuer_id;type:varchar(64);index;not null;comment:发行方"`
	HolderID        string          `gorm:"column:holder_id;type:varchar(64);index;comment:持有方"`
	Underlying      string          `gorm:"column:underlying;type:varchar(20);index;not null;comment:标的"`
	OptionType      string          `gorm:"column:option_type;type:varchar(10);not null;comment:类型"`
	Strike          decimal.Decimal `gorm:"column:strike;type:decimal(32,8);not null;comment:行权价"`
	Premium         decimal.Decimal `gorm:"column:premium;type:decimal(32,8);not null;comment:权利金"`
	Amount          decimal.Decimal `gorm:"column:amount;type:decimal(36,18);not null;comment:数量"`
	Status          string          `gorm:"column:status;type:varchar(16);index;not null;comment:状态"`
	SettlementPrice decimal.Decimal `gorm:"column:settlement_price;type:decimal(32,8);default:0;comment:结算价"`
	ListedAt        time.Time       `gorm:"column:listed_at;not null;comment:挂牌时间"`
	ExpiresAt       time.Time       `gorm:"column:expires_at;index;not null;comment:到期时间"`
	ExercisedAt     *time.Time      `gorm:"column:exercised_at;comment:行权时间"`
}

func (OptionModel) TableName() string { return "options" }

// TradeModel 成交流水
type TradeModel struct {
	gorm.Model
	OptionID string          `gorm:"column:option_id;type:varchar(32);index;not null;comment:合约ID"`
	Buyer    string          `gorm:"column:buyer;type:varchar(64);index;not null;comment:买方"`
	Seller   string          `gorm:"column:seller;type:varchar(64);not null;comment:卖方"`
	Premium  decimal.Decimal `gorm:"column:premium;type:decimal(32,8);not null;comment:权利金"`
	Size     decimal.Decimal `gorm:"column:size;type:decimal(36,18);not null;comment:数量"`
	TradedAt time.Time       `gorm:"column:traded_at;not null;comment:成交时间"`
}

func (TradeModel) TableName() string { return "option_trades" }

func toOptionModel(option *domain.Option) *OptionModel {
	if option == nil {
		return nil
	}
	return &OptionModel{
		OptionID:        option.ID,
		IssuerID:        option.IssuerID,
		HolderID:        option.HolderID,
		Underlying:      option.Underlying,
		OptionType:      string(option.OptionType),
		Strike:          option.Strike,
		Premium:         option.Premium,
		Amount:          option.Amount,
		Status:          string(option.Status),
		SettlementPrice: option.SettlementPrice,
		ListedAt:        option.CreatedAt,
		ExpiresAt:       option.ExpiresAt,
		ExercisedAt:     option.ExercisedAt,
	}
}

func toOptionEntity(model *OptionModel) *domain.Option {
	if model == nil {
		return nil
	}
	return &domain.Option{
		ID:              model.OptionID,
		IssuerID:        model.IssuerID,
		HolderID:        model.HolderID,
		Underlying:      model.Underlying,
		OptionType:      domain.OptionType(model.OptionType),
		Strike:          model.Strike,
		Premium:         model.Premium,
		Amount:          model.Amount,
		Status:          domain.OptionStatus(model.Status),
		SettlementPrice: model.SettlementPrice,
		CreatedAt:       model.ListedAt,
		ExpiresAt:       model.ExpiresAt,
		ExercisedAt:     model.ExercisedAt,
	}
}
