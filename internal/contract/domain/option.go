// 包 domain 期权合约领域模型：合约实体、挂牌、生命周期与持久化协作方。
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	pricing "github.com/wyfcoding/optionsvenue/internal/pricing/domain"
)

// OptionType 期权类型
type OptionType string

const (
	OptionTypeCall OptionType = "CALL"
	OptionTypePut  OptionType = "PUT"
)

// Kind 映射到定价库的期权类型。
func (t OptionType) Kind() pricing.OptionKind {
	if t == OptionTypePut {
		return pricing.OptionKindPut
	}
	return pricing.OptionKindCall
}

// OptionStatus 合约状态。
// 生命周期：OPEN → FILLED（指定 holder）→ EXERCISED | EXPIRED | CANCELLED，
// 三个终态均不可再迁移；EXERCISED 仅可由 FILLED 到达。
type OptionStatus string

const (
	OptionStatusOpen      OptionStatus = "OPEN"
	OptionStatusFilled    OptionStatus = "FILLED"
	OptionStatusExercised OptionStatus = "EXERCISED"
	OptionStatusExpired   OptionStatus = "EXPIRED"
	OptionStatusCancelled OptionStatus = "CANCELLED"
)

// Terminal 是否终态。
func (s OptionStatus) Terminal() bool {
	return s == OptionStatusExercised || s == OptionStatusExpired || s == OptionStatusCancelled
}

// Option 期权合约实体。
// 金额字段以 decimal 定点存储：USD 计价 8 位小数、标的数量 18 位小数，
// 结算赔付沿用同一表示，不引入二进制浮点舍入。
type Option struct {
	ID         string `json:"id"`
	IssuerID   string `json:"issuer_id"`
	// HolderID 买方，成交前为空；整个生命周期内至多被赋值一次
	HolderID   string          `json:"holder_id,omitempty"`
	Underlying string          `json:"underlying"`
	OptionType OptionType      `json:"option_type"`
	Strike     decimal.Decimal `json:"strike"`
	Premium    decimal.Decimal `json:"premium"`
	Amount     decimal.Decimal `json:"amount"`
	Status     OptionStatus    `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
	// 结算信息，行权后填充
	SettlementPrice decimal.Decimal `json:"settlement_price"`
	ExercisedAt     *time.Time      `json:"exercised_at,omitempty"`
}

// NewOption 创建 OPEN 状态的新合约，金额字段按定点精度截断。
func NewOption(id, issuerID, underlying string, optionType OptionType, strike, premium, amount decimal.Decimal, expiresAt time.Time) (*Option, error) {
	if id == "" || issuerID == "" || underlying == "" {
		return nil, ErrInvalidParams
	}
	if optionType != OptionTypeCall && optionType != OptionTypePut {
		return nil, ErrInvalidParams
	}
	if !strike.IsPositive() || !premium.IsPositive() || !amount.IsPositive() {
		return nil, ErrInvalidParams
	}

	return &Option{
		ID:         id,
		IssuerID:   issuerID,
		Underlying: underlying,
		OptionType: optionType,
		Strike:     strike.Truncate(8),
		Premium:    premium.Truncate(8),
		Amount:     amount.Truncate(18),
		Status:     OptionStatusOpen,
		CreatedAt:  time.Now(),
		ExpiresAt:  expiresAt,
	}, nil
}

// IsExpired 是否已过到期时间。
func (o *Option) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// Fill 指定买方。仅 OPEN 且无 holder 时允许，holder 至多赋值一次。
func (o *Option) Fill(buyerID string) error {
	if o.Status != OptionStatusOpen {
		if o.Status == OptionStatusFilled {
			return ErrAlreadyClaimed
		}
		return ErrInvalidState
	}
	if o.HolderID != "" {
		return ErrAlreadyClaimed
	}
	if buyerID == "" || buyerID == o.IssuerID {
		return ErrInvalidParams
	}
	o.HolderID = buyerID
	o.Status = OptionStatusFilled
	return nil
}

// Exercise 行权：仅 holder、仅 FILLED、仅到期后、仅一次。
func (o *Option) Exercise(callerID string, spot decimal.Decimal, now time.Time) error {
	if o.Status != OptionStatusFilled {
		return ErrInvalidState
	}
	if callerID != o.HolderID {
		return ErrUnauthorized
	}
	if !o.IsExpired(now) {
		return ErrNotYetExpired
	}
	o.Status = OptionStatusExercised
	o.SettlementPrice = spot.Truncate(8)
	o.ExercisedAt = &now
	return nil
}

// Expire 过期。仅 OPEN/FILLED 且已过到期时间时允许。
func (o *Option) Expire(now time.Time) error {
	if o.Status.Terminal() {
		return ErrInvalidState
	}
	if !o.IsExpired(now) {
		return ErrNotYetExpired
	}
	o.Status = OptionStatusExpired
	return nil
}

// Cancel 撤牌：仅发行方、仅 OPEN 且未售出。
func (o *Option) Cancel(callerID string) error {
	if callerID != o.IssuerID {
		return ErrUnauthorized
	}
	if o.Status != OptionStatusOpen || o.HolderID != "" {
		return ErrInvalidState
	}
	o.Status = OptionStatusCancelled
	return nil
}

// IntrinsicValue 单位内在价值。
func (o *Option) IntrinsicValue(spot decimal.Decimal) decimal.Decimal {
	return pricing.IntrinsicValue(o.OptionType.Kind(), spot, o.Strike)
}

// Payout 结算赔付 = max(0, 价差) × 数量，全程定点运算。
func (o *Option) Payout(spot decimal.Decimal) decimal.Decimal {
	return o.IntrinsicValue(spot).Mul(o.Amount)
}

// TimeToExpiry 剩余时间（年）。
func (o *Option) TimeToExpiry(now time.Time) float64 {
	if o.IsExpired(now) {
		return 0
	}
	return o.ExpiresAt.Sub(now).Hours() / 24 / 365
}

// Clone 返回合约快照副本。
func (o *Option) Clone() *Option {
	copied := *o
	if o.ExercisedAt != nil {
		t := *o.ExercisedAt
		copied.ExercisedAt = &t
	}
	return &copied
}

// OptionStore 期权持久化协作方。
type OptionStore interface {
	UpsertOption(ctx context.Context, option *Option) error
	RecordTrade(ctx context.Context, trade *TradeRecord) error
	LoadAllOptions(ctx context.Context) ([]*Option, error)
}

// TradeRecord 成交记录
type TradeRecord struct {
	OptionID string          `json:"option_id"`
	Buyer    string          `json:"buyer"`
	Seller   string          `json:"seller"`
	Premium  decimal.Decimal `json:"premium"`
	Size     decimal.Decimal `json:"size"`
	TradedAt time.Time       `json:"traded_at"`
}
