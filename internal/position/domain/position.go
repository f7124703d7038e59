// 包 domain 持仓领域模型。
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	pricing "github.com/wyfcoding/optionsvenue/internal/pricing/domain"
)

var (
	ErrPositionNotFound = errors.New("position not found")
	ErrPositionClosed   = errors.New("position already closed")
	ErrInvalidSize      = errors.New("position size must be positive")
)

// PositionSide 持仓方向
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// PositionStatus 持仓状态
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// Position 持仓实体。引用一张期权合约的定价要素快照；
// EntryPrice 是开仓时定价模型的输出，不必等于挂牌权利金。
type Position struct {
	ID         string             `json:"id"`
	OptionID   string             `json:"option_id"`
	OwnerID    string             `json:"owner_id"`
	Underlying string             `json:"underlying"`
	Kind       pricing.OptionKind `json:"kind"`
	Strike     decimal.Decimal    `json:"strike"`
	ExpiresAt  time.Time          `json:"expires_at"`
	Side       PositionSide       `json:"side"`
	Size       decimal.Decimal    `json:"size"`
	// EntryPrice / CurrentPrice 均为单位价格
	EntryPrice   decimal.Decimal `json:"entry_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	// Collateral 卖方锁定的保证金，多头恒为零
	Collateral decimal.Decimal `json:"collateral"`
	Status     PositionStatus  `json:"status"`
	OpenedAt   time.Time       `json:"opened_at"`
	ClosedAt   *time.Time      `json:"closed_at,omitempty"`
}

// UnrealizedPnL 未实现盈亏 = (现价 − 开仓价) × 数量，空头取反。
func (p *Position) UnrealizedPnL() decimal.Decimal {
	pnl := p.CurrentPrice.Sub(p.EntryPrice).Mul(p.Size)
	if p.Side == PositionSideShort {
		return pnl.Neg()
	}
	return pnl
}

// MarketValue 持仓市值。
func (p *Position) MarketValue() decimal.Decimal {
	return p.CurrentPrice.Mul(p.Size)
}

// CostBasis 开仓成本。
func (p *Position) CostBasis() decimal.Decimal {
	return p.EntryPrice.Mul(p.Size)
}

// TimeToExpiry 剩余时间（年）。
func (p *Position) TimeToExpiry(now time.Time) float64 {
	if !now.Before(p.ExpiresAt) {
		return 0
	}
	return p.ExpiresAt.Sub(now).Hours() / 24 / 365
}

// Close 标记平仓。
func (p *Position) Close(closePrice decimal.Decimal, now time.Time) error {
	if p.Status == PositionStatusClosed {
		return ErrPositionClosed
	}
	p.CurrentPrice = closePrice.Truncate(8)
	p.Status = PositionStatusClosed
	p.ClosedAt = &now
	return nil
}

// Clone 返回持仓快照副本。
func (p *Position) Clone() *Position {
	copied := *p
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		copied.ClosedAt = &t
	}
	return &copied
}

// CollateralRequired 卖方保证金：看涨锁定名义价值的 20%，看跌锁定全额执行价名义。
// 名义价值按执行价计（strike × size）。
func CollateralRequired(kind pricing.OptionKind, strike, size decimal.Decimal) decimal.Decimal {
	notional := strike.Mul(size)
	if kind == pricing.OptionKindCall {
		return notional.Mul(decimal.NewFromFloat(0.2)).Truncate(8)
	}
	return notional.Truncate(8)
}

// Greeks 持仓敏感度。Theta 按日、Vega 按 1% 波动率、Rho 按 1% 利率。
type Greeks struct {
	Delta decimal.Decimal `json:"delta"`
	Gamma decimal.Decimal `json:"gamma"`
	Theta decimal.Decimal `json:"theta"`
	Vega  decimal.Decimal `json:"vega"`
	Rho   decimal.Decimal `json:"rho"`
}

// Add 累加。
func (g Greeks) Add(other Greeks) Greeks {
	return Greeks{
		Delta: g.Delta.Add(other.Delta),
		Gamma: g.Gamma.Add(other.Gamma),
		Theta: g.Theta.Add(other.Theta),
		Vega:  g.Vega.Add(other.Vega),
		Rho:   g.Rho.Add(other.Rho),
	}
}

// ScaleGreeks 按持仓数量与方向缩放单位 Greeks。
// Gamma 与 Vega 是幅度敏感度，空头不翻转符号；Delta/Theta/Rho 翻转。
func ScaleGreeks(raw *pricing.BlackScholesResult, side PositionSide, size decimal.Decimal) Greeks {
	sign := decimal.NewFromInt(1)
	if side == PositionSideShort {
		sign = decimal.NewFromInt(-1)
	}
	return Greeks{
		Delta: raw.Delta.Mul(size).Mul(sign),
		Gamma: raw.Gamma.Mul(size),
		Theta: raw.Theta.Mul(size).Mul(sign),
		Vega:  raw.Vega.Mul(size),
		Rho:   raw.Rho.Mul(size).Mul(sign),
	}
}
