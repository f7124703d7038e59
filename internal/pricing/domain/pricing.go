// 包 domain 期权定价领域模型：Black-Scholes 解析定价、隐含波动率、历史波动率。
// 本包为纯函数库，无状态；货币字段对外以 decimal 表达，内部超越函数计算使用 float64。
package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSpot        = errors.New("spot price must be positive")
	ErrInvalidStrike      = errors.New("strike price must be positive")
	ErrInvalidVolatility  = errors.New("volatility must be positive")
	ErrIVNotConverged     = errors.New("implied volatility did not converge")
	ErrInsufficientPrices = errors.New("insufficient price samples")
)

// OptionKind 期权类型
type OptionKind string

const (
	OptionKindCall OptionKind = "CALL"
	OptionKindPut  OptionKind = "PUT"
)

// Valid 校验期权类型取值。
func (k OptionKind) Valid() bool {
	return k == OptionKindCall || k == OptionKindPut
}

// IntrinsicValue 内在价值：立即行权时的价值，下限为 0。
func IntrinsicValue(kind OptionKind, spot, strike decimal.Decimal) decimal.Decimal {
	var intrinsic decimal.Decimal
	if kind == OptionKindCall {
		intrinsic = spot.Sub(strike)
	} else {
		intrinsic = strike.Sub(spot)
	}
	if intrinsic.IsNegative() {
		return decimal.Zero
	}
	return intrinsic
}

// Moneyness 价值状态（ITM/ATM/OTM），±0.5% 视为 ATM。
func Moneyness(kind OptionKind, spot, strike decimal.Decimal) string {
	if strike.IsZero() {
		return "ATM"
	}
	ratio := spot.Div(strike)
	lower := decimal.NewFromFloat(0.995)
	upper := decimal.NewFromFloat(1.005)
	if ratio.GreaterThanOrEqual(lower) && ratio.LessThanOrEqual(upper) {
		return "ATM"
	}
	inTheMoney := ratio.GreaterThan(upper)
	if kind == OptionKindPut {
		inTheMoney = ratio.LessThan(lower)
	}
	if inTheMoney {
		return "ITM"
	}
	return "OTM"
}
