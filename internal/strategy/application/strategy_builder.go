package application

import (
	"time"

	"github.com/shopspring/decimal"
	positiondomain "github.com/wyfcoding/optionsvenue/internal/position/domain"
	pricingdomain "github.com/wyfcoding/optionsvenue/internal/pricing/domain"
	"github.com/wyfcoding/optionsvenue/internal/strategy/domain"
)

// BuildParams 组合构建输入：各腿共用同一 spot、波动率与到期。
type BuildParams struct {
	Spot         decimal.Decimal
	Volatility   float64
	RiskFreeRate float64
	ExpiresAt    time.Time
	Quantity     decimal.Decimal
}

// StrategyBuilder 基于定价模型的无状态组合层。
type StrategyBuilder struct{}

func NewStrategyBuilder() *StrategyBuilder {
	return &StrategyBuilder{}
}

// priceLeg 对单腿独立定价。
func (b *StrategyBuilder) priceLeg(kind pricingdomain.OptionKind, strike decimal.Decimal, params BuildParams, now time.Time) (decimal.Decimal, error) {
	t := params.ExpiresAt.Sub(now).Hours() / (24 * 365)
	spot, _ := params.Spot.Float64()
	k, _ := strike.Float64()
	result, err := pricingdomain.CalculateBlackScholes(kind, pricingdomain.BlackScholesInput{
		S:     spot,
		K:     k,
		T:     t,
		R:     params.RiskFreeRate,
		Sigma: params.Volatility,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return result.Price, nil
}

type legSpec struct {
	kind      pricingdomain.OptionKind
	strike    decimal.Decimal
	direction domain.LegDirection
}

// build 对每腿定价后组装策略，并用腿收益代数推导净支出、极值与盈亏平衡点。
func (b *StrategyBuilder) build(strategyType domain.StrategyType, specs []legSpec, params BuildParams) (*domain.Strategy, error) {
	if !params.Spot.IsPositive() {
		return nil, pricingdomain.ErrInvalidSpot
	}
	quantity := params.Quantity
	if !quantity.IsPositive() {
		quantity = decimal.NewFromInt(1)
	}
	now := time.Now()
	if !params.ExpiresAt.After(now) {
		return nil, domain.ErrInvalidLeg
	}

	legs := make([]domain.Leg, 0, len(specs))
	netDebit := decimal.Zero
	for _, spec := range specs {
		premium, err := b.priceLeg(spec.kind, spec.strike, params, now)
		if err != nil {
			return nil, err
		}
		leg := domain.Leg{
			Kind:      spec.kind,
			Strike:    spec.strike,
			Direction: spec.direction,
			Quantity:  quantity,
			Premium:   premium.Truncate(8),
		}
		legs = append(legs, leg)
		cost := premium.Mul(quantity)
		if spec.direction == domain.LegShort {
			cost = cost.Neg()
		}
		netDebit = netDebit.Add(cost)
	}

	strategy := &domain.Strategy{
		Type:      strategyType,
		Legs:      legs,
		ExpiresAt: params.ExpiresAt,
		NetDebit:  netDebit.Truncate(8),
		CreatedAt: now,
	}
	b.deriveExtremes(strategy)
	strategy.Breakevens = strategy.ComputeBreakevens()
	return strategy, nil
}

// deriveExtremes 到期收益为分段线性，折点全部在行权价上。
// 极值取折点、零点与右侧远端的收益；右尾斜率为正则收益无上限。
func (b *StrategyBuilder) deriveExtremes(strategy *domain.Strategy) {
	rightSlope := decimal.Zero
	maxStrike := decimal.Zero
	points := []decimal.Decimal{decimal.Zero}
	for i := range strategy.Legs {
		leg := &strategy.Legs[i]
		points = append(points, leg.Strike)
		if leg.Strike.GreaterThan(maxStrike) {
			maxStrike = leg.Strike
		}
		if leg.Kind == pricingdomain.OptionKindCall {
			slope := leg.Quantity
			if leg.Direction == domain.LegShort {
				slope = slope.Neg()
			}
			rightSlope = rightSlope.Add(slope)
		}
	}
	points = append(points, maxStrike.Mul(decimal.NewFromInt(10)))

	first := true
	var minPayoff, maxPayoff decimal.Decimal
	for _, p := range points {
		payoff := strategy.PayoffAt(p)
		if first || payoff.LessThan(minPayoff) {
			minPayoff = payoff
		}
		if first || payoff.GreaterThan(maxPayoff) {
			maxPayoff = payoff
		}
		first = false
	}
	strategy.MaxLoss = minPayoff.Neg().Truncate(8)
	if rightSlope.IsPositive() {
		strategy.Unlimited = true
		strategy.MaxProfit = decimal.Zero
	} else {
		strategy.MaxProfit = maxPayoff.Truncate(8)
	}
}

// BullCallSpread 牛市看涨价差：买入低行权价 call，卖出高行权价 call。
func (b *StrategyBuilder) BullCallSpread(params BuildParams, lowerStrike, upperStrike decimal.Decimal) (*domain.Strategy, error) {
	if !lowerStrike.IsPositive() || !upperStrike.GreaterThan(lowerStrike) {
		return nil, domain.ErrInvalidStrikes
	}
	return b.build(domain.StrategyBullCallSpread, []legSpec{
		{pricingdomain.OptionKindCall, lowerStrike, domain.LegLong},
		{pricingdomain.OptionKindCall, upperStrike, domain.LegShort},
	}, params)
}

// BearPutSpread 熊市看跌价差：买入高行权价 put，卖出低行权价 put。
func (b *StrategyBuilder) BearPutSpread(params BuildParams, lowerStrike, upperStrike decimal.Decimal) (*domain.Strategy, error) {
	if !lowerStrike.IsPositive() || !upperStrike.GreaterThan(lowerStrike) {
		return nil, domain.ErrInvalidStrikes
	}
	return b.build(domain.StrategyBearPutSpread, []legSpec{
		{pricingdomain.OptionKindPut, upperStrike, domain.LegLong},
		{pricingdomain.OptionKindPut, lowerStrike, domain.LegShort},
	}, params)
}

// Straddle 跨式：同行权价买入 call 与 put。
func (b *StrategyBuilder) Straddle(params BuildParams, strike decimal.Decimal) (*domain.Strategy, error) {
	if !strike.IsPositive() {
		return nil, domain.ErrInvalidStrikes
	}
	return b.build(domain.StrategyStraddle, []legSpec{
		{pricingdomain.OptionKindCall, strike, domain.LegLong},
		{pricingdomain.OptionKindPut, strike, domain.LegLong},
	}, params)
}

// Strangle 宽跨式：买入低行权价 put 与高行权价 call。
func (b *StrategyBuilder) Strangle(params BuildParams, putStrike, callStrike decimal.Decimal) (*domain.Strategy, error) {
	if !putStrike.IsPositive() || !callStrike.GreaterThan(putStrike) {
		return nil, domain.ErrInvalidStrikes
	}
	return b.build(domain.StrategyStrangle, []legSpec{
		{pricingdomain.OptionKindPut, putStrike, domain.LegLong},
		{pricingdomain.OptionKindCall, callStrike, domain.LegLong},
	}, params)
}

// IronCondor 铁鹰：卖出 put 价差 + 卖出 call 价差，行权价 k1<k2<k3<k4。
func (b *StrategyBuilder) IronCondor(params BuildParams, k1, k2, k3, k4 decimal.Decimal) (*domain.Strategy, error) {
	if !k1.IsPositive() || !k2.GreaterThan(k1) || !k3.GreaterThan(k2) || !k4.GreaterThan(k3) {
		return nil, domain.ErrInvalidStrikes
	}
	return b.build(domain.StrategyIronCondor, []legSpec{
		{pricingdomain.OptionKindPut, k1, domain.LegLong},
		{pricingdomain.OptionKindPut, k2, domain.LegShort},
		{pricingdomain.OptionKindCall, k3, domain.LegShort},
		{pricingdomain.OptionKindCall, k4, domain.LegLong},
	}, params)
}

// Butterfly 蝶式（call）：买入两翼、卖出两份中腰，要求中腰等距。
func (b *StrategyBuilder) Butterfly(params BuildParams, lower, middle, upper decimal.Decimal) (*domain.Strategy, error) {
	if !lower.IsPositive() || !middle.GreaterThan(lower) || !upper.GreaterThan(middle) {
		return nil, domain.ErrInvalidStrikes
	}
	if !middle.Sub(lower).Equal(upper.Sub(middle)) {
		return nil, domain.ErrInvalidStrikes
	}
	strategy, err := b.build(domain.StrategyButterfly, []legSpec{
		{pricingdomain.OptionKindCall, lower, domain.LegLong},
		{pricingdomain.OptionKindCall, middle, domain.LegShort},
		{pricingdomain.OptionKindCall, middle, domain.LegShort},
		{pricingdomain.OptionKindCall, upper, domain.LegLong},
	}, params)
	return strategy, err
}

// LegPnL 单腿盈亏明细
type LegPnL struct {
	Kind         pricingdomain.OptionKind `json:"kind"`
	Strike       decimal.Decimal          `json:"strike"`
	Direction    domain.LegDirection      `json:"direction"`
	EntryPremium decimal.Decimal          `json:"entry_premium"`
	CurrentPrice decimal.Decimal          `json:"current_price"`
	PnL          decimal.Decimal          `json:"pnl"`
}

// StrategyPnL 组合盯市结果
type StrategyPnL struct {
	Legs         []LegPnL              `json:"legs"`
	CurrentValue decimal.Decimal       `json:"current_value"`
	TotalPnL     decimal.Decimal       `json:"total_pnl"`
	Greeks       positiondomain.Greeks `json:"greeks"`
	MarkedAt     time.Time             `json:"marked_at"`
}

// GetStrategyPnL 以当前 spot 与剩余期限对每腿重新定价并汇总 Greeks。
// Greeks 缩放规则与持仓侧一致：空头翻转 Delta/Theta/Rho，不翻转 Gamma/Vega。
func (b *StrategyBuilder) GetStrategyPnL(strategy *domain.Strategy, spot decimal.Decimal, volatility, riskFreeRate float64) (*StrategyPnL, error) {
	if !spot.IsPositive() {
		return nil, pricingdomain.ErrInvalidSpot
	}
	now := time.Now()
	t := strategy.ExpiresAt.Sub(now).Hours() / (24 * 365)
	spotF, _ := spot.Float64()

	result := &StrategyPnL{
		Legs:         make([]LegPnL, 0, len(strategy.Legs)),
		CurrentValue: decimal.Zero,
		TotalPnL:     decimal.Zero,
		MarkedAt:     now,
	}
	for i := range strategy.Legs {
		leg := &strategy.Legs[i]
		strikeF, _ := leg.Strike.Float64()
		priced, err := pricingdomain.CalculateBlackScholes(leg.Kind, pricingdomain.BlackScholesInput{
			S:     spotF,
			K:     strikeF,
			T:     t,
			R:     riskFreeRate,
			Sigma: volatility,
		})
		if err != nil {
			return nil, err
		}

		side := positiondomain.PositionSideLong
		sign := decimal.NewFromInt(1)
		if leg.Direction == domain.LegShort {
			side = positiondomain.PositionSideShort
			sign = decimal.NewFromInt(-1)
		}
		pnl := priced.Price.Sub(leg.Premium).Mul(leg.Quantity).Mul(sign).Truncate(8)
		result.Legs = append(result.Legs, LegPnL{
			Kind:         leg.Kind,
			Strike:       leg.Strike,
			Direction:    leg.Direction,
			EntryPremium: leg.Premium,
			CurrentPrice: priced.Price.Truncate(8),
			PnL:          pnl,
		})
		result.CurrentValue = result.CurrentValue.Add(priced.Price.Mul(leg.Quantity).Mul(sign))
		result.TotalPnL = result.TotalPnL.Add(pnl)
		result.Greeks = result.Greeks.Add(positiondomain.ScaleGreeks(priced, side, leg.Quantity))
	}
	result.CurrentValue = result.CurrentValue.Truncate(8)
	result.TotalPnL = result.TotalPnL.Truncate(8)
	return result, nil
}
