// 包 domain 多腿组合策略的值对象与收益代数。
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	pricingdomain "github.com/wyfcoding/optionsvenue/internal/pricing/domain"
)

var (
	ErrInvalidLeg        = errors.New("invalid strategy leg")
	ErrInvalidStrikes    = errors.New("strikes do not form a valid shape")
	ErrUnknownStrategy   = errors.New("unknown strategy type")
	ErrInvalidSampleSpan = errors.New("sample range must be in (0, 1]")
)

// StrategyType 策略类型
type StrategyType string

const (
	StrategyBullCallSpread StrategyType = "BULL_CALL_SPREAD"
	StrategyBearPutSpread  StrategyType = "BEAR_PUT_SPREAD"
	StrategyStraddle       StrategyType = "STRADDLE"
	StrategyStrangle       StrategyType = "STRANGLE"
	StrategyIronCondor     StrategyType = "IRON_CONDOR"
	StrategyButterfly      StrategyType = "BUTTERFLY"
)

// LegDirection 腿方向
type LegDirection string

const (
	LegLong  LegDirection = "LONG"
	LegShort LegDirection = "SHORT"
)

// Leg 策略单腿：到期时的收益为 direction·(intrinsic − premium)·quantity。
type Leg struct {
	Kind      pricingdomain.OptionKind `json:"kind"`
	Strike    decimal.Decimal          `json:"strike"`
	Direction LegDirection             `json:"direction"`
	Quantity  decimal.Decimal          `json:"quantity"`
	Premium   decimal.Decimal          `json:"premium"`
}

// sign 多头 +1，空头 -1。
func (l *Leg) sign() decimal.Decimal {
	if l.Direction == LegShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// PayoffAt 到期日 spot 价格下该腿的损益。
func (l *Leg) PayoffAt(spot decimal.Decimal) decimal.Decimal {
	intrinsic := pricingdomain.IntrinsicValue(l.Kind, spot, l.Strike)
	return intrinsic.Sub(l.Premium).Mul(l.Quantity).Mul(l.sign())
}

// Strategy 构建完成后不可变；仅收益与盈亏可针对新 spot 重算。
type Strategy struct {
	Type StrategyType `json:"type"`
	Legs []Leg        `json:"legs"`
	// ExpiresAt 所有腿共享同一到期
	ExpiresAt time.Time `json:"expires_at"`
	// NetDebit 净权利金支出，负值表示净收入
	NetDebit   decimal.Decimal   `json:"net_debit"`
	MaxProfit  decimal.Decimal   `json:"max_profit"`
	MaxLoss    decimal.Decimal   `json:"max_loss"`
	Unlimited  bool              `json:"unlimited_profit"`
	Breakevens []decimal.Decimal `json:"breakevens"`
	CreatedAt  time.Time         `json:"created_at"`
}

// PayoffAt 到期日 spot 价格下整个组合的损益。
func (s *Strategy) PayoffAt(spot decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for i := range s.Legs {
		total = total.Add(s.Legs[i].PayoffAt(spot))
	}
	return total
}

// ComputeBreakevens 在分段线性收益曲线上解零点。
// 收益曲线的折点全部落在各腿行权价上，只需在相邻折点区间内做线性插值。
func (s *Strategy) ComputeBreakevens() []decimal.Decimal {
	if len(s.Legs) == 0 {
		return nil
	}
	// 折点：0、各行权价、以及远高于最大行权价的一点（覆盖最右侧线性段）
	strikes := make([]decimal.Decimal, 0, len(s.Legs)+2)
	strikes = append(strikes, decimal.Zero)
	maxStrike := decimal.Zero
	for i := range s.Legs {
		strikes = append(strikes, s.Legs[i].Strike)
		if s.Legs[i].Strike.GreaterThan(maxStrike) {
			maxStrike = s.Legs[i].Strike
		}
	}
	strikes = append(strikes, maxStrike.Mul(decimal.NewFromInt(10)))
	sortDecimals(strikes)

	var roots []decimal.Decimal
	for i := 0; i+1 < len(strikes); i++ {
		lo, hi := strikes[i], strikes[i+1]
		if lo.Equal(hi) {
			continue
		}
		plo, phi := s.PayoffAt(lo), s.PayoffAt(hi)
		if plo.IsZero() {
			roots = appendRoot(roots, lo)
			continue
		}
		if plo.Sign()*phi.Sign() < 0 {
			// 线性段内插值：x = lo + (hi-lo)·plo/(plo-phi)
			x := lo.Add(hi.Sub(lo).Mul(plo).Div(plo.Sub(phi)))
			roots = appendRoot(roots, x.Truncate(8))
		}
	}
	// 末端点单独检查
	last := strikes[len(strikes)-1]
	if s.PayoffAt(last).IsZero() {
		roots = appendRoot(roots, last)
	}
	return roots
}

func appendRoot(roots []decimal.Decimal, x decimal.Decimal) []decimal.Decimal {
	for _, r := range roots {
		if r.Sub(x).Abs().LessThan(decimal.New(1, -6)) {
			return roots
		}
	}
	return append(roots, x)
}

func sortDecimals(xs []decimal.Decimal) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j].LessThan(xs[j-1]); j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

// PayoffPoint 收益曲线采样点
type PayoffPoint struct {
	Spot   decimal.Decimal `json:"spot"`
	Payoff decimal.Decimal `json:"payoff"`
}

// PayoffCurve 收益曲线。MinPayoff/MaxPayoff 为采样域内的极值，
// 是对真实极值的近似而非精确解。
type PayoffCurve struct {
	Points    []PayoffPoint   `json:"points"`
	MinPayoff decimal.Decimal `json:"min_payoff"`
	MaxPayoff decimal.Decimal `json:"max_payoff"`
}

// SamplePayoff 在 spot·(1±span) 区间均匀采样 101 个点。
func (s *Strategy) SamplePayoff(spot decimal.Decimal, span decimal.Decimal) (*PayoffCurve, error) {
	if !span.IsPositive() || span.GreaterThan(decimal.NewFromInt(1)) {
		return nil, ErrInvalidSampleSpan
	}
	const samples = 101
	lo := spot.Mul(decimal.NewFromInt(1).Sub(span))
	hi := spot.Mul(decimal.NewFromInt(1).Add(span))
	step := hi.Sub(lo).Div(decimal.NewFromInt(samples - 1))

	curve := &PayoffCurve{Points: make([]PayoffPoint, 0, samples)}
	for i := 0; i < samples; i++ {
		x := lo.Add(step.Mul(decimal.NewFromInt(int64(i))))
		p := s.PayoffAt(x)
		if i == 0 || p.LessThan(curve.MinPayoff) {
			curve.MinPayoff = p
		}
		if i == 0 || p.GreaterThan(curve.MaxPayoff) {
			curve.MaxPayoff = p
		}
		curve.Points = append(curve.Points, PayoffPoint{Spot: x.Truncate(8), Payoff: p.Truncate(8)})
	}
	return curve, nil
}
