package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	ivInitialGuess  = 0.5
	ivTolerance     = 1e-4
	ivMaxIterations = 100
	ivMinSigma      = 0.01
	ivMaxSigma      = 5.0
	ivMinVega       = 1e-4

	// DefaultVolatility 样本不足时历史波动率的缺省值。
	DefaultVolatility = 0.5
)

// ImpliedVolatility 由市场价格反解隐含波动率。
// Newton-Raphson 迭代：初值 0.5，容差 1e-4，最多 100 轮，σ 每轮夹取到 [0.01, 5.0]；
// vega 过小（深度实值/虚值或临近到期）时无法收敛，提前返回错误。
func ImpliedVolatility(kind OptionKind, marketPrice, s, k, t, r float64) (float64, error) {
	if s <= 0 {
		return 0, ErrInvalidSpot
	}
	if k <= 0 {
		return 0, ErrInvalidStrike
	}
	if t <= 0 || marketPrice <= 0 {
		return 0, ErrIVNotConverged
	}

	sigma := ivInitialGuess
	for i := 0; i < ivMaxIterations; i++ {
		result, err := CalculateBlackScholes(kind, BlackScholesInput{S: s, K: k, T: t, R: r, Sigma: sigma})
		if err != nil {
			return 0, err
		}

		modelPrice, _ := result.Price.Float64()
		diff := modelPrice - marketPrice
		if math.Abs(diff) < ivTolerance {
			return sigma, nil
		}

		// 迭代步长使用未缩放的 vega（每单位波动率）
		d1 := (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * math.Sqrt(t))
		vega := s * math.Sqrt(t) * normPDF(d1)
		if vega < ivMinVega {
			return 0, ErrIVNotConverged
		}

		sigma -= diff / vega
		if sigma < ivMinSigma {
			sigma = ivMinSigma
		}
		if sigma > ivMaxSigma {
			sigma = ivMaxSigma
		}
	}

	return 0, ErrIVNotConverged
}

// HistoricalVolatility 对数收益率标准差年化。
// periodsPerYear 为样本频率（日线 365、小时线 8760 等）；样本不足两个时返回缺省值 0.5。
func HistoricalVolatility(prices []decimal.Decimal, periodsPerYear float64) float64 {
	if len(prices) < 2 {
		return DefaultVolatility
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, _ := prices[i-1].Float64()
		curr, _ := prices[i].Float64()
		if prev <= 0 || curr <= 0 {
			continue
		}
		returns = append(returns, math.Log(curr/prev))
	}
	if len(returns) < 2 {
		return DefaultVolatility
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance) * math.Sqrt(periodsPerYear)
}
