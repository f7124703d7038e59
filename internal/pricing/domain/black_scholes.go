package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// BlackScholesInput Black-Scholes 模型输入
type BlackScholesInput struct {
	S     float64 // 标的资产价格
	K     float64 // 执行价格
	T     float64 // 到期时间 (年)
	R     float64 // 无风险利率
	Sigma float64 // 年化波动率
}

// BlackScholesResult Black-Scholes 模型输出。
// Theta 按日、Vega 按 1% 波动率、Rho 按 1% 利率报价，与调用方无关。
type BlackScholesResult struct {
	Price     decimal.Decimal
	Delta     decimal.Decimal
	Gamma     decimal.Decimal
	Theta     decimal.Decimal
	Vega      decimal.Decimal
	Rho       decimal.Decimal
	Breakeven decimal.Decimal
}

// CalculateBlackScholes 计算 Black-Scholes 价格和 Greeks。
// T <= 0 时退化为内在价值：delta 按价值状态取 ±1/0，其余 Greeks 为 0。
func CalculateBlackScholes(kind OptionKind, input BlackScholesInput) (*BlackScholesResult, error) {
	if input.S <= 0 {
		return nil, ErrInvalidSpot
	}
	if input.K <= 0 {
		return nil, ErrInvalidStrike
	}

	if input.T <= 0 {
		return expiredResult(kind, input), nil
	}

	if input.Sigma <= 0 {
		return nil, ErrInvalidVolatility
	}

	sqrtT := math.Sqrt(input.T)
	d1 := (math.Log(input.S/input.K) + (input.R+0.5*input.Sigma*input.Sigma)*input.T) / (input.Sigma * sqrtT)
	d2 := d1 - input.Sigma*sqrtT

	discount := math.Exp(-input.R * input.T)

	var price, delta, thetaYear, rho float64
	gamma := normPDF(d1) / (input.S * input.Sigma * sqrtT)
	vega := input.S * sqrtT * normPDF(d1)

	if kind == OptionKindCall {
		price = input.S*normCDF(d1) - input.K*discount*normCDF(d2)
		delta = normCDF(d1)
		thetaYear = -input.S*normPDF(d1)*input.Sigma/(2*sqrtT) - input.R*input.K*discount*normCDF(d2)
		rho = input.K * input.T * discount * normCDF(d2)
	} else {
		price = input.K*discount*normCDF(-d2) - input.S*normCDF(-d1)
		delta = normCDF(d1) - 1
		thetaYear = -input.S*normPDF(d1)*input.Sigma/(2*sqrtT) + input.R*input.K*discount*normCDF(-d2)
		rho = -input.K * input.T * discount * normCDF(-d2)
	}

	if price < 0 {
		price = 0
	}

	return &BlackScholesResult{
		Price:     decimal.NewFromFloat(price),
		Delta:     decimal.NewFromFloat(delta),
		Gamma:     decimal.NewFromFloat(gamma),
		Theta:     decimal.NewFromFloat(thetaYear / 365),
		Vega:      decimal.NewFromFloat(vega / 100),
		Rho:       decimal.NewFromFloat(rho / 100),
		Breakeven: breakeven(kind, input.K, price),
	}, nil
}

// expiredResult 到期退化分支。
func expiredResult(kind OptionKind, input BlackScholesInput) *BlackScholesResult {
	spot := decimal.NewFromFloat(input.S)
	strike := decimal.NewFromFloat(input.K)
	intrinsic := IntrinsicValue(kind, spot, strike)

	delta := decimal.Zero
	if intrinsic.IsPositive() {
		if kind == OptionKindCall {
			delta = decimal.NewFromInt(1)
		} else {
			delta = decimal.NewFromInt(-1)
		}
	}

	price, _ := intrinsic.Float64()
	return &BlackScholesResult{
		Price:     intrinsic,
		Delta:     delta,
		Gamma:     decimal.Zero,
		Theta:     decimal.Zero,
		Vega:      decimal.Zero,
		Rho:       decimal.Zero,
		Breakeven: breakeven(kind, input.K, price),
	}
}

func breakeven(kind OptionKind, strike, price float64) decimal.Decimal {
	if kind == OptionKindCall {
		return decimal.NewFromFloat(strike + price)
	}
	return decimal.NewFromFloat(strike - price)
}

// normCDF 标准正态分布累积分布函数。
// 采用 Abramowitz-Stegun 有理逼近，避免依赖外部 erf 实现。
func normCDF(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)

	sign := 1.0
	if x < 0 {
		sign = -1.0
		x = -x
	}
	x = x / math.Sqrt2

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}

// normPDF 标准正态分布概率密度函数
func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
