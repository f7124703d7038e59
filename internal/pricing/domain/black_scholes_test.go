package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBlackScholes_KnownValues(t *testing.T) {
	input := BlackScholesInput{S: 100, K: 100, T: 1, R: 0.05, Sigma: 0.2}

	call, err := CalculateBlackScholes(OptionKindCall, input)
	require.NoError(t, err)
	put, err := CalculateBlackScholes(OptionKindPut, input)
	require.NoError(t, err)

	assert.InDelta(t, 10.4506, call.Price.InexactFloat64(), 1e-3)
	assert.InDelta(t, 5.5735, put.Price.InexactFloat64(), 1e-3)

	// Put-Call Parity: C - P = S - K*e^(-rT)
	parity := call.Price.Sub(put.Price).InexactFloat64()
	assert.InDelta(t, 4.8771, parity, 1e-3)

	assert.InDelta(t, 0.6368, call.Delta.InexactFloat64(), 1e-3)
	assert.InDelta(t, -0.3632, put.Delta.InexactFloat64(), 1e-3)

	// Gamma 与 Vega 对 call/put 相同
	assert.True(t, call.Gamma.Equal(put.Gamma))
	assert.True(t, call.Vega.Equal(put.Vega))
	assert.InDelta(t, 0.01876, call.Gamma.InexactFloat64(), 1e-4)
	assert.InDelta(t, 0.3752, call.Vega.InexactFloat64(), 1e-3)

	assert.True(t, call.Theta.IsNegative())
	assert.True(t, call.Rho.IsPositive())
	assert.True(t, put.Rho.IsNegative())

	assert.InDelta(t, 110.4506, call.Breakeven.InexactFloat64(), 1e-3)
	assert.InDelta(t, 94.4265, put.Breakeven.InexactFloat64(), 1e-3)
}

func TestCalculateBlackScholes_AtExpiry(t *testing.T) {
	tests := []struct {
		name      string
		kind      OptionKind
		spot      float64
		wantPrice float64
		wantDelta float64
	}{
		{"ITM call", OptionKindCall, 2500, 500, 1},
		{"OTM call", OptionKindCall, 1800, 0, 0},
		{"ITM put", OptionKindPut, 1500, 500, -1},
		{"OTM put", OptionKindPut, 2500, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CalculateBlackScholes(tt.kind, BlackScholesInput{S: tt.spot, K: 2000, T: 0, R: 0.05, Sigma: 0.6})
			require.NoError(t, err)

			assert.Equal(t, tt.wantPrice, result.Price.InexactFloat64())
			assert.Equal(t, tt.wantDelta, result.Delta.InexactFloat64())
			assert.True(t, result.Gamma.IsZero())
			assert.True(t, result.Theta.IsZero())
			assert.True(t, result.Vega.IsZero())
			assert.True(t, result.Rho.IsZero())
		})
	}
}

func TestCalculateBlackScholes_InvalidInputs(t *testing.T) {
	_, err := CalculateBlackScholes(OptionKindCall, BlackScholesInput{S: -1, K: 100, T: 1, R: 0.05, Sigma: 0.2})
	assert.ErrorIs(t, err, ErrInvalidSpot)

	_, err = CalculateBlackScholes(OptionKindCall, BlackScholesInput{S: 100, K: 0, T: 1, R: 0.05, Sigma: 0.2})
	assert.ErrorIs(t, err, ErrInvalidStrike)

	_, err = CalculateBlackScholes(OptionKindPut, BlackScholesInput{S: 100, K: 100, T: 1, R: 0.05, Sigma: 0})
	assert.ErrorIs(t, err, ErrInvalidVolatility)
}

func TestImpliedVolatility_RoundTrip(t *testing.T) {
	for _, sigma := range []float64{0.1, 0.3, 0.5, 1.0, 1.5, 2.0} {
		result, err := CalculateBlackScholes(OptionKindCall, BlackScholesInput{S: 2000, K: 2000, T: 0.25, R: 0.05, Sigma: sigma})
		require.NoError(t, err)

		iv, err := ImpliedVolatility(OptionKindCall, result.Price.InexactFloat64(), 2000, 2000, 0.25, 0.05)
		require.NoError(t, err)
		assert.InDelta(t, sigma, iv, 1e-3, "sigma=%v", sigma)
	}
}

func TestImpliedVolatility_NotConverged(t *testing.T) {
	// 深度虚值且临近到期：vega 过小，求解器必须拒绝而非返回噪声。
	_, err := ImpliedVolatility(OptionKindCall, 0.01, 100, 500, 0.0001, 0.05)
	assert.ErrorIs(t, err, ErrIVNotConverged)

	_, err = ImpliedVolatility(OptionKindCall, 5, 100, 100, 0, 0.05)
	assert.ErrorIs(t, err, ErrIVNotConverged)
}

func TestHistoricalVolatility(t *testing.T) {
	short := []decimal.Decimal{decimal.NewFromInt(100)}
	assert.Equal(t, DefaultVolatility, HistoricalVolatility(short, 365))

	flat := []decimal.Decimal{
		decimal.NewFromInt(100), decimal.NewFromInt(100),
		decimal.NewFromInt(100), decimal.NewFromInt(100),
	}
	assert.Equal(t, 0.0, HistoricalVolatility(flat, 365))

	prices := []decimal.Decimal{
		decimal.NewFromInt(100), decimal.NewFromInt(102),
		decimal.NewFromInt(99), decimal.NewFromInt(103),
		decimal.NewFromInt(101),
	}
	vol := HistoricalVolatility(prices, 365)
	assert.Greater(t, vol, 0.0)
	assert.Less(t, vol, 2.0)
}

func TestIntrinsicValueAndMoneyness(t *testing.T) {
	spot := decimal.NewFromInt(2500)
	strike := decimal.NewFromInt(2000)

	assert.True(t, IntrinsicValue(OptionKindCall, spot, strike).Equal(decimal.NewFromInt(500)))
	assert.True(t, IntrinsicValue(OptionKindPut, spot, strike).IsZero())

	assert.Equal(t, "ITM", Moneyness(OptionKindCall, spot, strike))
	assert.Equal(t, "OTM", Moneyness(OptionKindPut, spot, strike))
	assert.Equal(t, "ATM", Moneyness(OptionKindCall, strike, strike))
}
