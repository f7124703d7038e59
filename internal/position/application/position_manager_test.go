package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountapp "github.com/wyfcoding/optionsvenue/internal/account/application"
	"github.com/wyfcoding/optionsvenue/internal/position/domain"
	pricing "github.com/wyfcoding/optionsvenue/internal/pricing/domain"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func testRef(kind pricing.OptionKind, strike int64) OptionRef {
	return OptionRef{
		OptionID:   "OPT-1",
		Underlying: "ETH",
		Kind:       kind,
		Strike:     decimal.NewFromInt(strike),
		ExpiresAt:  time.Now().Add(30 * 24 * time.Hour),
	}
}

func newTestManager(t *testing.T, ownerID string, funds int64) (*PositionManager, *accountapp.BalanceManager) {
	t.Helper()
	accounts := accountapp.NewBalanceManager(nil)
	require.NoError(t, accounts.Deposit(context.Background(), ownerID, decimal.NewFromInt(funds)))
	return NewPositionManager(accounts, DefaultPricingConfig()), accounts
}

func TestPositionManager_OpenLong(t *testing.T) {
	m, accounts := newTestManager(t, "alice", 1000)
	ctx := context.Background()

	position, err := m.OpenPosition(ctx, "alice", testRef(pricing.OptionKindCall, 2000),
		domain.PositionSideLong, d(1), d(2000))
	require.NoError(t, err)
	assert.Equal(t, domain.PositionSideLong, position.Side)
	assert.True(t, position.EntryPrice.IsPositive())
	assert.True(t, position.Collateral.IsZero())

	// 权利金已从账户扣除
	balance, _ := accounts.Snapshot("alice")
	assert.True(t, balance.Available.Equal(d(1000).Sub(position.EntryPrice)))
}

func TestPositionManager_OpenLong_InsufficientFunds(t *testing.T) {
	m, accounts := newTestManager(t, "alice", 1)
	ctx := context.Background()

	_, err := m.OpenPosition(ctx, "alice", testRef(pricing.OptionKindCall, 2000),
		domain.PositionSideLong, d(1), d(2000))
	require.Error(t, err)

	balance, _ := accounts.Snapshot("alice")
	assert.True(t, balance.Available.Equal(d(1)))
	assert.Empty(t, m.ListPositions("alice"))
}

func TestPositionManager_OpenShort_PutCollateral(t *testing.T) {
	m, accounts := newTestManager(t, "bob", 2500)
	ctx := context.Background()

	// 看跌空头：全额执行价名义作保证金 = 2500
	position, err := m.OpenPosition(ctx, "bob", testRef(pricing.OptionKindPut, 2500),
		domain.PositionSideShort, d(1), d(2000))
	require.NoError(t, err)
	assert.True(t, position.Collateral.Equal(d(2500)))

	balance, _ := accounts.Snapshot("bob")
	assert.True(t, balance.Locked.Equal(d(2500)))
	// 权利金入账后全部被锁定吸收
	assert.True(t, balance.Available.Equal(position.EntryPrice))
}

func TestPositionManager_OpenShort_CallCollateral(t *testing.T) {
	m, _ := newTestManager(t, "bob", 1000)
	ctx := context.Background()

	// 看涨空头：20% 名义 = 0.2 × 2000 × 2 = 800
	position, err := m.OpenPosition(ctx, "bob", testRef(pricing.OptionKindCall, 2000),
		domain.PositionSideShort, d(2), d(2000))
	require.NoError(t, err)
	assert.True(t, position.Collateral.Equal(d(800)))
}

func TestPositionManager_OpenShort_InsufficientCollateral(t *testing.T) {
	m, accounts := newTestManager(t, "poor", 100)
	ctx := context.Background()

	_, err := m.OpenPosition(ctx, "poor", testRef(pricing.OptionKindPut, 2500),
		domain.PositionSideShort, d(1), d(2000))
	require.Error(t, err)

	balance, _ := accounts.Snapshot("poor")
	assert.True(t, balance.Available.Equal(d(100)))
	assert.True(t, balance.Locked.IsZero())
}

func TestPositionManager_MarkToMarket(t *testing.T) {
	m, _ := newTestManager(t, "alice", 1000)
	ctx := context.Background()

	position, err := m.OpenPosition(ctx, "alice", testRef(pricing.OptionKindCall, 2000),
		domain.PositionSideLong, d(1), d(2000))
	require.NoError(t, err)

	// 现货上涨：多头看涨盈利、delta 为正
	update, err := m.UpdatePositionPrice(ctx, "alice", position.ID, d(2400))
	require.NoError(t, err)
	assert.True(t, update.CurrentPrice.GreaterThan(position.EntryPrice))
	assert.True(t, update.PnL.IsPositive())
	assert.True(t, update.Greeks.Delta.IsPositive())
	assert.True(t, update.Greeks.Gamma.IsPositive())

	// 同一合约的空头视角：delta 翻转、gamma 不翻转
	short, err := m.OpenPosition(ctx, "alice", testRef(pricing.OptionKindCall, 2000),
		domain.PositionSideShort, d(1), d(2400))
	require.NoError(t, err)
	shortUpdate, err := m.UpdatePositionPrice(ctx, "alice", short.ID, d(2400))
	require.NoError(t, err)
	assert.True(t, shortUpdate.Greeks.Delta.IsNegative())
	assert.True(t, shortUpdate.Greeks.Gamma.IsPositive())
}

func TestPositionManager_CloseLong(t *testing.T) {
	m, accounts := newTestManager(t, "alice", 1000)
	ctx := context.Background()

	position, err := m.OpenPosition(ctx, "alice", testRef(pricing.OptionKindCall, 2000),
		domain.PositionSideLong, d(1), d(2000))
	require.NoError(t, err)
	afterOpen, _ := accounts.Snapshot("alice")

	result, err := m.ClosePosition(ctx, "alice", position.ID, d(2400))
	require.NoError(t, err)
	assert.True(t, result.PnL.IsPositive())
	assert.True(t, result.Returned.Equal(result.ClosePrice))

	balance, _ := accounts.Snapshot("alice")
	assert.True(t, balance.Available.Equal(afterOpen.Available.Add(result.Returned)))

	// 重复平仓被拒
	_, err = m.ClosePosition(ctx, "alice", position.ID, d(2400))
	assert.ErrorIs(t, err, domain.ErrPositionClosed)
}

func TestPositionManager_CloseShort_LossCappedAtCollateral(t *testing.T) {
	m, accounts := newTestManager(t, "bob", 2500)
	ctx := context.Background()

	// 看涨空头只锁 20% 名义（400），暴涨时亏损远超保证金
	position, err := m.OpenPosition(ctx, "bob", testRef(pricing.OptionKindCall, 2000),
		domain.PositionSideShort, d(1), d(2000))
	require.NoError(t, err)
	require.True(t, position.Collateral.Equal(d(400)))

	result, err := m.ClosePosition(ctx, "bob", position.ID, d(8000))
	require.NoError(t, err)
	assert.True(t, result.PnL.IsNegative())
	assert.True(t, result.Returned.IsZero())

	balance, _ := accounts.Snapshot("bob")
	assert.True(t, balance.Locked.IsZero())
	assert.False(t, balance.Available.IsNegative())
}

func TestPositionManager_Portfolio(t *testing.T) {
	m, _ := newTestManager(t, "alice", 10000)
	ctx := context.Background()

	_, err := m.OpenPosition(ctx, "alice", testRef(pricing.OptionKindCall, 2000),
		domain.PositionSideLong, d(1), d(2000))
	require.NoError(t, err)
	short, err := m.OpenPosition(ctx, "alice", testRef(pricing.OptionKindPut, 2500),
		domain.PositionSideShort, d(1), d(2000))
	require.NoError(t, err)

	portfolio, err := m.GetPortfolio(ctx, "alice", d(2100))
	require.NoError(t, err)
	assert.Equal(t, 2, portfolio.OpenPositions)
	assert.True(t, portfolio.MarginRequired.Equal(short.Collateral))
	assert.True(t, portfolio.BuyingPower.IsPositive())
	// 多头看涨 + 空头看跌：两边 delta 同向为正
	assert.True(t, portfolio.Greeks.Delta.IsPositive())

	// 平掉空头后保证金占用归零
	_, err = m.ClosePosition(ctx, "alice", short.ID, d(2100))
	require.NoError(t, err)
	portfolio, err = m.GetPortfolio(ctx, "alice", d(2100))
	require.NoError(t, err)
	assert.Equal(t, 1, portfolio.OpenPositions)
	assert.True(t, portfolio.MarginRequired.IsZero())
}

func TestPositionManager_GetPosition_NotFound(t *testing.T) {
	m, _ := newTestManager(t, "alice", 100)
	_, err := m.GetPosition("alice", "missing")
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
	_, err = m.UpdatePositionPrice(context.Background(), "alice", "missing", d(2000))
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}
