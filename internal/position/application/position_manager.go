// 包 application 持仓应用服务。
package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/idgen"
	"github.com/wyfcoding/pkg/logging"

	accountapp "github.com/wyfcoding/optionsvenue/internal/account/application"
	"github.com/wyfcoding/optionsvenue/internal/position/domain"
	pricing "github.com/wyfcoding/optionsvenue/internal/pricing/domain"
)

// PricingConfig 持仓定价参数
type PricingConfig struct {
	// DefaultVolatility 开仓与盯市使用的缺省年化波动率
	DefaultVolatility float64
	// RiskFreeRate 无风险利率
	RiskFreeRate float64
}

// DefaultPricingConfig 缺省定价参数。
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{DefaultVolatility: 0.5, RiskFreeRate: 0.05}
}

// OptionRef 开仓引用的合约定价要素
type OptionRef struct {
	OptionID   string
	Underlying string
	Kind       pricing.OptionKind
	Strike     decimal.Decimal
	ExpiresAt  time.Time
}

// PositionUpdate 盯市结果
type PositionUpdate struct {
	PositionID   string          `json:"position_id"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	PnL          decimal.Decimal `json:"pnl"`
	Greeks       domain.Greeks   `json:"greeks"`
}

// CloseResult 平仓结果
type CloseResult struct {
	PositionID string          `json:"position_id"`
	ClosePrice decimal.Decimal `json:"close_price"`
	PnL        decimal.Decimal `json:"pnl"`
	// Returned 平仓向账户返还的金额：多头为市值，空头为保证金减已实现亏损
	Returned decimal.Decimal `json:"returned"`
}

// Portfolio 组合视图
type Portfolio struct {
	OwnerID       string          `json:"owner_id"`
	OpenPositions int             `json:"open_positions"`
	MarketValue   decimal.Decimal `json:"market_value"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Greeks        domain.Greeks   `json:"greeks"`
	// MarginRequired 空头持仓占用的保证金合计
	MarginRequired decimal.Decimal `json:"margin_required"`
	// BuyingPower 当前可用余额
	BuyingPower decimal.Decimal `json:"buying_power"`
}

// traderBook 单个交易者的持仓簿
type traderBook struct {
	mu        sync.Mutex
	positions map[string]*domain.Position
}

// PositionManager 持仓管理器：每个交易者一本持仓簿，簿内操作串行、
// 跨交易者互不阻塞；资金变更全部经由 BalanceManager 的原子操作。
type PositionManager struct {
	mu       sync.RWMutex
	books    map[string]*traderBook
	accounts *accountapp.BalanceManager
	cfg      PricingConfig
}

// NewPositionManager 构造函数。
func NewPositionManager(accounts *accountapp.BalanceManager, cfg PricingConfig) *PositionManager {
	return &PositionManager{
		books:    make(map[string]*traderBook),
		accounts: accounts,
		cfg:      cfg,
	}
}

func (m *PositionManager) book(ownerID string) *traderBook {
	m.mu.RLock()
	b, ok := m.books[ownerID]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.books[ownerID]; ok {
		return b
	}
	b = &traderBook{positions: make(map[string]*domain.Position)}
	m.books[ownerID] = b
	return b
}

// price 以剩余期限与缺省波动率为持仓定价。
func (m *PositionManager) price(ref OptionRef, spot decimal.Decimal, now time.Time) (*pricing.BlackScholesResult, error) {
	t := 0.0
	if now.Before(ref.ExpiresAt) {
		t = ref.ExpiresAt.Sub(now).Hours() / 24 / 365
	}
	return pricing.CalculateBlackScholes(ref.Kind, pricing.BlackScholesInput{
		S:     spot.InexactFloat64(),
		K:     ref.Strike.InexactFloat64(),
		T:     t,
		R:     m.cfg.RiskFreeRate,
		Sigma: m.cfg.DefaultVolatility,
	})
}

// OpenPosition 开仓。
// 多头：按模型价扣除权利金，余额不足整体失败。
// 空头：权利金入账与保证金锁定（看涨 20% 名义、看跌全额执行价名义）同一原子步骤。
func (m *PositionManager) OpenPosition(ctx context.Context, ownerID string, ref OptionRef, side domain.PositionSide, size, spot decimal.Decimal) (*domain.Position, error) {
	if !size.IsPositive() {
		return nil, domain.ErrInvalidSize
	}

	now := time.Now()
	result, err := m.price(ref, spot, now)
	if err != nil {
		return nil, err
	}

	entry := result.Price.Truncate(8)
	cost := entry.Mul(size).Truncate(8)
	collateral := decimal.Zero

	switch side {
	case domain.PositionSideLong:
		if err := m.accounts.Debit(ctx, ownerID, cost); err != nil {
			return nil, err
		}
	case domain.PositionSideShort:
		collateral = domain.CollateralRequired(ref.Kind, ref.Strike, size)
		if err := m.accounts.OpenShort(ctx, ownerID, cost, collateral); err != nil {
			return nil, err
		}
	default:
		return nil, domain.ErrInvalidSize
	}

	position := &domain.Position{
		ID:           fmt.Sprintf("POS-%d", idgen.GenID()),
		OptionID:     ref.OptionID,
		OwnerID:      ownerID,
		Underlying:   ref.Underlying,
		Kind:         ref.Kind,
		Strike:       ref.Strike,
		ExpiresAt:    ref.ExpiresAt,
		Side:         side,
		Size:         size.Truncate(18),
		EntryPrice:   entry,
		CurrentPrice: entry,
		Collateral:   collateral,
		Status:       domain.PositionStatusOpen,
		OpenedAt:     now,
	}

	b := m.book(ownerID)
	b.mu.Lock()
	b.positions[position.ID] = position
	b.mu.Unlock()

	logging.Info(ctx, "position opened",
		"position_id", position.ID,
		"owner_id", ownerID,
		"side", string(side),
		"entry_price", entry.String(),
		"collateral", collateral.String(),
	)
	return position.Clone(), nil
}

// UpdatePositionPrice 盯市：按剩余期限重新定价，返回盈亏与按方向/数量缩放的 Greeks。
func (m *PositionManager) UpdatePositionPrice(ctx context.Context, ownerID, positionID string, spot decimal.Decimal) (*PositionUpdate, error) {
	b := m.book(ownerID)
	b.mu.Lock()
	defer b.mu.Unlock()

	position, ok := b.positions[positionID]
	if !ok {
		return nil, domain.ErrPositionNotFound
	}
	if position.Status == domain.PositionStatusClosed {
		return nil, domain.ErrPositionClosed
	}

	result, err := m.price(m.refOf(position), spot, time.Now())
	if err != nil {
		return nil, err
	}

	position.CurrentPrice = result.Price.Truncate(8)
	return &PositionUpdate{
		PositionID:   positionID,
		CurrentPrice: position.CurrentPrice,
		PnL:          position.UnrealizedPnL(),
		Greeks:       domain.ScaleGreeks(result, position.Side, position.Size),
	}, nil
}

// ClosePosition 平仓并清算资金：多头收回市值；空头收回保证金减已实现亏损，
// 返还额不为负（亏损封顶于保证金）。
func (m *PositionManager) ClosePosition(ctx context.Context, ownerID, positionID string, spot decimal.Decimal) (*CloseResult, error) {
	b := m.book(ownerID)
	b.mu.Lock()
	defer b.mu.Unlock()

	position, ok := b.positions[positionID]
	if !ok {
		return nil, domain.ErrPositionNotFound
	}
	if position.Status == domain.PositionStatusClosed {
		return nil, domain.ErrPositionClosed
	}

	result, err := m.price(m.refOf(position), spot, time.Now())
	if err != nil {
		return nil, err
	}
	closePrice := result.Price.Truncate(8)

	if err := position.Close(closePrice, time.Now()); err != nil {
		return nil, err
	}
	pnl := position.UnrealizedPnL()

	var returned decimal.Decimal
	switch position.Side {
	case domain.PositionSideLong:
		returned = closePrice.Mul(position.Size).Truncate(8)
		if returned.IsPositive() {
			m.accounts.CreditSettlement(ctx, ownerID, returned)
		}
	case domain.PositionSideShort:
		loss := pnl.Neg() // 空头亏损为正
		if loss.IsNegative() {
			loss = decimal.Zero
		}
		charge := decimal.Min(loss, position.Collateral)
		returned = position.Collateral.Sub(charge)
		if err := m.accounts.CloseShort(ctx, ownerID, position.Collateral, loss); err != nil {
			logging.Error(ctx, "failed to settle short close", "position_id", positionID, "error", err)
			return nil, err
		}
	}

	logging.Info(ctx, "position closed",
		"position_id", positionID,
		"owner_id", ownerID,
		"pnl", pnl.String(),
		"returned", returned.String(),
	)
	return &CloseResult{
		PositionID: positionID,
		ClosePrice: closePrice,
		PnL:        pnl,
		Returned:   returned,
	}, nil
}

// GetPosition 按 ID 取持仓快照。
func (m *PositionManager) GetPosition(ownerID, positionID string) (*domain.Position, error) {
	b := m.book(ownerID)
	b.mu.Lock()
	defer b.mu.Unlock()

	position, ok := b.positions[positionID]
	if !ok {
		return nil, domain.ErrPositionNotFound
	}
	return position.Clone(), nil
}

// ListPositions 列出交易者全部持仓快照。
func (m *PositionManager) ListPositions(ownerID string) []*domain.Position {
	b := m.book(ownerID)
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]*domain.Position, 0, len(b.positions))
	for _, position := range b.positions {
		result = append(result, position.Clone())
	}
	return result
}

// GetPortfolio 组合视图：逐仓盯市后聚合市值、成本、Greeks 与空头保证金占用。
func (m *PositionManager) GetPortfolio(ctx context.Context, ownerID string, spot decimal.Decimal) (*Portfolio, error) {
	b := m.book(ownerID)
	b.mu.Lock()
	defer b.mu.Unlock()

	portfolio := &Portfolio{
		OwnerID:        ownerID,
		MarketValue:    decimal.Zero,
		CostBasis:      decimal.Zero,
		UnrealizedPnL:  decimal.Zero,
		MarginRequired: decimal.Zero,
	}

	now := time.Now()
	for _, position := range b.positions {
		if position.Status != domain.PositionStatusOpen {
			continue
		}
		result, err := m.price(m.refOf(position), spot, now)
		if err != nil {
			logging.Warn(ctx, "portfolio pricing skipped position", "position_id", position.ID, "error", err)
			continue
		}
		position.CurrentPrice = result.Price.Truncate(8)

		portfolio.OpenPositions++
		portfolio.MarketValue = portfolio.MarketValue.Add(position.MarketValue())
		portfolio.CostBasis = portfolio.CostBasis.Add(position.CostBasis())
		portfolio.UnrealizedPnL = portfolio.UnrealizedPnL.Add(position.UnrealizedPnL())
		portfolio.Greeks = portfolio.Greeks.Add(domain.ScaleGreeks(result, position.Side, position.Size))
		if position.Side == domain.PositionSideShort {
			portfolio.MarginRequired = portfolio.MarginRequired.Add(position.Collateral)
		}
	}

	if balance, err := m.accounts.Snapshot(ownerID); err == nil {
		portfolio.BuyingPower = balance.Available
	}
	return portfolio, nil
}

func (m *PositionManager) refOf(position *domain.Position) OptionRef {
	return OptionRef{
		OptionID:   position.OptionID,
		Underlying: position.Underlying,
		Kind:       position.Kind,
		Strike:     position.Strike,
		ExpiresAt:  position.ExpiresAt,
	}
}
