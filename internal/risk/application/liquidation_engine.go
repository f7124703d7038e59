package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/optionsvenue/internal/risk/domain"
	"github.com/wyfcoding/pkg/logging"
)

// RecordStore 强平台账持久化接口。
type RecordStore interface {
	SaveLiquidation(ctx context.Context, record *domain.LiquidationRecord) error
}

// LiquidationEngine 强平引擎。周期性扫描被跟踪持仓，
// 对保证金率跌破维持线的持仓执行强平并注入保险基金。
type LiquidationEngine struct {
	mu        sync.Mutex
	params    domain.RiskParams
	tracked   map[string]*domain.TrackedPosition
	insurance decimal.Decimal
	store     RecordStore
	publisher domain.EventPublisher
	logger    *slog.Logger
	interval  time.Duration
}

// NewLiquidationEngine 创建强平引擎。store 与 publisher 允许为空（纯内存运行）。
func NewLiquidationEngine(params domain.RiskParams, store RecordStore, publisher domain.EventPublisher, interval time.Duration, logger *slog.Logger) *LiquidationEngine {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &LiquidationEngine{
		params:    params,
		tracked:   make(map[string]*domain.TrackedPosition),
		insurance: decimal.Zero,
		store:     store,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
	}
}

// Track 登记或更新风控视图中的持仓。
func (e *LiquidationEngine) Track(position *domain.TrackedPosition) error {
	if !position.Notional.IsPositive() {
		return domain.ErrInvalidNotional
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	clone := *position
	clone.UpdatedAt = time.Now()
	e.tracked[position.PositionID] = &clone
	return nil
}

// UpdateMark 更新持仓的保证金与盈亏标记。
func (e *LiquidationEngine) UpdateMark(positionID string, margin, pnl decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	position, ok := e.tracked[positionID]
	if !ok {
		return domain.ErrPositionNotTracked
	}
	position.Margin = margin
	position.PnL = pnl
	position.UpdatedAt = time.Now()
	return nil
}

// Untrack 持仓正常平仓后移出风控视图。
func (e *LiquidationEngine) Untrack(positionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tracked, positionID)
}

// RiskLevel 查询单个持仓当前风险等级。
func (e *LiquidationEngine) RiskLevel(positionID string) (domain.RiskLevel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	position, ok := e.tracked[positionID]
	if !ok {
		return "", domain.ErrPositionNotTracked
	}
	return position.Classify(e.params), nil
}

// InsuranceFund 当前保险基金余额。
func (e *LiquidationEngine) InsuranceFund() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insurance
}

// TrackedCount 当前被跟踪持仓数。
func (e *LiquidationEngine) TrackedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tracked)
}

// CheckLiquidations 扫描一轮，强平所有保证金率 <= 1 的持仓。
// 返回本轮被强平的持仓 ID。由引擎互斥锁串行化，可重入调用安全。
func (e *LiquidationEngine) CheckLiquidations(ctx context.Context) []string {
	e.mu.Lock()
	var liquidated []*domain.LiquidationRecord
	var ids []string
	now := time.Now()
	for id, position := range e.tracked {
		if position.Classify(e.params) != domain.RiskLevelLiquidating {
			continue
		}
		fee := position.Notional.Mul(e.params.LiquidationFeePercent)
		// 保险基金注入不超过剩余保证金
		contribution := decimal.Min(fee, position.Margin)
		if contribution.IsNegative() {
			contribution = decimal.Zero
		}
		e.insurance = e.insurance.Add(contribution)
		record := &domain.LiquidationRecord{
			PositionID:            id,
			OwnerID:               position.OwnerID,
			Reason:                "margin ratio below maintenance",
			RealizedPnL:           position.PnL,
			Fee:                   fee,
			InsuranceContribution: contribution,
			LiquidatedAt:          now,
		}
		liquidated = append(liquidated, record)
		ids = append(ids, id)
		delete(e.tracked, id)
	}
	e.mu.Unlock()

	for _, record := range liquidated {
		e.logger.Warn("仓位触发强平",
			"position_id", record.PositionID,
			"owner_id", record.OwnerID,
			"pnl", record.RealizedPnL.String(),
			"insurance_contribution", record.InsuranceContribution.String())
		if e.store != nil {
			if err := e.store.SaveLiquidation(ctx, record); err != nil {
				logging.Error(ctx, "保存强平记录失败", "position_id", record.PositionID, "error", err)
			}
		}
		if e.publisher != nil {
			event := &domain.PositionLiquidatedEvent{
				PositionID:            record.PositionID,
				OwnerID:               record.OwnerID,
				Reason:                record.Reason,
				RealizedPnL:           record.RealizedPnL,
				Fee:                   record.Fee,
				InsuranceContribution: record.InsuranceContribution,
				LiquidatedAt:          record.LiquidatedAt,
			}
			if err := e.publisher.Publish(ctx, domain.PositionLiquidatedEventType, record.OwnerID, event); err != nil {
				logging.Error(ctx, "发布强平事件失败", "position_id", record.PositionID, "error", err)
			}
		}
	}
	return ids
}

// Start 启动周期性强平扫描，阻塞直到 ctx 取消。
func (e *LiquidationEngine) Start(ctx context.Context) error {
	e.logger.Info("强平引擎已启动", "interval", e.interval.String())
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("强平引擎已停止")
			return ctx.Err()
		case <-ticker.C:
			e.CheckLiquidations(ctx)
		}
	}
}
