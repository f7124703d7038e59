// 包 domain 风控领域模型：保证金口径、风险分级与强平事件。
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrPositionNotTracked = errors.New("position not tracked")
	ErrInvalidNotional    = errors.New("notional must be positive")
)

// RiskLevel 风险等级
type RiskLevel string

const (
	RiskLevelSafe        RiskLevel = "SAFE"
	RiskLevelWarning     RiskLevel = "WARNING"
	RiskLevelDanger      RiskLevel = "DANGER"
	RiskLevelLiquidating RiskLevel = "LIQUIDATING"
)

// RiskParams 风控参数
type RiskParams struct {
	// InitialMarginPercent 初始保证金比例
	InitialMarginPercent decimal.Decimal `json:"initial_margin_percent"`
	// MaintenanceMarginPercent 维持保证金比例
	MaintenanceMarginPercent decimal.Decimal `json:"maintenance_margin_percent"`
	// WarningRatio 预警保证金率阈值
	WarningRatio decimal.Decimal `json:"warning_ratio"`
	// LiquidationFeePercent 强平手续费比例（注入保险基金）
	LiquidationFeePercent decimal.Decimal `json:"liquidation_fee_percent"`
	// MaxLeverage 最大杠杆
	MaxLeverage decimal.Decimal `json:"max_leverage"`
}

// DefaultRiskParams 缺省风控参数：20% 初始、10% 维持、1.5x 预警、1% 强平费、10x 杠杆。
func DefaultRiskParams() RiskParams {
	return RiskParams{
		InitialMarginPercent:     decimal.NewFromFloat(0.20),
		MaintenanceMarginPercent: decimal.NewFromFloat(0.10),
		WarningRatio:             decimal.NewFromFloat(1.5),
		LiquidationFeePercent:    decimal.NewFromFloat(0.01),
		MaxLeverage:              decimal.NewFromInt(10),
	}
}

// TrackedPosition 风控侧持仓视图。与 PositionManager 的簿记有意解耦，
// 使风险监控可以独立节奏运行。
type TrackedPosition struct {
	PositionID string          `json:"position_id"`
	OwnerID    string          `json:"owner_id"`
	Notional   decimal.Decimal `json:"notional"`
	Margin     decimal.Decimal `json:"margin"`
	PnL        decimal.Decimal `json:"pnl"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// InitialMargin 初始保证金要求。
func (t *TrackedPosition) InitialMargin(params RiskParams) decimal.Decimal {
	return t.Notional.Mul(params.InitialMarginPercent)
}

// MaintenanceMargin 维持保证金要求。
func (t *TrackedPosition) MaintenanceMargin(params RiskParams) decimal.Decimal {
	return t.Notional.Mul(params.MaintenanceMarginPercent)
}

// MarginRatio 保证金率 = 当前保证金 / 维持保证金。
func (t *TrackedPosition) MarginRatio(params RiskParams) decimal.Decimal {
	maintenance := t.MaintenanceMargin(params)
	if maintenance.IsZero() {
		return decimal.Zero
	}
	return t.Margin.Div(maintenance)
}

// Classify 按保证金率分级：
// ratio <= 1.0 强平；<= warningRatio 危险；<= warningRatio*1.5 预警；其余安全。
func (t *TrackedPosition) Classify(params RiskParams) RiskLevel {
	ratio := t.MarginRatio(params)
	one := decimal.NewFromInt(1)
	switch {
	case ratio.LessThanOrEqual(one):
		return RiskLevelLiquidating
	case ratio.LessThanOrEqual(params.WarningRatio):
		return RiskLevelDanger
	case ratio.LessThanOrEqual(params.WarningRatio.Mul(decimal.NewFromFloat(1.5))):
		return RiskLevelWarning
	default:
		return RiskLevelSafe
	}
}

const PositionLiquidatedEventType = "options.risk.position_liquidated"

// PositionLiquidatedEvent 强平事件
type PositionLiquidatedEvent struct {
	PositionID            string          `json:"position_id"`
	OwnerID               string          `json:"owner_id"`
	Reason                string          `json:"reason"`
	RealizedPnL           decimal.Decimal `json:"realized_pnl"`
	Fee                   decimal.Decimal `json:"fee"`
	InsuranceContribution decimal.Decimal `json:"insurance_contribution"`
	LiquidatedAt          time.Time       `json:"liquidated_at"`
}

// EventPublisher 事件发布者接口
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, event any) error
}

// LiquidationRecord 强平台账
type LiquidationRecord struct {
	PositionID            string          `json:"position_id"`
	OwnerID               string          `json:"owner_id"`
	Reason                string          `json:"reason"`
	RealizedPnL           decimal.Decimal `json:"realized_pnl"`
	Fee                   decimal.Decimal `json:"fee"`
	InsuranceContribution decimal.Decimal `json:"insurance_contribution"`
	LiquidatedAt          time.Time       `json:"liquidated_at"`
}
