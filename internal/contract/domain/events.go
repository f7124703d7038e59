package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	OptionListedEventType    = "options.option.listed"
	TradeExecutedEventType   = "options.trade.executed"
	OptionExercisedEventType = "options.option.exercised"
	OptionExpiredEventType   = "options.option.expired"
)

// OptionListedEvent 合约挂牌事件
type OptionListedEvent struct {
	OptionID   string          `json:"option_id"`
	IssuerID   string          `json:"issuer_id"`
	Underlying string          `json:"underlying"`
	OptionType string          `json:"option_type"`
	Strike     decimal.Decimal `json:"strike"`
	Premium    decimal.Decimal `json:"premium"`
	ExpiresAt  time.Time       `json:"expires_at"`
	OccurredOn time.Time       `json:"occurred_on"`
}

// TradeExecutedEvent 成交事件
type TradeExecutedEvent struct {
	OptionID   string          `json:"option_id"`
	Buyer      string          `json:"buyer"`
	Seller     string          `json:"seller"`
	Premium    decimal.Decimal `json:"premium"`
	Size       decimal.Decimal `json:"size"`
	OccurredOn time.Time       `json:"occurred_on"`
}

// OptionExercisedEvent 行权事件
type OptionExercisedEvent struct {
	OptionID        string          `json:"option_id"`
	HolderID        string          `json:"holder_id"`
	SettlementPrice decimal.Decimal `json:"settlement_price"`
	Payout          decimal.Decimal `json:"payout"`
	WriterShortfall bool            `json:"writer_shortfall"`
	OccurredOn      time.Time       `json:"occurred_on"`
}

// EventPublisher 事件发布者接口
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, event any) error
}
