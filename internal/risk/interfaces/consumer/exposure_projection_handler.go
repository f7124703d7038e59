package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	contractdomain "github.com/wyfcoding/optionsvenue/internal/contract/domain"
	positiondomain "github.com/wyfcoding/optionsvenue/internal/position/domain"
	pricingdomain "github.com/wyfcoding/optionsvenue/internal/pricing/domain"
	"github.com/wyfcoding/optionsvenue/internal/risk/application"
	riskdomain "github.com/wyfcoding/optionsvenue/internal/risk/domain"
)

// ExposureProjectionHandler 把合约域事件投影为风控侧的卖方敞口视图：
// 挂牌时缓存合约条款，成交时按条款登记卖方敞口，行权/到期时移除。
type ExposureProjectionHandler struct {
	engine *application.LiquidationEngine
	logger *slog.Logger

	mu    sync.Mutex
	terms map[string]optionTerms
}

type optionTerms struct {
	kind   pricingdomain.OptionKind
	strike decimal.Decimal
}

func NewExposureProjectionHandler(engine *application.LiquidationEngine, logger *slog.Logger) *ExposureProjectionHandler {
	return &ExposureProjectionHandler{
		engine: engine,
		logger: logger,
		terms:  make(map[string]optionTerms),
	}
}

func (h *ExposureProjectionHandler) Handle(ctx context.Context, msg kafka.Message) error {
	switch msg.Topic {
	case contractdomain.OptionListedEventType:
		var payload contractdomain.OptionListedEvent
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			h.logger.ErrorContext(ctx, "failed to unmarshal listed event", "error", err)
			return err
		}
		h.mu.Lock()
		h.terms[payload.OptionID] = optionTerms{
			kind:   contractdomain.OptionType(payload.OptionType).Kind(),
			strike: payload.Strike,
		}
		h.mu.Unlock()
		return nil

	case contractdomain.TradeExecutedEventType:
		var payload contractdomain.TradeExecutedEvent
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			h.logger.ErrorContext(ctx, "failed to unmarshal trade event", "error", err)
			return err
		}
		h.mu.Lock()
		terms, ok := h.terms[payload.OptionID]
		h.mu.Unlock()
		if !ok {
			// 挂牌事件缺失（例如重放窗口之外），无法推导敞口
			h.logger.WarnContext(ctx, "trade for unknown listing, skipping exposure tracking", "option_id", payload.OptionID)
			return nil
		}
		margin := positiondomain.CollateralRequired(terms.kind, terms.strike, payload.Size)
		return h.engine.Track(&riskdomain.TrackedPosition{
			PositionID: payload.OptionID,
			OwnerID:    payload.Seller,
			Notional:   terms.strike.Mul(payload.Size),
			Margin:     margin,
		})

	case contractdomain.OptionExercisedEventType:
		var payload contractdomain.OptionExercisedEvent
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			h.logger.ErrorContext(ctx, "failed to unmarshal exercised event", "error", err)
			return err
		}
		if payload.WriterShortfall {
			h.logger.WarnContext(ctx, "writer shortfall on exercise settlement",
				"option_id", payload.OptionID, "payout", payload.Payout.String())
		}
		h.forget(payload.OptionID)
		return nil

	case contractdomain.OptionExpiredEventType:
		var payload struct {
			OptionID string `json:"option_id"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			h.logger.ErrorContext(ctx, "failed to unmarshal expired event", "error", err)
			return err
		}
		h.forget(payload.OptionID)
		return nil

	default:
		h.logger.WarnContext(ctx, "unknown contract event topic", "topic", msg.Topic)
		return nil
	}
}

func (h *ExposureProjectionHandler) forget(optionID string) {
	h.mu.Lock()
	delete(h.terms, optionID)
	h.mu.Unlock()
	h.engine.Untrack(optionID)
}
