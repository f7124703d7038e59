package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	mdomain "github.com/wyfcoding/optionsvenue/internal/marketdata/domain"
	"github.com/wyfcoding/optionsvenue/internal/strategy/application"
	"github.com/wyfcoding/optionsvenue/internal/strategy/domain"
)

// HTTP 处理器
// 负责处理多腿策略构建与定价相关的 HTTP 请求
type StrategyHandler struct {
	builder *application.StrategyBuilder
	spot    mdomain.SpotSource

	// 定价缺省参数
	volatility   float64
	riskFreeRate float64
}

// 创建 HTTP 处理器实例
func NewStrategyHandler(builder *application.StrategyBuilder, spot mdomain.SpotSource, volatility, riskFreeRate float64) *StrategyHandler {
	return &StrategyHandler{
		builder:      builder,
		spot:         spot,
		volatility:   volatility,
		riskFreeRate: riskFreeRate,
	}
}

// RegisterRoutes 注册路由
func (h *StrategyHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/strategies")
	{
		api.POST("/build", h.BuildStrategy)
		api.POST("/payoff", h.CalculatePayoff)
		api.POST("/pnl", h.GetStrategyPnL)
	}
}

type buildStrategyRequest struct {
	Type       string            `json:"type" binding:"required"`
	Underlying string            `json:"underlying" binding:"required"`
	Strikes    []decimal.Decimal `json:"strikes" binding:"required"`
	ExpiresAt  time.Time         `json:"expires_at" binding:"required"`
	Quantity   decimal.Decimal   `json:"quantity"`
	Volatility float64           `json:"volatility"`
}

// BuildStrategy 按类型与行权价构建组合
func (h *StrategyHandler) BuildStrategy(c *gin.Context) {
	var req buildStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	quote, err := h.spot.GetSpotPrice(c.Request.Context(), req.Underlying)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to fetch spot price", "underlying", req.Underlying, "error", err)
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, err.Error(), "")
		return
	}

	volatility := req.Volatility
	if volatility <= 0 {
		volatility = h.volatility
	}
	params := application.BuildParams{
		Spot:         quote.Price,
		Volatility:   volatility,
		RiskFreeRate: h.riskFreeRate,
		ExpiresAt:    req.ExpiresAt,
		Quantity:     req.Quantity,
	}

	strategy, err := h.buildByType(domain.StrategyType(req.Type), params, req.Strikes)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	response.Success(c, strategy)
}

// buildByType 路由到具体策略构建方法，校验行权价个数。
func (h *StrategyHandler) buildByType(strategyType domain.StrategyType, params application.BuildParams, strikes []decimal.Decimal) (*domain.Strategy, error) {
	switch strategyType {
	case domain.StrategyBullCallSpread:
		if len(strikes) != 2 {
			return nil, domain.ErrInvalidStrikes
		}
		return h.builder.BullCallSpread(params, strikes[0], strikes[1])
	case domain.StrategyBearPutSpread:
		if len(strikes) != 2 {
			return nil, domain.ErrInvalidStrikes
		}
		return h.builder.BearPutSpread(params, strikes[0], strikes[1])
	case domain.StrategyStraddle:
		if len(strikes) != 1 {
			return nil, domain.ErrInvalidStrikes
		}
		return h.builder.Straddle(params, strikes[0])
	case domain.StrategyStrangle:
		if len(strikes) != 2 {
			return nil, domain.ErrInvalidStrikes
		}
		return h.builder.Strangle(params, strikes[0], strikes[1])
	case domain.StrategyIronCondor:
		if len(strikes) != 4 {
			return nil, domain.ErrInvalidStrikes
		}
		return h.builder.IronCondor(params, strikes[0], strikes[1], strikes[2], strikes[3])
	case domain.StrategyButterfly:
		if len(strikes) != 3 {
			return nil, domain.ErrInvalidStrikes
		}
		return h.builder.Butterfly(params, strikes[0], strikes[1], strikes[2])
	default:
		return nil, domain.ErrUnknownStrategy
	}
}

type payoffRequest struct {
	Strategy *domain.Strategy `json:"strategy" binding:"required"`
	Spot     decimal.Decimal  `json:"spot" binding:"required"`
	Range    decimal.Decimal  `json:"range"`
}

// CalculatePayoff 采样收益曲线
func (h *StrategyHandler) CalculatePayoff(c *gin.Context) {
	var req payoffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	span := req.Range
	if span.IsZero() {
		span = decimal.NewFromFloat(0.3)
	}

	curve, err := req.Strategy.SamplePayoff(req.Spot, span)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	response.Success(c, curve)
}

type pnlRequest struct {
	Strategy   *domain.Strategy `json:"strategy" binding:"required"`
	Underlying string           `json:"underlying" binding:"required"`
	Volatility float64          `json:"volatility"`
}

// GetStrategyPnL 以当前现货价盯市组合
func (h *StrategyHandler) GetStrategyPnL(c *gin.Context) {
	var req pnlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	quote, err := h.spot.GetSpotPrice(c.Request.Context(), req.Underlying)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to fetch spot price", "underlying", req.Underlying, "error", err)
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, err.Error(), "")
		return
	}

	volatility := req.Volatility
	if volatility <= 0 {
		volatility = h.volatility
	}

	pnl, err := h.builder.GetStrategyPnL(req.Strategy, quote.Price, volatility, h.riskFreeRate)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	response.Success(c, pnl)
}
