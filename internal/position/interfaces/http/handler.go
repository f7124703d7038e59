package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	accountdomain "github.com/wyfcoding/optionsvenue/internal/account/domain"
	mdomain "github.com/wyfcoding/optionsvenue/internal/marketdata/domain"
	"github.com/wyfcoding/optionsvenue/internal/position/application"
	"github.com/wyfcoding/optionsvenue/internal/position/domain"
	pricingdomain "github.com/wyfcoding/optionsvenue/internal/pricing/domain"
)

// HTTP 处理器
// 负责处理持仓与组合相关的 HTTP 请求
type PositionHandler struct {
	positions *application.PositionManager
	spot      mdomain.SpotSource
}

// 创建 HTTP 处理器实例
func NewPositionHandler(positions *application.PositionManager, spot mdomain.SpotSource) *PositionHandler {
	return &PositionHandler{positions: positions, spot: spot}
}

// RegisterRoutes 注册路由
func (h *PositionHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/positions")
	{
		api.POST("", h.OpenPosition)
		api.GET("", h.ListPositions)
		api.GET("/portfolio", h.GetPortfolio)
		api.GET("/:id", h.GetPosition)
		api.POST("/:id/close", h.ClosePosition)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPositionClosed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidSize):
		return http.StatusBadRequest
	case errors.Is(err, accountdomain.ErrInsufficientBalance),
		errors.Is(err, accountdomain.ErrInsufficientCollateral):
		return http.StatusPaymentRequired
	case errors.Is(err, accountdomain.ErrAccountFrozen):
		return http.StatusForbidden
	case errors.Is(err, mdomain.ErrPriceUnavailable), errors.Is(err, mdomain.ErrPriceStale):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// spotPrice 取标的现货价。
func (h *PositionHandler) spotPrice(c *gin.Context, underlying string) (decimal.Decimal, bool) {
	quote, err := h.spot.GetSpotPrice(c.Request.Context(), underlying)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to fetch spot price", "underlying", underlying, "error", err)
		response.ErrorWithStatus(c, statusOf(err), err.Error(), "")
		return decimal.Zero, false
	}
	return quote.Price, true
}

type openPositionRequest struct {
	OwnerID    string          `json:"owner_id" binding:"required"`
	OptionID   string          `json:"option_id" binding:"required"`
	Underlying string          `json:"underlying" binding:"required"`
	Kind       string          `json:"kind" binding:"required"`
	Strike     decimal.Decimal `json:"strike" binding:"required"`
	ExpiresAt  time.Time       `json:"expires_at" binding:"required"`
	Side       string          `json:"side" binding:"required"`
	Size       decimal.Decimal `json:"size" binding:"required"`
}

// OpenPosition 开仓
func (h *PositionHandler) OpenPosition(c *gin.Context) {
	var req openPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	spot, ok := h.spotPrice(c, req.Underlying)
	if !ok {
		return
	}

	position, err := h.positions.OpenPosition(c.Request.Context(), req.OwnerID, application.OptionRef{
		OptionID:   req.OptionID,
		Underlying: req.Underlying,
		Kind:       pricingdomain.OptionKind(req.Kind),
		Strike:     req.Strike,
		ExpiresAt:  req.ExpiresAt,
	}, domain.PositionSide(req.Side), req.Size, spot)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to open position", "owner_id", req.OwnerID, "error", err)
		response.ErrorWithStatus(c, statusOf(err), err.Error(), "")
		return
	}
	response.Success(c, position)
}

// ListPositions 列出交易者全部持仓
func (h *PositionHandler) ListPositions(c *gin.Context) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "owner_id is required", "")
		return
	}
	response.Success(c, h.positions.ListPositions(ownerID))
}

// GetPosition 查询单个持仓
func (h *PositionHandler) GetPosition(c *gin.Context) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "owner_id is required", "")
		return
	}

	position, err := h.positions.GetPosition(ownerID, c.Param("id"))
	if err != nil {
		response.ErrorWithStatus(c, statusOf(err), err.Error(), "")
		return
	}
	response.Success(c, position)
}

type closePositionRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
}

// ClosePosition 平仓
func (h *PositionHandler) ClosePosition(c *gin.Context) {
	var req closePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	position, err := h.positions.GetPosition(req.OwnerID, c.Param("id"))
	if err != nil {
		response.ErrorWithStatus(c, statusOf(err), err.Error(), "")
		return
	}

	spot, ok := h.spotPrice(c, position.Underlying)
	if !ok {
		return
	}

	result, err := h.positions.ClosePosition(c.Request.Context(), req.OwnerID, c.Param("id"), spot)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to close position", "position_id", c.Param("id"), "error", err)
		response.ErrorWithStatus(c, statusOf(err), err.Error(), "")
		return
	}
	response.Success(c, result)
}

// GetPortfolio 组合视图：统一现货价下盯市全部持仓
func (h *PositionHandler) GetPortfolio(c *gin.Context) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "owner_id is required", "")
		return
	}
	underlying := c.DefaultQuery("underlying", "ETH")

	spot, ok := h.spotPrice(c, underlying)
	if !ok {
		return
	}

	portfolio, err := h.positions.GetPortfolio(c.Request.Context(), ownerID, spot)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to build portfolio", "owner_id", ownerID, "error", err)
		response.ErrorWithStatus(c, statusOf(err), err.Error(), "")
		return
	}
	response.Success(c, portfolio)
}
