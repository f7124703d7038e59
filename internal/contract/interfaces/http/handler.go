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
	"github.com/wyfcoding/optionsvenue/internal/contract/application"
	"github.com/wyfcoding/optionsvenue/internal/contract/domain"
	mdomain "github.com/wyfcoding/optionsvenue/internal/marketdata/domain"
)

// HTTP 处理器
// 负责处理期权合约与订单簿相关的 HTTP 请求
type OptionsHandler struct {
	book *application.OrderBook
}

// 创建 HTTP 处理器实例
func NewOptionsHandler(book *application.OrderBook) *OptionsHandler {
	return &OptionsHandler{book: book}
}

// RegisterRoutes 注册路由
func (h *OptionsHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/options")
	{
		api.POST("", h.CreateOption)
		api.GET("", h.ListOptions)
		api.GET("/stats", h.MarketStats)
		api.GET("/:id", h.GetOption)
		api.GET("/:id/quote", h.QuoteOption)
		api.POST("/:id/buy", h.BuyOption)
		api.POST("/:id/exercise", h.ExerciseOption)
		api.POST("/:id/cancel", h.CancelOption)
	}
}

// statusOf 领域错误到 HTTP 状态码的映射。
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrOptionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyClaimed), errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrListingInactive):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOptionExpired), errors.Is(err, domain.ErrNotYetExpired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidParams), errors.Is(err, accountdomain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, accountdomain.ErrInsufficientBalance), errors.Is(err, accountdomain.ErrAccountFrozen):
		return http.StatusPaymentRequired
	case errors.Is(err, mdomain.ErrPriceUnavailable), errors.Is(err, mdomain.ErrPriceStale):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type createOptionRequest struct {
	IssuerID        string          `json:"issuer_id" binding:"required"`
	Underlying      string          `json:"underlying" binding:"required"`
	OptionType      string          `json:"option_type" binding:"required"`
	Strike          decimal.Decimal `json:"strike" binding:"required"`
	Premium         decimal.Decimal `json:"premium" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	DurationMinutes int             `json:"duration_minutes" binding:"required"`
}

// CreateOption 发行方开牌
func (h *OptionsHandler) CreateOption(c *gin.Context) {
	var req createOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	option, err := h.book.CreateOption(c.Request.Context(), req.IssuerID, application.CreateOptionParams{
		Underlying:      req.Underlying,
		OptionType:      domain.OptionType(req.OptionType),
		Strike:          req.Strike,
		Premium:         req.Premium,
		Amount:          req.Amount,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to create option", "issuer_id", req.IssuerID, "error", err)
		response.ErrorWithStatus(c, statusOf(err), err.Error(), "")
		return
	}

	response.Success(c, option)
}

// ListOptions 查询活跃挂牌，支持类型、执行价区间与到期区间过滤
func (h *OptionsHandler) ListOptions(c *gin.Context) {
	if kind := c.Query("type"); kind != "" {
		response.Success(c, h.book.ByKind(domain.OptionType(kind)))
		return
	}

	minStr, maxStr := c.Query("strike_min"), c.Query("strike_max")
	if minStr != "" && maxStr != "" {
		min, err := decimal.NewFromString(minStr)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid strike_min", "")
			return
		}
		max, err := decimal.NewFromString(maxStr)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid strike_max", "")
			return
		}
		response.Success(c, h.book.ByStrikeRange(min, max))
		return
	}

	fromStr, toStr := c.Query("expires_from"), c.Query("expires_to")
	if fromStr != "" && toStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid expires_from", "")
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid expires_to", "")
			return
		}
		response.Success(c, h.book.ByExpiryRange(from, to))
		return
	}

	response.Success(c, h.book.Listings())
}

// GetOption 按 ID 查询合约
func (h *OptionsHandler) GetOption(c *gin.Context) {
	option, err := h.book.Get(c.Param("id"))
	if err != nil {
		response.ErrorWithStatus(c, statusOf(err), err.Error(), "")
		return
	}
	response.Success(c, option)
}

// QuoteOption 只读报价
func (h *OptionsHandler) QuoteOption(c *gin.Context) {
	quote, err := h.book.Quote(c.Request.Context(), c.Param("id"))
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to quote option", "option_id", c.Param("id"), "error", err)
		response.ErrorWithStatus(c, statusOf(err), err.Error(), "")
		return
	}
	response.Success(c, quote)
}

type traderRequest struct {
	TraderID string `json:"trader_id" binding:"required"`
}

// BuyOption 吃单购买
func (h *OptionsHandler) BuyOption(c *gin.Context) {
	var req traderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	option, err := h.book.Buy(c.Request.Context(), c.Param("id"), req.TraderID)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to buy option", "option_id", c.Param("id"), "buyer", req.TraderID, "error", err)
		response.ErrorWithStatus(c, statusOf(err), err.Error(), "")
		return
	}
	response.Success(c, option)
}

// ExerciseOption 行权
func (h *OptionsHandler) ExerciseOption(c *gin.Context) {
	var req traderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	option, payout, err := h.book.Exercise(c.Request.Context(), c.Param("id"), req.TraderID)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to exercise option", "option_id", c.Param("id"), "caller", req.TraderID, "error", err)
		response.ErrorWithStatus(c, statusOf(err), err.Error(), "")
		return
	}
	response.Success(c, gin.H{"option": option, "payout": payout})
}

// CancelOption 发行方撤牌
func (h *OptionsHandler) CancelOption(c *gin.Context) {
	var req traderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	option, err := h.book.Cancel(c.Request.Context(), c.Param("id"), req.TraderID)
	if err != nil {
		response.ErrorWithStatus(c, statusOf(err), err.Error(), "")
		return
	}
	response.Success(c, option)
}

// MarketStats 市场聚合统计
func (h *OptionsHandler) MarketStats(c *gin.Context) {
	response.Success(c, h.book.Stats())
}
