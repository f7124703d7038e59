package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/optionsvenue/internal/account/application"
	"github.com/wyfcoding/optionsvenue/internal/account/domain"
)

// HTTP 处理器
// 负责处理资金账户相关的 HTTP 请求
type AccountHandler struct {
	accounts *application.BalanceManager
}

// 创建 HTTP 处理器实例
func NewAccountHandler(accounts *application.BalanceManager) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// RegisterRoutes 注册路由
func (h *AccountHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/accounts")
	{
		api.GET("/:trader_id", h.GetBalance)
		api.POST("/:trader_id/deposit", h.Deposit)
		api.POST("/:trader_id/withdraw", h.Withdraw)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrBalanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientBalance), errors.Is(err, domain.ErrInsufficientCollateral):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrAccountFrozen):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// GetBalance 查询账户
func (h *AccountHandler) GetBalance(c *gin.Context) {
	balance, err := h.accounts.Snapshot(c.Param("trader_id"))
	if err != nil {
		response.ErrorWithStatus(c, statusOf(err), err.Error(), "")
		return
	}
	response.Success(c, balance)
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// Deposit 入金
func (h *AccountHandler) Deposit(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	traderID := c.Param("trader_id")
	if err := h.accounts.Deposit(c.Request.Context(), traderID, req.Amount); err != nil {
		logging.Error(c.Request.Context(), "Failed to deposit", "trader_id", traderID, "error", err)
		response.ErrorWithStatus(c, statusOf(err), err.Error(), "")
		return
	}

	balance, _ := h.accounts.Snapshot(traderID)
	response.Success(c, balance)
}

// Withdraw 出金
func (h *AccountHandler) Withdraw(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}

	traderID := c.Param("trader_id")
	if err := h.accounts.Withdraw(c.Request.Context(), traderID, req.Amount); err != nil {
		logging.Error(c.Request.Context(), "Failed to withdraw", "trader_id", traderID, "error", err)
		response.ErrorWithStatus(c, statusOf(err), err.Error(), "")
		return
	}

	balance, _ := h.accounts.Snapshot(traderID)
	response.Success(c, balance)
}
