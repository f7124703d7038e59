package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/optionsvenue/internal/risk/application"
	"github.com/wyfcoding/optionsvenue/internal/risk/domain"
	"github.com/wyfcoding/optionsvenue/internal/risk/infrastructure/persistence/mysql"
)

// HTTP 处理器
// 负责处理风控查询相关的 HTTP 请求
type RiskHandler struct {
	engine *application.LiquidationEngine
	store  *mysql.LiquidationStore // 可为 nil
}

// 创建 HTTP 处理器实例
func NewRiskHandler(engine *application.LiquidationEngine, store *mysql.LiquidationStore) *RiskHandler {
	return &RiskHandler{engine: engine, store: store}
}

// RegisterRoutes 注册路由
func (h *RiskHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/risk")
	{
		api.GET("/positions/:id/level", h.GetRiskLevel)
		api.GET("/insurance-fund", h.GetInsuranceFund)
		api.GET("/liquidations", h.ListLiquidations)
	}
}

// GetRiskLevel 查询单个被跟踪持仓的风险等级
func (h *RiskHandler) GetRiskLevel(c *gin.Context) {
	level, err := h.engine.RiskLevel(c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrPositionNotTracked) {
			response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
			return
		}
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"position_id": c.Param("id"), "risk_level": level})
}

// GetInsuranceFund 查询保险基金
func (h *RiskHandler) GetInsuranceFund(c *gin.Context) {
	response.Success(c, gin.H{
		"balance": h.engine.InsuranceFund(),
		"tracked": h.engine.TrackedCount(),
	})
}

// ListLiquidations 按持有人查询强平历史
func (h *RiskHandler) ListLiquidations(c *gin.Context) {
	if h.store == nil {
		response.ErrorWithStatus(c, http.StatusNotImplemented, "liquidation history not persisted", "")
		return
	}

	ownerID := c.Query("owner_id")
	if ownerID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "owner_id is required", "")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid limit", "")
		return
	}

	records, err := h.store.ListByOwner(c.Request.Context(), ownerID, limit)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, records)
}
