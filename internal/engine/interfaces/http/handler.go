// Package http 暴露引擎的 REST 接口
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"
	"github.com/wyfcoding/pkg/xerrors"

	"github.com/wyfcoding/riskengine/internal/engine/application"
	"github.com/wyfcoding/riskengine/internal/engine/domain"
)

// EngineHandler 引擎 HTTP 处理器
type EngineHandler struct {
	engine *application.Engine
}

// NewEngineHandler 创建 HTTP 处理器
func NewEngineHandler(engine *application.Engine) *EngineHandler {
	return &EngineHandler{engine: engine}
}

// RegisterRoutes 注册路由
func (h *EngineHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1")
	{
		api.GET("/positions", h.GetPositions)
		api.GET("/positions/:id", h.GetPosition)
		api.POST("/positions", h.OpenPosition)
		api.POST("/positions/:id/close", h.ClosePosition)
		api.POST("/positions/close-all", h.CloseAll)

		api.PUT("/positions/:id/stop-loss", h.SetStopLoss)
		api.PUT("/positions/:id/take-profit", h.SetTakeProfit)
		api.PUT("/positions/:id/max-loss", h.SetMaxLoss)
		api.GET("/positions/:id/risk-control", h.GetRiskControl)

		api.GET("/positions/:id/history", h.GetPositionHistory)
		api.GET("/history", h.GetHistory)
		api.GET("/portfolio", h.GetPortfolio)

		api.GET("/export/positions.csv", h.ExportPositions)
		api.GET("/export/history.csv", h.ExportHistory)

		api.POST("/ticks", h.IngestTick)
	}
}

// GetPositions 获取全部持仓
func (h *EngineHandler) GetPositions(c *gin.Context) {
	positions := h.engine.GetPositions()
	c.JSON(http.StatusOK, gin.H{
		"data":  application.NewPositionDTOs(positions),
		"total": len(positions),
	})
}

// GetPosition 获取持仓详情
func (h *EngineHandler) GetPosition(c *gin.Context) {
	positionID := c.Param("id")
	for _, p := range h.engine.GetPositions() {
		if p.ID == positionID {
			response.Success(c, application.NewPositionDTO(p))
			return
		}
	}
	response.Error(c, xerrors.NotFound("position not found"))
}

// OpenPositionRequest 开仓请求
type OpenPositionRequest struct {
	Symbol     string `json:"symbol" binding:"required"`
	Side       string `json:"side" binding:"required"`
	Quantity   string `json:"quantity" binding:"required"`
	EntryPrice string `json:"entry_price" binding:"required"`
}

// OpenPosition 开仓
func (h *EngineHandler) OpenPosition(c *gin.Context) {
	var req OpenPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, xerrors.InvalidArg(err.Error()))
		return
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		response.Error(c, xerrors.InvalidArg("invalid quantity"))
		return
	}
	entryPrice, err := decimal.NewFromString(req.EntryPrice)
	if err != nil {
		response.Error(c, xerrors.InvalidArg("invalid entry price"))
		return
	}

	p, err := h.engine.OpenPosition(c.Request.Context(), req.Symbol, domain.Side(req.Side), quantity, entryPrice)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, application.NewPositionDTO(p))
}

// ClosePositionRequest 平仓请求，quantity 省略表示全平
type ClosePositionRequest struct {
	Quantity string `json:"quantity"`
}

// ClosePosition 平仓
func (h *EngineHandler) ClosePosition(c *gin.Context) {
	positionID := c.Param("id")

	// 空请求体按全平处理
	var req ClosePositionRequest
	_ = c.ShouldBindJSON(&req)

	quantity := decimal.Zero
	if req.Quantity != "" {
		var err error
		quantity, err = decimal.NewFromString(req.Quantity)
		if err != nil {
			response.Error(c, xerrors.InvalidArg("invalid quantity"))
			return
		}
	}

	closed, err := h.engine.ClosePosition(c.Request.Context(), positionID, quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !closed {
		response.Error(c, xerrors.NotFound("position not found"))
		return
	}
	response.Success(c, gin.H{"status": "closed"})
}

// CloseAllRequest 全平请求
type CloseAllRequest struct {
	Reason string `json:"reason"`
}

// CloseAll 平掉所有持仓
func (h *EngineHandler) CloseAll(c *gin.Context) {
	var req CloseAllRequest
	_ = c.ShouldBindJSON(&req)

	count, err := h.engine.CloseAll(c.Request.Context(), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	logging.Info(c.Request.Context(), "close all requested", "closed", count, "reason", req.Reason)
	response.Success(c, gin.H{"closed": count})
}

// ThresholdRequest 止损/止盈阈值请求
type ThresholdRequest struct {
	Price string `json:"price" binding:"required"`
}

// SetStopLoss 设置止损
func (h *EngineHandler) SetStopLoss(c *gin.Context) {
	h.setThreshold(c, h.engine.SetStopLoss)
}

// SetTakeProfit 设置止盈
func (h *EngineHandler) SetTakeProfit(c *gin.Context) {
	h.setThreshold(c, h.engine.SetTakeProfit)
}

func (h *EngineHandler) setThreshold(c *gin.Context, set func(ctx context.Context, positionID string, price decimal.Decimal) (bool, error)) {
	positionID := c.Param("id")

	var req ThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, xerrors.InvalidArg(err.Error()))
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		response.Error(c, xerrors.InvalidArg("invalid price"))
		return
	}

	found, err := set(c.Request.Context(), positionID, price)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !found {
		response.Error(c, xerrors.NotFound("position not found"))
		return
	}
	response.Success(c, gin.H{"status": "ok"})
}

// MaxLossRequest 最大亏损阈值请求，至少填一项
type MaxLossRequest struct {
	MaxLoss        string `json:"max_loss"`
	MaxLossPercent string `json:"max_loss_percent"`
}

// SetMaxLoss 设置最大亏损阈值
func (h *EngineHandler) SetMaxLoss(c *gin.Context) {
	positionID := c.Param("id")

	var req MaxLossRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, xerrors.InvalidArg(err.Error()))
		return
	}
	if req.MaxLoss == "" && req.MaxLossPercent == "" {
		response.Error(c, xerrors.InvalidArg("max_loss or max_loss_percent is required"))
		return
	}

	var absolute, percent *decimal.Decimal
	if req.MaxLoss != "" {
		v, err := decimal.NewFromString(req.MaxLoss)
		if err != nil {
			response.Error(c, xerrors.InvalidArg("invalid max_loss"))
			return
		}
		absolute = &v
	}
	if req.MaxLossPercent != "" {
		v, err := decimal.NewFromString(req.MaxLossPercent)
		if err != nil {
			response.Error(c, xerrors.InvalidArg("invalid max_loss_percent"))
			return
		}
		percent = &v
	}

	found, err := h.engine.SetMaxLoss(c.Request.Context(), positionID, absolute, percent)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !found {
		response.Error(c, xerrors.NotFound("position not found"))
		return
	}
	response.Success(c, gin.H{"status": "ok"})
}

// GetRiskControl 查询风控阈值
func (h *EngineHandler) GetRiskControl(c *gin.Context) {
	positionID := c.Param("id")

	rc, found, err := h.engine.GetRiskControl(c.Request.Context(), positionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !found {
		response.Error(c, xerrors.NotFound("risk control not found"))
		return
	}
	response.Success(c, application.NewRiskControlDTO(rc))
}

// GetPositionHistory 查询单个持仓的历史
func (h *EngineHandler) GetPositionHistory(c *gin.Context) {
	entries := h.engine.History(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{
		"data":  application.NewHistoryEntryDTOs(entries),
		"total": len(entries),
	})
}

// GetHistory 查询全部历史
func (h *EngineHandler) GetHistory(c *gin.Context) {
	entries := h.engine.History("")
	c.JSON(http.StatusOK, gin.H{
		"data":  application.NewHistoryEntryDTOs(entries),
		"total": len(entries),
	})
}

// GetPortfolio 查询组合汇总
func (h *EngineHandler) GetPortfolio(c *gin.Context) {
	response.Success(c, application.NewPortfolioDTO(h.engine.GetPortfolio()))
}

// ExportPositions 导出持仓 CSV
func (h *EngineHandler) ExportPositions(c *gin.Context) {
	csv := application.PositionsCSV(h.engine.GetPositions())
	c.Header("Content-Disposition", `attachment; filename="positions.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(csv))
}

// ExportHistory 导出历史 CSV
func (h *EngineHandler) ExportHistory(c *gin.Context) {
	csv := application.HistoryCSV(h.engine.History(""))
	c.Header("Content-Disposition", `attachment; filename="history.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(csv))
}

// TickRequest 行情注入请求
type TickRequest struct {
	Symbol    string `json:"symbol" binding:"required"`
	Price     string `json:"price" binding:"required"`
	Timestamp int64  `json:"timestamp"` // Unix 毫秒，省略则取当前时间
}

// IngestTick 注入一笔行情，主要用于联调和回放
func (h *EngineHandler) IngestTick(c *gin.Context) {
	var req TickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, xerrors.InvalidArg(err.Error()))
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || !price.IsPositive() {
		response.Error(c, xerrors.InvalidArg("invalid price"))
		return
	}

	ts := time.Now()
	if req.Timestamp > 0 {
		ts = time.UnixMilli(req.Timestamp)
	}

	if err := h.engine.IngestTick(c.Request.Context(), domain.Tick{
		Symbol:    req.Symbol,
		Price:     price,
		Timestamp: ts,
	}); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"status": "accepted"})
}

// writeError 统一错误映射
func (h *EngineHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidSide),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidSize):
		response.Error(c, xerrors.InvalidArg(err.Error()))
	case errors.Is(err, application.ErrEngineStopped):
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, err.Error(), "")
	default:
		logging.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		response.Error(c, xerrors.WrapInternal(err, "request failed"))
	}
}
