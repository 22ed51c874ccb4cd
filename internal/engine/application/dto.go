package application

import (
	"time"

	"github.com/wyfcoding/riskengine/internal/engine/domain"
)

// PositionDTO 持仓 DTO，金额字段以字符串编码避免精度丢失
type PositionDTO struct {
	PositionID    string `json:"position_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Quantity      string `json:"quantity"`
	EntryPrice    string `json:"entry_price"`
	CurrentPrice  string `json:"current_price"`
	MarketValue   string `json:"market_value"`
	CostBasis     string `json:"cost_basis"`
	UnrealizedPnL string `json:"unrealized_pnl"`
	RealizedPnL   string `json:"realized_pnl"`
	TotalPnL      string `json:"total_pnl"`
	DayPnL        string `json:"day_pnl"`
	Commission    string `json:"commission"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// NewPositionDTO 由领域对象构造 DTO
func NewPositionDTO(p *domain.Position) *PositionDTO {
	return &PositionDTO{
		PositionID:    p.ID,
		Symbol:        p.Symbol,
		Side:          string(p.Side),
		Quantity:      p.Quantity.String(),
		EntryPrice:    p.EntryPrice.String(),
		CurrentPrice:  p.CurrentPrice.String(),
		MarketValue:   p.MarketValue.String(),
		CostBasis:     p.CostBasis.String(),
		UnrealizedPnL: p.UnrealizedPnL.String(),
		RealizedPnL:   p.RealizedPnL.String(),
		TotalPnL:      p.TotalPnL().String(),
		DayPnL:        p.DayPnL.String(),
		Commission:    p.Commission.String(),
		CreatedAt:     p.CreatedAt.UnixMilli(),
		UpdatedAt:     p.UpdatedAt.UnixMilli(),
	}
}

// NewPositionDTOs 批量转换
func NewPositionDTOs(positions []*domain.Position) []*PositionDTO {
	out := make([]*PositionDTO, 0, len(positions))
	for _, p := range positions {
		out = append(out, NewPositionDTO(p))
	}
	return out
}

// PortfolioDTO 组合汇总 DTO
type PortfolioDTO struct {
	TotalValue    string `json:"total_value"`
	Cash          string `json:"cash"`
	TotalPnL      string `json:"total_pnl"`
	TotalPnLPct   string `json:"total_pnl_percent"`
	DayPnL        string `json:"day_pnl"`
	DayPnLPct     string `json:"day_pnl_percent"`
	PositionCount int    `json:"position_count"`
	UpdatedAt     int64  `json:"updated_at"`
}

// NewPortfolioDTO 由领域对象构造 DTO
func NewPortfolioDTO(pf domain.Portfolio) *PortfolioDTO {
	return &PortfolioDTO{
		TotalValue:    pf.TotalValue.String(),
		Cash:          pf.Cash.String(),
		TotalPnL:      pf.TotalPnL.String(),
		TotalPnLPct:   pf.TotalPnLPct.String(),
		DayPnL:        pf.DayPnL.String(),
		DayPnLPct:     pf.DayPnLPct.String(),
		PositionCount: pf.PositionCount,
		UpdatedAt:     pf.UpdatedAt.UnixMilli(),
	}
}

// RiskControlDTO 风控阈值 DTO，未设置的字段省略
type RiskControlDTO struct {
	PositionID     string `json:"position_id"`
	StopLoss       string `json:"stop_loss,omitempty"`
	TakeProfit     string `json:"take_profit,omitempty"`
	MaxLoss        string `json:"max_loss,omitempty"`
	MaxLossPercent string `json:"max_loss_percent,omitempty"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// NewRiskControlDTO 由领域对象构造 DTO
func NewRiskControlDTO(rc *domain.RiskControl) *RiskControlDTO {
	dto := &RiskControlDTO{
		PositionID: rc.PositionID,
		CreatedAt:  rc.CreatedAt.UnixMilli(),
		UpdatedAt:  rc.UpdatedAt.UnixMilli(),
	}
	if rc.StopLoss != nil {
		dto.StopLoss = rc.StopLoss.String()
	}
	if rc.TakeProfit != nil {
		dto.TakeProfit = rc.TakeProfit.String()
	}
	if rc.MaxLoss != nil {
		dto.MaxLoss = rc.MaxLoss.String()
	}
	if rc.MaxLossPercent != nil {
		dto.MaxLossPercent = rc.MaxLossPercent.String()
	}
	return dto
}

// HistoryEntryDTO 历史记录 DTO
type HistoryEntryDTO struct {
	ID          uint64 `json:"id"`
	PositionID  string `json:"position_id"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Action      string `json:"action"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	RealizedPnL string `json:"realized_pnl"`
	Commission  string `json:"commission"`
	Reason      string `json:"reason,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// NewHistoryEntryDTOs 批量转换
func NewHistoryEntryDTOs(entries []domain.HistoryEntry) []*HistoryEntryDTO {
	out := make([]*HistoryEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, &HistoryEntryDTO{
			ID:          e.ID,
			PositionID:  e.PositionID,
			Symbol:      e.Symbol,
			Side:        string(e.Side),
			Action:      string(e.Action),
			Quantity:    e.Quantity.String(),
			Price:       e.Price.String(),
			RealizedPnL: e.RealizedPnL.String(),
			Commission:  e.Commission.String(),
			Reason:      e.Reason,
			Timestamp:   e.Timestamp.UnixMilli(),
		})
	}
	return out
}

// formatTime 导出用时间格式
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
