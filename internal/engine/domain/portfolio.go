package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio 组合级汇总快照，由持仓集合与现金纯计算得出，自身不可独立变更
type Portfolio struct {
	TotalValue    decimal.Decimal `json:"total_value"`
	Cash          decimal.Decimal `json:"cash"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	TotalPnLPct   decimal.Decimal `json:"total_pnl_percent"`
	DayPnL        decimal.Decimal `json:"day_pnl"`
	DayPnLPct     decimal.Decimal `json:"day_pnl_percent"`
	PositionCount int             `json:"position_count"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// RecomputePortfolio 从持仓集合和现金重算组合汇总。
// 百分比以总市值为基数，总市值为零时按 0% 处理。
func RecomputePortfolio(positions []*Position, cash decimal.Decimal, now time.Time) Portfolio {
	marketValue := decimal.Zero
	totalPnL := decimal.Zero
	dayPnL := decimal.Zero

	for _, p := range positions {
		marketValue = marketValue.Add(p.MarketValue.Abs())
		totalPnL = totalPnL.Add(p.TotalPnL())
		dayPnL = dayPnL.Add(p.DayPnL)
	}

	pf := Portfolio{
		TotalValue:    marketValue.Add(cash),
		Cash:          cash,
		TotalPnL:      totalPnL,
		DayPnL:        dayPnL,
		PositionCount: len(positions),
		UpdatedAt:     now,
	}

	if marketValue.IsPositive() {
		hundred := decimal.NewFromInt(100)
		pf.TotalPnLPct = totalPnL.Div(marketValue).Mul(hundred)
		pf.DayPnLPct = dayPnL.Div(marketValue).Mul(hundred)
	}
	return pf
}
