package application

import (
	"strconv"
	"strings"

	"github.com/wyfcoding/riskengine/internal/engine/domain"
)

// 持仓导出列，顺序固定
var positionCSVHeader = []string{
	"position_id", "symbol", "side", "quantity", "avg_price", "current_price",
	"market_value", "unrealized_pnl", "realized_pnl", "total_pnl", "day_pnl",
	"commission", "created_at", "updated_at",
}

// 历史导出列，顺序固定
var historyCSVHeader = []string{
	"id", "position_id", "symbol", "side", "action", "quantity", "price",
	"realized_pnl", "commission", "reason", "timestamp",
}

// PositionsCSV 将持仓快照序列化为 CSV。
// 所有值（含表头）都用双引号包裹，内部引号按双写转义，
// 与下游表格导入约定保持一致。
func PositionsCSV(positions []*domain.Position) string {
	var b strings.Builder
	writeCSVRow(&b, positionCSVHeader)
	for _, p := range positions {
		writeCSVRow(&b, []string{
			p.ID,
			p.Symbol,
			string(p.Side),
			p.Quantity.String(),
			p.EntryPrice.String(),
			p.CurrentPrice.String(),
			p.MarketValue.String(),
			p.UnrealizedPnL.String(),
			p.RealizedPnL.String(),
			p.TotalPnL().String(),
			p.DayPnL.String(),
			p.Commission.String(),
			formatTime(p.CreatedAt),
			formatTime(p.UpdatedAt),
		})
	}
	return b.String()
}

// HistoryCSV 将历史记录序列化为 CSV，记录顺序与入参一致
func HistoryCSV(entries []domain.HistoryEntry) string {
	var b strings.Builder
	writeCSVRow(&b, historyCSVHeader)
	for _, e := range entries {
		writeCSVRow(&b, []string{
			strconv.FormatUint(e.ID, 10),
			e.PositionID,
			e.Symbol,
			string(e.Side),
			string(e.Action),
			e.Quantity.String(),
			e.Price.String(),
			e.RealizedPnL.String(),
			e.Commission.String(),
			e.Reason,
			formatTime(e.Timestamp),
		})
	}
	return b.String()
}

func writeCSVRow(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}
