// Package domain 持仓风控引擎的领域模型
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side 持仓方向
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Valid 校验方向取值
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// sign 方向系数: 多头为 1, 空头为 -1
func (s Side) sign() decimal.Decimal {
	if s == SideShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Position 单笔方向性持仓
// Quantity 始终为正的数量幅度，方向由 Side 单独表示，
// 平仓只会减少幅度，不允许通过数量翻转方向。
type Position struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	DayPnL        decimal.Decimal `json:"day_pnl"`
	Commission    decimal.Decimal `json:"commission"`
	DayRefPrice   decimal.Decimal `json:"day_ref_price"`
	DayRefDate    time.Time       `json:"day_ref_date"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewPosition 创建新持仓，初始估值以开仓价为当前价
func NewPosition(id, symbol string, side Side, quantity, entryPrice decimal.Decimal, now time.Time) *Position {
	p := &Position{
		ID:          id,
		Symbol:      symbol,
		Side:        side,
		Quantity:    quantity,
		EntryPrice:  entryPrice,
		DayRefPrice: entryPrice,
		DayRefDate:  truncateDay(now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.mark(entryPrice)
	return p
}

// TotalPnL 总盈亏 = 已实现 + 未实现
func (p *Position) TotalPnL() decimal.Decimal {
	return p.RealizedPnL.Add(p.UnrealizedPnL)
}

// Revalue 按最新价格重估持仓
// 市值、未实现盈亏、当日盈亏作为一个整体更新，调用方（引擎 actor）
// 保证外部读取只能看到重估前或重估后的完整状态。
func (p *Position) Revalue(price decimal.Decimal, ts time.Time) {
	day := truncateDay(ts)
	if day.After(p.DayRefDate) {
		// 跨日：以前一交易日收盘价（上次估值价）作为当日参考价
		p.DayRefPrice = p.CurrentPrice
		p.DayRefDate = day
	}
	p.mark(price)
	p.UpdatedAt = ts
}

// mark 以给定价格刷新估值字段
func (p *Position) mark(price decimal.Decimal) {
	p.CurrentPrice = price
	p.MarketValue = p.Quantity.Mul(price)
	p.CostBasis = p.Quantity.Mul(p.EntryPrice)
	p.UnrealizedPnL = price.Sub(p.EntryPrice).Mul(p.Quantity).Mul(p.Side.sign())
	p.DayPnL = price.Sub(p.DayRefPrice).Mul(p.Quantity).Mul(p.Side.sign())
}

// reduce 按当前价平掉 quantity 数量，返回该部分扣除手续费后的已实现盈亏。
// 调用方负责校验 quantity 不超过剩余幅度。
func (p *Position) reduce(quantity, commission decimal.Decimal, now time.Time) decimal.Decimal {
	pnl := p.CurrentPrice.Sub(p.EntryPrice).Mul(quantity).Mul(p.Side.sign()).Sub(commission)
	p.Quantity = p.Quantity.Sub(quantity)
	p.RealizedPnL = p.RealizedPnL.Add(pnl)
	p.Commission = p.Commission.Add(commission)
	p.mark(p.CurrentPrice)
	p.UpdatedAt = now
	return pnl
}

// Closed 持仓是否已全部平掉
func (p *Position) Closed() bool {
	return p.Quantity.IsZero()
}

// Clone 返回持仓的独立副本，用于对外快照
func (p *Position) Clone() *Position {
	cp := *p
	return &cp
}

// truncateDay 截断到 UTC 自然日
func truncateDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
