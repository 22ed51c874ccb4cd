package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Tick 单个标的的一次价格观测
type Tick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// CloseResult 一次平仓的结果
type CloseResult struct {
	Entry   HistoryEntry
	Removed bool
}

// Ledger 持仓账本，持有全部未平仓位并负责估值与平仓核算。
// 同一标的允许多条持仓记录并存（不做对冲净额），每次开仓新增一行。
// 账本只由引擎 actor 串行访问，不做内部加锁。
type Ledger struct {
	positions      map[string]*Position
	order          []string // 开仓顺序，保证列表输出确定
	history        *History
	commissionRate decimal.Decimal // 手续费率（基点）
	nextID         uint64
}

// NewLedger 创建账本
// commissionBps: 按名义金额收取的手续费基点数。
func NewLedger(history *History, commissionBps decimal.Decimal) *Ledger {
	return &Ledger{
		positions:      make(map[string]*Position),
		history:        history,
		commissionRate: commissionBps.Div(decimal.NewFromInt(10000)),
		nextID:         1,
	}
}

// Open 开仓，总是新增一条持仓记录并写入 OPEN 历史
func (l *Ledger) Open(symbol string, side Side, quantity, entryPrice decimal.Decimal, now time.Time) (*Position, error) {
	if !side.Valid() {
		return nil, ErrInvalidSide
	}
	if !quantity.IsPositive() {
		return nil, ErrInvalidSize
	}
	if !entryPrice.IsPositive() {
		return nil, ErrInvalidPrice
	}

	id := fmt.Sprintf("POS%d", l.nextID)
	l.nextID++

	p := NewPosition(id, symbol, side, quantity, entryPrice, now)
	l.positions[id] = p
	l.order = append(l.order, id)

	l.history.Append(HistoryEntry{
		PositionID: id,
		Symbol:     symbol,
		Side:       side,
		Action:     ActionOpen,
		Quantity:   quantity,
		Price:      entryPrice,
		Timestamp:  now,
	})
	return p, nil
}

// Revalue 对匹配标的的全部持仓重估，返回受影响的持仓。
// 未知标的直接忽略，不视为错误。
func (l *Ledger) Revalue(tick Tick) []*Position {
	var changed []*Position
	for _, id := range l.order {
		p := l.positions[id]
		if p == nil || p.Symbol != tick.Symbol {
			continue
		}
		p.Revalue(tick.Price, tick.Timestamp)
		changed = append(changed, p)
	}
	return changed
}

// Close 平仓。quantity 为零值表示全平；action 标记历史记录的动作类型。
// 持仓不存在时返回 (nil, false, nil)，不视为错误。
func (l *Ledger) Close(positionID string, quantity decimal.Decimal, action Action, reason string, now time.Time) (*CloseResult, bool, error) {
	p, ok := l.positions[positionID]
	if !ok {
		return nil, false, nil
	}

	full := quantity.IsZero() || quantity.Equal(p.Quantity)
	if full {
		quantity = p.Quantity
	} else if quantity.GreaterThan(p.Quantity) {
		return nil, true, ErrInvalidQuantity
	} else if !quantity.IsPositive() {
		return nil, true, ErrInvalidSize
	}

	if action == ActionClose && !full {
		action = ActionPartialClose
	}

	commission := quantity.Mul(p.CurrentPrice).Mul(l.commissionRate)
	realized := p.reduce(quantity, commission, now)

	entry := l.history.Append(HistoryEntry{
		PositionID:  p.ID,
		Symbol:      p.Symbol,
		Side:        p.Side,
		Action:      action,
		Quantity:    quantity,
		Price:       p.CurrentPrice,
		RealizedPnL: realized,
		Commission:  commission,
		Reason:      reason,
		Timestamp:   now,
	})

	result := &CloseResult{Entry: entry, Removed: p.Closed()}
	if result.Removed {
		l.remove(positionID)
	}
	return result, true, nil
}

// CloseAll 按账本顺序全平所有持仓，返回每笔平仓结果
func (l *Ledger) CloseAll(reason string, now time.Time) []*CloseResult {
	ids := make([]string, len(l.order))
	copy(ids, l.order)

	var results []*CloseResult
	for _, id := range ids {
		res, ok, err := l.Close(id, decimal.Zero, ActionClose, reason, now)
		if !ok || err != nil {
			continue
		}
		results = append(results, res)
	}
	return results
}

// History 返回账本挂接的历史记录
func (l *Ledger) History() *History {
	return l.history
}

// Get 按 ID 取持仓（活动引用，仅限 actor 内部使用）
func (l *Ledger) Get(positionID string) (*Position, bool) {
	p, ok := l.positions[positionID]
	return p, ok
}

// Positions 按开仓顺序返回活动引用列表（仅限 actor 内部使用）
func (l *Ledger) Positions() []*Position {
	out := make([]*Position, 0, len(l.positions))
	for _, id := range l.order {
		if p, ok := l.positions[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// SnapshotPositions 返回全部持仓的独立副本，供对外快照
func (l *Ledger) SnapshotPositions() []*Position {
	out := make([]*Position, 0, len(l.positions))
	for _, id := range l.order {
		if p, ok := l.positions[id]; ok {
			out = append(out, p.Clone())
		}
	}
	return out
}

// Count 持仓数量
func (l *Ledger) Count() int {
	return len(l.positions)
}

// remove 删除持仓并维护顺序索引
func (l *Ledger) remove(positionID string) {
	delete(l.positions, positionID)
	for i, id := range l.order {
		if id == positionID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}
