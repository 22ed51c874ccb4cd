package domain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Action 持仓生命周期动作
type Action string

const (
	ActionOpen         Action = "OPEN"
	ActionClose        Action = "CLOSE"
	ActionPartialClose Action = "PARTIAL_CLOSE"
	ActionStopLoss     Action = "STOP_LOSS"
	ActionTakeProfit   Action = "TAKE_PROFIT"
	// ActionMaxLoss 绝对与百分比最大亏损触发共用该动作，
	// 两者通过 Reason 字段区分。
	ActionMaxLoss Action = "MAX_LOSS"
)

// HistoryEntry 生命周期事件的不可变记录
type HistoryEntry struct {
	ID          uint64          `json:"id"`
	PositionID  string          `json:"position_id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Action      Action          `json:"action"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Commission  decimal.Decimal `json:"commission"`
	Reason      string          `json:"reason,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// History 只追加的审计账本
// 写入只发生在引擎 actor 内；读锁允许快照读取不经过 actor。
type History struct {
	mu       sync.RWMutex
	nextID   uint64
	entries  []HistoryEntry
	onAppend func(HistoryEntry)
}

// NewHistory 创建历史账本
func NewHistory() *History {
	return &History{nextID: 1}
}

// SetOnAppend 注册追加回调，每条记录恰好回调一次。
// 须在开始写入前设置。
func (h *History) SetOnAppend(fn func(HistoryEntry)) {
	h.onAppend = fn
}

// Append 追加一条记录并分配序号，返回写入后的记录
func (h *History) Append(entry HistoryEntry) HistoryEntry {
	h.mu.Lock()
	entry.ID = h.nextID
	h.nextID++
	h.entries = append(h.entries, entry)
	h.mu.Unlock()

	if h.onAppend != nil {
		h.onAppend(entry)
	}
	return entry
}

// Query 按持仓过滤查询，positionID 为空返回全部，最近的记录在前
func (h *History) Query(positionID string) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]HistoryEntry, 0, len(h.entries))
	for i := len(h.entries) - 1; i >= 0; i-- {
		if positionID == "" || h.entries[i].PositionID == positionID {
			out = append(out, h.entries[i])
		}
	}
	return out
}

// Len 记录总数
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
