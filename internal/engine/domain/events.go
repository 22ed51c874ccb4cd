package domain

import "time"

const (
	PositionOpenedEventType    = "PositionOpened"
	PositionClosedEventType    = "PositionClosed"
	RiskTriggerFiredEventType  = "RiskTriggerFired"
	PositionLifecycleEventType = "PositionLifecycle"
)

// PositionLifecycleEvent 持仓生命周期事件，对应一条历史记录，
// 通过消息总线对外发布。
type PositionLifecycleEvent struct {
	EventType   string    `json:"event_type"`
	EntryID     uint64    `json:"entry_id"`
	PositionID  string    `json:"position_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Action      string    `json:"action"`
	Quantity    string    `json:"quantity"`
	Price       string    `json:"price"`
	RealizedPnL string    `json:"realized_pnl"`
	Commission  string    `json:"commission"`
	Reason      string    `json:"reason,omitempty"`
	OccurredOn  time.Time `json:"occurred_on"`
}

// NewLifecycleEvent 由历史记录构造对外事件
func NewLifecycleEvent(entry HistoryEntry) PositionLifecycleEvent {
	eventType := PositionLifecycleEventType
	switch entry.Action {
	case ActionOpen:
		eventType = PositionOpenedEventType
	case ActionClose, ActionPartialClose:
		eventType = PositionClosedEventType
	case ActionStopLoss, ActionTakeProfit, ActionMaxLoss:
		eventType = RiskTriggerFiredEventType
	}
	return PositionLifecycleEvent{
		EventType:   eventType,
		EntryID:     entry.ID,
		PositionID:  entry.PositionID,
		Symbol:      entry.Symbol,
		Side:        string(entry.Side),
		Action:      string(entry.Action),
		Quantity:    entry.Quantity.String(),
		Price:       entry.Price.String(),
		RealizedPnL: entry.RealizedPnL.String(),
		Commission:  entry.Commission.String(),
		Reason:      entry.Reason,
		OccurredOn:  entry.Timestamp,
	}
}
