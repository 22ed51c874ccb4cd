package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TriggerKind 风控触发类型
type TriggerKind string

const (
	TriggerNone           TriggerKind = ""
	TriggerStopLoss       TriggerKind = "STOP_LOSS"
	TriggerTakeProfit     TriggerKind = "TAKE_PROFIT"
	TriggerMaxLossAbs     TriggerKind = "MAX_LOSS_ABS"
	TriggerMaxLossPercent TriggerKind = "MAX_LOSS_PERCENT"
)

// Action 触发类型对应的历史动作
func (k TriggerKind) Action() Action {
	switch k {
	case TriggerStopLoss:
		return ActionStopLoss
	case TriggerTakeProfit:
		return ActionTakeProfit
	case TriggerMaxLossAbs, TriggerMaxLossPercent:
		return ActionMaxLoss
	default:
		return ActionClose
	}
}

// RiskControl 单个持仓的可选风控阈值
// nil 字段表示未设置；全部为 nil 的控制等价于无控制，应被剪除。
type RiskControl struct {
	PositionID     string           `json:"position_id"`
	StopLoss       *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit     *decimal.Decimal `json:"take_profit,omitempty"`
	MaxLoss        *decimal.Decimal `json:"max_loss,omitempty"`
	MaxLossPercent *decimal.Decimal `json:"max_loss_percent,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Empty 是否没有任何生效字段
func (rc *RiskControl) Empty() bool {
	return rc.StopLoss == nil && rc.TakeProfit == nil &&
		rc.MaxLoss == nil && rc.MaxLossPercent == nil
}

// Evaluate 按固定顺序检查触发条件，命中第一个即返回，
// 同一轮评估内不再检查后续条件。
func (rc *RiskControl) Evaluate(p *Position) TriggerKind {
	if rc.StopLoss != nil {
		if p.Side == SideLong && p.CurrentPrice.LessThanOrEqual(*rc.StopLoss) {
			return TriggerStopLoss
		}
		if p.Side == SideShort && p.CurrentPrice.GreaterThanOrEqual(*rc.StopLoss) {
			return TriggerStopLoss
		}
	}
	if rc.TakeProfit != nil {
		if p.Side == SideLong && p.CurrentPrice.GreaterThanOrEqual(*rc.TakeProfit) {
			return TriggerTakeProfit
		}
		if p.Side == SideShort && p.CurrentPrice.LessThanOrEqual(*rc.TakeProfit) {
			return TriggerTakeProfit
		}
	}
	if rc.MaxLoss != nil {
		if p.UnrealizedPnL.LessThanOrEqual(rc.MaxLoss.Abs().Neg()) {
			return TriggerMaxLossAbs
		}
	}
	if rc.MaxLossPercent != nil && p.CostBasis.IsPositive() {
		lossPct := p.UnrealizedPnL.Div(p.CostBasis).Mul(decimal.NewFromInt(100))
		if lossPct.LessThanOrEqual(rc.MaxLossPercent.Abs().Neg()) {
			return TriggerMaxLossPercent
		}
	}
	return TriggerNone
}

// Clone 返回独立副本
func (rc *RiskControl) Clone() *RiskControl {
	cp := *rc
	if rc.StopLoss != nil {
		v := *rc.StopLoss
		cp.StopLoss = &v
	}
	if rc.TakeProfit != nil {
		v := *rc.TakeProfit
		cp.TakeProfit = &v
	}
	if rc.MaxLoss != nil {
		v := *rc.MaxLoss
		cp.MaxLoss = &v
	}
	if rc.MaxLossPercent != nil {
		v := *rc.MaxLossPercent
		cp.MaxLossPercent = &v
	}
	return &cp
}

// Registry 风控阈值注册表，一个持仓至多一条记录。
// 仅由引擎 actor 读写，无需内部加锁。
type Registry struct {
	controls map[string]*RiskControl
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{controls: make(map[string]*RiskControl)}
}

// upsert 取出或新建指定持仓的控制记录
func (r *Registry) upsert(positionID string, now time.Time) *RiskControl {
	rc, ok := r.controls[positionID]
	if !ok {
		rc = &RiskControl{PositionID: positionID, CreatedAt: now}
		r.controls[positionID] = rc
	}
	rc.UpdatedAt = now
	return rc
}

// SetStopLoss 设置止损价，只更新该字段
func (r *Registry) SetStopLoss(positionID string, price decimal.Decimal, now time.Time) {
	r.upsert(positionID, now).StopLoss = &price
}

// SetTakeProfit 设置止盈价，只更新该字段
func (r *Registry) SetTakeProfit(positionID string, price decimal.Decimal, now time.Time) {
	r.upsert(positionID, now).TakeProfit = &price
}

// SetMaxLoss 设置最大亏损阈值，absolute 与 percent 可单独传入
func (r *Registry) SetMaxLoss(positionID string, absolute, percent *decimal.Decimal, now time.Time) {
	rc := r.upsert(positionID, now)
	if absolute != nil {
		rc.MaxLoss = absolute
	}
	if percent != nil {
		rc.MaxLossPercent = percent
	}
	if rc.Empty() {
		delete(r.controls, positionID)
	}
}

// Get 查询指定持仓的控制记录副本
func (r *Registry) Get(positionID string) (*RiskControl, bool) {
	rc, ok := r.controls[positionID]
	if !ok {
		return nil, false
	}
	return rc.Clone(), true
}

// Remove 删除指定持仓的控制记录（持仓平掉时调用）
func (r *Registry) Remove(positionID string) {
	delete(r.controls, positionID)
}

// Active 返回当前所有生效的控制记录
func (r *Registry) Active() []*RiskControl {
	out := make([]*RiskControl, 0, len(r.controls))
	for _, rc := range r.controls {
		out = append(out, rc)
	}
	return out
}
