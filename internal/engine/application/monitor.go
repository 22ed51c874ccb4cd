package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"

	"github.com/wyfcoding/riskengine/internal/engine/domain"
)

// TriggerOutcome 一次风控触发的结果
type TriggerOutcome struct {
	Kind   domain.TriggerKind
	Result *domain.CloseResult
}

// RiskMonitor 按固定顺序评估每个持仓的风控阈值并执行自动平仓。
// 评估只在引擎 actor 内、且在同一轮价格重估完成之后运行，
// 保证不会基于过期价格触发。
type RiskMonitor struct {
	ledger   *domain.Ledger
	registry *domain.Registry
}

// NewRiskMonitor 创建风险监控器
func NewRiskMonitor(ledger *domain.Ledger, registry *domain.Registry) *RiskMonitor {
	return &RiskMonitor{ledger: ledger, registry: registry}
}

// Sweep 评估所有生效风控，命中的持仓走账本统一平仓路径全平，
// 并删除其风控记录。每个持仓在一轮内至多触发一次。
func (m *RiskMonitor) Sweep(now time.Time) []TriggerOutcome {
	var outcomes []TriggerOutcome

	for _, rc := range m.registry.Active() {
		p, ok := m.ledger.Get(rc.PositionID)
		if !ok {
			// 风控不得比持仓活得更久
			m.registry.Remove(rc.PositionID)
			continue
		}

		kind := rc.Evaluate(p)
		if kind == domain.TriggerNone {
			continue
		}

		res, found, err := m.ledger.Close(p.ID, decimal.Zero, kind.Action(), triggerReason(kind, rc, p), now)
		if err != nil || !found {
			logging.Error(context.Background(), "risk-triggered close failed",
				"position_id", p.ID, "trigger", string(kind), "error", err)
			continue
		}
		m.registry.Remove(p.ID)

		logging.Info(context.Background(), "risk control triggered",
			"position_id", p.ID,
			"symbol", p.Symbol,
			"trigger", string(kind),
			"price", res.Entry.Price.String(),
			"realized_pnl", res.Entry.RealizedPnL.String(),
		)
		outcomes = append(outcomes, TriggerOutcome{Kind: kind, Result: res})
	}
	return outcomes
}

// triggerReason 生成历史记录的可读原因，区分绝对/百分比最大亏损
func triggerReason(kind domain.TriggerKind, rc *domain.RiskControl, p *domain.Position) string {
	switch kind {
	case domain.TriggerStopLoss:
		return fmt.Sprintf("stop loss %s reached at %s", rc.StopLoss, p.CurrentPrice)
	case domain.TriggerTakeProfit:
		return fmt.Sprintf("take profit %s reached at %s", rc.TakeProfit, p.CurrentPrice)
	case domain.TriggerMaxLossAbs:
		return fmt.Sprintf("unrealized loss %s breached max loss %s", p.UnrealizedPnL, rc.MaxLoss.Abs())
	case domain.TriggerMaxLossPercent:
		return fmt.Sprintf("unrealized loss %s breached max loss %s%%", p.UnrealizedPnL, rc.MaxLossPercent.Abs())
	default:
		return ""
	}
}
