package application

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/metrics"
	"github.com/wyfcoding/pkg/worker"

	"github.com/wyfcoding/riskengine/internal/engine/domain"
)

// ErrEngineStopped 引擎已停止，不再接受命令
var ErrEngineStopped = errors.New("engine stopped")

// EventSink 生命周期事件的外部落地端（Kafka、数据库归档等）。
// Record 在引擎的工作池中异步执行，不得阻塞变更路径。
type EventSink interface {
	Record(ctx context.Context, event domain.PositionLifecycleEvent) error
}

// Snapshot 一次变更周期结束后发布的一致性快照
type Snapshot struct {
	Positions []*domain.Position
	Portfolio domain.Portfolio
}

// Config 引擎配置
type Config struct {
	CommissionBps decimal.Decimal // 平仓手续费（基点，按名义金额）
	StartingCash  decimal.Decimal // 初始现金
	RiskInterval  time.Duration   // 周期性风控巡检间隔
	CommandBuffer int             // 命令队列长度
}

// Engine 持仓风控引擎。
// 单个 actor goroutine（Run）独占全部可变状态：账本、风控注册表与现金。
// 外部调用全部经由命令通道串行化进入 actor，消除细粒度锁，
// 并保证 重估 -> 风控评估 -> 发布 的顺序不被交错。
// 只读访问（GetPositions/GetPortfolio）走变更后发布的不可变快照，无锁并发。
type Engine struct {
	cfg      Config
	ledger   *domain.Ledger
	registry *domain.Registry
	history  *domain.History
	monitor  *RiskMonitor
	notifier *Notifier
	cash     decimal.Decimal

	sinks []EventSink
	pool  *worker.Pool

	cmds     chan func()
	stopped  chan struct{}
	snapshot atomic.Pointer[Snapshot]

	metrics *engineMetrics
}

// Option 引擎可选依赖
type Option func(*Engine)

// WithSink 注册一个生命周期事件落地端
func WithSink(sink EventSink) Option {
	return func(e *Engine) {
		e.sinks = append(e.sinks, sink)
	}
}

// WithMetrics 注入指标采集器
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = newEngineMetrics(m)
	}
}

// NewEngine 构造引擎，所有协作对象显式组装，不依赖任何包级单例
func NewEngine(cfg Config, opts ...Option) *Engine {
	if cfg.RiskInterval <= 0 {
		cfg.RiskInterval = time.Second
	}
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = 256
	}

	history := domain.NewHistory()
	ledger := domain.NewLedger(history, cfg.CommissionBps)
	registry := domain.NewRegistry()

	e := &Engine{
		cfg:      cfg,
		ledger:   ledger,
		registry: registry,
		history:  history,
		monitor:  NewRiskMonitor(ledger, registry),
		notifier: NewNotifier(),
		cash:     cfg.StartingCash,
		cmds:     make(chan func(), cfg.CommandBuffer),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.pool = worker.NewPool(
		worker.WithName("riskengine-events"),
		worker.WithSize(2),
		worker.WithQueueSize(cfg.CommandBuffer),
	)
	history.SetOnAppend(e.onHistoryAppend)

	e.snapshot.Store(&Snapshot{
		Portfolio: domain.RecomputePortfolio(nil, e.cash, time.Now()),
	})
	return e
}

// Run 运行 actor 循环直到 ctx 取消。
// 取消后先排空已入队的命令（进行中的变更完整结束，不会中途丢弃），
// 再停止事件工作池。
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.RiskInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-e.cmds:
			cmd()
		case <-ticker.C:
			e.sweep(time.Now())
		case <-ctx.Done():
			e.drain()
			close(e.stopped)
			e.pool.Stop()
			logging.Info(context.Background(), "engine stopped",
				"open_positions", e.ledger.Count(), "history_entries", e.history.Len())
			return nil
		}
	}
}

func (e *Engine) drain() {
	for {
		select {
		case cmd := <-e.cmds:
			cmd()
		default:
			return
		}
	}
}

// do 将 fn 投递到 actor 并等待其执行完成
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case e.cmds <- func() { fn(); close(done) }:
	case <-e.stopped:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-e.stopped:
		// 排空阶段可能仍执行了该命令
		select {
		case <-done:
			return nil
		default:
			return ErrEngineStopped
		}
	}
}

// --- 写入操作（经 actor 串行化） ---

// OpenPosition 开仓，来自订单/成交协作方的 open 事件
func (e *Engine) OpenPosition(ctx context.Context, symbol string, side domain.Side, quantity, entryPrice decimal.Decimal) (*domain.Position, error) {
	var (
		pos *domain.Position
		err error
	)
	doErr := e.do(ctx, func() {
		var p *domain.Position
		p, err = e.ledger.Open(symbol, side, quantity, entryPrice, time.Now())
		if err != nil {
			return
		}
		if e.metrics != nil {
			e.metrics.opened.WithLabelValues(string(side)).Inc()
		}
		pos = p.Clone()
		e.publish(time.Now())
	})
	if doErr != nil {
		return nil, doErr
	}
	return pos, err
}

// ClosePosition 平仓。quantity 为零值表示全平。
// 持仓不存在返回 (false, nil)；数量超过剩余幅度返回 ErrInvalidQuantity。
func (e *Engine) ClosePosition(ctx context.Context, positionID string, quantity decimal.Decimal) (bool, error) {
	var (
		found bool
		err   error
	)
	doErr := e.do(ctx, func() {
		now := time.Now()
		var res *domain.CloseResult
		res, found, err = e.ledger.Close(positionID, quantity, domain.ActionClose, "", now)
		if err != nil || !found {
			return
		}
		e.settle(res)
		e.publish(now)
	})
	if doErr != nil {
		return false, doErr
	}
	return found && err == nil, err
}

// CloseAll 按统一平仓路径全平所有持仓，返回平掉的笔数
func (e *Engine) CloseAll(ctx context.Context, reason string) (int, error) {
	var count int
	doErr := e.do(ctx, func() {
		now := time.Now()
		results := e.ledger.CloseAll(reason, now)
		for _, res := range results {
			e.settle(res)
		}
		count = len(results)
		if count > 0 {
			e.publish(now)
		}
	})
	return count, doErr
}

// IngestTick 注入一笔行情。重估、风控评估与发布在同一命令内完成，
// 彼此不会与其他写入交错。
func (e *Engine) IngestTick(ctx context.Context, tick domain.Tick) error {
	return e.do(ctx, func() {
		if e.metrics != nil {
			e.metrics.ticks.WithLabelValues(tick.Symbol).Inc()
		}
		changed := e.ledger.Revalue(tick)
		if len(changed) == 0 {
			return
		}
		for _, out := range e.monitor.Sweep(tick.Timestamp) {
			e.settleTrigger(out)
		}
		e.publish(tick.Timestamp)
	})
}

// SetStopLoss 设置止损价。持仓不存在时返回 (false, nil)。
// 阈值在价格错误一侧只告警不拒绝：行情可能在设置前已经跳空穿越。
func (e *Engine) SetStopLoss(ctx context.Context, positionID string, price decimal.Decimal) (bool, error) {
	var found bool
	doErr := e.do(ctx, func() {
		p, ok := e.ledger.Get(positionID)
		if !ok {
			return
		}
		found = true
		wrongSide := (p.Side == domain.SideLong && price.GreaterThanOrEqual(p.CurrentPrice)) ||
			(p.Side == domain.SideShort && price.LessThanOrEqual(p.CurrentPrice))
		if wrongSide {
			logging.Warn(ctx, "stop loss set on the wrong side of current price",
				"position_id", positionID, "side", string(p.Side),
				"stop_loss", price.String(), "current_price", p.CurrentPrice.String())
		}
		e.registry.SetStopLoss(positionID, price, time.Now())
	})
	return found, doErr
}

// SetTakeProfit 设置止盈价。持仓不存在时返回 (false, nil)。
func (e *Engine) SetTakeProfit(ctx context.Context, positionID string, price decimal.Decimal) (bool, error) {
	var found bool
	doErr := e.do(ctx, func() {
		p, ok := e.ledger.Get(positionID)
		if !ok {
			return
		}
		found = true
		wrongSide := (p.Side == domain.SideLong && price.LessThanOrEqual(p.CurrentPrice)) ||
			(p.Side == domain.SideShort && price.GreaterThanOrEqual(p.CurrentPrice))
		if wrongSide {
			logging.Warn(ctx, "take profit set on the wrong side of current price",
				"position_id", positionID, "side", string(p.Side),
				"take_profit", price.String(), "current_price", p.CurrentPrice.String())
		}
		e.registry.SetTakeProfit(positionID, price, time.Now())
	})
	return found, doErr
}

// SetMaxLoss 设置最大亏损阈值（绝对金额/百分比，可只传其一）
func (e *Engine) SetMaxLoss(ctx context.Context, positionID string, absolute, percent *decimal.Decimal) (bool, error) {
	var found bool
	doErr := e.do(ctx, func() {
		if _, ok := e.ledger.Get(positionID); !ok {
			return
		}
		found = true
		e.registry.SetMaxLoss(positionID, absolute, percent, time.Now())
	})
	return found, doErr
}

// GetRiskControl 查询指定持仓的风控阈值副本
func (e *Engine) GetRiskControl(ctx context.Context, positionID string) (*domain.RiskControl, bool, error) {
	var (
		rc *domain.RiskControl
		ok bool
	)
	doErr := e.do(ctx, func() {
		rc, ok = e.registry.Get(positionID)
	})
	return rc, ok, doErr
}

// --- 读取操作（无锁快照） ---

// GetPositions 返回当前持仓的不可变快照副本
func (e *Engine) GetPositions() []*domain.Position {
	snap := e.snapshot.Load()
	out := make([]*domain.Position, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		out = append(out, p.Clone())
	}
	return out
}

// GetPortfolio 返回最近一次发布的组合汇总
func (e *Engine) GetPortfolio() domain.Portfolio {
	return e.snapshot.Load().Portfolio
}

// History 查询历史账本，positionID 为空返回全部，最近在前
func (e *Engine) History(positionID string) []domain.HistoryEntry {
	return e.history.Query(positionID)
}

// Subscribe 订阅变更后的 (持仓, 组合) 快照，返回退订函数
func (e *Engine) Subscribe(cb Subscriber) func() {
	return e.notifier.Subscribe(cb)
}

// --- actor 内部 ---

// sweep 周期性风控巡检（与行情驱动的评估共用同一路径）
func (e *Engine) sweep(now time.Time) {
	outcomes := e.monitor.Sweep(now)
	if len(outcomes) == 0 {
		return
	}
	for _, out := range outcomes {
		e.settleTrigger(out)
	}
	e.publish(now)
}

// settle 平仓后的统一清算：现金入账、风控清理、指标
func (e *Engine) settle(res *domain.CloseResult) {
	e.cash = e.cash.Add(res.Entry.RealizedPnL)
	if res.Removed {
		e.registry.Remove(res.Entry.PositionID)
	}
	if e.metrics != nil {
		e.metrics.closed.WithLabelValues(string(res.Entry.Action)).Inc()
	}
}

func (e *Engine) settleTrigger(out TriggerOutcome) {
	// 监控器已删除风控记录，此处仅做现金与指标
	e.cash = e.cash.Add(out.Result.Entry.RealizedPnL)
	if e.metrics != nil {
		e.metrics.closed.WithLabelValues(string(out.Result.Entry.Action)).Inc()
		e.metrics.triggers.WithLabelValues(string(out.Kind)).Inc()
	}
}

// publish 变更周期收尾：重算组合、存储快照、扇出通知。
// 任何订阅者在两次 publish 之间看到的 (持仓, 组合) 永远配套。
func (e *Engine) publish(now time.Time) {
	positions := e.ledger.SnapshotPositions()
	portfolio := domain.RecomputePortfolio(positions, e.cash, now)

	snap := &Snapshot{Positions: positions, Portfolio: portfolio}
	e.snapshot.Store(snap)

	if e.metrics != nil {
		e.metrics.openPositions.WithLabelValues().Set(float64(len(positions)))
	}
	e.notifier.Publish(snap.Positions, snap.Portfolio)
}

// onHistoryAppend 每条历史记录恰好触发一次，异步投递给各落地端
func (e *Engine) onHistoryAppend(entry domain.HistoryEntry) {
	if len(e.sinks) == 0 {
		return
	}
	event := domain.NewLifecycleEvent(entry)
	for _, sink := range e.sinks {
		s := sink
		if err := e.pool.TrySubmit(func(ctx context.Context) {
			if err := s.Record(ctx, event); err != nil {
				logging.Error(ctx, "event sink record failed",
					"position_id", event.PositionID, "action", event.Action, "error", err)
			}
		}); err != nil {
			logging.Warn(context.Background(), "event sink queue full, dropping event",
				"position_id", event.PositionID, "action", event.Action)
		}
	}
}

// engineMetrics 引擎运行指标
type engineMetrics struct {
	ticks         *prometheus.CounterVec
	opened        *prometheus.CounterVec
	closed        *prometheus.CounterVec
	triggers      *prometheus.CounterVec
	openPositions *prometheus.GaugeVec
}

func newEngineMetrics(m *metrics.Metrics) *engineMetrics {
	return &engineMetrics{
		ticks: m.NewCounterVec(&prometheus.CounterOpts{
			Name: "riskengine_ticks_total",
			Help: "Total number of market ticks ingested",
		}, []string{"symbol"}),
		opened: m.NewCounterVec(&prometheus.CounterOpts{
			Name: "riskengine_positions_opened_total",
			Help: "Total number of positions opened",
		}, []string{"side"}),
		closed: m.NewCounterVec(&prometheus.CounterOpts{
			Name: "riskengine_positions_closed_total",
			Help: "Total number of position close events",
		}, []string{"action"}),
		triggers: m.NewCounterVec(&prometheus.CounterOpts{
			Name: "riskengine_risk_triggers_total",
			Help: "Total number of risk control triggers fired",
		}, []string{"kind"}),
		openPositions: m.NewGaugeVec(&prometheus.GaugeOpts{
			Name: "riskengine_open_positions",
			Help: "Current number of open positions",
		}, nil),
	}
}
