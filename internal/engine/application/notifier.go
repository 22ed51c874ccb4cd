// Package application 持仓风控引擎的应用层
package application

import (
	"context"
	"sync"

	"github.com/wyfcoding/pkg/logging"

	"github.com/wyfcoding/riskengine/internal/engine/domain"
)

// Subscriber 快照订阅回调，在每个变更周期结束后被同步调用。
// 回调收到的是独立副本，但应按只读处理。
type Subscriber func(positions []*domain.Position, portfolio domain.Portfolio)

// Notifier 维护订阅者列表并在变更后扇出快照。
// 单个订阅者 panic 会被隔离并记录，不影响其余订阅者，
// 也不会污染账本状态。
type Notifier struct {
	mu     sync.Mutex
	subs   map[uint64]Subscriber
	nextID uint64
}

// NewNotifier 创建通知器
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[uint64]Subscriber)}
}

// Subscribe 注册订阅回调，返回对应的退订函数
func (n *Notifier) Subscribe(cb Subscriber) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.subs[id] = cb

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// Publish 向所有订阅者推送一致的 (持仓, 组合) 快照对
func (n *Notifier) Publish(positions []*domain.Position, portfolio domain.Portfolio) {
	n.mu.Lock()
	subs := make([]Subscriber, 0, len(n.subs))
	for _, cb := range n.subs {
		subs = append(subs, cb)
	}
	n.mu.Unlock()

	for _, cb := range subs {
		n.deliver(cb, positions, portfolio)
	}
}

func (n *Notifier) deliver(cb Subscriber, positions []*domain.Position, portfolio domain.Portfolio) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error(context.Background(), "snapshot subscriber panicked", "panic", r)
		}
	}()
	cb(positions, portfolio)
}

// Count 当前订阅者数量
func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
