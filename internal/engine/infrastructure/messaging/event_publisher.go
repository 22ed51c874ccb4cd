package messaging

import (
	"context"

	"github.com/wyfcoding/riskengine/internal/engine/domain"
)

// EventPublisher 把持仓生命周期事件发布到 Kafka，
// 以持仓 ID 作为分区键保证同一持仓的事件有序。
type EventPublisher struct {
	producer *Producer
	topic    string
}

// NewEventPublisher 创建事件发布器
func NewEventPublisher(producer *Producer, topic string) *EventPublisher {
	return &EventPublisher{producer: producer, topic: topic}
}

// Record 实现 application.EventSink
func (p *EventPublisher) Record(ctx context.Context, event domain.PositionLifecycleEvent) error {
	return p.producer.Send(ctx, p.topic, event.PositionID, event)
}
