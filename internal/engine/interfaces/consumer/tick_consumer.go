// Package consumer 消费外部 Kafka 流并驱动引擎
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"

	"github.com/wyfcoding/riskengine/internal/engine/application"
	"github.com/wyfcoding/riskengine/internal/engine/domain"
)

// Fetcher 消息来源，*messaging.Consumer 满足该接口
type Fetcher interface {
	Fetch(ctx context.Context) (kafka.Message, error)
}

// tickMessage 行情消息体
type tickMessage struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"` // Unix 毫秒
}

// TickConsumer 消费行情流并逐笔注入引擎
type TickConsumer struct {
	consumer Fetcher
	engine   *application.Engine
}

// NewTickConsumer 创建行情消费者
func NewTickConsumer(consumer Fetcher, engine *application.Engine) *TickConsumer {
	return &TickConsumer{consumer: consumer, engine: engine}
}

// Run 持续消费直到 ctx 取消。
// 单条消息解析失败只记录并跳过，不中断整个流。
func (c *TickConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.consumer.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var raw tickMessage
		if err := json.Unmarshal(msg.Value, &raw); err != nil {
			logging.Warn(ctx, "dropping malformed tick message",
				"topic", msg.Topic, "offset", msg.Offset, "error", err)
			continue
		}

		price, err := decimal.NewFromString(raw.Price)
		if err != nil || !price.IsPositive() {
			logging.Warn(ctx, "dropping tick with invalid price",
				"symbol", raw.Symbol, "price", raw.Price)
			continue
		}

		ts := msg.Time
		if raw.Timestamp > 0 {
			ts = time.UnixMilli(raw.Timestamp)
		}

		if err := c.engine.IngestTick(ctx, domain.Tick{
			Symbol:    raw.Symbol,
			Price:     price,
			Timestamp: ts,
		}); err != nil {
			if errors.Is(err, application.ErrEngineStopped) {
				return nil
			}
			return err
		}
	}
}
