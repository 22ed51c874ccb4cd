package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"

	"github.com/wyfcoding/riskengine/internal/engine/application"
	"github.com/wyfcoding/riskengine/internal/engine/domain"
)

// executionMessage 成交消息体，来自撮合/执行系统
type executionMessage struct {
	Type       string `json:"type"` // open 或 close
	PositionID string `json:"position_id,omitempty"`
	Symbol     string `json:"symbol,omitempty"`
	Side       string `json:"side,omitempty"`
	Quantity   string `json:"quantity,omitempty"`
	Price      string `json:"price,omitempty"`
}

const (
	executionTypeOpen  = "open"
	executionTypeClose = "close"
)

// ExecutionConsumer 消费成交流，把外部成交转换为开/平仓命令
type ExecutionConsumer struct {
	consumer Fetcher
	engine   *application.Engine
}

// NewExecutionConsumer 创建成交消费者
func NewExecutionConsumer(consumer Fetcher, engine *application.Engine) *ExecutionConsumer {
	return &ExecutionConsumer{consumer: consumer, engine: engine}
}

// Run 持续消费直到 ctx 取消。
// 业务校验失败（非法数量、未知持仓）记录后跳过，流不中断。
func (c *ExecutionConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.consumer.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var raw executionMessage
		if err := json.Unmarshal(msg.Value, &raw); err != nil {
			logging.Warn(ctx, "dropping malformed execution message",
				"topic", msg.Topic, "offset", msg.Offset, "error", err)
			continue
		}

		if err := c.handle(ctx, raw); err != nil {
			if errors.Is(err, application.ErrEngineStopped) {
				return nil
			}
			return err
		}
	}
}

func (c *ExecutionConsumer) handle(ctx context.Context, raw executionMessage) error {
	switch raw.Type {
	case executionTypeOpen:
		quantity, err := decimal.NewFromString(raw.Quantity)
		if err != nil {
			logging.Warn(ctx, "dropping open execution with invalid quantity",
				"symbol", raw.Symbol, "quantity", raw.Quantity)
			return nil
		}
		price, err := decimal.NewFromString(raw.Price)
		if err != nil {
			logging.Warn(ctx, "dropping open execution with invalid price",
				"symbol", raw.Symbol, "price", raw.Price)
			return nil
		}

		p, err := c.engine.OpenPosition(ctx, raw.Symbol, domain.Side(raw.Side), quantity, price)
		switch {
		case errors.Is(err, domain.ErrInvalidSide),
			errors.Is(err, domain.ErrInvalidSize),
			errors.Is(err, domain.ErrInvalidPrice):
			logging.Warn(ctx, "rejected open execution", "symbol", raw.Symbol, "error", err)
			return nil
		case err != nil:
			return err
		}
		logging.Info(ctx, "opened position from execution stream",
			"position_id", p.ID, "symbol", p.Symbol, "side", string(p.Side))
		return nil

	case executionTypeClose:
		quantity := decimal.Zero
		if raw.Quantity != "" {
			var err error
			quantity, err = decimal.NewFromString(raw.Quantity)
			if err != nil {
				logging.Warn(ctx, "dropping close execution with invalid quantity",
					"position_id", raw.PositionID, "quantity", raw.Quantity)
				return nil
			}
		}

		closed, err := c.engine.ClosePosition(ctx, raw.PositionID, quantity)
		switch {
		case errors.Is(err, domain.ErrInvalidQuantity):
			logging.Warn(ctx, "rejected close execution", "position_id", raw.PositionID, "error", err)
			return nil
		case err != nil:
			return err
		case !closed:
			logging.Warn(ctx, "close execution for unknown position", "position_id", raw.PositionID)
			return nil
		}
		return nil

	default:
		logging.Warn(ctx, "dropping execution message with unknown type", "type", raw.Type)
		return nil
	}
}
