package mysql

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/riskengine/internal/engine/domain"
)

// HistoryArchiveModel MySQL 历史归档表映射。
// 只追加，不更新，引擎序号与落库主键分离。
type HistoryArchiveModel struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement"`
	EntryID     uint64          `gorm:"column:entry_id;uniqueIndex;not null"`
	PositionID  string          `gorm:"column:position_id;type:varchar(32);index;not null"`
	Symbol      string          `gorm:"column:symbol;type:varchar(20);index;not null"`
	Side        string          `gorm:"column:side;type:varchar(8);not null"`
	Action      string          `gorm:"column:action;type:varchar(16);not null"`
	Quantity    decimal.Decimal `gorm:"column:quantity;type:decimal(32,18)"`
	Price       decimal.Decimal `gorm:"column:price;type:decimal(32,18)"`
	RealizedPnL decimal.Decimal `gorm:"column:realized_pnl;type:decimal(32,18);default:0"`
	Commission  decimal.Decimal `gorm:"column:commission;type:decimal(32,18);default:0"`
	Reason      string          `gorm:"column:reason;type:varchar(255)"`
	OccurredOn  time.Time       `gorm:"column:occurred_on;index"`
	CreatedAt   time.Time
}

func (HistoryArchiveModel) TableName() string { return "position_history_archive" }

func toArchiveModel(event domain.PositionLifecycleEvent) (*HistoryArchiveModel, error) {
	quantity, err := decimal.NewFromString(event.Quantity)
	if err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(event.Price)
	if err != nil {
		return nil, err
	}
	realized, err := decimal.NewFromString(event.RealizedPnL)
	if err != nil {
		return nil, err
	}
	commission, err := decimal.NewFromString(event.Commission)
	if err != nil {
		return nil, err
	}
	return &HistoryArchiveModel{
		EntryID:     event.EntryID,
		PositionID:  event.PositionID,
		Symbol:      event.Symbol,
		Side:        event.Side,
		Action:      event.Action,
		Quantity:    quantity,
		Price:       price,
		RealizedPnL: realized,
		Commission:  commission,
		Reason:      event.Reason,
		OccurredOn:  event.OccurredOn,
	}, nil
}
