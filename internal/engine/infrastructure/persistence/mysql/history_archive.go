// Package mysql 提供生命周期事件的 MySQL 归档，供离线审计与对账使用
package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/riskengine/internal/engine/domain"
)

// HistoryArchive 历史归档仓储，实现 application.EventSink
type HistoryArchive struct {
	db *gorm.DB
}

// NewHistoryArchive 创建归档仓储并建表
func NewHistoryArchive(db *gorm.DB) (*HistoryArchive, error) {
	if err := db.AutoMigrate(&HistoryArchiveModel{}); err != nil {
		return nil, fmt.Errorf("migrate history archive: %w", err)
	}
	return &HistoryArchive{db: db}, nil
}

// Record 归档一条生命周期事件。
// 事件投递可能重复，按引擎序号做幂等写入。
func (a *HistoryArchive) Record(ctx context.Context, event domain.PositionLifecycleEvent) error {
	model, err := toArchiveModel(event)
	if err != nil {
		return fmt.Errorf("decode event %d: %w", event.EntryID, err)
	}
	return a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entry_id"}},
			DoNothing: true,
		}).
		Create(model).Error
}

// FindByPosition 按持仓查询归档记录，最近的在前
func (a *HistoryArchive) FindByPosition(ctx context.Context, positionID string, limit int) ([]*HistoryArchiveModel, error) {
	var models []*HistoryArchiveModel
	err := a.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("entry_id desc").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return models, nil
}

// FindByEntryID 按引擎序号查询单条归档
func (a *HistoryArchive) FindByEntryID(ctx context.Context, entryID uint64) (*HistoryArchiveModel, error) {
	var model HistoryArchiveModel
	if err := a.db.WithContext(ctx).Where("entry_id = ?", entryID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &model, nil
}
