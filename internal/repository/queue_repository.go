package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/offline-queue/internal/model"
)

var (
	ErrMissingID = errors.New("queue item id is required")
	ErrNotFound  = errors.New("queue item not found")
)

// QueueRepository 队列项的持久化存储，进程重启后数据仍在
type QueueRepository interface {
	// InitSchema 建表 / 建索引
	InitSchema(ctx context.Context) error
	// Put 按 id upsert
	Put(ctx context.Context, item *model.QueueItem) error
	// GetByStatus 走 status 二级索引，按写入顺序返回
	GetByStatus(ctx context.Context, status model.Status) ([]model.QueueItem, error)
	GetAll(ctx context.Context) ([]model.QueueItem, error)
	// GetByID 不存在时返回 ErrNotFound
	GetByID(ctx context.Context, id string) (*model.QueueItem, error)
	// DeleteByID 幂等：不存在时也返回 nil
	DeleteByID(ctx context.Context, id string) error
}

type queueRepository struct{ db *gorm.DB }

func NewQueueRepository(db *gorm.DB) QueueRepository { return &queueRepository{db: db} }

func (r *queueRepository) InitSchema(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&model.QueueItem{}); err != nil {
		return fmt.Errorf("failed to migrate queue_items table: %w", err)
	}
	return nil
}

func (r *queueRepository) Put(ctx context.Context, item *model.QueueItem) error {
	if item.ID == "" {
		return ErrMissingID
	}
	item.Normalize()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(item).Error
}

func (r *queueRepository) GetByStatus(ctx context.Context, status model.Status) ([]model.QueueItem, error) {
	var res []model.QueueItem
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Find(&res).Error
	return res, err
}

func (r *queueRepository) GetAll(ctx context.Context) ([]model.QueueItem, error) {
	var res []model.QueueItem
	err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&res).Error
	return res, err
}

func (r *queueRepository) GetByID(ctx context.Context, id string) (*model.QueueItem, error) {
	var item model.QueueItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *queueRepository) DeleteByID(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.QueueItem{}).Error
}
