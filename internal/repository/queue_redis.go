package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/offline-queue/internal/model"
)

var allStatuses = []model.Status{model.StatusPending, model.StatusCompleted, model.StatusFailed}

// RedisQueueRepository stores items as JSON in one hash and keeps ordering plus the
// status index in sorted sets scored by createdAt. Ties fall back to member order,
// which for UUIDv7 ids is insertion order.
type RedisQueueRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisQueueRepository(client *redis.Client, prefix string) QueueRepository {
	if prefix == "" {
		prefix = "offlineq"
	}
	return &RedisQueueRepository{client: client, prefix: prefix}
}

func (r *RedisQueueRepository) itemsKey() string { return r.prefix + ":items" }
func (r *RedisQueueRepository) allKey() string   { return r.prefix + ":index:all" }
func (r *RedisQueueRepository) statusKey(s model.Status) string {
	return fmt.Sprintf("%s:index:status:%s", r.prefix, s)
}

func (r *RedisQueueRepository) InitSchema(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisQueueRepository) Put(ctx context.Context, item *model.QueueItem) error {
	if item.ID == "" {
		return ErrMissingID
	}
	item.Normalize()
	now := time.Now().UnixMilli()
	if item.CreatedAt == 0 {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item %s: %w", item.ID, err)
	}

	score := float64(item.CreatedAt)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.itemsKey(), item.ID, payload)
		pipe.ZAdd(ctx, r.allKey(), redis.Z{Score: score, Member: item.ID})
		for _, st := range allStatuses {
			if st != item.Status {
				pipe.ZRem(ctx, r.statusKey(st), item.ID)
			}
		}
		pipe.ZAdd(ctx, r.statusKey(item.Status), redis.Z{Score: score, Member: item.ID})
		return nil
	})
	return err
}

func (r *RedisQueueRepository) GetByStatus(ctx context.Context, status model.Status) ([]model.QueueItem, error) {
	ids, err := r.client.ZRange(ctx, r.statusKey(status), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return r.load(ctx, ids)
}

func (r *RedisQueueRepository) GetAll(ctx context.Context) ([]model.QueueItem, error) {
	ids, err := r.client.ZRange(ctx, r.allKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return r.load(ctx, ids)
}

func (r *RedisQueueRepository) GetByID(ctx context.Context, id string) (*model.QueueItem, error) {
	str, err := r.client.HGet(ctx, r.itemsKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var item model.QueueItem
	if err := json.Unmarshal([]byte(str), &item); err != nil {
		return nil, fmt.Errorf("decode queue item %s: %w", id, err)
	}
	return &item, nil
}

func (r *RedisQueueRepository) DeleteByID(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.itemsKey(), id)
		pipe.ZRem(ctx, r.allKey(), id)
		for _, st := range allStatuses {
			pipe.ZRem(ctx, r.statusKey(st), id)
		}
		return nil
	})
	return err
}

func (r *RedisQueueRepository) load(ctx context.Context, ids []string) ([]model.QueueItem, error) {
	if len(ids) == 0 {
		return []model.QueueItem{}, nil
	}
	vals, err := r.client.HMGet(ctx, r.itemsKey(), ids...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.QueueItem, 0, len(ids))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// index 与 hash 不一致（删除中途），跳过
			continue
		}
		var item model.QueueItem
		if err := json.Unmarshal([]byte(str), &item); err != nil {
			return nil, fmt.Errorf("decode queue item %s: %w", ids[i], err)
		}
		out = append(out, item)
	}
	return out, nil
}
