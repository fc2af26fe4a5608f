package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-redis/redis/v9"
	"github.com/zapflowhq/zapflow/logger"
	"github.com/zapflowhq/zapflow/model"
	"github.com/zapflowhq/zapflow/persistence"
	"go.uber.org/zap"
)

// WaitReplyDao stores each contact's suspended continuations as one JSON
// blob, read-modify-written wholesale by the coordinator.
type WaitReplyDao struct {
	baseDao
}

var _ persistence.WaitReplyDao = (*WaitReplyDao)(nil)

func NewWaitReplyDao(base *baseDao) *WaitReplyDao {
	return &WaitReplyDao{baseDao: *base}
}

func (d *WaitReplyDao) Get(contactId string) ([]model.WaitReplyState, error) {
	key := d.getNamespaceKey("waits", contactId)
	ctx := context.Background()
	raw, err := d.redisClient.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logger.Error("error while reading wait states", zap.String("contact", contactId), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var states []model.WaitReplyState
	if err := json.Unmarshal([]byte(raw), &states); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return states, nil
}

func (d *WaitReplyDao) Save(contactId string, states []model.WaitReplyState) error {
	key := d.getNamespaceKey("waits", contactId)
	ctx := context.Background()
	payload, err := json.Marshal(states)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if err := d.redisClient.Set(ctx, key, payload, 0).Err(); err != nil {
		logger.Error("error while writing wait states", zap.String("contact", contactId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *WaitReplyDao) Delete(contactId string) error {
	key := d.getNamespaceKey("waits", contactId)
	ctx := context.Background()
	if err := d.redisClient.Del(ctx, key).Err(); err != nil {
		logger.Error("error while deleting wait states", zap.String("contact", contactId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}
