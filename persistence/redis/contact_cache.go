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

// ContactCache is the hot-path copy of contacts; the durable tier stays the
// source of truth when present.
type ContactCache struct {
	baseDao
}

func NewContactCache(base *baseDao) *ContactCache {
	return &ContactCache{baseDao: *base}
}

func (d *ContactCache) Save(contact *model.Contact) error {
	key := d.getNamespaceKey("contact", contact.WaId)
	ctx := context.Background()
	payload, err := json.Marshal(contact)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if err := d.redisClient.Set(ctx, key, payload, 0).Err(); err != nil {
		logger.Error("error while caching contact", zap.String("waId", contact.WaId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *ContactCache) Get(waId string) (*model.Contact, error) {
	key := d.getNamespaceKey("contact", waId)
	ctx := context.Background()
	raw, err := d.redisClient.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.ErrContactNotFound
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var contact model.Contact
	if err := json.Unmarshal([]byte(raw), &contact); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return &contact, nil
}
