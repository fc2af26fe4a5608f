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

const flowLogCap = 120

// FlowLogDao keeps the flow log as a redis list, newest first, capped.
type FlowLogDao struct {
	baseDao
}

var _ persistence.FlowLogDao = (*FlowLogDao)(nil)

func NewFlowLogDao(base *baseDao) *FlowLogDao {
	return &FlowLogDao{baseDao: *base}
}

func (d *FlowLogDao) Head() (*model.FlowLogEntry, error) {
	key := d.getNamespaceKey("flowlog")
	ctx := context.Background()
	raw, err := d.redisClient.LIndex(ctx, key, 0).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var entry model.FlowLogEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return &entry, nil
}

func (d *FlowLogDao) ReplaceHead(entry *model.FlowLogEntry) error {
	key := d.getNamespaceKey("flowlog")
	ctx := context.Background()
	payload, err := json.Marshal(entry)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if err := d.redisClient.LSet(ctx, key, 0, payload).Err(); err != nil {
		logger.Error("error while merging flow log entry", zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *FlowLogDao) Prepend(entry *model.FlowLogEntry) error {
	key := d.getNamespaceKey("flowlog")
	ctx := context.Background()
	payload, err := json.Marshal(entry)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	pipe := d.redisClient.Pipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, flowLogCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("error while appending flow log entry", zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *FlowLogDao) List(limit int) ([]model.FlowLogEntry, error) {
	if limit <= 0 || limit > flowLogCap {
		limit = flowLogCap
	}
	key := d.getNamespaceKey("flowlog")
	ctx := context.Background()
	raws, err := d.redisClient.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	entries := make([]model.FlowLogEntry, 0, len(raws))
	for _, raw := range raws {
		var entry model.FlowLogEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
