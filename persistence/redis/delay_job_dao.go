package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v9"
	rd "github.com/go-redis/redis/v9"
	"github.com/zapflowhq/zapflow/logger"
	"github.com/zapflowhq/zapflow/model"
	"github.com/zapflowhq/zapflow/persistence"
	"go.uber.org/zap"
)

const defaultJobCap = 5000

// DelayJobDao keeps the due set in a sorted set scored by due time. Drain is
// a fetch plus removal of the fetched members, so concurrent sweeps cannot
// drop a job at the list layer; duplicate execution stays on the claim ledger.
type DelayJobDao struct {
	baseDao
	cap int64
}

var _ persistence.DelayJobDao = (*DelayJobDao)(nil)

func NewDelayJobDao(base *baseDao) *DelayJobDao {
	return &DelayJobDao{baseDao: *base, cap: defaultJobCap}
}

// NewDelayJobDaoWithCap is used by tests to exercise eviction cheaply.
func NewDelayJobDaoWithCap(base *baseDao, cap int64) *DelayJobDao {
	return &DelayJobDao{baseDao: *base, cap: cap}
}

func (d *DelayJobDao) Push(job *model.DelayJob) error {
	key := d.getNamespaceKey("jobs")
	ctx := context.Background()
	payload, err := json.Marshal(job)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	member := rd.Z{
		Score:  float64(job.DueAt.UnixMilli()),
		Member: payload,
	}
	if err := d.redisClient.ZAdd(ctx, key, member).Err(); err != nil {
		logger.Error("error while push to delay job set", zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	card, err := d.redisClient.ZCard(ctx, key).Result()
	if err != nil {
		return nil
	}
	if card > d.cap {
		// oldest first: the front of the due-ordered set.
		removed, err := d.redisClient.ZRemRangeByRank(ctx, key, 0, card-d.cap-1).Result()
		if err == nil && removed > 0 {
			logger.Warn("delay job set over cap, dropped oldest", zap.Int64("dropped", removed))
		}
	}
	return nil
}

func (d *DelayJobDao) PopDue(now time.Time, limit int) ([]model.DelayJob, error) {
	key := d.getNamespaceKey("jobs")
	ctx := context.Background()
	opt := &rd.ZRangeBy{
		Min:   strconv.Itoa(0),
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}
	members, err := d.redisClient.ZRangeByScore(ctx, key, opt).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logger.Error("error while pop from delay job set", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if len(members) == 0 {
		return nil, nil
	}
	toRemove := make([]interface{}, 0, len(members))
	for _, m := range members {
		toRemove = append(toRemove, m)
	}
	if err := d.redisClient.ZRem(ctx, key, toRemove...).Err(); err != nil {
		logger.Error("error while removing due jobs", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	jobs := make([]model.DelayJob, 0, len(members))
	for _, m := range members {
		var job model.DelayJob
		if err := json.Unmarshal([]byte(m), &job); err != nil {
			logger.Error("can not decode delay job, skipping", zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
