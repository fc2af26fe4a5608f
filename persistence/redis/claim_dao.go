package redis

import (
	"context"
	"time"

	"github.com/zapflowhq/zapflow/logger"
	"github.com/zapflowhq/zapflow/persistence"
	"go.uber.org/zap"
)

// claimFallbackTTL bounds the degraded-mode claim: when the durable claim
// table is unavailable we only guarantee uniqueness for this window.
const claimFallbackTTL = 6 * time.Hour

// ClaimDao is the cache-tier claim fallback, a create-if-absent key per job.
type ClaimDao struct {
	baseDao
}

func NewClaimDao(base *baseDao) *ClaimDao {
	return &ClaimDao{baseDao: *base}
}

func (d *ClaimDao) TryClaim(jobId string, at time.Time) error {
	key := d.getNamespaceKey("claim", jobId)
	ctx := context.Background()
	created, err := d.redisClient.SetNX(ctx, key, at.UnixMilli(), claimFallbackTTL).Result()
	if err != nil {
		logger.Error("error while claiming job in cache tier", zap.String("job", jobId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if !created {
		return persistence.ErrClaimDenied
	}
	return nil
}

func (d *ClaimDao) Release(jobId string) error {
	key := d.getNamespaceKey("claim", jobId)
	ctx := context.Background()
	if err := d.redisClient.Del(ctx, key).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

// TryMarkPurge is the hourly throttle for claim purging: it reports true for
// a single caller per ttl window.
func (d *ClaimDao) TryMarkPurge(ttl time.Duration) bool {
	key := d.getNamespaceKey("claims", "purge_mark")
	ctx := context.Background()
	created, err := d.redisClient.SetNX(ctx, key, time.Now().UnixMilli(), ttl).Result()
	if err != nil {
		return false
	}
	return created
}
