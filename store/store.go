// Package store is the two-tier state facade: the relational tier is the
// source of truth when present, the cache tier is the fallback and hot path.
// Writes go to both best-effort; a single tier failing never fails a caller
// that the other tier can serve.
package store

import (
	"errors"
	"time"

	c "github.com/patrickmn/go-cache"
	"github.com/zapflowhq/zapflow/logger"
	"github.com/zapflowhq/zapflow/model"
	"github.com/zapflowhq/zapflow/persistence"
	redisdao "github.com/zapflowhq/zapflow/persistence/redis"
	"github.com/zapflowhq/zapflow/persistence/sqlite"
	"go.uber.org/zap"
)

const flowCacheTTL = 30 * time.Second

type Store struct {
	durable   *sqlite.Store
	cache     *redisdao.Store
	flowCache *c.Cache
}

func New(durable *sqlite.Store, cache *redisdao.Store) *Store {
	return &Store{
		durable:   durable,
		cache:     cache,
		flowCache: c.New(flowCacheTTL, 10*time.Minute),
	}
}

// GetContact reads durable-first and falls back to the cache tier.
func (s *Store) GetContact(waId string) (*model.Contact, error) {
	contact, err := s.durable.Contacts().Get(waId)
	if err == nil {
		return contact, nil
	}
	if !errors.Is(err, persistence.ErrContactNotFound) {
		logger.Warn("durable contact read failed, trying cache", zap.String("waId", waId), zap.Error(err))
	}
	return s.cache.Contacts().Get(waId)
}

// SaveContact writes both tiers; either failing alone is logged, not returned.
func (s *Store) SaveContact(contact *model.Contact) error {
	contact.UpdatedAt = time.Now()
	durableErr := s.durable.Contacts().Save(contact)
	if durableErr != nil {
		logger.Error("durable contact write failed", zap.String("waId", contact.WaId), zap.Error(durableErr))
	}
	cacheErr := s.cache.Contacts().Save(contact)
	if cacheErr != nil {
		logger.Warn("contact cache write failed", zap.String("waId", contact.WaId), zap.Error(cacheErr))
	}
	if durableErr != nil && cacheErr != nil {
		return durableErr
	}
	return nil
}

func (s *Store) ListContacts(limit int) ([]model.Contact, error) {
	return s.durable.Contacts().List(limit)
}

func (s *Store) GetFlow(id string) (*model.FlowDefinition, error) {
	if cached, found := s.flowCache.Get("flow:" + id); found {
		return cached.(*model.FlowDefinition), nil
	}
	flow, err := s.durable.Flows().Get(id)
	if err != nil {
		return nil, err
	}
	s.flowCache.Set("flow:"+id, flow, c.DefaultExpiration)
	return flow, nil
}

func (s *Store) ListFlows() ([]model.FlowDefinition, error) {
	if cached, found := s.flowCache.Get("flows"); found {
		return cached.([]model.FlowDefinition), nil
	}
	flows, err := s.durable.Flows().List()
	if err != nil {
		return nil, err
	}
	s.flowCache.Set("flows", flows, c.DefaultExpiration)
	return flows, nil
}

func (s *Store) SaveFlow(flow *model.FlowDefinition) error {
	if err := s.durable.Flows().Save(flow); err != nil {
		return err
	}
	s.flowCache.Flush()
	return nil
}

func (s *Store) AppendMessage(msg *model.Message) error {
	return s.durable.Messages().Append(msg)
}

func (s *Store) UpdateMessageStatus(waId string, msgId string, status model.MessageStatus, providerId string) error {
	return s.durable.Messages().UpdateStatus(waId, msgId, status, providerId)
}

func (s *Store) UpdateMessageStatusByProviderId(waId string, providerId string, status model.MessageStatus) error {
	return s.durable.Messages().UpdateStatusByProviderId(waId, providerId, status)
}

func (s *Store) ListMessages(waId string, limit int) ([]model.Message, error) {
	return s.durable.Messages().List(waId, limit)
}

func (s *Store) PushJob(job *model.DelayJob) error {
	return s.cache.DelayJobs().Push(job)
}

func (s *Store) PopDueJobs(now time.Time, limit int) ([]model.DelayJob, error) {
	return s.cache.DelayJobs().PopDue(now, limit)
}

func (s *Store) WaitReplies() persistence.WaitReplyDao {
	return s.cache.WaitReplies()
}

func (s *Store) FlowLogs() persistence.FlowLogDao {
	return s.cache.FlowLogs()
}

func (s *Store) FlowLogMirror() *sqlite.FlowLogDao {
	return s.durable.FlowLogs()
}

// TryClaim gates a job id for exactly-once execution: the durable uniqueness
// constraint when available, otherwise the time-bounded cache-tier claim.
func (s *Store) TryClaim(jobId string, at time.Time) error {
	err := s.durable.Claims().TryClaim(jobId, at)
	if errors.Is(err, persistence.ErrClaimUnavailable) {
		logger.Warn("claim table unavailable, using cache-tier claim", zap.String("job", jobId))
		return s.cache.Claims().TryClaim(jobId, at)
	}
	return err
}

func (s *Store) ReleaseClaim(jobId string) error {
	err := s.durable.Claims().Release(jobId)
	if err != nil {
		if cacheErr := s.cache.Claims().Release(jobId); cacheErr != nil {
			return cacheErr
		}
		if !errors.Is(err, persistence.ErrClaimUnavailable) {
			return err
		}
		return nil
	}
	// the claim may have landed in the cache tier during degraded mode
	_ = s.cache.Claims().Release(jobId)
	return nil
}

func (s *Store) PurgeClaimsOlderThan(cutoff time.Time) (int, error) {
	return s.durable.Claims().PurgeOlderThan(cutoff)
}

// TryMarkClaimPurge throttles the purge maintenance to one caller per window.
func (s *Store) TryMarkClaimPurge(window time.Duration) bool {
	return s.cache.Claims().TryMarkPurge(window)
}
