package redis

import (
	rd "github.com/go-redis/redis/v9"
)

// Store is the cache tier: one shared client behind the namespaced DAOs.
type Store struct {
	base *baseDao
}

func NewStore(conf Config) *Store {
	return &Store{base: newBaseDao(conf)}
}

// NewStoreWithClient wires an existing client, used by tests.
func NewStoreWithClient(client rd.UniversalClient, namespace string) *Store {
	return &Store{base: &baseDao{redisClient: client, namespace: namespace}}
}

func (s *Store) DelayJobs() *DelayJobDao {
	return NewDelayJobDao(s.base)
}

func (s *Store) WaitReplies() *WaitReplyDao {
	return NewWaitReplyDao(s.base)
}

func (s *Store) FlowLogs() *FlowLogDao {
	return NewFlowLogDao(s.base)
}

func (s *Store) Claims() *ClaimDao {
	return NewClaimDao(s.base)
}

func (s *Store) Contacts() *ContactCache {
	return NewContactCache(s.base)
}

func (s *Store) Close() error {
	return s.base.redisClient.Close()
}
