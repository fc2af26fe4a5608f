// Package waitreply keeps the per-contact list of suspended continuations
// awaiting the contact's next inbound message.
package waitreply

import (
	"github.com/zapflowhq/zapflow/logger"
	"github.com/zapflowhq/zapflow/model"
	"github.com/zapflowhq/zapflow/persistence"
	"go.uber.org/zap"
)

// waitCap bounds the per-contact list; oldest entries are dropped beyond it.
const waitCap = 20

type Coordinator struct {
	waits persistence.WaitReplyDao
}

func NewCoordinator(waits persistence.WaitReplyDao) *Coordinator {
	return &Coordinator{waits: waits}
}

// Enqueue registers a continuation, replacing any existing one with the same
// (flow, next node) pair so a contact holds at most one of each.
func (c *Coordinator) Enqueue(state model.WaitReplyState) error {
	states, err := c.waits.Get(state.ContactId)
	if err != nil {
		return err
	}
	filtered := make([]model.WaitReplyState, 0, len(states)+1)
	for _, s := range states {
		if s.FlowId == state.FlowId && s.NextNodeId == state.NextNodeId {
			continue
		}
		filtered = append(filtered, s)
	}
	filtered = append(filtered, state)
	if len(filtered) > waitCap {
		dropped := len(filtered) - waitCap
		logger.Warn("wait list over cap, dropped oldest",
			zap.String("contact", state.ContactId), zap.Int("dropped", dropped))
		filtered = filtered[dropped:]
	}
	return c.waits.Save(state.ContactId, filtered)
}

// TakeAll removes and returns every outstanding continuation for the contact.
func (c *Coordinator) TakeAll(contactId string) ([]model.WaitReplyState, error) {
	states, err := c.waits.Get(contactId)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, nil
	}
	if err := c.waits.Delete(contactId); err != nil {
		return nil, err
	}
	return states, nil
}
