package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/zapflowhq/zapflow/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

var ErrContactNotFound = errors.New("contact not found")
var ErrFlowNotFound = errors.New("flow not found")
var ErrMessageNotFound = errors.New("message not found")

// ErrClaimDenied means another execution already claimed the job id.
var ErrClaimDenied = errors.New("claim denied")

// ErrClaimUnavailable means the durable claim table cannot be used and the
// caller should fall back to the cache tier.
var ErrClaimUnavailable = errors.New("claim storage unavailable")

type FlowDao interface {
	Save(flow *model.FlowDefinition) error
	Get(id string) (*model.FlowDefinition, error)
	List() ([]model.FlowDefinition, error)
}

type ContactDao interface {
	Save(contact *model.Contact) error
	Get(waId string) (*model.Contact, error)
	List(limit int) ([]model.Contact, error)
}

type MessageDao interface {
	Append(msg *model.Message) error
	UpdateStatus(waId string, msgId string, status model.MessageStatus, providerId string) error
	UpdateStatusByProviderId(waId string, providerId string, status model.MessageStatus) error
	List(waId string, limit int) ([]model.Message, error)
}

type DelayJobDao interface {
	Push(job *model.DelayJob) error
	// PopDue removes and returns up to limit jobs with DueAt <= now.
	PopDue(now time.Time, limit int) ([]model.DelayJob, error)
}

type WaitReplyDao interface {
	Get(contactId string) ([]model.WaitReplyState, error)
	Save(contactId string, states []model.WaitReplyState) error
	Delete(contactId string) error
}

type FlowLogDao interface {
	Head() (*model.FlowLogEntry, error)
	ReplaceHead(entry *model.FlowLogEntry) error
	Prepend(entry *model.FlowLogEntry) error
	List(limit int) ([]model.FlowLogEntry, error)
}

type ClaimDao interface {
	// TryClaim returns nil when the claim was created, ErrClaimDenied when the
	// job id is already claimed and ErrClaimUnavailable when the underlying
	// storage cannot hold claims at all.
	TryClaim(jobId string, at time.Time) error
	Release(jobId string) error
	PurgeOlderThan(cutoff time.Time) (int, error)
}
