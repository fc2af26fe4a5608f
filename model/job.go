package model

import (
	"fmt"
	"time"
)

// DelayJob is a persisted continuation scheduled to resume a flow at DueAt.
type DelayJob struct {
	Id          string    `json:"id"`
	FlowId      string    `json:"flow_id"`
	ContactId   string    `json:"contact_id"`
	NextNodeId  string    `json:"next_node_id"`
	DueAt       time.Time `json:"due_at"`
	RetryCount  int       `json:"retry_count"`
	EventMsgId  string    `json:"event_msg_id"`
	InboundText string    `json:"inbound_text"`
	CreatedAt   time.Time `json:"created_at"`
}

// WaitReplyState is a persisted continuation resumed by the contact's next
// inbound message.
type WaitReplyState struct {
	Id         string    `json:"id"`
	FlowId     string    `json:"flow_id"`
	ContactId  string    `json:"contact_id"`
	NextNodeId string    `json:"next_node_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type ClaimRecord struct {
	JobId     string    `json:"job_id"`
	ClaimedAt time.Time `json:"claimed_at"`
}

type FlowLogEntry struct {
	At          time.Time `json:"at"`
	ContactId   string    `json:"contact_id"`
	FlowId      string    `json:"flow_id"`
	FlowName    string    `json:"flow_name"`
	Trigger     string    `json:"trigger"`
	TagsBefore  []string  `json:"tags_before"`
	TagsAfter   []string  `json:"tags_after"`
	Notes       []string  `json:"notes"`
	RepeatCount int       `json:"repeat_count"`
}

// Notes collects free-form execution markers during one interpreter run.
type Notes struct {
	Items []string
}

func (n *Notes) Add(item string) {
	n.Items = append(n.Items, item)
}

func (n *Notes) Addf(format string, args ...any) {
	n.Items = append(n.Items, fmt.Sprintf(format, args...))
}
