package model

import "time"

type MessageDirection string

const (
	DIRECTION_IN  MessageDirection = "in"
	DIRECTION_OUT MessageDirection = "out"
)

type MessageKind string

const (
	MESSAGE_KIND_TEXT  MessageKind = "text"
	MESSAGE_KIND_IMAGE MessageKind = "image"
	MESSAGE_KIND_EVENT MessageKind = "event"
)

type MessageStatus string

const (
	STATUS_RECEIVED  MessageStatus = "received"
	STATUS_SENDING   MessageStatus = "sending"
	STATUS_SENT      MessageStatus = "sent"
	STATUS_FAILED    MessageStatus = "failed"
	STATUS_DELIVERED MessageStatus = "delivered"
	STATUS_READ      MessageStatus = "read"
	STATUS_DONE      MessageStatus = "done"
)

// Message is one entry of a contact's conversation thread. Timeline events
// (for example the marker emitted by a delay node) are event-kind messages.
type Message struct {
	Id         string           `json:"id"`
	WaId       string           `json:"wa_id"`
	Direction  MessageDirection `json:"direction"`
	Kind       MessageKind      `json:"kind"`
	Body       string           `json:"body,omitempty"`
	MediaUrl   string           `json:"media_url,omitempty"`
	Status     MessageStatus    `json:"status"`
	ProviderId string           `json:"provider_id,omitempty"`
	At         time.Time        `json:"at"`
}
