package model

import (
	"strconv"
	"time"
)

// WebhookPayload mirrors the envelope posted by the messaging provider:
// entry[0].changes[0].value carries messages, statuses and contact profiles.
type WebhookPayload struct {
	Entry []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Value WebhookValue `json:"value"`
}

type WebhookValue struct {
	Messages []InboundMessage `json:"messages,omitempty"`
	Statuses []InboundStatus  `json:"statuses,omitempty"`
	Contacts []InboundContact `json:"contacts,omitempty"`
}

type InboundMessage struct {
	From      string        `json:"from"`
	Id        string        `json:"id"`
	Timestamp string        `json:"timestamp"`
	Type      string        `json:"type"`
	Text      *InboundText  `json:"text,omitempty"`
	Image     *InboundMedia `json:"image,omitempty"`
}

type InboundText struct {
	Body string `json:"body"`
}

type InboundMedia struct {
	Id      string `json:"id"`
	Caption string `json:"caption,omitempty"`
}

type InboundStatus struct {
	RecipientId string `json:"recipient_id"`
	Id          string `json:"id"`
	Status      string `json:"status"`
}

type InboundContact struct {
	WaId    string         `json:"wa_id"`
	Profile InboundProfile `json:"profile"`
}

type InboundProfile struct {
	Name string `json:"name"`
}

// Body returns the textual content of the message, whatever its type.
func (m *InboundMessage) Body() string {
	if m.Text != nil {
		return m.Text.Body
	}
	if m.Image != nil {
		return m.Image.Caption
	}
	return ""
}

// Time parses the provider's unix-seconds timestamp; a malformed value falls
// back to now so a bad payload never stalls dispatch.
func (m *InboundMessage) Time() time.Time {
	secs, err := strconv.ParseInt(m.Timestamp, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now()
	}
	return time.Unix(secs, 0)
}

// Value returns the first change value of the first entry, the only slot the
// provider populates in practice.
func (p *WebhookPayload) Value() *WebhookValue {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return nil
	}
	return &p.Entry[0].Changes[0].Value
}
