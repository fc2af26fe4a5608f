package model

import "time"

type Contact struct {
	WaId                 string    `json:"wa_id"`
	Name                 string    `json:"name"`
	Tags                 []string  `json:"tags"`
	LastMessageText      string    `json:"last_message_text"`
	LastMessageAt        time.Time `json:"last_message_at"`
	LastFlowTriggerAt    time.Time `json:"last_flow_trigger_at"`
	LastFlowTriggerMsgId string    `json:"last_flow_trigger_msg_id"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (c *Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (c *Contact) AddTag(tag string) {
	if c.HasTag(tag) {
		return
	}
	c.Tags = append(c.Tags, tag)
}

func (c *Contact) RemoveTag(tag string) {
	for i, t := range c.Tags {
		if t == tag {
			c.Tags = append(c.Tags[:i], c.Tags[i+1:]...)
			return
		}
	}
}

func (c *Contact) TagsCopy() []string {
	out := make([]string, len(c.Tags))
	copy(out, c.Tags)
	return out
}
