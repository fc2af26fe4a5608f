package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/zapflowhq/zapflow/model"
	"github.com/zapflowhq/zapflow/persistence"
)

type ContactDao struct {
	db *sql.DB
}

var _ persistence.ContactDao = (*ContactDao)(nil)

func (d *ContactDao) Save(contact *model.Contact) error {
	tags, err := json.Marshal(contact.Tags)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	_, err = d.db.Exec(`
		INSERT INTO contacts (wa_id, name, tags, last_message_text, last_message_at,
			last_flow_trigger_at, last_flow_trigger_msg_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wa_id) DO UPDATE SET
			name = excluded.name,
			tags = excluded.tags,
			last_message_text = excluded.last_message_text,
			last_message_at = excluded.last_message_at,
			last_flow_trigger_at = excluded.last_flow_trigger_at,
			last_flow_trigger_msg_id = excluded.last_flow_trigger_msg_id,
			updated_at = excluded.updated_at`,
		contact.WaId,
		contact.Name,
		string(tags),
		contact.LastMessageText,
		contact.LastMessageAt.UnixMilli(),
		contact.LastFlowTriggerAt.UnixMilli(),
		contact.LastFlowTriggerMsgId,
		contact.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *ContactDao) Get(waId string) (*model.Contact, error) {
	row := d.db.QueryRow(`
		SELECT wa_id, name, tags, last_message_text, last_message_at,
			last_flow_trigger_at, last_flow_trigger_msg_id, updated_at
		FROM contacts WHERE wa_id = ?`, waId)
	return scanContact(row)
}

func (d *ContactDao) List(limit int) ([]model.Contact, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.Query(`
		SELECT wa_id, name, tags, last_message_text, last_message_at,
			last_flow_trigger_at, last_flow_trigger_msg_id, updated_at
		FROM contacts ORDER BY last_message_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	var contacts []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*model.Contact, error) {
	var c model.Contact
	var tags string
	var lastMsgAt, lastTriggerAt, updatedAt int64
	err := row.Scan(&c.WaId, &c.Name, &tags, &c.LastMessageText, &lastMsgAt,
		&lastTriggerAt, &c.LastFlowTriggerMsgId, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrContactNotFound
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
		c.Tags = nil
	}
	c.LastMessageAt = millisTime(lastMsgAt)
	c.LastFlowTriggerAt = millisTime(lastTriggerAt)
	c.UpdatedAt = millisTime(updatedAt)
	return &c, nil
}

func millisTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
