package sqlite

import (
	"database/sql"

	"github.com/zapflowhq/zapflow/model"
	"github.com/zapflowhq/zapflow/persistence"
)

type MessageDao struct {
	db *sql.DB
}

var _ persistence.MessageDao = (*MessageDao)(nil)

func (d *MessageDao) Append(msg *model.Message) error {
	_, err := d.db.Exec(`
		INSERT INTO messages (id, wa_id, direction, kind, body, media_url, status, provider_id, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.Id, msg.WaId, string(msg.Direction), string(msg.Kind), msg.Body,
		msg.MediaUrl, string(msg.Status), msg.ProviderId, msg.At.UnixMilli())
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *MessageDao) UpdateStatus(waId string, msgId string, status model.MessageStatus, providerId string) error {
	res, err := d.db.Exec(`
		UPDATE messages SET status = ?, provider_id = CASE WHEN ? != '' THEN ? ELSE provider_id END
		WHERE wa_id = ? AND id = ?`,
		string(status), providerId, providerId, waId, msgId)
	return checkUpdated(res, err)
}

func (d *MessageDao) UpdateStatusByProviderId(waId string, providerId string, status model.MessageStatus) error {
	res, err := d.db.Exec(`
		UPDATE messages SET status = ? WHERE wa_id = ? AND provider_id = ?`,
		string(status), waId, providerId)
	return checkUpdated(res, err)
}

func (d *MessageDao) List(waId string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.db.Query(`
		SELECT id, wa_id, direction, kind, body, media_url, status, provider_id, at
		FROM messages WHERE wa_id = ? ORDER BY at DESC LIMIT ?`, waId, limit)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var at int64
		err := rows.Scan(&m.Id, &m.WaId, &m.Direction, &m.Kind, &m.Body,
			&m.MediaUrl, &m.Status, &m.ProviderId, &at)
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		m.At = millisTime(at)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func checkUpdated(res sql.Result, err error) error {
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if affected == 0 {
		return persistence.ErrMessageNotFound
	}
	return nil
}
