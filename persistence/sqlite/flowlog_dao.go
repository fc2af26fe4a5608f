package sqlite

import (
	"database/sql"
	"encoding/json"

	"github.com/zapflowhq/zapflow/model"
	"github.com/zapflowhq/zapflow/persistence"
)

// FlowLogDao is the durable mirror of the flow log; writes are best-effort
// from the recorder's point of view.
type FlowLogDao struct {
	db *sql.DB
}

func (d *FlowLogDao) Append(entry *model.FlowLogEntry) error {
	tagsBefore, _ := json.Marshal(entry.TagsBefore)
	tagsAfter, _ := json.Marshal(entry.TagsAfter)
	notes, _ := json.Marshal(entry.Notes)
	_, err := d.db.Exec(`
		INSERT INTO flow_logs (at, contact_id, flow_id, flow_name, trigger_kind, tags_before, tags_after, notes, repeat_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.At.UnixMilli(), entry.ContactId, entry.FlowId, entry.FlowName,
		entry.Trigger, string(tagsBefore), string(tagsAfter), string(notes), entry.RepeatCount)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *FlowLogDao) List(limit int) ([]model.FlowLogEntry, error) {
	if limit <= 0 {
		limit = 120
	}
	rows, err := d.db.Query(`
		SELECT at, contact_id, flow_id, flow_name, trigger_kind, tags_before, tags_after, notes, repeat_count
		FROM flow_logs ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	var entries []model.FlowLogEntry
	for rows.Next() {
		var e model.FlowLogEntry
		var at int64
		var tagsBefore, tagsAfter, notes string
		err := rows.Scan(&at, &e.ContactId, &e.FlowId, &e.FlowName, &e.Trigger,
			&tagsBefore, &tagsAfter, &notes, &e.RepeatCount)
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		e.At = millisTime(at)
		_ = json.Unmarshal([]byte(tagsBefore), &e.TagsBefore)
		_ = json.Unmarshal([]byte(tagsAfter), &e.TagsAfter)
		_ = json.Unmarshal([]byte(notes), &e.Notes)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
