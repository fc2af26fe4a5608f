package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/zapflowhq/zapflow/model"
	"github.com/zapflowhq/zapflow/persistence"
)

// FlowDao reads flow definitions owned by the authoring collaborator. Save
// exists for seeding and tests; the core never mutates definitions.
type FlowDao struct {
	db *sql.DB
}

var _ persistence.FlowDao = (*FlowDao)(nil)

func (d *FlowDao) Save(flow *model.FlowDefinition) error {
	definition, err := json.Marshal(flow)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	enabled := 0
	if flow.Enabled {
		enabled = 1
	}
	_, err = d.db.Exec(`
		INSERT INTO flows (id, name, enabled, definition, position)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM flows))
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			definition = excluded.definition`,
		flow.Id, flow.Name, enabled, string(definition))
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *FlowDao) Get(id string) (*model.FlowDefinition, error) {
	row := d.db.QueryRow(`SELECT definition FROM flows WHERE id = ?`, id)
	var definition string
	if err := row.Scan(&definition); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrFlowNotFound
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	var flow model.FlowDefinition
	if err := json.Unmarshal([]byte(definition), &flow); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return &flow, nil
}

func (d *FlowDao) List() ([]model.FlowDefinition, error) {
	rows, err := d.db.Query(`SELECT definition FROM flows ORDER BY position`)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	var flows []model.FlowDefinition
	for rows.Next() {
		var definition string
		if err := rows.Scan(&definition); err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		var flow model.FlowDefinition
		if err := json.Unmarshal([]byte(definition), &flow); err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		flows = append(flows, flow)
	}
	return flows, rows.Err()
}
