package sqlite

import (
	"database/sql"
	"strings"
	"time"

	"github.com/zapflowhq/zapflow/persistence"
)

// ClaimDao enforces the exactly-once claim through the claims table primary
// key; a uniqueness violation is the normal "someone else won" signal.
type ClaimDao struct {
	db *sql.DB
}

var _ persistence.ClaimDao = (*ClaimDao)(nil)

func (d *ClaimDao) TryClaim(jobId string, at time.Time) error {
	_, err := d.db.Exec(`INSERT INTO claims (job_id, claimed_at) VALUES (?, ?)`,
		jobId, at.UnixMilli())
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint") {
		return persistence.ErrClaimDenied
	}
	if strings.Contains(msg, "no such table") {
		return persistence.ErrClaimUnavailable
	}
	return persistence.StorageLayerError{Message: msg}
}

func (d *ClaimDao) Release(jobId string) error {
	_, err := d.db.Exec(`DELETE FROM claims WHERE job_id = ?`, jobId)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return persistence.ErrClaimUnavailable
		}
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *ClaimDao) PurgeOlderThan(cutoff time.Time) (int, error) {
	res, err := d.db.Exec(`DELETE FROM claims WHERE claimed_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, persistence.StorageLayerError{Message: err.Error()}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, persistence.StorageLayerError{Message: err.Error()}
	}
	return int(affected), nil
}
