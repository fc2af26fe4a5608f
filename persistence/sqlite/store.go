package sqlite

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// Store is the durable tier. It expects a modernc.org/sqlite DSN; the schema
// is initialized on construction the same way for files and in-memory DSNs.
type Store struct {
	db *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers anyway; a single connection avoids
	// SQLITE_BUSY surfacing as spurious storage errors.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS contacts (
			wa_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			last_message_text TEXT NOT NULL DEFAULT '',
			last_message_at INTEGER NOT NULL DEFAULT 0,
			last_flow_trigger_at INTEGER NOT NULL DEFAULT 0,
			last_flow_trigger_msg_id TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS flows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 0,
			definition TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			wa_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			kind TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			media_url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			provider_id TEXT NOT NULL DEFAULT '',
			at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_wa_id ON messages(wa_id, at);
		CREATE TABLE IF NOT EXISTS claims (
			job_id TEXT PRIMARY KEY,
			claimed_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS flow_logs (
			at INTEGER NOT NULL,
			contact_id TEXT NOT NULL,
			flow_id TEXT NOT NULL,
			flow_name TEXT NOT NULL,
			trigger_kind TEXT NOT NULL,
			tags_before TEXT NOT NULL,
			tags_after TEXT NOT NULL,
			notes TEXT NOT NULL,
			repeat_count INTEGER NOT NULL DEFAULT 1
		);`,
	)
	return err
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Contacts() *ContactDao {
	return &ContactDao{db: s.db}
}

func (s *Store) Flows() *FlowDao {
	return &FlowDao{db: s.db}
}

func (s *Store) Messages() *MessageDao {
	return &MessageDao{db: s.db}
}

func (s *Store) Claims() *ClaimDao {
	return &ClaimDao{db: s.db}
}

func (s *Store) FlowLogs() *FlowLogDao {
	return &FlowLogDao{db: s.db}
}
