package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event      TEXT NOT NULL,
	from_user  TEXT NOT NULL,
	to_user    TEXT NOT NULL,
	time       TEXT NOT NULL DEFAULT '',
	content    TEXT,
	file_type  TEXT,
	file_name  TEXT,
	file_data  BLOB,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_history_pair ON history(from_user, to_user, id);
`

// SQLiteStore implements store.HistoryStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
	// serialises appends; the pool is capped at one connection as well
	mu sync.Mutex
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function instead of the default schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Set connection pool limits before setup
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append persists a message to storage.
func (s *SQLiteStore) Append(ctx context.Context, msg *store.Message) (store.Record, error) {
	query := `
		INSERT INTO history (event, from_user, to_user, time, content, file_type, file_name, file_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, query,
		msg.Event,
		msg.From,
		msg.To,
		string(msg.Time),
		nullString(msg.Content),
		nullString(msg.FileType),
		nullString(msg.FileName),
		msg.FileData,
	)
	if err != nil {
		return store.Record{}, fmt.Errorf("insert history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return store.Record{}, fmt.Errorf("get last insert id: %w", err)
	}

	return store.Record{Seq: id, Message: *msg}, nil
}

// Query retrieves the conversation between two users in insertion order.
func (s *SQLiteStore) Query(ctx context.Context, userA, userB string) ([]store.Record, error) {
	query := `
		SELECT id, event, from_user, to_user, time, content, file_type, file_name, file_data
		FROM history
		WHERE (from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?)
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := make([]store.Record, 0)
	for rows.Next() {
		var (
			rec                         store.Record
			ts                          string
			content, fileType, fileName sql.NullString
		)
		if err := rows.Scan(
			&rec.Seq,
			&rec.Message.Event,
			&rec.Message.From,
			&rec.Message.To,
			&ts,
			&content,
			&fileType,
			&fileName,
			&rec.Message.FileData,
		); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if len(rec.Message.FileData) == 0 {
			rec.Message.FileData = nil
		}
		if ts != "" {
			rec.Message.Time = json.RawMessage(ts)
		}
		rec.Message.Content = stringPtr(content)
		rec.Message.FileType = stringPtr(fileType)
		rec.Message.FileName = stringPtr(fileName)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return records, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
