package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"council/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	stage       TEXT NOT NULL,
	agent_id    TEXT NOT NULL,
	round       INTEGER NOT NULL DEFAULT 0,
	input_hash  TEXT NOT NULL,
	input_text  TEXT NOT NULL,
	output      TEXT NOT NULL,
	usage       TEXT NOT NULL,
	metadata    TEXT,
	created_at  TIMESTAMP NOT NULL,
	seq         INTEGER
);
CREATE INDEX IF NOT EXISTS idx_entries_session ON entries(session_id);
CREATE INDEX IF NOT EXISTS idx_entries_lookup ON entries(session_id, stage, agent_id, input_hash);

CREATE TABLE IF NOT EXISTS snapshots (
	session_id  TEXT PRIMARY KEY,
	state       BLOB NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
`

// SQLite is a durable Journal backed by a single SQLite file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and initializes) the journal database at path.
// WAL mode and a busy timeout keep the single-writer model workable.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", path,
	))
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	// SQLite supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &SQLite{db: db}, nil
}

// Append implements Journal.
func (s *SQLite) Append(ctx context.Context, e *Entry) error {
	normalize(e)
	usage, err := json.Marshal(e.Usage)
	if err != nil {
		return fmt.Errorf("encode usage: %w", err)
	}
	var metadata []byte
	if len(e.Metadata) > 0 {
		if metadata, err = json.Marshal(e.Metadata); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (id, session_id, stage, agent_id, round, input_hash, input_text, output, usage, metadata, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM entries WHERE session_id = ?))`,
		e.ID, e.SessionID, string(e.Stage), e.AgentID, e.Round, e.InputHash,
		e.InputText, e.Output, string(usage), nullableText(metadata), e.CreatedAt, e.SessionID,
	)
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// Find implements Journal.
func (s *SQLite) Find(ctx context.Context, sessionID string, stage core.Stage, agentID, inputHash string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, stage, agent_id, round, input_hash, input_text, output, usage, metadata, created_at
		FROM entries
		WHERE session_id = ? AND stage = ? AND agent_id = ? AND input_hash = ?
		ORDER BY seq DESC LIMIT 1`,
		sessionID, string(stage), agentID, inputHash,
	)
	return scanEntry(row)
}

// Entries implements Journal.
func (s *SQLite) Entries(ctx context.Context, sessionID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, stage, agent_id, round, input_hash, input_text, output, usage, metadata, created_at
		FROM entries WHERE session_id = ? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query journal entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e        Entry
		stage    string
		usage    string
		metadata sql.NullString
	)
	err := row.Scan(&e.ID, &e.SessionID, &stage, &e.AgentID, &e.Round, &e.InputHash,
		&e.InputText, &e.Output, &usage, &metadata, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan journal entry: %w", err)
	}
	e.Stage = core.Stage(stage)
	if err := json.Unmarshal([]byte(usage), &e.Usage); err != nil {
		return nil, fmt.Errorf("decode usage: %w", err)
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &e, nil
}

// SaveSnapshot implements Journal.
func (s *SQLite) SaveSnapshot(ctx context.Context, sessionID string, state []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (session_id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		sessionID, state, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot implements Journal.
func (s *SQLite) LoadSnapshot(ctx context.Context, sessionID string) ([]byte, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM snapshots WHERE session_id = ?`, sessionID,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return state, nil
}

// Close implements Journal.
func (s *SQLite) Close() error { return s.db.Close() }
