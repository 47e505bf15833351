// Package journal keeps an append-only SQLite log of sequence edits.
//
// A session stores the sequence it started from plus every committed store
// edit, each stamped with a logical seq. Replaying a session rebuilds the
// exact final sequence, and replaying twice must give identical results.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema
// 1 - Added index on edits.op for per-operation statistics
const currentSchemaVersion = 1

// Journal is the SQLite-backed edit log.
//
// Thread-safety: safe for concurrent use; the connection pool is limited to
// one connection so writes are serialized by database/sql.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens a journal database at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	// SQLite has a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Journal{db: db, logger: logger}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return runMigrations(db)
}

func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < 1 {
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_edits_op ON edits(op)`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Session summarizes one recorded session.
type Session struct {
	ID          string
	Label       string
	Bars        int
	StepsPerBar int
	BPM         float64
	Edits       int
	LastSeq     int64
}

// Entry is one journaled edit.
type Entry struct {
	SessionID string
	Seq       int64
	Edit      sequence.Edit
}

// BeginSession records the sequence a session starts from. Beginning an
// existing session id is a no-op.
func (j *Journal) BeginSession(ctx context.Context, id, label string, base *sequence.Sequence) error {
	data, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO sessions (id, label, bars, steps_per_bar, bpm, base)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, label, base.Bars(), base.StepsPerBar, base.BPM, string(data))
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// Append stores one edit. Appending the same (session, seq) twice is
// ignored, so a retried write cannot duplicate an edit.
func (j *Journal) Append(ctx context.Context, sessionID string, seq int64, e sequence.Edit) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("append edit: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO edits (session_id, seq, op, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, sessionID, seq, string(e.Op), string(payload))
	if err != nil {
		return fmt.Errorf("append edit: %w", err)
	}
	return nil
}

// Base returns the sequence a session started from.
func (j *Journal) Base(ctx context.Context, sessionID string) (*sequence.Sequence, error) {
	var data string
	err := j.db.QueryRowContext(ctx, `SELECT base FROM sessions WHERE id = ?`, sessionID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("read session %s: not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var seq sequence.Sequence
	if err := json.Unmarshal([]byte(data), &seq); err != nil {
		return nil, fmt.Errorf("decode session base: %w", err)
	}
	return &seq, nil
}

// Entries returns a session's edits ordered by seq. It returns an empty
// slice, not nil, for a session without edits.
func (j *Journal) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, payload FROM edits
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query edits: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			seq     int64
			payload string
		)
		if err := rows.Scan(&seq, &payload); err != nil {
			return nil, fmt.Errorf("scan edit: %w", err)
		}
		var e sequence.Edit
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("decode edit %d: %w", seq, err)
		}
		entries = append(entries, Entry{SessionID: sessionID, Seq: seq, Edit: e})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edits: %w", err)
	}
	return entries, nil
}

// LastSeq returns the highest seq stored for a session, 0 when empty.
func (j *Journal) LastSeq(ctx context.Context, sessionID string) (int64, error) {
	var last sql.NullInt64
	err := j.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM edits WHERE session_id = ?`, sessionID).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return last.Int64, nil
}

// Sessions lists every session in creation order.
func (j *Journal) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT s.id, s.label, s.bars, s.steps_per_bar, s.bpm,
		       COUNT(e.seq), COALESCE(MAX(e.seq), 0)
		FROM sessions s
		LEFT JOIN edits e ON e.session_id = s.id
		GROUP BY s.rowid
		ORDER BY s.rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Label, &s.Bars, &s.StepsPerBar, &s.BPM, &s.Edits, &s.LastSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// OpCounts returns how many edits of each operation a session holds.
func (j *Journal) OpCounts(ctx context.Context, sessionID string) (map[sequence.Op]int, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT op, COUNT(*) FROM edits
		WHERE session_id = ?
		GROUP BY op
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query op counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[sequence.Op]int)
	for rows.Next() {
		var (
			op string
			n  int
		)
		if err := rows.Scan(&op, &n); err != nil {
			return nil, fmt.Errorf("scan op count: %w", err)
		}
		counts[sequence.Op(op)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate op counts: %w", err)
	}
	return counts, nil
}
