// sessionlog.go - per-session SQLite logger for the diagnostic stream.
//
// Grounded on cartomix's storage layer (internal/storage/db.go): open with
// WAL mode, create the schema inline rather than from embedded migration
// files (this is a single append-only table, not a versioned schema), wrap
// every database/sql error with context.

package main

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/synqing/beatcore"
)

type sessionLog struct {
	db        *sql.DB
	sessionID string
	insert    *sql.Stmt
}

func newSessionLog(path string) (*sessionLog, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("beatmon: open session log %q: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("beatmon: enable WAL mode: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS hops (
	session_id   TEXT NOT NULL,
	hop_seq      INTEGER NOT NULL,
	t_ms         INTEGER NOT NULL,
	bpm          REAL NOT NULL,
	beat_phase   REAL NOT NULL,
	beat_tick    INTEGER NOT NULL,
	downbeat     INTEGER NOT NULL,
	confidence   REAL NOT NULL,
	locked       INTEGER NOT NULL,
	PRIMARY KEY (session_id, hop_seq)
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("beatmon: create schema: %w", err)
	}

	stmt, err := db.Prepare(`INSERT INTO hops
		(session_id, hop_seq, t_ms, bpm, beat_phase, beat_tick, downbeat, confidence, locked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("beatmon: prepare insert: %w", err)
	}

	return &sessionLog{db: db, sessionID: uuid.NewString(), insert: stmt}, nil
}

func (s *sessionLog) Append(frame *beatcore.ControlBusFrame) error {
	_, err := s.insert.Exec(
		s.sessionID, frame.HopSeq, frame.TMs, frame.BPM, frame.BeatPhase01,
		boolToInt(frame.BeatTick), boolToInt(frame.DownbeatTick), frame.Confidence,
		boolToInt(frame.Locked),
	)
	if err != nil {
		return fmt.Errorf("beatmon: append hop %d: %w", frame.HopSeq, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *sessionLog) Close() error {
	s.insert.Close()
	return s.db.Close()
}
