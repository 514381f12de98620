// Package store persists session snapshots to SQLite.
//
// A single-row table holds the latest accepted SessionState so a restarted
// process can resume at the tempo and transport flag it last agreed on,
// instead of falling back to hardcoded defaults. A second table keeps a
// tempo-change history for diagnostics.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shaban/tempolink/state"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite handle. WAL mode plus a busy timeout keeps
// concurrent writers (callback goroutine vs. CLI queries) from tripping
// over each other.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and initializes the schema.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(2)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_snapshot (
		id           INTEGER PRIMARY KEY CHECK (id = 1),
		tempo_bpm    REAL NOT NULL,
		beat_origin  REAL NOT NULL,
		time_origin  INTEGER NOT NULL,
		is_playing   INTEGER NOT NULL,
		transport_at INTEGER NOT NULL,
		saved_at     TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tempo_history (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		bpm        REAL NOT NULL,
		at_micros  INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tempo_history_at ON tempo_history(at_micros);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSnapshot upserts the latest session state.
func (s *Store) SaveSnapshot(st state.SessionState) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	playing := 0
	if st.StartStopState.IsPlaying {
		playing = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO session_snapshot (id, tempo_bpm, beat_origin, time_origin, is_playing, transport_at, saved_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			tempo_bpm = excluded.tempo_bpm,
			beat_origin = excluded.beat_origin,
			time_origin = excluded.time_origin,
			is_playing = excluded.is_playing,
			transport_at = excluded.transport_at,
			saved_at = excluded.saved_at`,
		st.Timeline.Tempo.BPM(),
		float64(st.Timeline.BeatOrigin),
		st.Timeline.TimeOrigin,
		playing,
		st.StartStopState.Timestamp,
		now,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored state, with ok=false when nothing has
// been saved yet.
func (s *Store) LoadSnapshot() (st state.SessionState, ok bool, err error) {
	row := s.db.QueryRow(
		`SELECT tempo_bpm, beat_origin, time_origin, is_playing, transport_at
		 FROM session_snapshot WHERE id = 1`,
	)
	var (
		bpm, beatOrigin         float64
		timeOrigin, transportAt int64
		playing                 int
	)
	switch err = row.Scan(&bpm, &beatOrigin, &timeOrigin, &playing, &transportAt); err {
	case nil:
	case sql.ErrNoRows:
		return state.SessionState{}, false, nil
	default:
		return state.SessionState{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	st = state.SessionState{
		Timeline: state.Timeline{
			Tempo:      state.NewTempo(bpm),
			BeatOrigin: state.Beats(beatOrigin),
			TimeOrigin: timeOrigin,
		},
		StartStopState: state.StartStopState{
			IsPlaying: playing != 0,
			Timestamp: transportAt,
		},
	}
	return st, true, nil
}

// TempoEvent is one row of the tempo history.
type TempoEvent struct {
	BPM      float64
	AtMicros int64
}

// RecordTempo appends a tempo change to the history.
func (s *Store) RecordTempo(bpm float64, atMicros int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(
		`INSERT INTO tempo_history (bpm, at_micros, created_at) VALUES (?, ?, ?)`,
		bpm, atMicros, now,
	)
	if err != nil {
		return fmt.Errorf("record tempo: %w", err)
	}
	return nil
}

// TempoHistory returns the most recent tempo changes, newest first,
// capped at limit.
func (s *Store) TempoHistory(limit int) ([]TempoEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT bpm, at_micros FROM tempo_history ORDER BY at_micros DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("tempo history: %w", err)
	}
	defer rows.Close()

	var events []TempoEvent
	for rows.Next() {
		var ev TempoEvent
		if err := rows.Scan(&ev.BPM, &ev.AtMicros); err != nil {
			return nil, fmt.Errorf("tempo history scan: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
