package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/etnz/holdings"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	id        TEXT PRIMARY KEY,
	position  TEXT NOT NULL,
	aggregate TEXT NOT NULL,
	version   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	position_id TEXT NOT NULL REFERENCES positions(id),
	seq         INTEGER NOT NULL,
	event       TEXT NOT NULL,
	PRIMARY KEY (position_id, seq)
);
CREATE TABLE IF NOT EXISTS rates (
	id    INTEGER PRIMARY KEY CHECK (id = 1),
	table_json TEXT NOT NULL
);
`

// SQLite keeps records in a SQLite database. Each commit is one
// transaction, guarded by the version column, so it is safe with several
// processes sharing the database.
type SQLite struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ holdings.Store = (*SQLite)(nil)

// OpenSQLite opens, and creates if needed, the database at path.
func OpenSQLite(path string, log zerolog.Logger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	// WAL for readers during writes, immediate transactions so that two
	// writers queue on busy_timeout instead of failing on lock upgrade.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := NewSQLite(db, log)
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite wraps an open database. Call Migrate before use on a new
// database.
func NewSQLite(db *sql.DB, log zerolog.Logger) *SQLite {
	return &SQLite{db: db, log: log.With().Str("store", "sqlite").Logger()}
}

// Migrate creates the tables.
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) CreatePosition(ctx context.Context, rec holdings.Record) error {
	pos, agg, err := marshalRecord(rec.Position, rec.Aggregate)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO positions (id, position, aggregate, version) VALUES (?, ?, ?, 1) ON CONFLICT(id) DO NOTHING`,
		rec.Position.ID, pos, agg)
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %q", holdings.ErrPositionExists, rec.Position.ID)
	}
	return nil
}

// LoadPosition reads the position row and its events in one read
// transaction, so they always belong to the same version.
func (s *SQLite) LoadPosition(ctx context.Context, id string) (rec holdings.Record, err error) {
	err = s.read(ctx, func(tx *sql.Tx) error {
		rec, err = loadPosition(ctx, tx, id)
		return err
	})
	return rec, err
}

func (s *SQLite) ListPositions(ctx context.Context) (res []holdings.Record, err error) {
	err = s.read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM positions ORDER BY id`)
		if err != nil {
			return fmt.Errorf("failed to list positions: %w", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		res = make([]holdings.Record, 0, len(ids))
		for _, id := range ids {
			rec, err := loadPosition(ctx, tx, id)
			if err != nil {
				return err
			}
			res = append(res, rec)
		}
		return nil
	})
	return res, err
}

// read runs fn in a read-only transaction.
func (s *SQLite) read(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func loadPosition(ctx context.Context, tx *sql.Tx, id string) (holdings.Record, error) {
	var pos, agg string
	var rec holdings.Record
	err := tx.QueryRowContext(ctx, `SELECT position, aggregate, version FROM positions WHERE id = ?`, id).Scan(&pos, &agg, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return holdings.Record{}, fmt.Errorf("%w: %q", holdings.ErrPositionNotFound, id)
	}
	if err != nil {
		return holdings.Record{}, fmt.Errorf("failed to load position: %w", err)
	}
	if err := unmarshalRecord(&rec, pos, agg); err != nil {
		return holdings.Record{}, err
	}
	rec.Events, err = loadEvents(ctx, tx, id)
	if err != nil {
		return holdings.Record{}, err
	}
	return rec, nil
}

func loadEvents(ctx context.Context, tx *sql.Tx, id string) ([]holdings.Event, error) {
	rows, err := tx.QueryContext(ctx, `SELECT event FROM events WHERE position_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	var events []holdings.Event
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var e holdings.Event
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, fmt.Errorf("failed to decode event of %q: %w", id, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Commit replaces the events and aggregate of a position in one
// transaction. Any failure rolls everything back.
func (s *SQLite) Commit(ctx context.Context, c holdings.Commit) (err error) {
	id := c.Position.ID
	pos, agg, err := marshalRecord(c.Position, c.Aggregate)
	if err != nil {
		return fmt.Errorf("%w: %w", holdings.ErrAtomicWriteFailed, err)
	}
	docs := make([]string, len(c.Events))
	for i, e := range c.Events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("%w: %w", holdings.ErrAtomicWriteFailed, err)
		}
		docs[i] = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", holdings.ErrAtomicWriteFailed, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.Error().Err(rbErr).Str("position", id).Msg("rollback failed")
			}
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE positions SET position = ?, aggregate = ?, version = version + 1 WHERE id = ? AND version = ?`,
		pos, agg, id, c.BaseVersion)
	if err != nil {
		return fmt.Errorf("%w: update position: %w", holdings.ErrAtomicWriteFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", holdings.ErrAtomicWriteFailed, err)
	}
	if n == 0 {
		var current int64
		err = tx.QueryRowContext(ctx, `SELECT version FROM positions WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %w: %q", holdings.ErrAtomicWriteFailed, holdings.ErrPositionNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("%w: %w", holdings.ErrAtomicWriteFailed, err)
		}
		err = conflict(id, c.BaseVersion, current)
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM events WHERE position_id = ?`, id); err != nil {
		return fmt.Errorf("%w: delete events: %w", holdings.ErrAtomicWriteFailed, err)
	}
	for i, doc := range docs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO events (position_id, seq, event) VALUES (?, ?, ?)`, id, i, doc); err != nil {
			return fmt.Errorf("%w: insert event: %w", holdings.ErrAtomicWriteFailed, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", holdings.ErrAtomicWriteFailed, err)
	}
	return nil
}

func (s *SQLite) SaveRates(ctx context.Context, t *holdings.RateTable) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rates (id, table_json) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET table_json = excluded.table_json`,
		string(data))
	if err != nil {
		return fmt.Errorf("failed to save rates: %w", err)
	}
	return nil
}

func (s *SQLite) LoadRates(ctx context.Context) (*holdings.RateTable, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT table_json FROM rates WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rates: %w", err)
	}
	t := new(holdings.RateTable)
	if err := json.Unmarshal([]byte(doc), t); err != nil {
		return nil, fmt.Errorf("could not decode saved rates: %w", err)
	}
	return t, nil
}

func marshalRecord(p holdings.Position, a holdings.Aggregate) (pos, agg string, err error) {
	pb, err := json.Marshal(p)
	if err != nil {
		return "", "", err
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return "", "", err
	}
	return string(pb), string(ab), nil
}

func unmarshalRecord(rec *holdings.Record, pos, agg string) error {
	if err := json.Unmarshal([]byte(pos), &rec.Position); err != nil {
		return fmt.Errorf("failed to decode position: %w", err)
	}
	if err := json.Unmarshal([]byte(agg), &rec.Aggregate); err != nil {
		return fmt.Errorf("failed to decode aggregate: %w", err)
	}
	return nil
}
