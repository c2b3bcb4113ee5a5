package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rexliu/glwatch/pkg/core"
)

// ErrNoSamples is returned by Latest on an empty store.
var ErrNoSamples = errors.New("no samples recorded")

var (
	journalModes = map[string]bool{"DELETE": true, "TRUNCATE": true, "PERSIST": true, "MEMORY": true, "WAL": true, "OFF": true}
	syncModes    = map[string]bool{"OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true}
)

// Tuning holds the pragmas applied by Init. Empty fields keep the defaults.
type Tuning struct {
	JournalMode string
	Synchronous string
}

// Store owns the SQLite sample history for a profile.
type Store struct {
	db   *sql.DB
	path string
}

// Path returns the underlying SQLite file path.
func (s *Store) Path() string {
	return s.path
}

// Open initializes a SQLite database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps pragmas and writes on the same handle.
	db.SetMaxOpenConns(1)
	return &Store{db: db, path: path}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Init applies pragmas and ensures the schema exists.
func (s *Store) Init(ctx context.Context, tuning Tuning) error {
	if s == nil || s.db == nil {
		return errors.New("nil store")
	}
	journal := strings.ToUpper(strings.TrimSpace(tuning.JournalMode))
	if journal == "" {
		journal = "DELETE"
	}
	if !journalModes[journal] {
		return fmt.Errorf("unsupported journal mode %q", tuning.JournalMode)
	}
	syncMode := strings.ToUpper(strings.TrimSpace(tuning.Synchronous))
	if syncMode == "" {
		syncMode = "FULL"
	}
	if !syncModes[syncMode] {
		return fmt.Errorf("unsupported synchronous mode %q", tuning.Synchronous)
	}
	pragmas := []string{
		"PRAGMA journal_mode = " + journal + ";",
		"PRAGMA synchronous = " + syncMode + ";",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range pragmas {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}
	return s.applySchema(ctx)
}

func (s *Store) applySchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES ('schemaVersion','1');`,
		`CREATE TABLE IF NOT EXISTS samples (
			id TEXT PRIMARY KEY,
			ts INTEGER NOT NULL,
			tethering_available INTEGER NOT NULL,
			tethering_used INTEGER NOT NULL,
			ethernet_available INTEGER NOT NULL,
			ethernet_used INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples(ts);`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Record stores a sample, assigning an ID when it has none.
func (s *Store) Record(ctx context.Context, sample core.Sample) error {
	if err := core.ValidateSample(sample); err != nil {
		return err
	}
	if sample.ID == "" {
		sample.ID = core.NewSampleID(sample.Timestamp)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO samples(id, ts, tethering_available, tethering_used, ethernet_available, ethernet_used)
		VALUES(?,?,?,?,?,?)
	`, sample.ID, sample.Timestamp.UnixMilli(),
		sample.Tethering.Available, sample.Tethering.Used,
		sample.Ethernet.Available, sample.Ethernet.Used)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// Latest returns the most recent sample.
func (s *Store) Latest(ctx context.Context) (core.Sample, error) {
	samples, err := s.History(ctx, core.HistoryQuery{Limit: 1})
	if err != nil {
		return core.Sample{}, err
	}
	if len(samples) == 0 {
		return core.Sample{}, ErrNoSamples
	}
	return samples[0], nil
}

// History returns samples matching q, newest first.
func (s *Store) History(ctx context.Context, q core.HistoryQuery) ([]core.Sample, error) {
	q, err := core.ValidateQuery(q)
	if err != nil {
		return nil, err
	}
	where := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if !q.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if !q.Until.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, q.Until.UnixMilli())
	}
	stmt := `SELECT id, ts, tethering_available, tethering_used, ethernet_available, ethernet_used FROM samples`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY ts DESC, id DESC LIMIT ?"
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []core.Sample
	for rows.Next() {
		var (
			sample core.Sample
			ts     int64
		)
		if err := rows.Scan(&sample.ID, &ts,
			&sample.Tethering.Available, &sample.Tethering.Used,
			&sample.Ethernet.Available, &sample.Ethernet.Used); err != nil {
			return nil, err
		}
		sample.Timestamp = time.UnixMilli(ts).UTC()
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// Prune deletes samples older than before and reports how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM samples WHERE ts < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
