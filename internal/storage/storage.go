// Package storage provides SQLite-backed persistence for analysis run reports.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/venuewatch/internal/models"
)

// ErrRunNotFound is returned when a run id has no stored report.
var ErrRunNotFound = errors.New("run not found")

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db      *sql.DB
	maxRuns int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/venuewatch/data.db.
func New(maxRuns int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "venuewatch", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxRuns: maxRuns}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id            TEXT PRIMARY KEY,
			started_at    INTEGER NOT NULL,
			source        TEXT,
			events        INTEGER NOT NULL,
			rejected      INTEGER NOT NULL,
			flagged_rows  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS venue_snapshots (
			run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			venue            TEXT NOT NULL,
			orders_sent      INTEGER NOT NULL,
			trades_passed    INTEGER NOT NULL,
			orders_cancelled INTEGER NOT NULL,
			open_orders      INTEGER NOT NULL,
			closed_orders    INTEGER NOT NULL,
			mean_duration    REAL NOT NULL,
			stddev_duration  REAL NOT NULL,
			PRIMARY KEY (run_id, venue)
		)`,
		`CREATE TABLE IF NOT EXISTS flagged_orders (
			run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			venue    TEXT NOT NULL,
			order_id TEXT NOT NULL,
			PRIMARY KEY (run_id, venue, order_id)
		)`,
		`CREATE TABLE IF NOT EXISTS novel_symbols (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			venue  TEXT NOT NULL,
			symbol TEXT NOT NULL,
			PRIMARY KEY (run_id, venue, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS frequency_buckets (
			run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			venue        TEXT NOT NULL,
			bucket_start INTEGER NOT NULL,
			message_type TEXT NOT NULL,
			count        INTEGER NOT NULL,
			PRIMARY KEY (run_id, venue, bucket_start, message_type)
		)`,
		`CREATE TABLE IF NOT EXISTS patterns (
			run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			rank       INTEGER NOT NULL,
			pattern_id TEXT NOT NULL,
			shape      TEXT NOT NULL,
			count      INTEGER NOT NULL,
			PRIMARY KEY (run_id, pattern_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun persists a complete report in one transaction and rotates old runs.
// A report without an id is assigned a fresh UUID.
func (s *Storage) SaveRun(report *models.RunReport) error {
	if err := report.Validate(); err != nil {
		return fmt.Errorf("invalid run report: %w", err)
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO runs (id, started_at, source, events, rejected, flagged_rows)
		VALUES (?,?,?,?,?,?)`,
		report.ID, report.StartedAt.UnixNano(), report.Source,
		report.Events, report.Rejected, report.FlaggedRows,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, v := range report.Venues {
		if err := insertVenue(tx, report.ID, v); err != nil {
			return err
		}
	}

	for i, p := range report.Patterns {
		if _, err := tx.Exec(`
			INSERT INTO patterns (run_id, rank, pattern_id, shape, count)
			VALUES (?,?,?,?,?)`,
			report.ID, i, p.ID, p.Shape, p.Count,
		); err != nil {
			return fmt.Errorf("failed to insert pattern %s: %w", p.ID, err)
		}
	}

	if s.maxRuns > 0 {
		if _, err := tx.Exec(`
			DELETE FROM runs WHERE id NOT IN (
				SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
			)`, s.maxRuns); err != nil {
			return fmt.Errorf("failed to enforce run cap: %w", err)
		}
	}

	return tx.Commit()
}

func insertVenue(tx *sql.Tx, runID string, v models.VenueSnapshot) error {
	_, err := tx.Exec(`
		INSERT INTO venue_snapshots
			(run_id, venue, orders_sent, trades_passed, orders_cancelled,
			 open_orders, closed_orders, mean_duration, stddev_duration)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		runID, v.Venue, v.OrdersSent, v.TradesPassed, v.OrdersCancelled,
		v.OpenOrders, v.ClosedOrders, v.MeanDuration, v.StdDevDuration,
	)
	if err != nil {
		return fmt.Errorf("failed to insert venue %s: %w", v.Venue, err)
	}
	for _, id := range v.FlaggedOrders {
		if _, err := tx.Exec(`INSERT INTO flagged_orders (run_id, venue, order_id) VALUES (?,?,?)`,
			runID, v.Venue, id); err != nil {
			return fmt.Errorf("failed to insert flagged order: %w", err)
		}
	}
	for _, sym := range v.NovelSymbols {
		if _, err := tx.Exec(`INSERT INTO novel_symbols (run_id, venue, symbol) VALUES (?,?,?)`,
			runID, v.Venue, sym); err != nil {
			return fmt.Errorf("failed to insert novel symbol: %w", err)
		}
	}
	for _, p := range v.Frequency {
		for mt, count := range p.Counts {
			if _, err := tx.Exec(`
				INSERT INTO frequency_buckets (run_id, venue, bucket_start, message_type, count)
				VALUES (?,?,?,?,?)`,
				runID, v.Venue, p.Start.UnixNano(), string(mt), count,
			); err != nil {
				return fmt.Errorf("failed to insert frequency bucket: %w", err)
			}
		}
	}
	return nil
}

// ListRuns returns run headers, newest first. Venue and pattern details are not loaded.
func (s *Storage) ListRuns() ([]*models.RunReport, error) {
	rows, err := s.db.Query(`SELECT ` + runCols + ` FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.RunReport{}
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadRun returns the full report stored under id.
func (s *Storage) LoadRun(id string) (*models.RunReport, error) {
	row := s.db.QueryRow(`SELECT `+runCols+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if r.Venues, err = s.loadVenues(id); err != nil {
		return nil, err
	}
	if r.Patterns, err = s.loadPatterns(id); err != nil {
		return nil, err
	}
	return r, nil
}

// LatestRun returns the most recent full report, or nil when nothing is stored.
func (s *Storage) LatestRun() (*models.RunReport, error) {
	var id string
	err := s.db.QueryRow(`SELECT id FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	return s.LoadRun(id)
}

// RotateRuns keeps at most maxRuns newest runs by start time.
// Cascading deletes remove the associated venue data and patterns.
func (s *Storage) RotateRuns() error {
	_, err := s.db.Exec(`
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
		)`, s.maxRuns)
	if err != nil {
		return fmt.Errorf("failed to rotate runs: %w", err)
	}
	return nil
}

func (s *Storage) loadVenues(runID string) ([]models.VenueSnapshot, error) {
	rows, err := s.db.Query(`
		SELECT venue, orders_sent, trades_passed, orders_cancelled,
		       open_orders, closed_orders, mean_duration, stddev_duration
		FROM venue_snapshots WHERE run_id = ? ORDER BY venue`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query venues: %w", err)
	}
	var venues []models.VenueSnapshot
	for rows.Next() {
		var v models.VenueSnapshot
		if err := rows.Scan(&v.Venue, &v.OrdersSent, &v.TradesPassed, &v.OrdersCancelled,
			&v.OpenOrders, &v.ClosedOrders, &v.MeanDuration, &v.StdDevDuration); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan venue: %w", err)
		}
		venues = append(venues, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// One connection: each detail query runs after the venue cursor is closed.
	for i := range venues {
		v := &venues[i]
		if v.FlaggedOrders, err = s.loadStrings(`
			SELECT order_id FROM flagged_orders WHERE run_id = ? AND venue = ? ORDER BY order_id`,
			runID, v.Venue); err != nil {
			return nil, fmt.Errorf("failed to load flagged orders: %w", err)
		}
		if v.NovelSymbols, err = s.loadStrings(`
			SELECT symbol FROM novel_symbols WHERE run_id = ? AND venue = ? ORDER BY symbol`,
			runID, v.Venue); err != nil {
			return nil, fmt.Errorf("failed to load novel symbols: %w", err)
		}
		if v.Frequency, err = s.loadFrequency(runID, v.Venue); err != nil {
			return nil, err
		}
	}
	return venues, nil
}

func (s *Storage) loadStrings(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Storage) loadFrequency(runID, venue string) ([]models.FrequencyPoint, error) {
	rows, err := s.db.Query(`
		SELECT bucket_start, message_type, count
		FROM frequency_buckets WHERE run_id = ? AND venue = ?`, runID, venue)
	if err != nil {
		return nil, fmt.Errorf("failed to query frequency: %w", err)
	}
	defer rows.Close()

	byStart := make(map[int64]map[models.MessageType]int)
	for rows.Next() {
		var start int64
		var mt string
		var count int
		if err := rows.Scan(&start, &mt, &count); err != nil {
			return nil, fmt.Errorf("failed to scan frequency bucket: %w", err)
		}
		if byStart[start] == nil {
			byStart[start] = make(map[models.MessageType]int)
		}
		byStart[start][models.MessageType(mt)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	starts := make([]int64, 0, len(byStart))
	for k := range byStart {
		starts = append(starts, k)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	points := make([]models.FrequencyPoint, 0, len(starts))
	for _, k := range starts {
		points = append(points, models.FrequencyPoint{Start: time.Unix(0, k).UTC(), Counts: byStart[k]})
	}
	return points, nil
}

func (s *Storage) loadPatterns(runID string) ([]models.PatternSummary, error) {
	rows, err := s.db.Query(`
		SELECT pattern_id, shape, count FROM patterns WHERE run_id = ? ORDER BY rank`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var out []models.PatternSummary
	for rows.Next() {
		var p models.PatternSummary
		if err := rows.Scan(&p.ID, &p.Shape, &p.Count); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const runCols = `id, started_at, source, events, rejected, flagged_rows`

func scanRun(scan func(...any) error) (*models.RunReport, error) {
	var r models.RunReport
	var startedAtNano int64
	var source sql.NullString
	if err := scan(&r.ID, &startedAtNano, &source, &r.Events, &r.Rejected, &r.FlaggedRows); err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, startedAtNano).UTC()
	r.Source = source.String
	return &r, nil
}
