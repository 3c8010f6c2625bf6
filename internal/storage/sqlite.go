package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eddiefleurent/strike_engine/internal/models"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStorage implements Interface on a SQLite database in WAL mode, so
// several scanner processes can share one history.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates the database at dbPath.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStorage{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS iv_readings (
		symbol TEXT NOT NULL,
		date TEXT NOT NULL,
		iv REAL NOT NULL,
		recorded_at TEXT NOT NULL,
		PRIMARY KEY (symbol, date)
	);

	CREATE TABLE IF NOT EXISTS strategies (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		name TEXT NOT NULL,
		saved_at TEXT NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_strategies_symbol ON strategies(symbol, saved_at);
	CREATE INDEX IF NOT EXISTS idx_strategies_run ON strategies(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// StoreIVReading upserts the reading for its symbol and day.
func (s *SQLiteStorage) StoreIVReading(reading *models.IVReading) error {
	if err := validateReading(reading); err != nil {
		return err
	}
	r := normalizeReading(reading)
	_, err := s.db.Exec(`
		INSERT INTO iv_readings (symbol, date, iv, recorded_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET iv = excluded.iv, recorded_at = excluded.recorded_at`,
		r.Symbol, dayKey(r.Date), r.IV, r.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("storing IV reading: %w", err)
	}
	return nil
}

// GetIVReadings returns readings for symbol between the two dates inclusive, oldest first.
func (s *SQLiteStorage) GetIVReadings(symbol string, startDate, endDate time.Time) ([]models.IVReading, error) {
	query := `SELECT symbol, date, iv, recorded_at FROM iv_readings WHERE symbol = ?`
	args := []any{strings.ToUpper(symbol)}
	if !startDate.IsZero() {
		query += ` AND date >= ?`
		args = append(args, dayKey(startDate))
	}
	if !endDate.IsZero() {
		query += ` AND date <= ?`
		args = append(args, dayKey(endDate))
	}
	query += ` ORDER BY date ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying IV readings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.IVReading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetLatestIVReading returns the most recent reading for symbol.
func (s *SQLiteStorage) GetLatestIVReading(symbol string) (*models.IVReading, error) {
	row := s.db.QueryRow(`SELECT symbol, date, iv, recorded_at FROM iv_readings
		WHERE symbol = ? ORDER BY date DESC LIMIT 1`, strings.ToUpper(symbol))
	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoIVReadings)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReading(row scanner) (models.IVReading, error) {
	var r models.IVReading
	var date, recorded string
	if err := row.Scan(&r.Symbol, &date, &r.IV, &recorded); err != nil {
		return r, err
	}
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return r, fmt.Errorf("parsing reading date %q: %w", date, err)
	}
	r.Date = d
	if ts, err := time.Parse(timeLayout, recorded); err == nil {
		r.Timestamp = ts
	}
	return r, nil
}

// SaveStrategies stores one run's strategies in a single transaction.
func (s *SQLiteStorage) SaveStrategies(runID string, strategies []*models.Strategy) error {
	if len(strategies) == 0 {
		return nil
	}
	savedAt := time.Now().UTC().Format(timeLayout)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO strategies (id, run_id, symbol, name, saved_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, st := range strategies {
		if st == nil {
			continue
		}
		payload, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encoding strategy %s: %w", st.ID, err)
		}
		if _, err := stmt.Exec(st.ID, runID, strings.ToUpper(st.Symbol), st.Name, savedAt, string(payload)); err != nil {
			return fmt.Errorf("inserting strategy %s: %w", st.ID, err)
		}
	}
	return tx.Commit()
}

// GetStrategies returns up to limit records for symbol, newest first. An
// empty symbol matches every record and a non-positive limit returns all.
func (s *SQLiteStorage) GetStrategies(symbol string, limit int) ([]StrategyRecord, error) {
	query := `SELECT run_id, saved_at, payload FROM strategies`
	var args []any
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, strings.ToUpper(symbol))
	}
	query += ` ORDER BY saved_at DESC, name ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying strategies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StrategyRecord
	for rows.Next() {
		var rec StrategyRecord
		var savedAt, payload string
		if err := rows.Scan(&rec.RunID, &savedAt, &payload); err != nil {
			return nil, err
		}
		if rec.SavedAt, err = time.Parse(timeLayout, savedAt); err != nil {
			return nil, fmt.Errorf("parsing saved_at %q: %w", savedAt, err)
		}
		if err := json.Unmarshal([]byte(payload), &rec.Strategy); err != nil {
			return nil, fmt.Errorf("decoding strategy payload: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
