package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/domain"
	"github.com/berfenger/tigo2mqtt/internal/core/port"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schemaVersion = 2

var migrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS energy_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			energy_wh REAL NOT NULL,
			day INTEGER NOT NULL,
			saved_at datetime NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS energy_history (
			day INTEGER PRIMARY KEY,
			energy_wh REAL NOT NULL)`,
	},
	2: {
		`CREATE TABLE IF NOT EXISTS peak_power (
			address TEXT PRIMARY KEY,
			peak_w REAL NOT NULL)`,
	},
}

// SQLiteEnergyStore keeps the energy accumulator in a single row and the
// per-day history in its own table.
type SQLiteEnergyStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ port.EnergyStore = (*SQLiteEnergyStore)(nil)

func OpenSQLite(path string, logger *zap.Logger) (*SQLiteEnergyStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open energy store %s: %w", path, err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)
	s := &SQLiteEnergyStore{db: db, logger: logger.With(zap.String("store", path))}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEnergyStore) migrate() error {
	vers := 0
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&vers); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for v := vers + 1; v <= schemaVersion; v++ {
		s.logger.Info("store: upgrade schema", zap.Int("version", v))
		for _, stmt := range migrations[v] {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("schema version %d: %w", v, err)
			}
		}
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version=%d;", v)); err != nil {
			return fmt.Errorf("set schema version %d: %w", v, err)
		}
	}
	return nil
}

// LoadEnergy returns nil when nothing was saved yet.
func (s *SQLiteEnergyStore) LoadEnergy(ctx context.Context) (*domain.EnergyState, error) {
	var state domain.EnergyState
	var day int
	err := s.db.QueryRowContext(ctx, `SELECT energy_wh, day, saved_at FROM energy_state WHERE id = 1`).
		Scan(&state.EnergyWh, &day, &state.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load energy: %w", err)
	}
	state.Day = domain.DayKey(day)

	rows, err := s.db.QueryContext(ctx, `SELECT day, energy_wh FROM energy_history ORDER BY day`)
	if err != nil {
		return nil, fmt.Errorf("load energy history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d domain.DailyEnergy
		var hday int
		if err := rows.Scan(&hday, &d.EnergyWh); err != nil {
			return nil, fmt.Errorf("load energy history: %w", err)
		}
		d.Day = domain.DayKey(hday)
		state.History = append(state.History, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load energy history: %w", err)
	}

	peaks, err := s.loadPeaks(ctx)
	if err != nil {
		return nil, err
	}
	state.Peaks = peaks
	return &state, nil
}

func (s *SQLiteEnergyStore) loadPeaks(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, peak_w FROM peak_power`)
	if err != nil {
		return nil, fmt.Errorf("load peak power: %w", err)
	}
	defer rows.Close()
	peaks := make(map[string]float64)
	for rows.Next() {
		var addr string
		var peak float64
		if err := rows.Scan(&addr, &peak); err != nil {
			return nil, fmt.Errorf("load peak power: %w", err)
		}
		peaks[addr] = peak
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load peak power: %w", err)
	}
	return peaks, nil
}

// SaveEnergy replaces the stored state, history and peaks in one transaction.
func (s *SQLiteEnergyStore) SaveEnergy(ctx context.Context, state domain.EnergyState) error {
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save energy: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO energy_state (id, energy_wh, day, saved_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET energy_wh = excluded.energy_wh, day = excluded.day, saved_at = excluded.saved_at`,
		state.EnergyWh, int(state.Day), state.SavedAt.UTC()); err != nil {
		return fmt.Errorf("save energy: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM energy_history`); err != nil {
		return fmt.Errorf("save energy history: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO energy_history (day, energy_wh) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("save energy history: %w", err)
	}
	defer stmt.Close()
	for _, d := range state.History {
		if _, err := stmt.ExecContext(ctx, int(d.Day), d.EnergyWh); err != nil {
			return fmt.Errorf("save energy history: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM peak_power`); err != nil {
		return fmt.Errorf("save peak power: %w", err)
	}
	peakStmt, err := tx.PrepareContext(ctx, `INSERT INTO peak_power (address, peak_w) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("save peak power: %w", err)
	}
	defer peakStmt.Close()
	for addr, peak := range state.Peaks {
		if peak <= 0 {
			continue
		}
		if _, err := peakStmt.ExecContext(ctx, addr, peak); err != nil {
			return fmt.Errorf("save peak power: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save energy: %w", err)
	}
	s.logger.Debug("store: energy saved", zap.Float64("energy_wh", state.EnergyWh), zap.Int("day", int(state.Day)), zap.Int("peaks", len(state.Peaks)))
	return nil
}

func (s *SQLiteEnergyStore) Close() error {
	return s.db.Close()
}
