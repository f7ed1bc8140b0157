package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nutrakinetics/nadsim/internal/calib"
	"github.com/nutrakinetics/nadsim/internal/sim"
)

// RunSummary is the list view of a stored run.
type RunSummary struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Route     string    `json:"route"`
	Compound  string    `json:"compound"`
	DoseMg    float64   `json:"dose_mg"`
	CreatedAt time.Time `json:"created_at"`
	Cancelled bool      `json:"cancelled"`
}

// SaveRun stores a result under its scenario id, replacing an earlier
// save of the same id.
func (s *Store) SaveRun(res *sim.Result) error {
	blob, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	sc := res.Scenario
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO runs (id, label, route, compound, dose_mg, created_at, cancelled, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.Label, sc.Route, sc.Compound, sc.DoseMg,
		sc.CreatedAt.UTC().Format(time.RFC3339Nano), boolToInt(res.Cancelled), blob)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", sc.ID, err)
	}
	return nil
}

// GetRun loads one stored result by id.
func (s *Store) GetRun(id string) (*sim.Result, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT result_json FROM runs WHERE id = ?", id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	var res sim.Result
	if err := json.Unmarshal(blob, &res); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return &res, nil
}

// ListRuns returns summaries of every stored run, newest first.
func (s *Store) ListRuns() ([]RunSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, label, route, compound, dose_mg, created_at, cancelled
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var created string
		var cancelled int
		if err := rows.Scan(&rs.ID, &rs.Label, &rs.Route, &rs.Compound, &rs.DoseMg, &created, &cancelled); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			rs.CreatedAt = ts
		}
		rs.Cancelled = cancelled != 0
		out = append(out, rs)
	}
	return out, rows.Err()
}

// DeleteRun removes one stored run.
func (s *Store) DeleteRun(id string) error {
	res, err := s.db.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// FitSummary is the list view of a stored calibration.
type FitSummary struct {
	ID       string    `json:"id"`
	Target   string    `json:"target"`
	Status   string    `json:"status"`
	FittedAt time.Time `json:"fitted_at"`
}

// SaveFit stores a calibration result and returns its generated id.
func (s *Store) SaveFit(fit *calib.FitResult) (string, error) {
	blob, err := json.Marshal(fit)
	if err != nil {
		return "", fmt.Errorf("encoding fit: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.Exec(`
		INSERT INTO fits (id, target, status, fitted_at, result_json)
		VALUES (?, ?, ?, ?, ?)`,
		id, fit.Target, fit.Status, fit.FittedAt.UTC().Format(time.RFC3339Nano), blob)
	if err != nil {
		return "", fmt.Errorf("saving fit: %w", err)
	}
	return id, nil
}

// GetFit loads one stored calibration by id.
func (s *Store) GetFit(id string) (*calib.FitResult, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT result_json FROM fits WHERE id = ?", id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading fit %s: %w", id, err)
	}
	var fit calib.FitResult
	if err := json.Unmarshal(blob, &fit); err != nil {
		return nil, fmt.Errorf("decoding fit %s: %w", id, err)
	}
	return &fit, nil
}

// ListFits returns summaries of every stored calibration, newest first.
func (s *Store) ListFits() ([]FitSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, target, status, fitted_at FROM fits ORDER BY fitted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing fits: %w", err)
	}
	defer rows.Close()

	var out []FitSummary
	for rows.Next() {
		var fs FitSummary
		var fitted string
		if err := rows.Scan(&fs.ID, &fs.Target, &fs.Status, &fitted); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, fitted); err == nil {
			fs.FittedAt = ts
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
