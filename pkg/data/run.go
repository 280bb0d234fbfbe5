package data

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/combo/pkg/sim"
)

const (
	// fixed width so created_at sorts as text
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

	RunListLimitDefault = 20

	insertRunSQL = `INSERT INTO run (
			id, name, created_at, mode, strategy, top, percentage, seed, total,
			evaluated, skipped, score_min, score_max, score_mean, score_stddev, definition
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	insertRunResultSQL = `INSERT INTO run_result (run_id, rank, combination, score) VALUES (?, ?, ?, ?)`

	selectRunColumns = `id, name, created_at, mode, strategy, top, percentage, seed, total,
		evaluated, skipped, score_min, score_max, score_mean, score_stddev`

	selectRunsSQL = `SELECT ` + selectRunColumns + ` FROM run ORDER BY created_at DESC, id LIMIT ?`

	selectRunSQL = `SELECT ` + selectRunColumns + `, definition FROM run WHERE id = ?`

	selectRunResultsSQL = `SELECT rank, combination, score FROM run_result WHERE run_id = ? ORDER BY rank`

	deleteRunResultsSQL = `DELETE FROM run_result WHERE run_id = ?`
	deleteRunSQL        = `DELETE FROM run WHERE id = ?`
)

var ErrRunNotFound = errors.New("run not found")

// RunResult is one ranked entry of a stored run.
type RunResult struct {
	Rank        int             `json:"rank" yaml:"rank"`
	Combination sim.Combination `json:"combination" yaml:"combination"`
	Score       float64         `json:"score" yaml:"score"`
}

// Run is a stored simulation run.
type Run struct {
	ID         string       `json:"id" yaml:"id"`
	Name       string       `json:"name" yaml:"name"`
	CreatedAt  time.Time    `json:"created_at" yaml:"created_at"`
	Mode       string       `json:"mode" yaml:"mode"`
	Strategy   string       `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Top        int          `json:"top" yaml:"top"`
	Percentage float64      `json:"percentage,omitempty" yaml:"percentage,omitempty"`
	Seed       uint64       `json:"seed,omitempty" yaml:"seed,omitempty"`
	Total      uint64       `json:"total" yaml:"total"`
	Evaluated  int          `json:"evaluated" yaml:"evaluated"`
	Skipped    int          `json:"skipped_rules" yaml:"skipped_rules"`
	Summary    sim.Summary  `json:"summary" yaml:"summary"`
	Definition string       `json:"definition,omitempty" yaml:"definition,omitempty"`
	Results    []*RunResult `json:"results,omitempty" yaml:"results,omitempty"`
}

// NewRun captures a report and the configuration that produced it.
// definition is the encoded definition file the run was made from.
func NewRun(name, definition string, cfg sim.Config, rep *sim.Report) *Run {
	r := &Run{
		ID:         uuid.NewString(),
		Name:       name,
		CreatedAt:  time.Now().UTC(),
		Mode:       string(rep.Mode),
		Strategy:   string(rep.Strategy),
		Top:        cfg.Top,
		Seed:       rep.Seed,
		Total:      rep.Total,
		Evaluated:  rep.Evaluated,
		Skipped:    rep.SkippedRules,
		Summary:    rep.Summary,
		Definition: definition,
		Results:    make([]*RunResult, 0, len(rep.Top)),
	}
	if rep.Mode == sim.ModeSampling {
		r.Percentage = cfg.Sampling.Percentage
	}
	for i, sc := range rep.Top {
		r.Results = append(r.Results, &RunResult{
			Rank:        i + 1,
			Combination: sc.Combination,
			Score:       sc.Score,
		})
	}
	return r
}

// SaveRun stores the run and its results in a single transaction.
func SaveRun(db *sql.DB, r *Run) error {
	if db == nil {
		return errDBNotInitialized
	}
	if r == nil || r.ID == "" {
		return errors.New("run with id required")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error starting run tx: %w", err)
	}

	if _, err := tx.Exec(insertRunSQL,
		r.ID, r.Name, r.CreatedAt.UTC().Format(timeFormat), r.Mode, r.Strategy, r.Top, r.Percentage,
		int64(r.Seed), int64(r.Total), r.Evaluated, r.Skipped,
		nullFloat(r.Summary.Min), nullFloat(r.Summary.Max), nullFloat(r.Summary.Mean), nullFloat(r.Summary.StdDev),
		r.Definition,
	); err != nil {
		rollbackTransaction(tx)
		return fmt.Errorf("error inserting run %s: %w", r.ID, err)
	}

	stmt, err := tx.Prepare(insertRunResultSQL)
	if err != nil {
		rollbackTransaction(tx)
		return fmt.Errorf("error preparing run result insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range r.Results {
		b, err := json.Marshal(res.Combination)
		if err != nil {
			rollbackTransaction(tx)
			return fmt.Errorf("error encoding combination %s: %w", res.Combination, err)
		}
		if _, err := stmt.Exec(r.ID, res.Rank, string(b), nullFloat(res.Score)); err != nil {
			rollbackTransaction(tx)
			return fmt.Errorf("error inserting run result %d: %w", res.Rank, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing run tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner, extra ...any) (*Run, error) {
	var (
		r                          Run
		created                    string
		seed                       int64
		total                      int64
		minS, maxS, meanS, stddevS sql.NullFloat64
	)
	dest := []any{
		&r.ID, &r.Name, &created, &r.Mode, &r.Strategy, &r.Top, &r.Percentage, &seed, &total,
		&r.Evaluated, &r.Skipped, &minS, &maxS, &meanS, &stddevS,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	t, err := time.Parse(timeFormat, created)
	if err != nil {
		return nil, fmt.Errorf("error parsing run time %q: %w", created, err)
	}
	r.CreatedAt = t
	r.Seed = uint64(seed)
	r.Total = uint64(total)
	r.Summary.Count = r.Evaluated
	r.Summary.Min, r.Summary.Max = floatOrNaN(minS), floatOrNaN(maxS)
	r.Summary.Mean, r.Summary.StdDev = floatOrNaN(meanS), floatOrNaN(stddevS)
	return &r, nil
}

// ListRuns returns the most recent runs without their results.
func ListRuns(db *sql.DB, limit int) ([]*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = RunListLimitDefault
	}

	rows, err := db.Query(selectRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute run select statement: %w", err)
	}
	defer rows.Close()

	list := make([]*Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run rows: %w", err)
	}

	return list, nil
}

// GetRun returns the run with its ranked results.
func GetRun(db *sql.DB, id string) (*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	var def string
	r, err := scanRun(db.QueryRow(selectRunSQL, id), &def)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to scan run %s: %w", id, err)
	}
	r.Definition = def

	rows, err := db.Query(selectRunResultsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("failed to execute run result select statement: %w", err)
	}
	defer rows.Close()

	r.Results = make([]*RunResult, 0)
	for rows.Next() {
		var (
			res   RunResult
			combo string
			score sql.NullFloat64
		)
		if err := rows.Scan(&res.Rank, &combo, &score); err != nil {
			return nil, fmt.Errorf("failed to scan run result row: %w", err)
		}
		res.Score = floatOrNaN(score)
		if err := json.Unmarshal([]byte(combo), &res.Combination); err != nil {
			return nil, fmt.Errorf("failed to decode combination %q: %w", combo, err)
		}
		r.Results = append(r.Results, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run result rows: %w", err)
	}

	return r, nil
}

// DeleteRun removes a run and its results.
func DeleteRun(db *sql.DB, id string) error {
	if db == nil {
		return errDBNotInitialized
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error starting delete tx: %w", err)
	}

	if _, err := tx.Exec(deleteRunResultsSQL, id); err != nil {
		rollbackTransaction(tx)
		return fmt.Errorf("error deleting results of run %s: %w", id, err)
	}

	res, err := tx.Exec(deleteRunSQL, id)
	if err != nil {
		rollbackTransaction(tx)
		return fmt.Errorf("error deleting run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		rollbackTransaction(tx)
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing delete tx: %w", err)
	}
	return nil
}

// ResetRuns deletes all stored runs and returns how many were removed.
func ResetRuns(db *sql.DB) (int64, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("error starting reset tx: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM run_result`); err != nil {
		rollbackTransaction(tx)
		return 0, fmt.Errorf("error deleting run results: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM run`)
	if err != nil {
		rollbackTransaction(tx)
		return 0, fmt.Errorf("error deleting runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollbackTransaction(tx)
		return 0, fmt.Errorf("error counting deleted runs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing reset tx: %w", err)
	}
	return n, nil
}

// nullFloat stores NaN as NULL, sqlite has no NaN.
func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func floatOrNaN(n sql.NullFloat64) float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.Float64
}

func (r RunResult) MarshalJSON() ([]byte, error) {
	type plain RunResult
	return json.Marshal(struct {
		plain
		Score sim.JSONFloat `json:"score"`
	}{plain(r), sim.JSONFloat(r.Score)})
}

func (r *RunResult) UnmarshalJSON(b []byte) error {
	type plain RunResult
	aux := struct {
		*plain
		Score sim.JSONFloat `json:"score"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.Score = float64(aux.Score)
	return nil
}
