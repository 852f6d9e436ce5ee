package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/adscope-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	status         TEXT NOT NULL DEFAULT 'running',
	targets        INTEGER NOT NULL DEFAULT 0,
	records        INTEGER NOT NULL DEFAULT 0,
	failed_targets TEXT,
	diagnostics    TEXT,
	started_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at    DATETIME
);

CREATE TABLE IF NOT EXISTS target_results (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	label       TEXT NOT NULL,
	target      TEXT,
	status      TEXT NOT NULL,
	records     INTEGER NOT NULL DEFAULT 0,
	diagnostics TEXT,
	error       TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_target_results_run_id ON target_results(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, targets int) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.NewString(),
		Status:    model.RunStatusRunning,
		Targets:   targets,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, targets, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Status, run.Targets, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, records int, failedTargets []string, diag *model.Diagnostics) error {
	diagJSON, err := marshalDiagnostics(diag)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, records = ?, failed_targets = ?, diagnostics = ?, finished_at = ? WHERE id = ?`,
		status, records, strings.Join(failedTargets, ","), diagJSON, time.Now().UTC(), runID,
	)
	return eris.Wrap(err, "sqlite: complete run")
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, targets, records, failed_targets, diagnostics, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, targets, records, failed_targets, diagnostics, started_at, finished_at FROM runs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY started_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func (s *SQLiteStore) RecordTargetResult(ctx context.Context, runID string, result model.TargetResult) error {
	diagJSON, err := marshalDiagnostics(result.Diagnostics)
	if err != nil {
		return err
	}
	targetJSON, err := marshalTarget(result.Target)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO target_results (id, run_id, label, target, status, records, diagnostics, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), runID, result.Target.Label(), targetJSON, result.Status, len(result.Records), diagJSON, result.Error,
	)
	return eris.Wrap(err, "sqlite: record target result")
}

func (s *SQLiteStore) ListTargetResults(ctx context.Context, runID string) ([]model.TargetResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, target, status, records, diagnostics, error FROM target_results WHERE run_id = ?`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list target results")
	}
	defer rows.Close()

	var results []model.TargetResult
	for rows.Next() {
		tr, err := scanTargetResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan target result")
		}
		results = append(results, *tr)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: list target results")
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	var (
		run        model.Run
		failed     sql.NullString
		diagJSON   sql.NullString
		finishedAt sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.Status, &run.Targets, &run.Records, &failed, &diagJSON, &run.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	if failed.Valid && failed.String != "" {
		run.FailedTargets = strings.Split(failed.String, ",")
	}
	if diag, err := unmarshalDiagnostics(diagJSON.String); err == nil {
		run.Diagnostics = diag
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func scanTargetResult(row scanner) (*model.TargetResult, error) {
	var (
		tr         model.TargetResult
		label      string
		targetJSON sql.NullString
		records    int
		diagJSON   sql.NullString
		errMsg     sql.NullString
	)
	if err := row.Scan(&label, &targetJSON, &tr.Status, &records, &diagJSON, &errMsg); err != nil {
		return nil, err
	}
	tr.Target = unmarshalTarget(targetJSON.String, label)
	tr.Error = errMsg.String
	if diag, err := unmarshalDiagnostics(diagJSON.String); err == nil {
		tr.Diagnostics = diag
	}
	if tr.Diagnostics == nil {
		tr.Diagnostics = &model.Diagnostics{RecordsEmitted: records}
	}
	return &tr, nil
}

func marshalTarget(target model.TargetSpec) (string, error) {
	data, err := json.Marshal(target)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal target")
	}
	return string(data), nil
}

// unmarshalTarget restores the full target shape. Rows written before the
// target column existed carry only the label, which is an advertiser ID,
// domain, or "q:"-prefixed search query.
func unmarshalTarget(data, label string) model.TargetSpec {
	if data != "" {
		var target model.TargetSpec
		if err := json.Unmarshal([]byte(data), &target); err == nil {
			return target
		}
	}
	if q, ok := strings.CutPrefix(label, "q:"); ok {
		return model.TargetSpec{SearchQuery: q}
	}
	if strings.Contains(label, ".") && !strings.HasPrefix(label, "AR") {
		return model.TargetSpec{Domain: label}
	}
	return model.TargetSpec{AdvertiserID: label}
}

func marshalDiagnostics(diag *model.Diagnostics) (string, error) {
	if diag == nil {
		return "", nil
	}
	data, err := json.Marshal(diag)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal diagnostics")
	}
	return string(data), nil
}

func unmarshalDiagnostics(data string) (*model.Diagnostics, error) {
	if data == "" {
		return nil, nil
	}
	var diag model.Diagnostics
	if err := json.Unmarshal([]byte(data), &diag); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal diagnostics")
	}
	return &diag, nil
}
