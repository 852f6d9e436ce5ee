package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/adscope-cli/internal/model"
)

// pgPool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for unit tests.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool pgPool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	status         TEXT NOT NULL DEFAULT 'running',
	targets        INTEGER NOT NULL DEFAULT 0,
	records        INTEGER NOT NULL DEFAULT 0,
	failed_targets TEXT,
	diagnostics    JSONB,
	started_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS target_results (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	label       TEXT NOT NULL,
	target      JSONB,
	status      TEXT NOT NULL,
	records     INTEGER NOT NULL DEFAULT 0,
	diagnostics JSONB,
	error       TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_target_results_run_id ON target_results(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, targets int) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.NewString(),
		Status:    model.RunStatusRunning,
		Targets:   targets,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, targets, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Status, run.Targets, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, records int, failedTargets []string, diag *model.Diagnostics) error {
	diagJSON, err := marshalDiagnostics(diag)
	if err != nil {
		return err
	}
	var diagArg any
	if diagJSON != "" {
		diagArg = diagJSON
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, records = $2, failed_targets = $3, diagnostics = $4, finished_at = $5 WHERE id = $6`,
		status, records, strings.Join(failedTargets, ","), diagArg, time.Now().UTC(), runID,
	)
	return eris.Wrap(err, "postgres: complete run")
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, targets, records, failed_targets, diagnostics, started_at, finished_at FROM runs WHERE id = $1`,
		runID,
	)
	run, err := scanPgRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(err, "postgres: get run %s", runID)
		}
		return nil, eris.Wrap(err, "postgres: get run")
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, targets, records, failed_targets, diagnostics, started_at, finished_at FROM runs`
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` WHERE status = $1`
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += ` ORDER BY started_at DESC LIMIT $` + strconv.Itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

func (s *PostgresStore) RecordTargetResult(ctx context.Context, runID string, result model.TargetResult) error {
	diagJSON, err := marshalDiagnostics(result.Diagnostics)
	if err != nil {
		return err
	}
	var diagArg any
	if diagJSON != "" {
		diagArg = diagJSON
	}
	targetJSON, err := marshalTarget(result.Target)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO target_results (id, run_id, label, target, status, records, diagnostics, error) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), runID, result.Target.Label(), targetJSON, result.Status, len(result.Records), diagArg, result.Error,
	)
	return eris.Wrap(err, "postgres: record target result")
}

func (s *PostgresStore) ListTargetResults(ctx context.Context, runID string) ([]model.TargetResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT label, target, status, records, diagnostics, error FROM target_results WHERE run_id = $1`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list target results")
	}
	defer rows.Close()

	var results []model.TargetResult
	for rows.Next() {
		tr, err := scanPgTargetResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan target result")
		}
		results = append(results, *tr)
	}
	return results, eris.Wrap(rows.Err(), "postgres: list target results")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var (
		run        model.Run
		failed     *string
		diagJSON   *string
		finishedAt *time.Time
	)
	if err := row.Scan(&run.ID, &run.Status, &run.Targets, &run.Records, &failed, &diagJSON, &run.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	if failed != nil && *failed != "" {
		run.FailedTargets = strings.Split(*failed, ",")
	}
	if diagJSON != nil {
		if diag, err := unmarshalDiagnostics(*diagJSON); err == nil {
			run.Diagnostics = diag
		}
	}
	run.FinishedAt = finishedAt
	return &run, nil
}

func scanPgTargetResult(row pgx.Row) (*model.TargetResult, error) {
	var (
		tr         model.TargetResult
		label      string
		targetJSON *string
		records    int
		diagJSON   *string
		errMsg     *string
	)
	if err := row.Scan(&label, &targetJSON, &tr.Status, &records, &diagJSON, &errMsg); err != nil {
		return nil, err
	}
	var targetRaw string
	if targetJSON != nil {
		targetRaw = *targetJSON
	}
	tr.Target = unmarshalTarget(targetRaw, label)
	if errMsg != nil {
		tr.Error = *errMsg
	}
	if diagJSON != nil {
		if diag, err := unmarshalDiagnostics(*diagJSON); err == nil {
			tr.Diagnostics = diag
		}
	}
	if tr.Diagnostics == nil {
		tr.Diagnostics = &model.Diagnostics{RecordsEmitted: records}
	}
	return &tr, nil
}
