package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/cpusched/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection would see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

const runColumns = `id, name, policy, state, cpu, workload, report, error, created_at, updated_at, ended_at`

// CreateRun inserts run and its timeline segments.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	workloadJSON, reportJSON, err := marshalRun(run)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.Policy, string(run.State), run.Workload.CPU,
		workloadJSON, reportJSON, run.Error,
		run.CreatedAt.Format(time.RFC3339Nano), run.UpdatedAt.Format(time.RFC3339Nano),
		formatOptionalTime(run.EndedAt),
	)
	if err != nil {
		return err
	}
	if err := insertSegments(ctx, tx, run); err != nil {
		return err
	}
	return tx.Commit()
}

// GetRun returns the run with its full report, or nil if it does not exist.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if run.Report != nil {
		segments, err := s.ListSegments(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load segments: %w", err)
		}
		run.Report.Segments = segments
	}
	return run, nil
}

// ListRuns returns runs newest first along with the total matching count.
// Listed reports carry no segments; use GetRun or ListSegments for those.
func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset, "state", opts.State)
	opts.Clamp()

	where := ""
	var args []any
	if opts.State != "" {
		where = " WHERE state = ?"
		args = append(args, string(opts.State))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// UpdateRun rewrites run. The stored timeline is replaced by the report's.
func (s *SQLiteStore) UpdateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", run.ID, "state", run.State)

	workloadJSON, reportJSON, err := marshalRun(run)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE runs SET name=?, policy=?, state=?, cpu=?, workload=?, report=?, error=?,
		 updated_at=?, ended_at=? WHERE id=?`,
		run.Name, run.Policy, string(run.State), run.Workload.CPU,
		workloadJSON, reportJSON, run.Error,
		run.UpdatedAt.Format(time.RFC3339Nano), formatOptionalTime(run.EndedAt), run.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE run_id = ?`, run.ID); err != nil {
		return err
	}
	if err := insertSegments(ctx, tx, run); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteRun removes a run. Its segments go with it.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "runs", "id", id)

	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// ListSegments returns the timeline of a run in tick order.
func (s *SQLiteStore) ListSegments(ctx context.Context, runID string) ([]model.Segment, error) {
	s.logger.Debug("sql", "op", "list", "table", "segments", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT pid, level, start_tick, end_tick FROM segments WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	segments := []model.Segment{}
	for rows.Next() {
		var seg model.Segment
		if err := rows.Scan(&seg.PID, &seg.Level, &seg.Start, &seg.End); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

func insertSegments(ctx context.Context, tx *sql.Tx, run *model.Run) error {
	if run.Report == nil || len(run.Report.Segments) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO segments (run_id, seq, pid, level, start_tick, end_tick) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare segments: %w", err)
	}
	defer stmt.Close()

	for i, seg := range run.Report.Segments {
		if _, err := stmt.ExecContext(ctx, run.ID, i, seg.PID, seg.Level, seg.Start, seg.End); err != nil {
			return fmt.Errorf("insert segment %d: %w", i, err)
		}
	}
	return nil
}

// marshalRun encodes the JSON columns. Segments are kept out of the report
// column since they have a table of their own.
func marshalRun(run *model.Run) (string, *string, error) {
	workloadJSON, err := json.Marshal(run.Workload)
	if err != nil {
		return "", nil, fmt.Errorf("marshal workload: %w", err)
	}
	if run.Report == nil {
		return string(workloadJSON), nil, nil
	}

	report := *run.Report
	report.Segments = nil
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return "", nil, fmt.Errorf("marshal report: %w", err)
	}
	r := string(reportJSON)
	return string(workloadJSON), &r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var run model.Run
	var state, workloadJSON, createdAt, updatedAt string
	var cpu *uint32
	var reportJSON, endedAt *string

	if err := row.Scan(&run.ID, &run.Name, &run.Policy, &state, &cpu,
		&workloadJSON, &reportJSON, &run.Error, &createdAt, &updatedAt, &endedAt); err != nil {
		return nil, err
	}

	run.State = model.RunState(state)
	if err := json.Unmarshal([]byte(workloadJSON), &run.Workload); err != nil {
		return nil, fmt.Errorf("unmarshal workload: %w", err)
	}
	run.Workload.CPU = cpu
	if reportJSON != nil {
		var report model.Report
		if err := json.Unmarshal([]byte(*reportJSON), &report); err != nil {
			return nil, fmt.Errorf("unmarshal report: %w", err)
		}
		run.Report = &report
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	run.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if endedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *endedAt)
		run.EndedAt = &t
	}
	return &run, nil
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}
