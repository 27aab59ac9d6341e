package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/stepwise/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database and returns a Store. dbPath is a
// file URI such as "file:/path/to/history.db"; a plain filesystem path is
// turned into one.
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", libsqlDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

func libsqlDSN(dbPath string) string {
	if dbPath == ":memory:" || strings.HasPrefix(dbPath, "file:") || strings.Contains(dbPath, "://") {
		return dbPath
	}
	return "file:" + dbPath
}

// DB returns the underlying *sql.DB (used by the event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return migrate(ctx, s.db)
}

// SchemaVersion reports the highest applied migration.
func (s *LibSQLStore) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Execution history ---

// SaveRecord inserts rec, replacing any stored record with the same id.
func (s *LibSQLStore) SaveRecord(ctx context.Context, rec *schema.ExecutionRecord) error {
	if rec == nil || rec.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "record id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO executions (id, workflow_name, status, error, start_time, end_time, step_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET workflow_name=excluded.workflow_name, status=excluded.status,
		   error=excluded.error, start_time=excluded.start_time, end_time=excluded.end_time,
		   step_count=excluded.step_count`,
		rec.ID, rec.WorkflowName, string(rec.Status), nullStr(rec.Error),
		timeOrNow(rec.StartTime), nullTime(rec.EndTime), len(rec.Steps),
	)
	if err != nil {
		return storeErr("insert execution", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM execution_steps WHERE execution_id = ?`, rec.ID); err != nil {
		return storeErr("clear steps", err)
	}

	for i, step := range rec.Steps {
		input, err := nullJSON(step.Input)
		if err != nil {
			return fmt.Errorf("marshal input of step %d: %w", i, err)
		}
		output, err := nullJSON(step.Output)
		if err != nil {
			return fmt.Errorf("marshal output of step %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO execution_steps (execution_id, seq, node_id, node_type, workflow, status, input, output, error, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, step.NodeID, string(step.NodeType), nullStr(step.Workflow), string(step.Status),
			input, output, nullStr(step.Error), timeOrNow(step.Timestamp),
		)
		if err != nil {
			return storeErr("insert step", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit record", err)
	}
	return nil
}

func (s *LibSQLStore) GetRecord(ctx context.Context, id string) (*schema.ExecutionRecord, error) {
	rec := &schema.ExecutionRecord{}
	var (
		status  string
		errMsg  sql.NullString
		endTime sql.NullTime
		count   int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_name, status, error, start_time, end_time, step_count FROM executions WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.WorkflowName, &status, &errMsg, &rec.StartTime, &endTime, &count)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("record", id)
	}
	if err != nil {
		return nil, storeErr("get record", err)
	}
	rec.Status = schema.RunStatus(status)
	rec.Error = errMsg.String
	if endTime.Valid {
		rec.EndTime = &endTime.Time
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, node_type, workflow, status, input, output, error, timestamp
		 FROM execution_steps WHERE execution_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return nil, storeErr("get steps", err)
	}
	defer rows.Close()

	rec.Steps = make([]schema.ExecutionStep, 0, count)
	for rows.Next() {
		var (
			step                          schema.ExecutionStep
			nodeType, stepStatus          string
			workflow, input, output, serr sql.NullString
		)
		if err := rows.Scan(&step.NodeID, &nodeType, &workflow, &stepStatus, &input, &output, &serr, &step.Timestamp); err != nil {
			return nil, storeErr("scan step", err)
		}
		step.NodeType = schema.NodeType(nodeType)
		step.Status = schema.StepStatus(stepStatus)
		step.Workflow = workflow.String
		step.Error = serr.String
		if input.Valid && input.String != "" {
			if err := json.Unmarshal([]byte(input.String), &step.Input); err != nil {
				return nil, fmt.Errorf("unmarshal step input: %w", err)
			}
		}
		if output.Valid && output.String != "" {
			if err := json.Unmarshal([]byte(output.String), &step.Output); err != nil {
				return nil, fmt.Errorf("unmarshal step output: %w", err)
			}
		}
		rec.Steps = append(rec.Steps, step)
	}
	return rec, rows.Err()
}

func (s *LibSQLStore) ListRecords(ctx context.Context, filter RecordFilter) ([]*RecordSummary, error) {
	var where []string
	var args []any

	if filter.WorkflowName != "" {
		where = append(where, "workflow_name = ?")
		args = append(args, filter.WorkflowName)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "start_time >= ?")
		args = append(args, *filter.Since)
	}

	query := "SELECT id, workflow_name, status, error, start_time, end_time, step_count FROM executions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list records", err)
	}
	defer rows.Close()

	var out []*RecordSummary
	for rows.Next() {
		sum := &RecordSummary{}
		var (
			status  string
			errMsg  sql.NullString
			endTime sql.NullTime
		)
		if err := rows.Scan(&sum.ID, &sum.WorkflowName, &status, &errMsg, &sum.StartTime, &endTime, &sum.StepCount); err != nil {
			return nil, storeErr("scan record", err)
		}
		sum.Status = schema.RunStatus(status)
		sum.Error = errMsg.String
		if endTime.Valid {
			sum.EndTime = &endTime.Time
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteRecord removes a record, its steps and its persisted events.
func (s *LibSQLStore) DeleteRecord(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM execution_steps WHERE execution_id = ?`, id); err != nil {
		return storeErr("delete steps", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_events WHERE run_id = ?`, id); err != nil {
		return storeErr("delete events", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM executions WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete record", err)
	}
	if err := checkRowsAffected(res, "record", id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Scheduled Jobs ---

func (s *LibSQLStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	vars, err := marshalMapOrDefault(job.Vars)
	if err != nil {
		return fmt.Errorf("marshal vars: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (id, name, workflow_path, cron_expression, vars, enabled, last_run_at, next_run_at, last_run_status, last_run_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.WorkflowPath, job.CronExpression, string(vars), boolToInt(job.Enabled),
		nullTime(job.LastRunAt), nullTime(job.NextRunAt), nullStr(job.LastRunStatus), nullStr(job.LastRunID),
		timeOrNow(job.CreatedAt),
	)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return schema.NewErrorf(schema.ErrCodeConflict, "scheduled job %q already exists", job.ID).WithCause(err)
	}
	return err
}

const jobColumns = `id, name, workflow_path, cron_expression, vars, enabled, last_run_at, next_run_at, last_run_status, last_run_id, created_at`

func (s *LibSQLStore) GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled job", id)
	}
	return job, err
}

func (s *LibSQLStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	var sets []string
	var args []any

	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolToInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if update.LastRunID != "" {
		sets = append(sets, "last_run_id = ?")
		args = append(args, update.LastRunID)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scheduled_jobs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled job", id)
}

func (s *LibSQLStore) ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	query := `SELECT ` + jobColumns + ` FROM scheduled_jobs`
	var args []any
	if filter.Enabled != nil {
		query += " WHERE enabled = ?"
		args = append(args, boolToInt(*filter.Enabled))
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled job", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*ScheduledJob, error) {
	job := &ScheduledJob{}
	var (
		vars                string
		enabled             bool
		lastRun, nextRun    sql.NullTime
		lastStatus, lastRID sql.NullString
	)
	if err := row.Scan(&job.ID, &job.Name, &job.WorkflowPath, &job.CronExpression, &vars, &enabled,
		&lastRun, &nextRun, &lastStatus, &lastRID, &job.CreatedAt); err != nil {
		return nil, err
	}
	job.Enabled = enabled
	if vars != "" {
		if err := json.Unmarshal([]byte(vars), &job.Vars); err != nil {
			return nil, fmt.Errorf("unmarshal vars: %w", err)
		}
	}
	if lastRun.Valid {
		job.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		job.NextRunAt = &nextRun.Time
	}
	job.LastRunStatus = lastStatus.String
	job.LastRunID = lastRID.String
	return job, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeErr(op string, err error) error {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %v", op, err).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if m, ok := v.(map[string]any); ok && len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func marshalMapOrDefault(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*LibSQLStore)(nil)
