// Package store provides SQLite-backed persistence for Hazel.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mvold/hazel/internal/models"
	_ "modernc.org/sqlite"
)

// ErrTaskNotFound indicates the referenced task does not exist.
var ErrTaskNotFound = fmt.Errorf("task not found")

// ErrTaskFinalized indicates an attempt to move a task out of a terminal status.
var ErrTaskFinalized = fmt.Errorf("task already in terminal status")

// ErrStatusRegression indicates an attempt to move a task backwards.
var ErrStatusRegression = fmt.Errorf("task status may only advance")

// statusRank orders the monotonic task progression.
var statusRank = map[models.TaskStatus]int{
	models.TaskStatusPending:    0,
	models.TaskStatusInProgress: 1,
	models.TaskStatusCompleted:  2,
	models.TaskStatusFailed:     2,
}

// Store provides access to the Hazel SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency. synchronous=NORMAL in WAL
	// still flushes each write into the log before the call returns.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		agent TEXT NOT NULL,
		prompt TEXT NOT NULL,
		args TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		output TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		command TEXT NOT NULL,
		interval_ms INTEGER,
		trigger_at DATETIME,
		cron_spec TEXT,
		last_run DATETIME,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Task Operations ---

// CreateTask inserts a new task with a fresh id in pending status.
func (s *Store) CreateTask(agent, prompt string, args []string) (*models.Task, error) {
	now := time.Now().UTC()
	task := &models.Task{
		ID:        uuid.New().String(),
		Agent:     agent,
		Prompt:    prompt,
		Args:      args,
		Status:    models.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	argsJSON, _ := json.Marshal(args)
	_, err := s.db.Exec(
		`INSERT INTO tasks (id, agent, prompt, args, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Agent, task.Prompt, string(argsJSON), task.Status, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

// GetTask retrieves a task by ID. Returns (nil, nil) when absent.
func (s *Store) GetTask(id string) (*models.Task, error) {
	row := s.db.QueryRow(
		`SELECT id, agent, prompt, args, status, output, created_at, updated_at FROM tasks WHERE id = ?`,
		id,
	)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// ListRecentTasks returns the n most recently created tasks, newest first.
func (s *Store) ListRecentTasks(n int) ([]models.Task, error) {
	rows, err := s.db.Query(
		`SELECT id, agent, prompt, args, status, output, created_at, updated_at FROM tasks ORDER BY created_at DESC LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListTasksByStatus returns all tasks with the given status.
func (s *Store) ListTasksByStatus(status models.TaskStatus) ([]models.Task, error) {
	rows, err := s.db.Query(
		`SELECT id, agent, prompt, args, status, output, created_at, updated_at FROM tasks WHERE status = ?`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks by status: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// UpdateTaskStatus advances a task's status. Terminal statuses are final
// and the progression is monotonic; violations are rejected.
func (s *Store) UpdateTaskStatus(id string, status models.TaskStatus, output string) error {
	if _, ok := statusRank[status]; !ok {
		return fmt.Errorf("unknown task status: %s", status)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current models.TaskStatus
	err = tx.QueryRow(`SELECT status FROM tasks WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("query task status: %w", err)
	}

	// Terminal rows are immutable: even re-submitting the same terminal
	// status would overwrite output and updated_at.
	if current.Terminal() {
		return ErrTaskFinalized
	}
	if statusRank[status] < statusRank[current] {
		return ErrStatusRegression
	}

	if output != "" {
		_, err = tx.Exec(
			`UPDATE tasks SET status = ?, output = ?, updated_at = ? WHERE id = ?`,
			status, output, time.Now().UTC(), id,
		)
	} else {
		_, err = tx.Exec(
			`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
			status, time.Now().UTC(), id,
		)
	}
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}

	return tx.Commit()
}

func scanTask(row *sql.Row) (*models.Task, error) {
	task := &models.Task{}
	var argsJSON, output sql.NullString
	err := row.Scan(&task.ID, &task.Agent, &task.Prompt, &argsJSON, &task.Status, &output, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if argsJSON.Valid && argsJSON.String != "" {
		json.Unmarshal([]byte(argsJSON.String), &task.Args)
	}
	if output.Valid {
		task.Output = output.String
	}
	return task, nil
}

func collectTasks(rows *sql.Rows) ([]models.Task, error) {
	var tasks []models.Task
	for rows.Next() {
		var task models.Task
		var argsJSON, output sql.NullString
		if err := rows.Scan(&task.ID, &task.Agent, &task.Prompt, &argsJSON, &task.Status, &output, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if argsJSON.Valid && argsJSON.String != "" {
			json.Unmarshal([]byte(argsJSON.String), &task.Args)
		}
		if output.Valid {
			task.Output = output.String
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// --- Meta Operations ---

// GetMeta retrieves a metadata value by key. Returns ("", nil) when absent.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query meta: %w", err)
	}
	return value, nil
}

// SetMeta writes a metadata value, replacing any previous value.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO meta (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set meta: %w", err)
	}
	return nil
}

// --- Job Operations ---

// SaveJob inserts or replaces a job record.
func (s *Store) SaveJob(job *models.Job) error {
	enabled := 0
	if job.Enabled {
		enabled = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO jobs (id, kind, command, interval_ms, trigger_at, cron_spec, last_run, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind, command = excluded.command, interval_ms = excluded.interval_ms,
			trigger_at = excluded.trigger_at, cron_spec = excluded.cron_spec,
			last_run = excluded.last_run, enabled = excluded.enabled`,
		job.ID, job.Kind, job.Command, job.IntervalMs, job.TriggerAt, job.CronSpec, job.LastRun, enabled, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// DeleteJob removes a job record.
func (s *Store) DeleteJob(id string) error {
	_, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	return err
}

// ListJobs returns all persisted jobs.
func (s *Store) ListJobs() ([]models.Job, error) {
	rows, err := s.db.Query(
		`SELECT id, kind, command, interval_ms, trigger_at, cron_spec, last_run, enabled, created_at FROM jobs ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		var intervalMs sql.NullInt64
		var triggerAt, lastRun sql.NullTime
		var cronSpec sql.NullString
		var enabled int
		if err := rows.Scan(&job.ID, &job.Kind, &job.Command, &intervalMs, &triggerAt, &cronSpec, &lastRun, &enabled, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if intervalMs.Valid {
			job.IntervalMs = intervalMs.Int64
		}
		if triggerAt.Valid {
			t := triggerAt.Time
			job.TriggerAt = &t
		}
		if lastRun.Valid {
			t := lastRun.Time
			job.LastRun = &t
		}
		if cronSpec.Valid {
			job.CronSpec = cronSpec.String
		}
		job.Enabled = enabled != 0
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
