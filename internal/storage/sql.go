package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ignatij/blogflow/pkg/models"
	"github.com/ignatij/blogflow/pkg/storage"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
	Rebind(query string) string
}

// SQLStore implements storage.Store on top of sqlx. Queries are written with
// '?' placeholders and rebound for the driver in use.
type SQLStore struct {
	db       DBInterface
	isUnique func(error) bool
}

type workflowRow struct {
	ID        string    `db:"id"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type taskRow struct {
	ID            string          `db:"id"`
	WorkflowID    string          `db:"workflow_id"`
	Description   string          `db:"description"`
	SystemPrompt  string          `db:"system_prompt"`
	Priority      int             `db:"priority"`
	ModelProvider string          `db:"model_provider"`
	ModelID       string          `db:"model_id"`
	Temperature   sql.NullFloat64 `db:"temperature"`
	MaxTokens     int             `db:"max_tokens"`
	Position      int             `db:"position"`
	Status        string          `db:"status"`
	Retries       int             `db:"retries"`
	Attempts      int             `db:"attempts"`
	TimeoutMS     int64           `db:"timeout_ms"`
	Result        string          `db:"result"`
	ErrorMsg      string          `db:"error_msg"`
	StartedAt     *time.Time      `db:"started_at"`
	FinishedAt    *time.Time      `db:"finished_at"`
}

const taskColumns = `id, workflow_id, description, system_prompt, priority, model_provider, model_id,
	temperature, max_tokens, position, status, retries, attempts, timeout_ms, result, error_msg,
	started_at, finished_at`

func (r taskRow) toModel() models.Task {
	t := models.Task{
		ID:            r.ID,
		WorkflowID:    r.WorkflowID,
		Description:   r.Description,
		SystemPrompt:  r.SystemPrompt,
		Priority:      r.Priority,
		ModelProvider: r.ModelProvider,
		ModelSettings: models.ModelSettings{ModelID: r.ModelID, MaxTokens: r.MaxTokens},
		Position:      r.Position,
		Status:        models.TaskStatus(r.Status),
		Retries:       r.Retries,
		Attempts:      r.Attempts,
		Timeout:       time.Duration(r.TimeoutMS) * time.Millisecond,
		Result:        r.Result,
		ErrorMsg:      r.ErrorMsg,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
	if r.Temperature.Valid {
		temp := r.Temperature.Float64
		t.ModelSettings.Temperature = &temp
	}
	return t
}

func (s *SQLStore) exec(query string, args ...interface{}) (sql.Result, error) {
	return s.db.Exec(s.db.Rebind(query), args...)
}

func (s *SQLStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &SQLStore{db: tx, isUnique: s.isUnique}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *SQLStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *SQLStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *SQLStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// SaveWorkflow creates a new workflow row (no tasks/deps)
func (s *SQLStore) SaveWorkflow(w models.Workflow) error {
	_, err := s.exec("INSERT INTO workflows (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)",
		w.ID, string(w.Status), w.CreatedAt, w.UpdatedAt)
	if err != nil && s.isUnique(err) {
		return errors.Wrapf(storage.ErrAlreadyExists, "workflow '%s'", w.ID)
	}
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID, including tasks and dependencies
func (s *SQLStore) GetWorkflow(id string) (models.Workflow, error) {
	var row workflowRow
	err := s.db.Get(&row, s.db.Rebind("SELECT id, status, created_at, updated_at FROM workflows WHERE id = ?"), id)
	if err == sql.ErrNoRows {
		return models.Workflow{}, errors.Wrapf(storage.ErrNotFound, "workflow '%s'", id)
	}
	if err != nil {
		return models.Workflow{}, err
	}
	wf := models.Workflow{
		ID:        row.ID,
		Status:    models.WorkflowStatus(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}

	// Fetch tasks
	var rows []taskRow
	err = s.db.Select(&rows, s.db.Rebind("SELECT "+taskColumns+" FROM tasks WHERE workflow_id = ? ORDER BY position"), id)
	if err != nil {
		return models.Workflow{}, fmt.Errorf("get workflow %s: %w", id, err)
	}

	// Fetch dependencies
	deps, err := s.GetDependencies(id)
	if err != nil {
		return models.Workflow{}, err
	}
	byTask := make(map[string][]string)
	for _, dep := range deps {
		byTask[dep.TaskID] = append(byTask[dep.TaskID], dep.DependsOn)
	}
	for _, r := range rows {
		t := r.toModel()
		t.Dependencies = byTask[t.ID]
		wf.Tasks = append(wf.Tasks, t)
	}
	return wf, nil
}

func (s *SQLStore) ListWorkflows() ([]models.Workflow, error) {
	var rows []workflowRow
	query := "SELECT id, status, created_at, updated_at FROM workflows ORDER BY created_at DESC, id"
	if err := s.db.Select(&rows, query); err != nil {
		return nil, err
	}
	workflows := make([]models.Workflow, 0, len(rows))
	for _, r := range rows {
		workflows = append(workflows, models.Workflow{
			ID:        r.ID,
			Status:    models.WorkflowStatus(r.Status),
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return workflows, nil
}

// UpdateWorkflowStatus updates the status of a workflow
func (s *SQLStore) UpdateWorkflowStatus(id string, status models.WorkflowStatus) error {
	res, err := s.exec("UPDATE workflows SET status = ?, updated_at = ? WHERE id = ?", string(status), time.Now(), id)
	if err != nil {
		return err
	}
	return expectRow(res, "workflow '%s'", id)
}

// TransitionWorkflowStatus moves a workflow from one status to another in a
// single conditional update.
func (s *SQLStore) TransitionWorkflowStatus(id string, from, to models.WorkflowStatus) error {
	res, err := s.exec("UPDATE workflows SET status = ?, updated_at = ? WHERE id = ? AND status = ?", string(to), time.Now(), id, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var current string
	err = s.db.Get(&current, s.db.Rebind("SELECT status FROM workflows WHERE id = ?"), id)
	if err == sql.ErrNoRows {
		return errors.Wrapf(storage.ErrNotFound, "workflow '%s'", id)
	}
	if err != nil {
		return err
	}
	return errors.Wrapf(storage.ErrStatusChanged, "workflow '%s' is %s, not %s", id, current, from)
}

// DeleteWorkflow removes a workflow and everything that belongs to it
func (s *SQLStore) DeleteWorkflow(id string) error {
	for _, table := range []string{"execution_logs", "dependencies", "tasks"} {
		if _, err := s.exec("DELETE FROM "+table+" WHERE workflow_id = ?", id); err != nil {
			return errors.Wrapf(err, "delete %s of workflow %s", table, id)
		}
	}
	res, err := s.exec("DELETE FROM workflows WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectRow(res, "workflow '%s'", id)
}

// SaveTask creates a new task within a workflow
func (s *SQLStore) SaveTask(t models.Task) error {
	var temp sql.NullFloat64
	if t.ModelSettings.Temperature != nil {
		temp = sql.NullFloat64{Float64: *t.ModelSettings.Temperature, Valid: true}
	}
	_, err := s.exec("INSERT INTO tasks ("+taskColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		t.ID, t.WorkflowID, t.Description, t.SystemPrompt, t.Priority, t.ModelProvider, t.ModelSettings.ModelID,
		temp, t.ModelSettings.MaxTokens, t.Position, string(t.Status), t.Retries, t.Attempts, t.Timeout.Milliseconds(),
		t.Result, t.ErrorMsg, t.StartedAt, t.FinishedAt)
	if err != nil && s.isUnique(err) {
		return errors.Wrapf(storage.ErrAlreadyExists, "task '%s'", t.ID)
	}
	return err
}

// GetTask retrieves a task by ID and workflow ID
func (s *SQLStore) GetTask(id string, workflowID string) (models.Task, error) {
	var row taskRow
	err := s.db.Get(&row, s.db.Rebind("SELECT "+taskColumns+" FROM tasks WHERE id = ? AND workflow_id = ?"), id, workflowID)
	if err == sql.ErrNoRows {
		return models.Task{}, errors.Wrapf(storage.ErrNotFound, "task '%s'", id)
	}
	if err != nil {
		return models.Task{}, err
	}
	task := row.toModel()
	var deps []string
	err = s.db.Select(&deps, s.db.Rebind("SELECT depends_on FROM dependencies WHERE workflow_id = ? AND task_id = ? ORDER BY position"), workflowID, id)
	if err != nil {
		return models.Task{}, err
	}
	task.Dependencies = deps
	return task, nil
}

// UpdateTask writes the runtime fields set in update
func (s *SQLStore) UpdateTask(id string, workflowID string, update storage.TaskUpdate) error {
	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if update.Status != "" {
		add("status", string(update.Status))
	}
	if update.Attempts != nil {
		add("attempts", *update.Attempts)
	}
	if update.Result != nil {
		add("result", *update.Result)
	}
	if update.ErrorMsg != nil {
		add("error_msg", *update.ErrorMsg)
	}
	if update.StartedAt != nil {
		add("started_at", *update.StartedAt)
	}
	if update.FinishedAt != nil {
		add("finished_at", *update.FinishedAt)
	}
	if len(sets) == 0 {
		_, err := s.GetTask(id, workflowID)
		return err
	}
	args = append(args, id, workflowID)
	res, err := s.exec("UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ? AND workflow_id = ?", args...)
	if err != nil {
		return err
	}
	return expectRow(res, "task '%s'", id)
}

// SaveDependency creates a new dependency between tasks
func (s *SQLStore) SaveDependency(d models.Dependency) error {
	_, err := s.exec("INSERT INTO dependencies (task_id, depends_on, workflow_id, position) VALUES (?, ?, ?, ?)",
		d.TaskID, d.DependsOn, d.WorkflowID, d.Position)
	if err != nil && s.isUnique(err) {
		return errors.Wrapf(storage.ErrAlreadyExists, "dependency '%s' -> '%s'", d.TaskID, d.DependsOn)
	}
	return err
}

// GetDependencies retrieves all dependencies for a workflow
func (s *SQLStore) GetDependencies(workflowID string) ([]models.Dependency, error) {
	var deps []models.Dependency
	err := s.db.Select(&deps, s.db.Rebind("SELECT task_id, depends_on, workflow_id, position FROM dependencies WHERE workflow_id = ? ORDER BY task_id, position"), workflowID)
	if err != nil {
		return nil, err
	}
	return deps, nil
}

func (s *SQLStore) SaveExecutionLog(l models.ExecutionLog) error {
	if l.LoggedAt.IsZero() {
		l.LoggedAt = time.Now()
	}
	_, err := s.exec("INSERT INTO execution_logs (workflow_id, task_id, status, message, logged_at) VALUES (?, ?, ?, ?, ?)",
		l.WorkflowID, l.TaskID, l.Status, l.Message, l.LoggedAt)
	return err
}

func (s *SQLStore) GetExecutionLogs(workflowID string) ([]models.ExecutionLog, error) {
	var logs []models.ExecutionLog
	err := s.db.Select(&logs, s.db.Rebind("SELECT id, task_id, workflow_id, status, message, logged_at FROM execution_logs WHERE workflow_id = ? ORDER BY id"), workflowID)
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func expectRow(res sql.Result, format string, args ...interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(storage.ErrNotFound, format, args...)
	}
	return nil
}
