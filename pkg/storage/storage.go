package storage

import (
	"time"

	"github.com/ignatij/blogflow/pkg/models"
	"github.com/pkg/errors"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrStatusChanged is returned by TransitionWorkflowStatus when the
	// workflow is no longer in the expected status.
	ErrStatusChanged = errors.New("status changed")
)

// TaskUpdate carries the runtime fields the executor writes back for a task.
// Nil pointers leave the stored value untouched.
type TaskUpdate struct {
	Status     models.TaskStatus
	Attempts   *int
	Result     *string
	ErrorMsg   *string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Store defines the storage operations for blogflow.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Workflow operations
	SaveWorkflow(w models.Workflow) error
	GetWorkflow(id string) (models.Workflow, error)
	ListWorkflows() ([]models.Workflow, error)
	UpdateWorkflowStatus(id string, status models.WorkflowStatus) error
	TransitionWorkflowStatus(id string, from, to models.WorkflowStatus) error
	DeleteWorkflow(id string) error

	// Task operations
	SaveTask(t models.Task) error
	GetTask(id string, workflowID string) (models.Task, error)
	UpdateTask(id string, workflowID string, update TaskUpdate) error

	// Dependency operations
	SaveDependency(d models.Dependency) error
	GetDependencies(workflowID string) ([]models.Dependency, error)

	// Execution log operations
	SaveExecutionLog(l models.ExecutionLog) error
	GetExecutionLogs(workflowID string) ([]models.ExecutionLog, error)
}
