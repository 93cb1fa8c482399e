package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ignatij/blogflow/pkg/dag"
	"github.com/ignatij/blogflow/pkg/models"
	"github.com/ignatij/blogflow/pkg/provider"
	"github.com/ignatij/blogflow/pkg/storage"
	"github.com/pkg/errors"
)

var (
	ErrWorkflowExists  = errors.New("workflow already exists")
	ErrInvalidWorkflow = errors.New("invalid workflow")
	ErrInvalidState    = errors.New("invalid workflow state")
)

const maxWorkflowIDLength = 100

// Logger defines the logging interface for WorkflowService
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Option configures a WorkflowService.
type Option func(*WorkflowService)

// WithWorkers bounds how many tasks run at once across all workflows.
func WithWorkers(n int) Option {
	return func(s *WorkflowService) { s.workers = n }
}

// WithTaskTimeout sets the per-attempt timeout for tasks that do not set one.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *WorkflowService) { s.wp.defaultTimeout = d }
}

// WithRetryDelay sets the pause between attempts of a failing task.
func WithRetryDelay(d time.Duration) Option {
	return func(s *WorkflowService) { s.wp.retryDelay = d }
}

// WorkflowService creates workflows and drives their execution.
// A workflow is a named DAG of model-backed tasks. Execution happens in the
// background of the process that started it; the store is the source of
// truth for status, so any process can monitor.
type WorkflowService struct {
	store   storage.Store
	logger  Logger
	wp      *WorkerPool
	workers int
	mu      sync.Mutex
}

func NewWorkflowService(ctx context.Context, store storage.Store, registry *provider.Registry, logger Logger, opts ...Option) *WorkflowService {
	taskService := NewTaskService(store, logger)
	s := &WorkflowService{
		store:  store,
		logger: logger,
		wp:     NewWorkerPool(ctx, store, taskService, registry, logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wp.Start(s.workers)
	return s
}

// Create registers a named DAG of tasks. Task runtime fields are reset.
func (s *WorkflowService) Create(ctx context.Context, workflowID string, tasks []models.Task) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(workflowID) == "" {
		return errors.Wrap(ErrInvalidWorkflow, "workflow id cannot be empty")
	}
	if len(workflowID) > maxWorkflowIDLength {
		return errors.Wrapf(ErrInvalidWorkflow, "workflow id too long (max %d characters)", maxWorkflowIDLength)
	}

	prepared := make([]models.Task, len(tasks))
	for i, t := range tasks {
		t.WorkflowID = workflowID
		t.Position = i
		t.Status = models.PendingTaskStatus
		t.Attempts = 0
		t.Result = ""
		t.ErrorMsg = ""
		t.StartedAt = nil
		t.FinishedAt = nil
		if t.Retries < 0 {
			return errors.Wrapf(ErrInvalidWorkflow, "task '%s' has negative retries", t.ID)
		}
		prepared[i] = t
	}
	if err := dag.Validate(prepared); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	now := time.Now()
	err = txStore.SaveWorkflow(models.Workflow{
		ID:        workflowID,
		Status:    models.PendingWorkflowStatus,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		return errors.Wrapf(ErrWorkflowExists, "'%s'", workflowID)
	}
	if err != nil {
		return err
	}
	for _, t := range prepared {
		if err = txStore.SaveTask(t); err != nil {
			return errors.Wrapf(err, "save task %s", t.ID)
		}
		for pos, dep := range t.Dependencies {
			err = txStore.SaveDependency(models.Dependency{
				TaskID:     t.ID,
				DependsOn:  dep,
				WorkflowID: workflowID,
				Position:   pos,
			})
			if err != nil {
				return errors.Wrapf(err, "save dependency %s -> %s", t.ID, dep)
			}
		}
	}
	s.logger.Infof("Created workflow '%s' with %d tasks", workflowID, len(prepared))
	return nil
}

// Start begins executing ready tasks in the background and returns at once.
// Only a PENDING workflow can be started.
func (s *WorkflowService) Start(ctx context.Context, workflowID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, err := s.store.GetWorkflow(workflowID)
	if err != nil {
		return err
	}
	if wf.Status != models.PendingWorkflowStatus || s.wp.Active(workflowID) {
		return errors.Wrapf(ErrInvalidState, "workflow '%s' is %s", workflowID, wf.Status)
	}
	if err := s.transition(workflowID, models.PendingWorkflowStatus, models.RunningWorkflowStatus); err != nil {
		return err
	}
	execID, err := s.wp.Launch(workflowID)
	if err != nil {
		if errU := s.store.UpdateWorkflowStatus(workflowID, models.PendingWorkflowStatus); errU != nil {
			return errors.Wrap(errors.WithMessage(err, fmt.Sprintf("failed to restore workflow status: %v", errU)), "launch failed")
		}
		return err
	}
	s.logger.Infof("Started workflow '%s' (execution %s)", workflowID, execID)
	return nil
}

// Monitor returns the current status of the workflow and its tasks without blocking.
func (s *WorkflowService) Monitor(workflowID string) (models.WorkflowStatusReport, error) {
	wf, err := s.store.GetWorkflow(workflowID)
	if err != nil {
		return models.WorkflowStatusReport{}, err
	}
	return models.NewStatusReport(wf), nil
}

// Wait blocks until the workflow's execution in this process ends or ctx is
// done, then returns the workflow.
func (s *WorkflowService) Wait(ctx context.Context, workflowID string) (models.Workflow, error) {
	if done := s.wp.Done(workflowID); done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return models.Workflow{}, ctx.Err()
		}
	}
	return s.Get(workflowID)
}

// Pause stops dispatching new tasks of a RUNNING workflow.
func (s *WorkflowService) Pause(workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, err := s.store.GetWorkflow(workflowID)
	if err != nil {
		return err
	}
	if wf.Status != models.RunningWorkflowStatus {
		return errors.Wrapf(ErrInvalidState, "workflow '%s' is %s", workflowID, wf.Status)
	}
	if err := s.transition(workflowID, models.RunningWorkflowStatus, models.PausedWorkflowStatus); err != nil {
		return err
	}
	s.wp.SetPaused(workflowID, true)
	s.logger.Infof("Paused workflow '%s'", workflowID)
	return nil
}

// Resume continues a PAUSED workflow. When no execution exists in this
// process, a new one picks up from the stored state and tasks interrupted
// while RUNNING are dispatched again.
func (s *WorkflowService) Resume(ctx context.Context, workflowID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, err := s.store.GetWorkflow(workflowID)
	if err != nil {
		return err
	}
	if wf.Status != models.PausedWorkflowStatus {
		return errors.Wrapf(ErrInvalidState, "workflow '%s' is %s", workflowID, wf.Status)
	}
	if err := s.transition(workflowID, models.PausedWorkflowStatus, models.RunningWorkflowStatus); err != nil {
		return err
	}
	if s.wp.SetPaused(workflowID, false) {
		s.logger.Infof("Resumed workflow '%s'", workflowID)
		return nil
	}

	for _, t := range wf.Tasks {
		if t.Status == models.RunningTaskStatus {
			if err := s.wp.taskService.Reset(t); err != nil {
				return err
			}
		}
	}
	execID, err := s.wp.Launch(workflowID)
	if err != nil {
		return err
	}
	s.logger.Infof("Resumed workflow '%s' in new execution %s", workflowID, execID)
	return nil
}

// transition writes the new status only if the workflow still has the old one.
// The scheduler finishes executions without holding s.mu.
func (s *WorkflowService) transition(workflowID string, from, to models.WorkflowStatus) error {
	err := s.store.TransitionWorkflowStatus(workflowID, from, to)
	if errors.Is(err, storage.ErrStatusChanged) {
		return errors.Wrapf(ErrInvalidState, "%v", err)
	}
	if err != nil {
		return errors.Wrapf(err, "set workflow '%s' to %s", workflowID, to)
	}
	return nil
}

// Delete removes a workflow that is not executing.
func (s *WorkflowService) Delete(workflowID string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, err := s.store.GetWorkflow(workflowID)
	if err != nil {
		return err
	}
	if wf.Status == models.RunningWorkflowStatus || s.wp.Active(workflowID) {
		return errors.Wrapf(ErrInvalidState, "workflow '%s' is %s", workflowID, wf.Status)
	}

	txStore, err := s.store.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				s.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			s.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()
	if err = txStore.DeleteWorkflow(workflowID); err != nil {
		return err
	}
	s.logger.Infof("Deleted workflow '%s'", workflowID)
	return nil
}

// Cancel aborts a workflow executing in this process.
func (s *WorkflowService) Cancel(workflowID string) error {
	if !s.wp.Cancel(workflowID) {
		return errors.Wrapf(ErrInvalidState, "workflow '%s' is not executing in this process", workflowID)
	}
	s.logger.Infof("Cancelled workflow '%s'", workflowID)
	return nil
}

func (s *WorkflowService) List() ([]models.Workflow, error) {
	return s.store.ListWorkflows()
}

// Get fetches a workflow with its tasks
func (s *WorkflowService) Get(workflowID string) (models.Workflow, error) {
	return s.store.GetWorkflow(workflowID)
}

// Logs returns the execution log of a workflow.
func (s *WorkflowService) Logs(workflowID string) ([]models.ExecutionLog, error) {
	if _, err := s.store.GetWorkflow(workflowID); err != nil {
		return nil, err
	}
	return s.store.GetExecutionLogs(workflowID)
}

// Close cancels running executions and waits for them to settle.
func (s *WorkflowService) Close() {
	s.wp.Stop()
}
