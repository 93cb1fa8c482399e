package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/ignatij/blogflow/pkg/models"
	"github.com/ignatij/blogflow/pkg/storage"
	"github.com/pkg/errors"
)

// TaskService persists task transitions, each in its own transaction, and
// records them in the execution log.
type TaskService struct {
	store  storage.Store
	logger Logger
}

func NewTaskService(store storage.Store, logger Logger) *TaskService {
	return &TaskService{
		store:  store,
		logger: logger,
	}
}

// DependencyResults returns the results of the task's dependencies in
// dependency order. It fails if any dependency has not completed.
func (ts *TaskService) DependencyResults(task models.Task) ([]string, error) {
	results := make([]string, 0, len(task.Dependencies))
	for _, dep := range task.Dependencies {
		d, err := ts.store.GetTask(dep, task.WorkflowID)
		if err != nil {
			ts.logger.Errorf("Error retrieving dependency %s: %v", dep, err)
			return nil, errors.Wrapf(err, "retrieve dependency %s", dep)
		}
		if d.Status != models.CompletedTaskStatus {
			return nil, errors.Errorf("dependency %s is in status %s, not COMPLETED", dep, d.Status)
		}
		results = append(results, d.Result)
	}
	return results, nil
}

// ComposePrompt prefixes the task description with the results of its
// dependencies.
func ComposePrompt(task models.Task, depResults []string) string {
	if len(task.Dependencies) == 0 {
		return task.Description
	}
	var b strings.Builder
	b.WriteString("Previous task results:\n")
	for i, dep := range task.Dependencies {
		fmt.Fprintf(&b, "\nResults from %s:\n%s\n", dep, depResults[i])
	}
	fmt.Fprintf(&b, "\nCurrent task: %s", task.Description)
	return b.String()
}

func (ts *TaskService) MarkRunning(task models.Task, startedAt time.Time) error {
	empty := ""
	return ts.update(task, storage.TaskUpdate{
		Status:    models.RunningTaskStatus,
		ErrorMsg:  &empty,
		StartedAt: &startedAt,
	}, "started")
}

func (ts *TaskService) UpdateAttempts(task models.Task, attempts int) error {
	return ts.update(task, storage.TaskUpdate{Attempts: &attempts}, fmt.Sprintf("attempt %d", attempts))
}

func (ts *TaskService) Complete(task models.Task, result string) error {
	finishedAt := time.Now()
	empty := ""
	return ts.update(task, storage.TaskUpdate{
		Status:     models.CompletedTaskStatus,
		Result:     &result,
		ErrorMsg:   &empty,
		FinishedAt: &finishedAt,
	}, "completed")
}

func (ts *TaskService) Fail(task models.Task, errMsg string) error {
	finishedAt := time.Now()
	return ts.update(task, storage.TaskUpdate{
		Status:     models.FailedTaskStatus,
		ErrorMsg:   &errMsg,
		FinishedAt: &finishedAt,
	}, errMsg)
}

// Reset returns an interrupted task to PENDING so it can be dispatched again.
func (ts *TaskService) Reset(task models.Task) error {
	return ts.update(task, storage.TaskUpdate{Status: models.PendingTaskStatus}, "reset after interruption")
}

func (ts *TaskService) update(task models.Task, update storage.TaskUpdate, message string) (err error) {
	txStore, err := ts.store.Begin()
	if err != nil {
		ts.logger.Errorf("Failed to begin transaction for task %s: %v", task.ID, err)
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				ts.logger.Errorf("Failed to rollback: %v", rollbackErr)
			}
		} else {
			if commitErr := txStore.Commit(); commitErr != nil {
				ts.logger.Errorf("Failed to commit: %v", commitErr)
				err = commitErr
			}
		}
	}()

	if err = txStore.UpdateTask(task.ID, task.WorkflowID, update); err != nil {
		ts.logger.Errorf("Failed to update task %s: %v", task.ID, err)
		return errors.Wrapf(err, "update task %s", task.ID)
	}
	status := string(update.Status)
	if status == "" {
		status = string(models.RunningTaskStatus)
	}
	if err = txStore.SaveExecutionLog(models.ExecutionLog{
		TaskID:     task.ID,
		WorkflowID: task.WorkflowID,
		Status:     status,
		Message:    message,
		LoggedAt:   time.Now(),
	}); err != nil {
		return errors.Wrapf(err, "log task %s", task.ID)
	}
	return nil
}
