package storage_test

import (
	"testing"
	"time"

	"github.com/ignatij/blogflow/pkg/models"
	"github.com/ignatij/blogflow/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, store storage.Store, id string) {
	t.Helper()
	require.NoError(t, store.SaveWorkflow(models.Workflow{
		ID:        id,
		Status:    models.PendingWorkflowStatus,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}))
	require.NoError(t, store.SaveTask(models.Task{ID: "b", WorkflowID: id, Position: 1, Status: models.PendingTaskStatus}))
	require.NoError(t, store.SaveTask(models.Task{ID: "a", WorkflowID: id, Position: 0, Status: models.PendingTaskStatus}))
	require.NoError(t, store.SaveDependency(models.Dependency{TaskID: "b", DependsOn: "a", WorkflowID: id}))
}

func TestMemoryStore(t *testing.T) {
	t.Run("GetWorkflow returns tasks in declaration order with dependencies", func(t *testing.T) {
		store := storage.NewMemoryStore()
		seed(t, store, "wf")

		wf, err := store.GetWorkflow("wf")
		require.NoError(t, err)
		require.Len(t, wf.Tasks, 2)
		assert.Equal(t, "a", wf.Tasks[0].ID)
		assert.Equal(t, "b", wf.Tasks[1].ID)
		assert.Equal(t, []string{"a"}, wf.Tasks[1].Dependencies)
	})

	t.Run("Duplicate workflow", func(t *testing.T) {
		store := storage.NewMemoryStore()
		seed(t, store, "wf")
		err := store.SaveWorkflow(models.Workflow{ID: "wf"})
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	})

	t.Run("Missing workflow", func(t *testing.T) {
		store := storage.NewMemoryStore()
		_, err := store.GetWorkflow("nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, store.UpdateWorkflowStatus("nope", models.RunningWorkflowStatus), storage.ErrNotFound)
	})

	t.Run("UpdateTask only touches set fields", func(t *testing.T) {
		store := storage.NewMemoryStore()
		seed(t, store, "wf")
		attempts := 2
		result := "done"
		require.NoError(t, store.UpdateTask("a", "wf", storage.TaskUpdate{Status: models.CompletedTaskStatus, Attempts: &attempts, Result: &result}))
		require.NoError(t, store.UpdateTask("a", "wf", storage.TaskUpdate{}))

		task, err := store.GetTask("a", "wf")
		require.NoError(t, err)
		assert.Equal(t, models.CompletedTaskStatus, task.Status)
		assert.Equal(t, 2, task.Attempts)
		assert.Equal(t, "done", task.Result)
	})

	t.Run("DeleteWorkflow removes children", func(t *testing.T) {
		store := storage.NewMemoryStore()
		seed(t, store, "wf")
		require.NoError(t, store.SaveExecutionLog(models.ExecutionLog{WorkflowID: "wf", TaskID: "a", Status: "RUNNING"}))
		require.NoError(t, store.DeleteWorkflow("wf"))

		_, err := store.GetTask("a", "wf")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		deps, err := store.GetDependencies("wf")
		require.NoError(t, err)
		assert.Empty(t, deps)
		logs, err := store.GetExecutionLogs("wf")
		require.NoError(t, err)
		assert.Empty(t, logs)
	})

	t.Run("Committed transaction rejects writes", func(t *testing.T) {
		store := storage.NewMemoryStore()
		tx, err := store.Begin()
		require.NoError(t, err)
		require.NoError(t, tx.SaveWorkflow(models.Workflow{ID: "wf"}))
		require.NoError(t, tx.Commit())
		assert.Error(t, tx.SaveWorkflow(models.Workflow{ID: "other"}))

		_, err = store.GetWorkflow("wf")
		assert.NoError(t, err)
	})

	t.Run("ListWorkflows newest first", func(t *testing.T) {
		store := storage.NewMemoryStore()
		now := time.Now()
		require.NoError(t, store.SaveWorkflow(models.Workflow{ID: "old", CreatedAt: now.Add(-time.Hour)}))
		require.NoError(t, store.SaveWorkflow(models.Workflow{ID: "new", CreatedAt: now}))
		workflows, err := store.ListWorkflows()
		require.NoError(t, err)
		require.Len(t, workflows, 2)
		assert.Equal(t, "new", workflows[0].ID)
	})

	t.Run("Rollback reverts transaction writes", func(t *testing.T) {
		store := storage.NewMemoryStore()
		seed(t, store, "kept")
		require.NoError(t, store.SaveExecutionLog(models.ExecutionLog{TaskID: "a", WorkflowID: "kept", Status: "RUNNING"}))

		tx, err := store.Begin()
		require.NoError(t, err)
		seed(t, tx, "wf")
		require.NoError(t, tx.UpdateTask("a", "kept", storage.TaskUpdate{Status: models.CompletedTaskStatus}))
		require.NoError(t, tx.UpdateWorkflowStatus("kept", models.RunningWorkflowStatus))
		require.NoError(t, tx.DeleteWorkflow("kept"))
		require.NoError(t, tx.Rollback())

		_, err = store.GetWorkflow("wf")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		deps, err := store.GetDependencies("wf")
		require.NoError(t, err)
		assert.Empty(t, deps)

		wf, err := store.GetWorkflow("kept")
		require.NoError(t, err)
		assert.Equal(t, models.PendingWorkflowStatus, wf.Status)
		require.Len(t, wf.Tasks, 2)
		assert.Equal(t, models.PendingTaskStatus, wf.Tasks[0].Status)
		assert.Equal(t, []string{"a"}, wf.Tasks[1].Dependencies)
		logs, err := store.GetExecutionLogs("kept")
		require.NoError(t, err)
		assert.Len(t, logs, 1)

		assert.Error(t, tx.Rollback())
	})

	t.Run("Commit keeps transaction writes", func(t *testing.T) {
		store := storage.NewMemoryStore()
		tx, err := store.Begin()
		require.NoError(t, err)
		seed(t, tx, "wf")
		require.NoError(t, tx.Commit())
		assert.Error(t, tx.Rollback())

		wf, err := store.GetWorkflow("wf")
		require.NoError(t, err)
		assert.Len(t, wf.Tasks, 2)
	})

	t.Run("TransitionWorkflowStatus only moves from the expected status", func(t *testing.T) {
		store := storage.NewMemoryStore()
		seed(t, store, "wf")
		require.NoError(t, store.TransitionWorkflowStatus("wf", models.PendingWorkflowStatus, models.RunningWorkflowStatus))
		require.NoError(t, store.UpdateWorkflowStatus("wf", models.CompletedWorkflowStatus))

		err := store.TransitionWorkflowStatus("wf", models.RunningWorkflowStatus, models.PausedWorkflowStatus)
		assert.ErrorIs(t, err, storage.ErrStatusChanged)
		wf, err := store.GetWorkflow("wf")
		require.NoError(t, err)
		assert.Equal(t, models.CompletedWorkflowStatus, wf.Status)

		assert.ErrorIs(t, store.TransitionWorkflowStatus("nope", models.RunningWorkflowStatus, models.PausedWorkflowStatus), storage.ErrNotFound)
	})
}
