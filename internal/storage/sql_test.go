package storage_test

import (
	"path/filepath"
	"testing"
	"time"

	internal_storage "github.com/ignatij/blogflow/internal/storage"
	"github.com/ignatij/blogflow/internal/testutil"
	"github.com/ignatij/blogflow/pkg/models"
	"github.com/ignatij/blogflow/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	newStore := func(t *testing.T) storage.Store {
		path := filepath.Join(t.TempDir(), "nested", "blogflow.db")
		store, err := internal_storage.NewSQLiteStore(path)
		require.NoError(t, err)
		require.NoError(t, internal_storage.Migrate(internal_storage.DriverSQLite, path))
		t.Cleanup(func() { store.Close() })
		return store
	}
	runStoreSuite(t, newStore)
}

func TestPostgresStore(t *testing.T) {
	testDB := testutil.SetupTestDB(t, func(connStr string) error {
		return internal_storage.Migrate(internal_storage.DriverPostgres, connStr)
	})
	defer testDB.Teardown(t)

	// Each subtest works inside a transaction that is rolled back.
	newTxStore := func(t *testing.T) storage.Store {
		store, err := internal_storage.NewPostgresStore(testDB.ConnStr)
		require.NoError(t, err)
		txStore, err := store.Begin()
		require.NoError(t, err)
		t.Cleanup(func() {
			txStore.Rollback()
			store.Close()
		})
		return txStore
	}
	runStoreSuite(t, newTxStore)
}

func saveWorkflow(t *testing.T, store storage.Store, id string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, store.SaveWorkflow(models.Workflow{
		ID:        id,
		Status:    models.PendingWorkflowStatus,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}))
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("SaveWorkflow", func(t *testing.T) {
		store := newStore(t)
		saveWorkflow(t, store, "blog_agent_workflow", time.Now())

		saved, err := store.GetWorkflow("blog_agent_workflow")
		require.NoError(t, err)
		assert.Equal(t, models.PendingWorkflowStatus, saved.Status)
		assert.Empty(t, saved.Tasks)

		err = store.SaveWorkflow(models.Workflow{ID: "blog_agent_workflow", Status: models.PendingWorkflowStatus, CreatedAt: time.Now(), UpdatedAt: time.Now()})
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	})

	t.Run("GetNonExistingWorkflow", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetWorkflow("missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, store.UpdateWorkflowStatus("missing", models.RunningWorkflowStatus), storage.ErrNotFound)
	})

	t.Run("TasksAndDependencies", func(t *testing.T) {
		store := newStore(t)
		saveWorkflow(t, store, "wf", time.Now())
		temp := 0.9
		planner := models.Task{
			ID:            "blog_planner",
			WorkflowID:    "wf",
			Description:   "Create an outline",
			SystemPrompt:  "You are a blog planner.",
			Priority:      5,
			ModelProvider: "bedrock",
			ModelSettings: models.ModelSettings{ModelID: "anthropic.claude", Temperature: &temp, MaxTokens: 1024},
			Position:      0,
			Status:        models.PendingTaskStatus,
			Retries:       2,
			Timeout:       90 * time.Second,
		}
		writer := models.Task{ID: "section_writer", WorkflowID: "wf", Priority: 4, Position: 1, Status: models.PendingTaskStatus}
		require.NoError(t, store.SaveTask(writer))
		require.NoError(t, store.SaveTask(planner))
		require.NoError(t, store.SaveDependency(models.Dependency{TaskID: "section_writer", DependsOn: "blog_planner", WorkflowID: "wf"}))

		wf, err := store.GetWorkflow("wf")
		require.NoError(t, err)
		require.Len(t, wf.Tasks, 2)
		got := wf.Tasks[0]
		assert.Equal(t, "blog_planner", got.ID)
		assert.Equal(t, "You are a blog planner.", got.SystemPrompt)
		assert.Equal(t, 5, got.Priority)
		assert.Equal(t, "anthropic.claude", got.ModelSettings.ModelID)
		require.NotNil(t, got.ModelSettings.Temperature)
		assert.InDelta(t, 0.9, *got.ModelSettings.Temperature, 0.0001)
		assert.Equal(t, 1024, got.ModelSettings.MaxTokens)
		assert.Equal(t, 90*time.Second, got.Timeout)
		assert.Equal(t, 2, got.Retries)
		assert.Nil(t, wf.Tasks[1].ModelSettings.Temperature)
		assert.Equal(t, []string{"blog_planner"}, wf.Tasks[1].Dependencies)

		task, err := store.GetTask("section_writer", "wf")
		require.NoError(t, err)
		assert.Equal(t, []string{"blog_planner"}, task.Dependencies)

		// Last: a failed statement aborts a PostgreSQL transaction.
		assert.ErrorIs(t, store.SaveTask(planner), storage.ErrAlreadyExists)
	})

	t.Run("UpdateTask", func(t *testing.T) {
		store := newStore(t)
		saveWorkflow(t, store, "wf", time.Now())
		require.NoError(t, store.SaveTask(models.Task{ID: "editor", WorkflowID: "wf", Status: models.PendingTaskStatus}))

		started := time.Now().Add(-time.Minute)
		finished := time.Now()
		attempts := 1
		result := "polished draft"
		require.NoError(t, store.UpdateTask("editor", "wf", storage.TaskUpdate{Status: models.RunningTaskStatus, StartedAt: &started, Attempts: &attempts}))
		require.NoError(t, store.UpdateTask("editor", "wf", storage.TaskUpdate{Status: models.CompletedTaskStatus, Result: &result, FinishedAt: &finished}))

		task, err := store.GetTask("editor", "wf")
		require.NoError(t, err)
		assert.Equal(t, models.CompletedTaskStatus, task.Status)
		assert.Equal(t, "polished draft", task.Result)
		assert.Equal(t, 1, task.Attempts)
		require.NotNil(t, task.StartedAt)
		require.NotNil(t, task.FinishedAt)
		assert.WithinDuration(t, started, *task.StartedAt, time.Second)

		assert.ErrorIs(t, store.UpdateTask("ghost", "wf", storage.TaskUpdate{Status: models.FailedTaskStatus}), storage.ErrNotFound)
	})

	t.Run("UpdateWorkflowStatus", func(t *testing.T) {
		store := newStore(t)
		saveWorkflow(t, store, "wf", time.Now())
		require.NoError(t, store.UpdateWorkflowStatus("wf", models.RunningWorkflowStatus))
		wf, err := store.GetWorkflow("wf")
		require.NoError(t, err)
		assert.Equal(t, models.RunningWorkflowStatus, wf.Status)
	})

	t.Run("TransitionWorkflowStatus", func(t *testing.T) {
		store := newStore(t)
		saveWorkflow(t, store, "wf", time.Now())
		require.NoError(t, store.TransitionWorkflowStatus("wf", models.PendingWorkflowStatus, models.RunningWorkflowStatus))
		require.NoError(t, store.UpdateWorkflowStatus("wf", models.CompletedWorkflowStatus))

		err := store.TransitionWorkflowStatus("wf", models.RunningWorkflowStatus, models.PausedWorkflowStatus)
		assert.ErrorIs(t, err, storage.ErrStatusChanged)
		wf, err := store.GetWorkflow("wf")
		require.NoError(t, err)
		assert.Equal(t, models.CompletedWorkflowStatus, wf.Status)

		assert.ErrorIs(t, store.TransitionWorkflowStatus("missing", models.RunningWorkflowStatus, models.PausedWorkflowStatus), storage.ErrNotFound)
	})

	t.Run("ListWorkflows returns workflows in descending order", func(t *testing.T) {
		store := newStore(t)
		saveWorkflow(t, store, "one", time.Now().Add(-2*time.Hour))
		saveWorkflow(t, store, "three", time.Now())
		saveWorkflow(t, store, "two", time.Now().Add(-time.Hour))

		workflows, err := store.ListWorkflows()
		require.NoError(t, err)
		require.Len(t, workflows, 3)
		assert.Equal(t, "three", workflows[0].ID)
		assert.Equal(t, "two", workflows[1].ID)
		assert.Equal(t, "one", workflows[2].ID)
	})

	t.Run("ExecutionLogsAndDelete", func(t *testing.T) {
		store := newStore(t)
		saveWorkflow(t, store, "wf", time.Now())
		require.NoError(t, store.SaveTask(models.Task{ID: "a", WorkflowID: "wf", Status: models.PendingTaskStatus}))
		require.NoError(t, store.SaveTask(models.Task{ID: "b", WorkflowID: "wf", Position: 1, Status: models.PendingTaskStatus}))
		require.NoError(t, store.SaveDependency(models.Dependency{TaskID: "b", DependsOn: "a", WorkflowID: "wf"}))
		require.NoError(t, store.SaveExecutionLog(models.ExecutionLog{WorkflowID: "wf", TaskID: "a", Status: "RUNNING", Message: "started"}))
		require.NoError(t, store.SaveExecutionLog(models.ExecutionLog{WorkflowID: "wf", TaskID: "a", Status: "COMPLETED", Message: "completed"}))

		logs, err := store.GetExecutionLogs("wf")
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, "started", logs[0].Message)
		assert.Equal(t, "COMPLETED", logs[1].Status)

		require.NoError(t, store.DeleteWorkflow("wf"))
		_, err = store.GetWorkflow("wf")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		logs, err = store.GetExecutionLogs("wf")
		require.NoError(t, err)
		assert.Empty(t, logs)
		assert.ErrorIs(t, store.DeleteWorkflow("wf"), storage.ErrNotFound)
	})
}
