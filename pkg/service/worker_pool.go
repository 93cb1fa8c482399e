package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignatij/blogflow/pkg/dag"
	"github.com/ignatij/blogflow/pkg/models"
	"github.com/ignatij/blogflow/pkg/provider"
	"github.com/ignatij/blogflow/pkg/storage"
	"golang.org/x/sync/semaphore"
)

const (
	// model calls routinely take tens of seconds
	DefaultTaskTimeout = 5 * time.Minute
	DefaultRetryDelay  = 500 * time.Millisecond

	// how often a scheduler re-checks for free workers
	schedulerPollInterval = 50 * time.Millisecond
)

// executionState holds state for a single execution of a workflow
type executionState struct {
	id          string
	workflowID  string
	ctx         context.Context
	cancel      context.CancelFunc
	paused      bool
	running     map[string]struct{}
	dispatched  map[string]struct{}
	wake        chan struct{}
	done        chan struct{}
	mu          sync.Mutex
	cleanupOnce sync.Once
}

func (s *executionState) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// WorkerPool dispatches ready tasks of running workflows, bounded by a
// worker semaphore shared across executions.
type WorkerPool struct {
	store          storage.Store
	taskService    *TaskService
	models         *provider.Registry
	logger         Logger
	workers        int64
	sem            *semaphore.Weighted
	defaultTimeout time.Duration
	retryDelay     time.Duration
	executions     map[string]*executionState
	mu             sync.RWMutex
	wg             sync.WaitGroup
	ctx            context.Context
	cancel         context.CancelFunc
}

func NewWorkerPool(
	mainCtx context.Context,
	store storage.Store,
	taskService *TaskService,
	registry *provider.Registry,
	logger Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(mainCtx)
	return &WorkerPool{
		store:          store,
		taskService:    taskService,
		models:         registry,
		logger:         logger,
		defaultTimeout: DefaultTaskTimeout,
		retryDelay:     DefaultRetryDelay,
		executions:     make(map[string]*executionState),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start sizes the pool. Zero or fewer workers means one per CPU.
func (wp *WorkerPool) Start(workers int) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	wp.workers = int64(workers)
	wp.sem = semaphore.NewWeighted(wp.workers)
}

// Stop cancels every execution and waits for in-flight tasks to settle.
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
}

// Launch begins executing a workflow in the background.
func (wp *WorkerPool) Launch(workflowID string) (string, error) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if _, exists := wp.executions[workflowID]; exists {
		return "", fmt.Errorf("execution for workflow %s already running", workflowID)
	}
	if wp.ctx.Err() != nil {
		return "", fmt.Errorf("worker pool stopped: %v", wp.ctx.Err())
	}
	ctx, cancel := context.WithCancel(wp.ctx)
	state := &executionState{
		id:         uuid.NewString(),
		workflowID: workflowID,
		ctx:        ctx,
		cancel:     cancel,
		running:    make(map[string]struct{}),
		dispatched: make(map[string]struct{}),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	wp.executions[workflowID] = state
	wp.wg.Add(1)
	go wp.schedule(state)
	wp.logger.Infof("Launched execution %s for workflow %s", state.id, workflowID)
	return state.id, nil
}

// Active reports whether the workflow has an execution in this process.
func (wp *WorkerPool) Active(workflowID string) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	_, ok := wp.executions[workflowID]
	return ok
}

// Done returns a channel closed when the workflow's execution ends, or nil.
func (wp *WorkerPool) Done(workflowID string) <-chan struct{} {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if state, ok := wp.executions[workflowID]; ok {
		return state.done
	}
	return nil
}

// SetPaused stops or resumes dispatch for a workflow. Tasks already running finish.
func (wp *WorkerPool) SetPaused(workflowID string, paused bool) bool {
	wp.mu.RLock()
	state, ok := wp.executions[workflowID]
	wp.mu.RUnlock()
	if !ok {
		return false
	}
	state.mu.Lock()
	state.paused = paused
	state.mu.Unlock()
	state.signal()
	return true
}

// Cancel aborts a workflow's execution; unfinished tasks are marked FAILED.
func (wp *WorkerPool) Cancel(workflowID string) bool {
	wp.mu.RLock()
	state, ok := wp.executions[workflowID]
	wp.mu.RUnlock()
	if ok {
		state.cancel()
	}
	return ok
}

func (wp *WorkerPool) schedule(state *executionState) {
	defer wp.wg.Done()
	defer wp.cleanupExecution(state.workflowID)

	for {
		// Read the in-flight count before the snapshot so a task finishing in
		// between is still counted as running.
		state.mu.Lock()
		inFlight := len(state.running)
		paused := state.paused
		state.mu.Unlock()

		wf, err := wp.store.GetWorkflow(state.workflowID)
		if err != nil {
			wp.logger.Errorf("Execution %s: failed to load workflow %s: %v", state.id, state.workflowID, err)
			state.cancel()
			wp.drain(state)
			return
		}
		tasks := wf.Tasks

		if err := state.ctx.Err(); err != nil {
			if inFlight > 0 {
				<-state.wake
				continue
			}
			wp.handleContextCancellation(state, tasks, err)
			return
		}

		for id, cause := range dag.Blocked(tasks) {
			task, _ := wf.Task(id)
			msg := fmt.Sprintf("upstream task '%s' failed", cause)
			wp.logger.Infof("Task %s will not run: %s", id, msg)
			if err := wp.taskService.Fail(task, msg); err != nil {
				wp.logger.Errorf("Failed to update task %s status to FAILED: %v", id, err)
			}
			for i := range tasks {
				if tasks[i].ID == id {
					tasks[i].Status = models.FailedTaskStatus
				}
			}
		}

		waiting := false
		if !paused {
			for _, task := range dag.Ready(tasks) {
				state.mu.Lock()
				_, dispatched := state.dispatched[task.ID]
				state.mu.Unlock()
				if dispatched {
					continue
				}
				if !wp.sem.TryAcquire(1) {
					waiting = true
					break
				}
				state.mu.Lock()
				state.running[task.ID] = struct{}{}
				state.dispatched[task.ID] = struct{}{}
				inFlight++
				state.mu.Unlock()
				wp.wg.Add(1)
				go wp.executeTask(state, task)
			}
		}

		if inFlight == 0 && !waiting {
			if allTerminal(tasks) {
				wp.finish(state, tasks)
				return
			}
			if !paused {
				// Nothing running and nothing ready: remaining tasks are stuck.
				for _, t := range tasks {
					if !t.Status.Terminal() {
						if err := wp.taskService.Fail(t, "task could not be scheduled"); err != nil {
							wp.logger.Errorf("Failed to update task %s status to FAILED: %v", t.ID, err)
						}
					}
				}
				wp.updateWorkflowStatus(state, models.FailedWorkflowStatus)
				return
			}
		}

		if waiting {
			select {
			case <-state.wake:
			case <-state.ctx.Done():
			case <-time.After(schedulerPollInterval):
			}
			continue
		}
		select {
		case <-state.wake:
		case <-state.ctx.Done():
		}
	}
}

func allTerminal(tasks []models.Task) bool {
	for _, t := range tasks {
		if !t.Status.Terminal() {
			return false
		}
	}
	return true
}

func (wp *WorkerPool) finish(state *executionState, tasks []models.Task) {
	status := models.CompletedWorkflowStatus
	for _, t := range tasks {
		if t.Status != models.CompletedTaskStatus {
			status = models.FailedWorkflowStatus
			break
		}
	}
	wp.updateWorkflowStatus(state, status)
	wp.logger.Infof("Execution %s finished workflow %s with status %s", state.id, state.workflowID, status)
}

func (wp *WorkerPool) updateWorkflowStatus(state *executionState, status models.WorkflowStatus) {
	if err := wp.store.UpdateWorkflowStatus(state.workflowID, status); err != nil {
		wp.logger.Errorf("Failed to set workflow %s to %s: %v", state.workflowID, status, err)
	}
}

// drain waits for the execution's in-flight tasks to return.
func (wp *WorkerPool) drain(state *executionState) {
	for {
		state.mu.Lock()
		n := len(state.running)
		state.mu.Unlock()
		if n == 0 {
			return
		}
		<-state.wake
	}
}

// handleContextCancellation marks every unfinished task and the workflow as failed
func (wp *WorkerPool) handleContextCancellation(state *executionState, tasks []models.Task, err error) {
	wp.logger.Infof("Context cancelled for execution %s: %v", state.id, err)
	for _, t := range tasks {
		if t.Status.Terminal() {
			continue
		}
		if updateErr := wp.taskService.Fail(t, err.Error()); updateErr != nil {
			wp.logger.Errorf("Failed to update task %s status to FAILED: %v", t.ID, updateErr)
		}
	}
	wp.updateWorkflowStatus(state, models.FailedWorkflowStatus)
}

func (wp *WorkerPool) executeTask(state *executionState, task models.Task) {
	defer wp.wg.Done()
	defer func() {
		wp.sem.Release(1)
		state.mu.Lock()
		delete(state.running, task.ID)
		state.mu.Unlock()
		state.signal()
	}()

	if err := wp.taskService.MarkRunning(task, time.Now()); err != nil {
		wp.logger.Errorf("Failed to update task %s status to RUNNING: %v", task.ID, err)
		wp.markTaskFailed(task, err)
		return
	}

	depResults, err := wp.taskService.DependencyResults(task)
	if err != nil {
		wp.markTaskFailed(task, err)
		return
	}
	model, err := wp.models.Resolve(state.ctx, task.ModelProvider, task.ModelSettings.ModelID)
	if err != nil {
		wp.markTaskFailed(task, err)
		return
	}
	req := provider.Request{
		SystemPrompt: task.SystemPrompt,
		Prompt:       ComposePrompt(task, depResults),
		Settings:     task.ModelSettings,
	}

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = wp.defaultTimeout
	}

	var result string
	var taskErr error
	for attempt := 0; attempt <= task.Retries; attempt++ {
		wp.logger.Infof("Starting task %s attempt %d", task.ID, attempt+1)
		if err := wp.taskService.UpdateAttempts(task, attempt+1); err != nil {
			wp.logger.Errorf("Failed to update task %s attempts to %d: %v", task.ID, attempt+1, err)
		}

		result, taskErr = wp.generate(state.ctx, model, req, timeout)
		if taskErr == nil {
			break
		}
		if state.ctx.Err() != nil {
			taskErr = state.ctx.Err()
			break
		}
		if attempt < task.Retries {
			wp.logger.Infof("Retrying task %s (attempt %d/%d): %v", task.ID, attempt+1, task.Retries, taskErr)
			select {
			case <-time.After(wp.retryDelay):
			case <-state.ctx.Done():
			}
		}
	}

	if taskErr != nil {
		wp.logger.Infof("Task %s failed after %d retries: %v", task.ID, task.Retries, taskErr)
		wp.markTaskFailed(task, taskErr)
		return
	}
	if err := wp.taskService.Complete(task, result); err != nil {
		wp.logger.Errorf("Failed to save result of task %s: %v", task.ID, err)
		return
	}
	wp.logger.Infof("Task %s completed successfully", task.ID)
}

// generate runs one attempt, giving up when the timeout fires even if the
// model ignores its context.
func (wp *WorkerPool) generate(ctx context.Context, model provider.Model, req provider.Request, timeout time.Duration) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan struct {
		res string
		err error
	}, 1)
	go func() {
		res, err := model.Generate(timeoutCtx, req)
		resultCh <- struct {
			res string
			err error
		}{res, err}
	}()

	select {
	case r := <-resultCh:
		return r.res, r.err
	case <-timeoutCtx.Done():
		return "", timeoutCtx.Err()
	}
}

func (wp *WorkerPool) markTaskFailed(task models.Task, err error) {
	if updateErr := wp.taskService.Fail(task, err.Error()); updateErr != nil {
		wp.logger.Errorf("Failed to update task %s status to FAILED: %v", task.ID, updateErr)
	}
}

func (wp *WorkerPool) cleanupExecution(workflowID string) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if state, ok := wp.executions[workflowID]; ok {
		state.cleanupOnce.Do(func() {
			state.cancel()
			close(state.done)
			delete(wp.executions, workflowID)
			wp.logger.Infof("Cleaned up execution: %s", state.id)
		})
	}
}
