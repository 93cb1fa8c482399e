package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/ignatij/blogflow/pkg/models"
	"github.com/pkg/errors"
)

type taskKey struct {
	workflowID string
	taskID     string
}

type memoryData struct {
	mu           sync.RWMutex
	workflows    map[string]models.Workflow
	tasks        map[taskKey]models.Task
	dependencies []models.Dependency
	logs         []models.ExecutionLog
	nextLogID    int64
}

// memoryStore implements Store with in-memory storage. Transactions write
// straight to the shared data and keep an undo log that Rollback replays.
type memoryStore struct {
	data      *memoryData
	inTx      bool
	committed bool
	undo      []func()
}

func NewMemoryStore() Store {
	return &memoryStore{data: &memoryData{
		workflows: make(map[string]models.Workflow),
		tasks:     make(map[taskKey]models.Task),
	}}
}

func (m *memoryStore) Begin() (Store, error) {
	return &memoryStore{data: m.data, inTx: true}, nil
}

func (m *memoryStore) Commit() error {
	if !m.inTx {
		return errors.New("cannot commit: not a transaction")
	}
	if m.committed {
		return errors.New("already committed")
	}
	m.committed = true
	m.undo = nil
	return nil
}

func (m *memoryStore) Rollback() error {
	if !m.inTx {
		return errors.New("cannot rollback: not a transaction")
	}
	if m.committed {
		return errors.New("cannot rollback committed transaction")
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	for i := len(m.undo) - 1; i >= 0; i-- {
		m.undo[i]()
	}
	m.undo = nil
	m.committed = true
	return nil
}

// onRollback records how to revert a write. Must be called with the write lock held.
func (m *memoryStore) onRollback(fn func()) {
	if m.inTx {
		m.undo = append(m.undo, fn)
	}
}

func (m *memoryStore) Close() error {
	return nil
}

func (m *memoryStore) checkOpen() error {
	if m.committed {
		return errors.New("transaction already committed")
	}
	return nil
}

func (m *memoryStore) SaveWorkflow(wf models.Workflow) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	if _, ok := m.data.workflows[wf.ID]; ok {
		return errors.Wrapf(ErrAlreadyExists, "workflow '%s'", wf.ID)
	}
	wf.Tasks = nil
	m.data.workflows[wf.ID] = wf
	m.onRollback(func() { delete(m.data.workflows, wf.ID) })
	return nil
}

func (m *memoryStore) GetWorkflow(id string) (models.Workflow, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	wf, ok := m.data.workflows[id]
	if !ok {
		return models.Workflow{}, errors.Wrapf(ErrNotFound, "workflow '%s'", id)
	}
	wf.Tasks = m.tasksOf(id)
	return wf, nil
}

// tasksOf must be called with the read lock held.
func (m *memoryStore) tasksOf(workflowID string) []models.Task {
	var tasks []models.Task
	for k, t := range m.data.tasks {
		if k.workflowID == workflowID {
			t.Dependencies = nil
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Position < tasks[j].Position })
	deps := m.depsOf(workflowID)
	for i := range tasks {
		for _, d := range deps {
			if d.TaskID == tasks[i].ID {
				tasks[i].Dependencies = append(tasks[i].Dependencies, d.DependsOn)
			}
		}
	}
	return tasks
}

func (m *memoryStore) depsOf(workflowID string) []models.Dependency {
	var deps []models.Dependency
	for _, d := range m.data.dependencies {
		if d.WorkflowID == workflowID {
			deps = append(deps, d)
		}
	}
	sort.SliceStable(deps, func(i, j int) bool { return deps[i].Position < deps[j].Position })
	return deps
}

func (m *memoryStore) ListWorkflows() ([]models.Workflow, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	workflows := make([]models.Workflow, 0, len(m.data.workflows))
	for _, wf := range m.data.workflows {
		workflows = append(workflows, wf)
	}
	sort.Slice(workflows, func(i, j int) bool {
		if workflows[i].CreatedAt.Equal(workflows[j].CreatedAt) {
			return workflows[i].ID < workflows[j].ID
		}
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})
	return workflows, nil
}

func (m *memoryStore) UpdateWorkflowStatus(id string, status models.WorkflowStatus) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	wf, ok := m.data.workflows[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "workflow '%s'", id)
	}
	prev := wf
	wf.Status = status
	wf.UpdatedAt = time.Now()
	m.data.workflows[id] = wf
	m.onRollback(func() { m.data.workflows[id] = prev })
	return nil
}

func (m *memoryStore) TransitionWorkflowStatus(id string, from, to models.WorkflowStatus) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	wf, ok := m.data.workflows[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "workflow '%s'", id)
	}
	if wf.Status != from {
		return errors.Wrapf(ErrStatusChanged, "workflow '%s' is %s, not %s", id, wf.Status, from)
	}
	prev := wf
	wf.Status = to
	wf.UpdatedAt = time.Now()
	m.data.workflows[id] = wf
	m.onRollback(func() { m.data.workflows[id] = prev })
	return nil
}

func (m *memoryStore) DeleteWorkflow(id string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	wf, ok := m.data.workflows[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "workflow '%s'", id)
	}
	delete(m.data.workflows, id)
	removedTasks := make(map[taskKey]models.Task)
	for k, t := range m.data.tasks {
		if k.workflowID == id {
			removedTasks[k] = t
			delete(m.data.tasks, k)
		}
	}
	var deps, removedDeps []models.Dependency
	for _, d := range m.data.dependencies {
		if d.WorkflowID != id {
			deps = append(deps, d)
		} else {
			removedDeps = append(removedDeps, d)
		}
	}
	m.data.dependencies = deps
	var logs, removedLogs []models.ExecutionLog
	for _, l := range m.data.logs {
		if l.WorkflowID != id {
			logs = append(logs, l)
		} else {
			removedLogs = append(removedLogs, l)
		}
	}
	m.data.logs = logs
	m.onRollback(func() {
		m.data.workflows[id] = wf
		for k, t := range removedTasks {
			m.data.tasks[k] = t
		}
		m.data.dependencies = append(m.data.dependencies, removedDeps...)
		m.data.logs = append(m.data.logs, removedLogs...)
		sort.Slice(m.data.logs, func(i, j int) bool { return m.data.logs[i].ID < m.data.logs[j].ID })
	})
	return nil
}

func (m *memoryStore) SaveTask(t models.Task) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	if _, ok := m.data.workflows[t.WorkflowID]; !ok {
		return errors.Wrapf(ErrNotFound, "workflow '%s'", t.WorkflowID)
	}
	key := taskKey{workflowID: t.WorkflowID, taskID: t.ID}
	if _, ok := m.data.tasks[key]; ok {
		return errors.Wrapf(ErrAlreadyExists, "task '%s'", t.ID)
	}
	t.Dependencies = nil
	m.data.tasks[key] = t
	m.onRollback(func() { delete(m.data.tasks, key) })
	return nil
}

func (m *memoryStore) GetTask(id string, workflowID string) (models.Task, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	t, ok := m.data.tasks[taskKey{workflowID: workflowID, taskID: id}]
	if !ok {
		return models.Task{}, errors.Wrapf(ErrNotFound, "task '%s'", id)
	}
	for _, d := range m.depsOf(workflowID) {
		if d.TaskID == id {
			t.Dependencies = append(t.Dependencies, d.DependsOn)
		}
	}
	return t, nil
}

func (m *memoryStore) UpdateTask(id string, workflowID string, update TaskUpdate) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	key := taskKey{workflowID: workflowID, taskID: id}
	t, ok := m.data.tasks[key]
	if !ok {
		return errors.Wrapf(ErrNotFound, "task '%s'", id)
	}
	prev := t
	if update.Status != "" {
		t.Status = update.Status
	}
	if update.Attempts != nil {
		t.Attempts = *update.Attempts
	}
	if update.Result != nil {
		t.Result = *update.Result
	}
	if update.ErrorMsg != nil {
		t.ErrorMsg = *update.ErrorMsg
	}
	if update.StartedAt != nil {
		t.StartedAt = update.StartedAt
	}
	if update.FinishedAt != nil {
		t.FinishedAt = update.FinishedAt
	}
	m.data.tasks[key] = t
	m.onRollback(func() { m.data.tasks[key] = prev })
	return nil
}

func (m *memoryStore) SaveDependency(d models.Dependency) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	// Check for duplicate dependency
	for _, existing := range m.data.dependencies {
		if existing.TaskID == d.TaskID && existing.DependsOn == d.DependsOn && existing.WorkflowID == d.WorkflowID {
			return errors.Wrapf(ErrAlreadyExists, "dependency '%s' -> '%s'", d.TaskID, d.DependsOn)
		}
	}
	m.data.dependencies = append(m.data.dependencies, d)
	m.onRollback(func() {
		for i, existing := range m.data.dependencies {
			if existing == d {
				m.data.dependencies = append(m.data.dependencies[:i], m.data.dependencies[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (m *memoryStore) GetDependencies(workflowID string) ([]models.Dependency, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	return m.depsOf(workflowID), nil
}

func (m *memoryStore) SaveExecutionLog(l models.ExecutionLog) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	m.data.nextLogID++
	l.ID = m.data.nextLogID
	if l.LoggedAt.IsZero() {
		l.LoggedAt = time.Now()
	}
	m.data.logs = append(m.data.logs, l)
	m.onRollback(func() {
		for i, existing := range m.data.logs {
			if existing.ID == l.ID {
				m.data.logs = append(m.data.logs[:i], m.data.logs[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (m *memoryStore) GetExecutionLogs(workflowID string) ([]models.ExecutionLog, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	var logs []models.ExecutionLog
	for _, l := range m.data.logs {
		if l.WorkflowID == workflowID {
			logs = append(logs, l)
		}
	}
	return logs, nil
}
