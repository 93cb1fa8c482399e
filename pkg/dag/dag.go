// Package dag validates task graphs and decides which tasks may run next.
package dag

import (
	"sort"
	"strings"

	"github.com/ignatij/blogflow/pkg/models"
	"github.com/pkg/errors"
)

var (
	ErrEmptyWorkflow       = errors.New("workflow has no tasks")
	ErrEmptyTaskID         = errors.New("empty task id")
	ErrDuplicateTask       = errors.New("duplicate task id")
	ErrUnknownDependency   = errors.New("unknown dependency")
	ErrSelfDependency      = errors.New("task depends on itself")
	ErrDuplicateDependency = errors.New("duplicate dependency")
	ErrCycle               = errors.New("cycle detected in dependencies")
)

// Validate checks that tasks form a DAG: non-empty unique ids, every
// dependency names a task in the list exactly once, and no cycles.
func Validate(tasks []models.Task) error {
	if len(tasks) == 0 {
		return ErrEmptyWorkflow
	}
	ids := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if strings.TrimSpace(t.ID) == "" {
			return ErrEmptyTaskID
		}
		if _, ok := ids[t.ID]; ok {
			return errors.Wrapf(ErrDuplicateTask, "task '%s'", t.ID)
		}
		ids[t.ID] = struct{}{}
	}
	for _, t := range tasks {
		seen := make(map[string]struct{}, len(t.Dependencies))
		for _, dep := range t.Dependencies {
			if _, ok := seen[dep]; ok {
				return errors.Wrapf(ErrDuplicateDependency, "'%s' listed twice for '%s'", dep, t.ID)
			}
			seen[dep] = struct{}{}
			if dep == t.ID {
				return errors.Wrapf(ErrSelfDependency, "task '%s'", t.ID)
			}
			if _, ok := ids[dep]; !ok {
				return errors.Wrapf(ErrUnknownDependency, "dependency '%s' for '%s'", dep, t.ID)
			}
		}
	}
	if _, err := Order(tasks); err != nil {
		return err
	}
	return nil
}

// Order returns task ids in an execution order where every task comes after
// its dependencies. Among tasks that become ready at the same time, higher
// priority goes first, then declaration order.
func Order(tasks []models.Task) ([]string, error) {
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		index[t.ID] = i
	}

	// Calculate in-degrees and reverse edges
	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		inDegree[t.ID] += 0
		for _, dep := range t.Dependencies {
			if _, ok := index[dep]; !ok {
				return nil, errors.Wrapf(ErrUnknownDependency, "dependency '%s' for '%s'", dep, t.ID)
			}
			inDegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	var queue []models.Task
	for _, t := range tasks {
		if inDegree[t.ID] == 0 {
			queue = append(queue, t)
		}
	}

	sorted := make([]string, 0, len(tasks))
	for len(queue) > 0 {
		SortByPriority(queue)
		curr := queue[0]
		queue = queue[1:]
		sorted = append(sorted, curr.ID)

		for _, next := range dependents[curr.ID] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, tasks[index[next]])
			}
		}
	}
	if len(sorted) != len(tasks) {
		var stuck []string
		for _, t := range tasks {
			if inDegree[t.ID] > 0 {
				stuck = append(stuck, t.ID)
			}
		}
		return nil, errors.Wrapf(ErrCycle, "involving %s", strings.Join(stuck, ", "))
	}
	return sorted, nil
}

// Ready returns pending tasks whose dependencies have all completed, highest
// priority first.
func Ready(tasks []models.Task) []models.Task {
	status := statusByID(tasks)
	var ready []models.Task
	for _, t := range tasks {
		if t.Status != models.PendingTaskStatus {
			continue
		}
		ok := true
		for _, dep := range t.Dependencies {
			if status[dep] != models.CompletedTaskStatus {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, t)
		}
	}
	SortByPriority(ready)
	return ready
}

// Blocked maps each pending task that can never run to the failed task that
// blocks it, following dependency chains.
func Blocked(tasks []models.Task) map[string]string {
	byID := make(map[string]models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	blocked := make(map[string]string)
	var cause func(id string, seen map[string]bool) string
	cause = func(id string, seen map[string]bool) string {
		if seen[id] {
			return ""
		}
		seen[id] = true
		for _, dep := range byID[id].Dependencies {
			d := byID[dep]
			if d.Status == models.FailedTaskStatus {
				return dep
			}
			if d.Status == models.PendingTaskStatus {
				if c := cause(dep, seen); c != "" {
					return c
				}
			}
		}
		return ""
	}
	for _, t := range tasks {
		if t.Status != models.PendingTaskStatus {
			continue
		}
		if c := cause(t.ID, map[string]bool{}); c != "" {
			blocked[t.ID] = c
		}
	}
	return blocked
}

// SortByPriority orders tasks by priority descending, then position.
func SortByPriority(tasks []models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].Position < tasks[j].Position
	})
}

func statusByID(tasks []models.Task) map[string]models.TaskStatus {
	status := make(map[string]models.TaskStatus, len(tasks))
	for _, t := range tasks {
		status[t.ID] = t.Status
	}
	return status
}
