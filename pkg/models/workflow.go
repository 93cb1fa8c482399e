package models

import "time"

type WorkflowStatus string

const (
	PendingWorkflowStatus   WorkflowStatus = "PENDING"
	RunningWorkflowStatus   WorkflowStatus = "RUNNING"
	PausedWorkflowStatus    WorkflowStatus = "PAUSED"
	CompletedWorkflowStatus WorkflowStatus = "COMPLETED"
	FailedWorkflowStatus    WorkflowStatus = "FAILED"
)

// Terminal reports whether the workflow has finished, successfully or not.
func (s WorkflowStatus) Terminal() bool {
	return s == CompletedWorkflowStatus || s == FailedWorkflowStatus
}

// Workflow is a named DAG of tasks submitted for execution.
type Workflow struct {
	ID        string         `json:"workflow_id"` // Caller-chosen identifier (e.g., "blog_agent_workflow")
	Status    WorkflowStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Tasks     []Task         `json:"tasks,omitempty"` // Ordered by declaration
}

// Task returns the task with the given ID.
func (w Workflow) Task(id string) (Task, bool) {
	for _, t := range w.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}
