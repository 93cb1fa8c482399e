package models

import "time"

type TaskStatus string

const (
	PendingTaskStatus   TaskStatus = "PENDING"
	RunningTaskStatus   TaskStatus = "RUNNING"
	FailedTaskStatus    TaskStatus = "FAILED"
	CompletedTaskStatus TaskStatus = "COMPLETED"
)

// Terminal reports whether no further transitions are expected for the task.
func (s TaskStatus) Terminal() bool {
	return s == CompletedTaskStatus || s == FailedTaskStatus
}

// ModelSettings selects and tunes the model a task runs against.
type ModelSettings struct {
	ModelID     string   `json:"model_id" yaml:"model_id"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Task represents a task in a workflow
type Task struct {
	ID            string        `json:"task_id"`                 // Unique within the workflow (e.g., "blog_planner")
	WorkflowID    string        `json:"workflow_id"`             // Parent workflow
	Description   string        `json:"description"`             // User text sent to the model
	SystemPrompt  string        `json:"system_prompt,omitempty"` // Instructions for the model
	Dependencies  []string      `json:"dependencies,omitempty"`  // Task IDs this task depends on, in order
	Priority      int           `json:"priority"`                // Higher runs first among ready tasks
	ModelProvider string        `json:"model_provider"`          // Provider name (e.g., "bedrock")
	ModelSettings ModelSettings `json:"model_settings"`
	Position      int           `json:"position"`          // Declaration order, used as the final tie-break
	Status        TaskStatus    `json:"status"`            // "PENDING", "RUNNING", "COMPLETED", "FAILED"
	Retries       int           `json:"retries"`           // Max retry attempts
	Attempts      int           `json:"attempts"`          // Current attempt count
	Timeout       time.Duration `json:"timeout,omitempty"` // Per-attempt timeout, zero means default
	Result        string        `json:"result,omitempty"`
	ErrorMsg      string        `json:"error,omitempty"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
}
