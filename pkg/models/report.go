package models

import "time"

// TaskReport is the monitor view of a single task.
type TaskReport struct {
	ID           string     `json:"task_id"`
	Status       TaskStatus `json:"status"`
	Priority     int        `json:"priority"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Attempts     int        `json:"attempts"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	Result       string     `json:"result,omitempty"`
}

// WorkflowStatusReport is a point-in-time snapshot of a workflow's progress.
type WorkflowStatusReport struct {
	WorkflowID string             `json:"workflow_id"`
	Status     WorkflowStatus     `json:"status"`
	Tasks      []TaskReport       `json:"tasks"`
	Counts     map[TaskStatus]int `json:"counts"`
	Progress   float64            `json:"progress"` // Percentage of tasks in a terminal state
	UpdatedAt  time.Time          `json:"updated_at"`
}

// NewStatusReport builds a report from a workflow and its tasks.
func NewStatusReport(wf Workflow) WorkflowStatusReport {
	report := WorkflowStatusReport{
		WorkflowID: wf.ID,
		Status:     wf.Status,
		Tasks:      make([]TaskReport, 0, len(wf.Tasks)),
		Counts:     make(map[TaskStatus]int),
		UpdatedAt:  wf.UpdatedAt,
	}
	done := 0
	for _, t := range wf.Tasks {
		report.Tasks = append(report.Tasks, TaskReport{
			ID:           t.ID,
			Status:       t.Status,
			Priority:     t.Priority,
			Dependencies: t.Dependencies,
			Attempts:     t.Attempts,
			StartedAt:    t.StartedAt,
			FinishedAt:   t.FinishedAt,
			Error:        t.ErrorMsg,
			Result:       t.Result,
		})
		report.Counts[t.Status]++
		if t.Status.Terminal() {
			done++
		}
	}
	if len(wf.Tasks) > 0 {
		report.Progress = float64(done) * 100 / float64(len(wf.Tasks))
	}
	return report
}
