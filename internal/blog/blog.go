// Package blog defines the plan, write and edit pipeline and the checks
// that run before it is submitted.
package blog

import (
	"fmt"

	"github.com/ignatij/blogflow/pkg/models"
)

const (
	WorkflowID   = "blog_agent_workflow"
	DefaultTopic = "The Future of AI in Content Creation"

	PlannerInstruction = "You are a blog planner. Take the topic that is provided to you and create a detailed outline with 3 sections and key points for each section."
	WriterInstruction  = "You are a blog writer. Take the outline provided by the blog planner and expand each section into a detailed paragraph."
	EditorInstruction  = "You are a professional editor. Improve the following blog draft by fixing grammar, making sentences concise, and ensuring smooth flow."

	PlannerTaskID = "blog_planner"
	WriterTaskID  = "section_writer"
	EditorTaskID  = "editor"
)

// Tasks returns the three pipeline stages, each routed to the given provider and model.
func Tasks(topic, providerName, modelID string) []models.Task {
	settings := models.ModelSettings{ModelID: modelID}
	return []models.Task{
		{
			ID:            PlannerTaskID,
			Description:   fmt.Sprintf("Create a detailed outline for the blog post about %q", topic),
			SystemPrompt:  PlannerInstruction,
			Priority:      5,
			ModelProvider: providerName,
			ModelSettings: settings,
		},
		{
			ID:            WriterTaskID,
			Description:   "Expand each section of the outline into a detailed paragraph",
			SystemPrompt:  WriterInstruction,
			Dependencies:  []string{PlannerTaskID},
			Priority:      4,
			ModelProvider: providerName,
			ModelSettings: settings,
		},
		{
			ID:            EditorTaskID,
			Description:   "Edit the blog draft for clarity and conciseness",
			SystemPrompt:  EditorInstruction,
			Dependencies:  []string{WriterTaskID},
			Priority:      3,
			ModelProvider: providerName,
			ModelSettings: settings,
		},
	}
}
