package definition

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogYAML = `
workflow_id: blog_agent_workflow
defaults:
  model_provider: bedrock
  model_settings:
    model_id: us.anthropic.claude-3-7-sonnet-20250219-v1:0
  retries: 1
  timeout: 2m
tasks:
  - task_id: blog_planner
    description: Create a detailed outline
    system_prompt: You are a blog planner.
    priority: 5
    model_settings:
      temperature: 0.9
  - task_id: section_writer
    description: Expand each section
    dependencies: [blog_planner]
    priority: 4
    retries: 3
    timeout: 30s
  - task_id: editor
    description: Edit the draft
    dependencies: [section_writer]
    priority: 3
    model_provider: echo
    model_settings:
      model_id: local
      max_tokens: 512
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(blogYAML), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "blog_agent_workflow", f.WorkflowID)

	tasks, err := f.BuildTasks()
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	planner := tasks[0]
	assert.Equal(t, "blog_planner", planner.ID)
	assert.Equal(t, "You are a blog planner.", planner.SystemPrompt)
	assert.Equal(t, "bedrock", planner.ModelProvider)
	assert.Equal(t, "us.anthropic.claude-3-7-sonnet-20250219-v1:0", planner.ModelSettings.ModelID)
	require.NotNil(t, planner.ModelSettings.Temperature)
	assert.Equal(t, 0.9, *planner.ModelSettings.Temperature)
	assert.Equal(t, 1, planner.Retries)
	assert.Equal(t, 2*time.Minute, planner.Timeout)

	writer := tasks[1]
	assert.Equal(t, []string{"blog_planner"}, writer.Dependencies)
	assert.Equal(t, 3, writer.Retries)
	assert.Equal(t, 30*time.Second, writer.Timeout)
	assert.Nil(t, writer.ModelSettings.Temperature)

	editor := tasks[2]
	assert.Equal(t, "echo", editor.ModelProvider)
	assert.Equal(t, "local", editor.ModelSettings.ModelID)
	assert.Equal(t, 512, editor.ModelSettings.MaxTokens)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing workflow id", "tasks: []\n", "workflow_id is required"},
		{"unknown field", "workflow_id: x\nsteps: []\n", "failed to parse workflow YAML"},
		{"bad yaml", "workflow_id: [", "failed to parse workflow YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTasksErrors(t *testing.T) {
	f, err := Parse([]byte("workflow_id: x\ntasks:\n  - task_id: a\n    description: d\n"))
	require.NoError(t, err)
	_, err = f.BuildTasks()
	assert.EqualError(t, err, "task 'a': model_provider is required")

	f, err = Parse([]byte("workflow_id: x\ntasks:\n  - task_id: a\n    model_provider: echo\n    timeout: soon\n"))
	require.NoError(t, err)
	_, err = f.BuildTasks()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid timeout "soon"`)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read workflow file")
}
