// Package definition reads workflow definitions from YAML files.
package definition

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/ignatij/blogflow/pkg/models"
	"gopkg.in/yaml.v3"
)

// File is a workflow definition as written on disk.
type File struct {
	WorkflowID string `yaml:"workflow_id"`
	// Defaults apply to tasks that leave provider or model unset.
	Defaults TaskDefaults `yaml:"defaults"`
	Tasks    []TaskSpec   `yaml:"tasks"`
}

type TaskDefaults struct {
	ModelProvider string        `yaml:"model_provider"`
	ModelSettings ModelSettings `yaml:"model_settings"`
	Retries       int           `yaml:"retries"`
	Timeout       string        `yaml:"timeout"`
}

type ModelSettings struct {
	ModelID     string   `yaml:"model_id"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

type TaskSpec struct {
	TaskID        string         `yaml:"task_id"`
	Description   string         `yaml:"description"`
	SystemPrompt  string         `yaml:"system_prompt"`
	Dependencies  []string       `yaml:"dependencies"`
	Priority      int            `yaml:"priority"`
	ModelProvider string         `yaml:"model_provider"`
	ModelSettings *ModelSettings `yaml:"model_settings"`
	Retries       *int           `yaml:"retries"`
	Timeout       string         `yaml:"timeout"`
}

// Load reads and parses a definition file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a definition. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse workflow YAML: %w", err)
	}
	if f.WorkflowID == "" {
		return nil, fmt.Errorf("workflow_id is required")
	}
	return &f, nil
}

// BuildTasks converts the definition into executor tasks, applying defaults.
// Graph validation is left to the workflow service.
func (f *File) BuildTasks() ([]models.Task, error) {
	defaultTimeout, err := parseTimeout(f.Defaults.Timeout)
	if err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	tasks := make([]models.Task, 0, len(f.Tasks))
	for _, ts := range f.Tasks {
		task := models.Task{
			ID:            ts.TaskID,
			Description:   ts.Description,
			SystemPrompt:  ts.SystemPrompt,
			Dependencies:  ts.Dependencies,
			Priority:      ts.Priority,
			ModelProvider: ts.ModelProvider,
			Retries:       f.Defaults.Retries,
			Timeout:       defaultTimeout,
		}
		if task.ModelProvider == "" {
			task.ModelProvider = f.Defaults.ModelProvider
		}
		settings := f.Defaults.ModelSettings
		if ts.ModelSettings != nil {
			if ts.ModelSettings.ModelID != "" {
				settings.ModelID = ts.ModelSettings.ModelID
			}
			if ts.ModelSettings.Temperature != nil {
				settings.Temperature = ts.ModelSettings.Temperature
			}
			if ts.ModelSettings.MaxTokens != 0 {
				settings.MaxTokens = ts.ModelSettings.MaxTokens
			}
		}
		task.ModelSettings = models.ModelSettings{
			ModelID:     settings.ModelID,
			Temperature: settings.Temperature,
			MaxTokens:   settings.MaxTokens,
		}
		if ts.Retries != nil {
			task.Retries = *ts.Retries
		}
		if ts.Timeout != "" {
			if task.Timeout, err = parseTimeout(ts.Timeout); err != nil {
				return nil, fmt.Errorf("task '%s': %w", ts.TaskID, err)
			}
		}
		if task.ModelProvider == "" {
			return nil, fmt.Errorf("task '%s': model_provider is required", ts.TaskID)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: must not be negative", s)
	}
	return d, nil
}
