package blog_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ignatij/blogflow/internal/blog"
	"github.com/ignatij/blogflow/internal/log"
	"github.com/ignatij/blogflow/pkg/dag"
	"github.com/ignatij/blogflow/pkg/models"
	"github.com/ignatij/blogflow/pkg/provider"
	"github.com/ignatij/blogflow/pkg/service"
	"github.com/ignatij/blogflow/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	credErr   error
	accessErr error
	offered   bool
}

func (v *fakeVerifier) VerifyCredentials(context.Context) (provider.Identity, error) {
	if v.credErr != nil {
		return provider.Identity{}, v.credErr
	}
	return provider.Identity{Account: "123456789012", Arn: "arn:aws:iam::123456789012:user/dev"}, nil
}

func (v *fakeVerifier) CheckAccess(context.Context, string) (provider.Access, error) {
	if v.accessErr != nil {
		return provider.Access{}, v.accessErr
	}
	return provider.Access{Region: "us-east-1", ModelCount: 42, ModelOffered: v.offered}, nil
}

// recordingWorkflows counts calls made to the workflow service.
type recordingWorkflows struct {
	blog.Workflows
	calls []string
}

func (r *recordingWorkflows) Create(ctx context.Context, id string, tasks []models.Task) error {
	r.calls = append(r.calls, "create")
	return r.Workflows.Create(ctx, id, tasks)
}

func (r *recordingWorkflows) Start(ctx context.Context, id string) error {
	r.calls = append(r.calls, "start")
	return r.Workflows.Start(ctx, id)
}

func (r *recordingWorkflows) Monitor(id string) (models.WorkflowStatusReport, error) {
	r.calls = append(r.calls, "monitor")
	return r.Workflows.Monitor(id)
}

func newPipeline(t *testing.T, registry *provider.Registry, verifier blog.Verifier) (*blog.Pipeline, *recordingWorkflows, *bytes.Buffer) {
	t.Helper()
	svc := service.NewWorkflowService(context.Background(), storage.NewMemoryStore(), registry, log.GetLogger(),
		service.WithRetryDelay(time.Millisecond))
	t.Cleanup(svc.Close)
	rec := &recordingWorkflows{Workflows: svc}
	out := &bytes.Buffer{}
	return &blog.Pipeline{
		ProviderName: provider.EchoProvider,
		ModelID:      "test-model",
		Verifier:     verifier,
		Registry:     registry,
		Workflows:    rec,
		Out:          out,
		Logger:       log.Component("blog"),
	}, rec, out
}

func echoRegistry() *provider.Registry {
	registry := provider.NewRegistry()
	registry.Register(provider.EchoProvider, provider.NewEcho)
	return registry
}

func TestTasks(t *testing.T) {
	tasks := blog.Tasks(blog.DefaultTopic, "bedrock", "model-x")
	require.Len(t, tasks, 3)
	assert.Equal(t, "blog_planner", tasks[0].ID)
	assert.Equal(t, "section_writer", tasks[1].ID)
	assert.Equal(t, "editor", tasks[2].ID)
	assert.Empty(t, tasks[0].Dependencies)
	assert.Equal(t, []string{"blog_planner"}, tasks[1].Dependencies)
	assert.Equal(t, []string{"section_writer"}, tasks[2].Dependencies)
	assert.Equal(t, []int{5, 4, 3}, []int{tasks[0].Priority, tasks[1].Priority, tasks[2].Priority})
	assert.Contains(t, tasks[0].Description, `"The Future of AI in Content Creation"`)
	assert.Equal(t, blog.EditorInstruction, tasks[2].SystemPrompt)
	for _, task := range tasks {
		assert.Equal(t, "bedrock", task.ModelProvider)
		assert.Equal(t, "model-x", task.ModelSettings.ModelID)
	}

	order, err := dag.Order(tasks)
	require.NoError(t, err)
	assert.Equal(t, []string{"blog_planner", "section_writer", "editor"}, order)
}

func TestPipelineRun(t *testing.T) {
	t.Run("valid credentials create, start and monitor the workflow", func(t *testing.T) {
		p, rec, out := newPipeline(t, echoRegistry(), &fakeVerifier{offered: true})
		require.NoError(t, p.Run(context.Background()))

		assert.Equal(t, []string{"create", "start", "monitor"}, rec.calls)
		text := out.String()
		assert.Contains(t, text, "AWS credentials configured")
		assert.Contains(t, text, "Amazon Bedrock client initialized")
		assert.Contains(t, text, "Installation verified")
		assert.Contains(t, text, "Workflow 'blog_agent_workflow' created with 3 tasks")
		assert.Contains(t, text, "Workflow 'blog_agent_workflow' started")
		assert.NotContains(t, text, "not listed")
	})

	t.Run("missing credentials stop before any workflow call", func(t *testing.T) {
		p, rec, out := newPipeline(t, echoRegistry(), &fakeVerifier{credErr: provider.ErrNoCredentials})
		err := p.Run(context.Background())

		assert.ErrorIs(t, err, blog.ErrCredentials)
		assert.Empty(t, rec.calls)
		assert.Contains(t, out.String(), "AWS credentials not found")
		assert.Contains(t, out.String(), "aws configure")
	})

	t.Run("service access failure stops before any workflow call", func(t *testing.T) {
		p, rec, out := newPipeline(t, echoRegistry(), &fakeVerifier{accessErr: errors.New("AccessDeniedException")})
		err := p.Run(context.Background())

		assert.ErrorIs(t, err, blog.ErrServiceAccess)
		assert.Empty(t, rec.calls)
		assert.Contains(t, out.String(), "Error setting up AWS")
	})

	t.Run("smoke test failure is reported and the run continues", func(t *testing.T) {
		registry := echoRegistry()
		p, rec, out := newPipeline(t, registry, &fakeVerifier{offered: true})
		p.ProviderName = "missing"
		p.Wait = true
		p.Timeout = 5 * time.Second

		err := p.Run(context.Background())

		// The workflow itself fails because no provider can serve its tasks.
		assert.Error(t, err)
		assert.Equal(t, []string{"create", "start", "monitor"}, rec.calls)
		assert.Contains(t, out.String(), "Model client creation failed")
		assert.NotContains(t, out.String(), "Installation verified")
	})

	t.Run("model not offered in region is a warning", func(t *testing.T) {
		p, rec, out := newPipeline(t, echoRegistry(), &fakeVerifier{offered: false})
		require.NoError(t, p.Run(context.Background()))
		assert.Len(t, rec.calls, 3)
		assert.Contains(t, out.String(), "is not listed in us-east-1")
	})

	t.Run("no verifier skips the credential check", func(t *testing.T) {
		p, rec, out := newPipeline(t, echoRegistry(), nil)
		require.NoError(t, p.Run(context.Background()))
		assert.Len(t, rec.calls, 3)
		assert.NotContains(t, out.String(), "AWS credentials")
	})

	t.Run("second run fails because the workflow exists", func(t *testing.T) {
		p, _, _ := newPipeline(t, echoRegistry(), nil)
		require.NoError(t, p.Run(context.Background()))
		err := p.Run(context.Background())
		assert.ErrorIs(t, err, service.ErrWorkflowExists)
	})

	t.Run("wait prints the edited post", func(t *testing.T) {
		p, _, out := newPipeline(t, echoRegistry(), nil)
		p.Wait = true
		p.Timeout = 5 * time.Second
		require.NoError(t, p.Run(context.Background()))

		text := out.String()
		assert.Contains(t, text, "Final post")
		// echo answers with the first line of the composed prompt
		assert.Contains(t, text, "[test-model] Previous task results:")
	})
}
