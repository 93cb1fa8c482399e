package blog

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ignatij/blogflow/internal/ui"
	"github.com/ignatij/blogflow/pkg/models"
	"github.com/ignatij/blogflow/pkg/provider"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrCredentials   = errors.New("credential check failed")
	ErrServiceAccess = errors.New("model service unavailable")
)

// Verifier checks the cloud account behind the model provider.
type Verifier interface {
	VerifyCredentials(ctx context.Context) (provider.Identity, error)
	CheckAccess(ctx context.Context, modelID string) (provider.Access, error)
}

// Workflows is the part of the workflow service the pipeline drives.
type Workflows interface {
	Create(ctx context.Context, workflowID string, tasks []models.Task) error
	Start(ctx context.Context, workflowID string) error
	Monitor(workflowID string) (models.WorkflowStatusReport, error)
	Wait(ctx context.Context, workflowID string) (models.Workflow, error)
}

// Pipeline submits the blog workflow after the preflight checks pass.
type Pipeline struct {
	Topic        string
	ProviderName string
	ModelID      string

	// Verifier is nil for providers that need no cloud account.
	Verifier  Verifier
	Registry  *provider.Registry
	Workflows Workflows

	// Wait blocks until the workflow finishes and prints the edited post.
	Wait    bool
	Timeout time.Duration

	Out    io.Writer
	Logger *logrus.Entry
}

// Run performs the credential check, the capability smoke test, and the
// create, start and monitor calls. A credential failure returns before any
// workflow call; a smoke test failure is reported and execution continues.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.checkCredentials(ctx); err != nil {
		return err
	}
	p.smokeTest(ctx)

	if err := p.Workflows.Create(ctx, WorkflowID, Tasks(p.topic(), p.ProviderName, p.ModelID)); err != nil {
		ui.Fail(p.Out, "Failed to create workflow '%s': %v", WorkflowID, err)
		return errors.Wrap(err, "create workflow")
	}
	ui.OK(p.Out, "Workflow '%s' created with 3 tasks", WorkflowID)

	if err := p.Workflows.Start(ctx, WorkflowID); err != nil {
		ui.Fail(p.Out, "Failed to start workflow '%s': %v", WorkflowID, err)
		return errors.Wrap(err, "start workflow")
	}
	ui.OK(p.Out, "Workflow '%s' started", WorkflowID)

	report, err := p.Workflows.Monitor(WorkflowID)
	if err != nil {
		ui.Fail(p.Out, "Failed to monitor workflow '%s': %v", WorkflowID, err)
		return errors.Wrap(err, "monitor workflow")
	}
	fmt.Fprint(p.Out, ui.Report(report, time.Now()))

	if !p.Wait {
		return nil
	}
	return p.waitForPost(ctx)
}

func (p *Pipeline) checkCredentials(ctx context.Context) error {
	if p.Verifier == nil {
		p.log().Debugf("Provider '%s' needs no cloud credentials", p.ProviderName)
		return nil
	}
	identity, err := p.Verifier.VerifyCredentials(ctx)
	if err != nil {
		p.log().Errorf("Credential check failed: %v", err)
		ui.Warn(p.Out, "AWS credentials not found. Please configure your AWS credentials.")
		ui.Hint(p.Out, "You can use: aws configure")
		ui.Hint(p.Out, "Or set environment variables: AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY")
		return errors.Wrap(ErrCredentials, err.Error())
	}
	ui.OK(p.Out, "AWS credentials configured (%s)", identity.Arn)

	access, err := p.Verifier.CheckAccess(ctx, p.ModelID)
	if err != nil {
		p.log().Errorf("Model service check failed: %v", err)
		ui.Fail(p.Out, "Error setting up AWS: %v", err)
		ui.Hint(p.Out, "Please ensure you have proper AWS credentials and permissions for Bedrock.")
		return errors.Wrap(ErrServiceAccess, err.Error())
	}
	ui.OK(p.Out, "Amazon Bedrock client initialized (%d models in %s)", access.ModelCount, access.Region)
	if !access.ModelOffered {
		ui.Warn(p.Out, "Model %s is not listed in %s; the workflow may fail", p.ModelID, access.Region)
	}
	return nil
}

// smokeTest builds a model client without calling it.
func (p *Pipeline) smokeTest(ctx context.Context) {
	fmt.Fprintln(p.Out, "🔍 Testing installation...")
	if _, err := p.Registry.Resolve(ctx, p.ProviderName, p.ModelID); err != nil {
		p.log().Errorf("Smoke test failed: %v", err)
		ui.Fail(p.Out, "Model client creation failed: %v", err)
		ui.Hint(p.Out, "Registered providers: %v", p.Registry.Providers())
		return
	}
	ui.OK(p.Out, "Model client for %s/%s created", p.ProviderName, p.ModelID)
	fmt.Fprintln(p.Out, "🎉 Installation verified - ready to run the workflow!")
}

func (p *Pipeline) waitForPost(ctx context.Context) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	wf, err := p.Workflows.Wait(ctx, WorkflowID)
	if err != nil {
		return errors.Wrap(err, "wait for workflow")
	}
	fmt.Fprint(p.Out, ui.Report(models.NewStatusReport(wf), time.Now()))
	if wf.Status != models.CompletedWorkflowStatus {
		return errors.Errorf("workflow '%s' finished %s", WorkflowID, wf.Status)
	}
	editor, _ := wf.Task(EditorTaskID)
	fmt.Fprintln(p.Out)
	fmt.Fprintln(p.Out, ui.TitleStyle.Render("Final post"))
	fmt.Fprintln(p.Out, editor.Result)
	return nil
}

func (p *Pipeline) topic() string {
	if p.Topic == "" {
		return DefaultTopic
	}
	return p.Topic
}

func (p *Pipeline) log() *logrus.Entry {
	if p.Logger == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return p.Logger
}
