package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ignatij/blogflow/internal/blog"
	"github.com/ignatij/blogflow/internal/config"
	"github.com/ignatij/blogflow/internal/definition"
	internal_http "github.com/ignatij/blogflow/internal/http"
	"github.com/ignatij/blogflow/internal/log"
	"github.com/ignatij/blogflow/internal/ui"
	"github.com/ignatij/blogflow/pkg/models"
	"github.com/ignatij/blogflow/pkg/provider"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// SetupCLI registers the blogflow commands and their shared flags.
func SetupCLI(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()
	flags.String("store", "", "Store backend: memory, sqlite or postgres (default from BLOGFLOW_STORE)")
	flags.String("db", "", "PostgreSQL connection string (default from BLOGFLOW_DB or DB_* env vars)")
	flags.String("sqlite-path", "", "SQLite database file (default from BLOGFLOW_SQLITE_PATH)")
	flags.String("provider", "", "Model provider: bedrock, openai or echo (default from BLOGFLOW_PROVIDER)")
	flags.String("model", "", "Model ID (default from BLOGFLOW_MODEL_ID)")
	flags.String("region", "", "AWS region (default from AWS_REGION)")
	flags.Int("workers", 0, "Maximum tasks running at once (default number of CPUs)")

	rootCmd.AddCommand(
		newBlogCommand(),
		newCreateCommand(),
		newStartCommand(),
		newMonitorCommand(),
		newListCommand(),
		newPauseCommand(),
		newResumeCommand(),
		newDeleteCommand(),
		newLogsCommand(),
		newServeCommand(),
	)
}

func newBlogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blog",
		Short: "Check credentials, then create, start and monitor the blog workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, _ := cmd.Flags().GetString("topic")
			wait, _ := cmd.Flags().GetBool("wait")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p := &blog.Pipeline{
				Topic:        topic,
				ProviderName: a.cfg.Provider,
				ModelID:      a.cfg.ModelID,
				Registry:     a.registry,
				Workflows:    a.svc,
				Wait:         wait,
				Timeout:      timeout,
				Out:          cmd.OutOrStdout(),
				Logger:       log.Component("blog"),
			}
			if a.cfg.Provider == provider.BedrockProvider {
				if a.awsErr != nil {
					ui.Fail(p.Out, "Error setting up AWS: %v", a.awsErr)
					return errors.Wrap(blog.ErrCredentials, a.awsErr.Error())
				}
				p.Verifier = provider.NewAWSVerifier(a.awsCfg)
			}
			if err := p.Run(cmd.Context()); err != nil {
				return err
			}
			if !wait {
				ui.Hint(p.Out, "Execution stops when this process exits. Run with --wait to let the workflow finish.")
			}
			return nil
		},
	}
	cmd.Flags().String("topic", blog.DefaultTopic, "Blog post topic")
	cmd.Flags().Bool("wait", true, "Wait for the workflow to finish and print the edited post")
	cmd.Flags().Duration("timeout", 30*time.Minute, "How long --wait waits")
	return cmd
}

func newCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a workflow from a YAML definition file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			def, err := definition.Load(path)
			if err != nil {
				return err
			}
			tasks, err := def.BuildTasks()
			if err != nil {
				return err
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.svc.Create(cmd.Context(), def.WorkflowID, tasks); err != nil {
				return errors.Wrap(err, "failed to create workflow")
			}
			ui.OK(cmd.OutOrStdout(), "Created workflow '%s' with %d tasks", def.WorkflowID, len(tasks))
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "Workflow definition file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// newStartCommand starts a workflow and hosts its execution until it ends.
func newStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start <workflow-id>",
		Short: "Start a workflow and run it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.svc.Start(cmd.Context(), args[0]); err != nil {
				return errors.Wrap(err, "failed to start workflow")
			}
			ui.OK(cmd.OutOrStdout(), "Workflow '%s' started", args[0])
			return waitAndReport(cmd, a, args[0])
		},
	}
}

func newResumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <workflow-id>",
		Short: "Resume a paused workflow and run it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.svc.Resume(cmd.Context(), args[0]); err != nil {
				return errors.Wrap(err, "failed to resume workflow")
			}
			ui.OK(cmd.OutOrStdout(), "Workflow '%s' resumed", args[0])
			return waitAndReport(cmd, a, args[0])
		},
	}
}

func waitAndReport(cmd *cobra.Command, a *app, workflowID string) error {
	wf, err := a.svc.Wait(cmd.Context(), workflowID)
	if err != nil {
		return errors.Wrapf(err, "waiting for workflow '%s'", workflowID)
	}
	fmt.Fprint(cmd.OutOrStdout(), ui.Report(models.NewStatusReport(wf), time.Now()))
	if wf.Status == models.FailedWorkflowStatus {
		return errors.Errorf("workflow '%s' failed", workflowID)
	}
	return nil
}

func newMonitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor <workflow-id>",
		Short: "Show the status of a workflow and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			watch, _ := cmd.Flags().GetBool("watch")
			interval, _ := cmd.Flags().GetDuration("interval")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.svc.Monitor(args[0])
			if err != nil {
				return errors.Wrap(err, "failed to monitor workflow")
			}
			if !watch {
				fmt.Fprint(cmd.OutOrStdout(), ui.Report(report, time.Now()))
				return nil
			}
			m := newWatchModel(a.svc, report, interval)
			_, err = tea.NewProgram(m, tea.WithContext(cmd.Context()), tea.WithOutput(cmd.OutOrStdout())).Run()
			return err
		},
	}
	cmd.Flags().BoolP("watch", "w", false, "Keep refreshing until the workflow finishes")
	cmd.Flags().Duration("interval", time.Second, "Refresh interval for --watch")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			workflows, err := a.svc.List()
			if err != nil {
				return errors.Wrap(err, "failed to list workflows")
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.Workflows(workflows, time.Now()))
			return nil
		},
	}
}

func newPauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <workflow-id>",
		Short: "Stop dispatching new tasks of a running workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.svc.Pause(args[0]); err != nil {
				return errors.Wrap(err, "failed to pause workflow")
			}
			ui.OK(cmd.OutOrStdout(), "Workflow '%s' paused", args[0])
			return nil
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <workflow-id>",
		Short: "Delete a workflow that is not running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.svc.Delete(args[0]); err != nil {
				return errors.Wrap(err, "failed to delete workflow")
			}
			ui.OK(cmd.OutOrStdout(), "Deleted workflow '%s'", args[0])
			return nil
		},
	}
}

func newLogsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <workflow-id>",
		Short: "Show the execution log of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			logs, err := a.svc.Logs(args[0])
			if err != nil {
				return errors.Wrap(err, "failed to get execution logs")
			}
			out := cmd.OutOrStdout()
			if len(logs) == 0 {
				fmt.Fprintln(out, "No execution logs found.")
				return nil
			}
			for _, l := range logs {
				fmt.Fprintf(out, "%s  %-16s %-10s %s\n", ui.DimStyle.Render(l.LoggedAt.Format(time.RFC3339)), l.TaskID, ui.Status(l.Status), l.Message)
			}
			return nil
		},
	}
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workflow HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			port := a.cfg.Port
			if cmd.Flags().Changed("port") {
				port, _ = cmd.Flags().GetString("port")
			}
			return internal_http.StartServer(cmd.Context(), port, a.svc)
		},
	}
	cmd.Flags().String("port", config.DefaultPort, "Port to listen on (default from PORT)")
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute(ctx context.Context, rootCmd *cobra.Command) {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.GetLogger().Debugf("Command failed: %+v", err)
		fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
