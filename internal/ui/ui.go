// Package ui renders console output for the blogflow commands.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/ignatij/blogflow/pkg/models"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	OKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	WarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	ErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	DimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	statusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusPaused   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	statusPending  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

// OK prints a success line.
func OK(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, OKStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Warn prints a warning line.
func Warn(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, WarnStyle.Render("⚠️  "+fmt.Sprintf(format, args...)))
}

// Fail prints an error line.
func Fail(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// Hint prints an indented secondary line.
func Hint(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, DimStyle.Render("   "+fmt.Sprintf(format, args...)))
}

// Status colours a workflow or task status.
func Status(status string) string {
	switch status {
	case string(models.RunningWorkflowStatus):
		return statusRunning.Render(status)
	case string(models.CompletedWorkflowStatus):
		return statusComplete.Render(status)
	case string(models.FailedWorkflowStatus):
		return statusFailed.Render(status)
	case string(models.PausedWorkflowStatus):
		return statusPaused.Render(status)
	default:
		return statusPending.Render(status)
	}
}

// Report renders a status snapshot as a table of tasks.
func Report(r models.WorkflowStatusReport, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s  %s\n", TitleStyle.Render(r.WorkflowID), Status(string(r.Status)),
		DimStyle.Render(fmt.Sprintf("%.0f%% done", r.Progress)))
	for _, t := range r.Tasks {
		line := fmt.Sprintf("  %-20s %-20s", t.ID, Status(string(t.Status)))
		if t.Attempts > 1 {
			line += DimStyle.Render(fmt.Sprintf(" attempt %d", t.Attempts))
		}
		switch {
		case t.FinishedAt != nil:
			line += DimStyle.Render(" finished " + humanize.RelTime(*t.FinishedAt, now, "ago", "from now"))
		case t.StartedAt != nil:
			line += DimStyle.Render(" started " + humanize.RelTime(*t.StartedAt, now, "ago", "from now"))
		case len(t.Dependencies) > 0:
			line += DimStyle.Render(" after " + strings.Join(t.Dependencies, ", "))
		}
		b.WriteString(line + "\n")
		if t.Error != "" {
			b.WriteString(ErrorStyle.Render("    "+t.Error) + "\n")
		}
	}
	return b.String()
}

// Workflows renders a list of workflows, newest first.
func Workflows(workflows []models.Workflow, now time.Time) string {
	if len(workflows) == 0 {
		return "No workflows found.\n"
	}
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Workflows:") + "\n")
	for _, wf := range workflows {
		fmt.Fprintf(&b, "- %s  %s  %s\n", wf.ID, Status(string(wf.Status)),
			DimStyle.Render("created "+humanize.RelTime(wf.CreatedAt, now, "ago", "from now")))
	}
	return b.String()
}
