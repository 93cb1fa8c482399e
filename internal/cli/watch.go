package cli

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ignatij/blogflow/internal/ui"
	"github.com/ignatij/blogflow/pkg/models"
)

// monitorer is the read side of the workflow service.
type monitorer interface {
	Monitor(workflowID string) (models.WorkflowStatusReport, error)
}

type reportMsg struct {
	report models.WorkflowStatusReport
	err    error
}

type tickMsg time.Time

// watchModel refreshes a workflow's status until it reaches a terminal state.
type watchModel struct {
	svc      monitorer
	report   models.WorkflowStatusReport
	interval time.Duration
	spinner  spinner.Model
	err      error
	done     bool
}

func newWatchModel(svc monitorer, report models.WorkflowStatusReport, interval time.Duration) *watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = ui.WarnStyle
	return &watchModel{
		svc:      svc,
		report:   report,
		interval: interval,
		spinner:  s,
		done:     report.Status.Terminal(),
	}
}

func (m *watchModel) Init() tea.Cmd {
	if m.done {
		return tea.Quit
	}
	return tea.Batch(m.spinner.Tick, m.tickCmd())
}

func (m *watchModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *watchModel) refresh() tea.Msg {
	report, err := m.svc.Monitor(m.report.WorkflowID)
	return reportMsg{report: report, err: err}
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		return m, m.refresh

	case reportMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.report = msg.report
		if m.report.Status.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, m.tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *watchModel) View() string {
	var b strings.Builder
	b.WriteString(ui.Report(m.report, time.Now()))
	switch {
	case m.err != nil:
		b.WriteString(ui.ErrorStyle.Render("Error: "+m.err.Error()) + "\n")
	case m.done:
	default:
		b.WriteString(m.spinner.View() + ui.DimStyle.Render(" watching, q to quit") + "\n")
	}
	return b.String()
}
