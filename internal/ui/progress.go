package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/thomas-vilte/materelease/internal/saga"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	rollbackStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

type lineState int

const (
	lineActive lineState = iota
	lineDone
	lineFailed
)

type progressLine struct {
	step  saga.Step
	text  string
	state lineState
}

type eventsClosedMsg struct{}

type cancelSentMsg bool

// PublishModel renders one publish run. Esc and Ctrl+C request cancellation;
// the view stays up until the run has settled, rollback included.
type PublishModel struct {
	trans   *i18n.Translations
	title   string
	events  <-chan any
	cancel  func() bool
	spinner spinner.Model

	lines      []progressLine
	cancelling bool
	finished   *saga.Notification
	report     *saga.Report
}

func NewPublishModel(trans *i18n.Translations, title string, events <-chan any, cancel func() bool) *PublishModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return &PublishModel{
		trans:   trans,
		title:   title,
		events:  events,
		cancel:  cancel,
		spinner: s,
	}
}

func waitForEvent(events <-chan any) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return ev
	}
}

func (m *PublishModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m *PublishModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case StepMsg:
		m.applyStep(msg)
		return m, waitForEvent(m.events)
	case FinishedMsg:
		n := saga.Notification(msg)
		m.finished = &n
		return m, waitForEvent(m.events)
	case SettledMsg:
		r := saga.Report(msg)
		m.report = &r
		m.settleLines()
		return m, tea.Quit
	case eventsClosedMsg:
		return m, tea.Quit
	case cancelSentMsg:
		if !msg {
			m.cancelling = false
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			return m, m.requestCancel()
		}
	}
	return m, nil
}

func (m *PublishModel) requestCancel() tea.Cmd {
	if m.cancelling || m.report != nil || m.finished != nil {
		return nil
	}
	m.cancelling = true
	cancel := m.cancel
	return func() tea.Msg {
		return cancelSentMsg(cancel())
	}
}

func (m *PublishModel) applyStep(msg StepMsg) {
	if n := len(m.lines); n > 0 && m.lines[n-1].state == lineActive {
		m.lines[n-1].state = lineDone
		if msg.Step == saga.StepFailed {
			m.lines[n-1].state = lineFailed
		}
	}
	switch msg.Step {
	case saga.StepDone, saga.StepFailed:
		return
	}
	m.lines = append(m.lines, progressLine{step: msg.Step, text: msg.Text, state: lineActive})
}

func (m *PublishModel) settleLines() {
	for i := range m.lines {
		if m.lines[i].state != lineActive {
			continue
		}
		m.lines[i].state = lineDone
		if m.report.Outcome == saga.StepFailed && m.lines[i].step != saga.StepRollingBack {
			m.lines[i].state = lineFailed
		}
	}
}

func (m *PublishModel) View() string {
	var b strings.Builder
	b.WriteString("\n " + titleStyle.Render(m.title) + "\n\n")

	for _, l := range m.lines {
		style := lipgloss.NewStyle()
		if l.step == saga.StepRollingBack {
			style = rollbackStyle
		}
		switch l.state {
		case lineActive:
			b.WriteString(fmt.Sprintf(" %s %s\n", m.spinner.View(), style.Render(l.text)))
		case lineDone:
			b.WriteString(fmt.Sprintf(" %s %s\n", doneStyle.Render("✓"), style.Render(l.text)))
		case lineFailed:
			b.WriteString(fmt.Sprintf(" %s %s\n", failStyle.Render("✗"), failStyle.Render(l.text)))
		}
	}

	if m.finished != nil {
		b.WriteString("\n")
		if m.finished.Success {
			b.WriteString(" " + doneStyle.Render(m.finished.Message) + "\n")
		} else {
			b.WriteString(" " + failStyle.Render(m.finished.Message) + "\n")
		}
	}
	if m.report != nil && m.report.Outcome == saga.StepFailed && m.report.Message != "" {
		style := doneStyle
		if m.report.ManualCleanup {
			style = failStyle
		}
		b.WriteString(" " + style.Render(m.report.Message) + "\n")
	}

	if m.report == nil && m.finished == nil {
		hint := m.trans.GetMessage("publish_cancel_hint", 0, nil)
		if m.cancelling {
			hint = m.trans.GetMessage("publish_cancel_requested", 0, nil)
		}
		b.WriteString("\n " + hintStyle.Render(hint) + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

// Report is the settled outcome, nil if the view exited before the run
// settled.
func (m *PublishModel) Report() *saga.Report {
	return m.report
}

// RunProgress shows the progress view until the run settles.
func RunProgress(ctx context.Context, trans *i18n.Translations, title string, events <-chan any, cancel func() bool) (*saga.Report, error) {
	model := NewPublishModel(trans, title, events, cancel)
	final, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
	if err != nil {
		return model.Report(), fmt.Errorf("error running progress view: %w", err)
	}
	return final.(*PublishModel).Report(), nil
}
