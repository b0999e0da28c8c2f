// Package prompt implements the blocking date prompt shown before the
// report is fetched. Cancelling the prompt aborts the run cleanly instead
// of proceeding with an empty filter.
package prompt

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user dismisses the prompt.
var ErrCancelled = errors.New("prompt cancelled by user")

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	hintStyle  = lipgloss.NewStyle().Faint(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Model is the bubbletea model for the date prompt. It is exported so the
// update loop is testable without a terminal.
type Model struct {
	input      textinput.Model
	dateFormat string

	date      time.Time
	parseErr  string
	cancelled bool
	done      bool
}

func NewModel(suggested time.Time, dateFormat string) Model {
	ti := textinput.New()
	ti.Placeholder = dateFormat
	ti.SetValue(suggested.Format(dateFormat))
	ti.CharLimit = len(dateFormat) + 2
	ti.Focus()

	return Model{
		input:      ti,
		dateFormat: dateFormat,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			m.cancelled = true
			m.done = true
			return m, tea.Quit
		case tea.KeyEnter:
			date, err := time.Parse(m.dateFormat, m.input.Value())
			if err != nil {
				m.parseErr = fmt.Sprintf("not a valid date (%s)", m.dateFormat)
				return m, nil
			}
			m.date = date
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.done {
		return ""
	}
	view := titleStyle.Render("Report date") + "\n" +
		m.input.View() + "\n" +
		hintStyle.Render("enter to confirm, esc to cancel")
	if m.parseErr != "" {
		view += "\n" + errStyle.Render(m.parseErr)
	}
	return view
}

// Date returns the confirmed date, or ErrCancelled.
func (m Model) Date() (time.Time, error) {
	if m.cancelled {
		return time.Time{}, ErrCancelled
	}
	return m.date, nil
}

// DatePrompt asks the user for the report date, suggesting a default.
type DatePrompt struct {
	dateFormat string
}

func New(dateFormat string) *DatePrompt {
	return &DatePrompt{dateFormat: dateFormat}
}

// Ask blocks until the user confirms a date or cancels.
func (p *DatePrompt) Ask(suggested time.Time) (time.Time, error) {
	program := tea.NewProgram(NewModel(suggested, p.dateFormat))
	final, err := program.Run()
	if err != nil {
		return time.Time{}, fmt.Errorf("run prompt: %w", err)
	}
	return final.(Model).Date()
}
