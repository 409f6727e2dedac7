// Package tui provides the interactive terminal dashboard for Hazel.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mvold/hazel/internal/models"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	statusIdle     = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	statusWorking  = lipgloss.NewStyle().Foreground(warningColor).Bold(true)
	statusGuarding = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
)

// App is the dashboard model.
type App struct {
	client *Client

	status *Status
	tasks  []models.Task
	jobs   []models.Job

	input   textinput.Model
	spin    spinner.Model
	sending bool
	reply   string
	err     error
	width   int
	height  int
}

// New creates the dashboard app.
func New(addr string) *App {
	input := textinput.New()
	input.Placeholder = "Ask Hazel, or /status, /remind, /cron..."
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return &App{
		client: NewClient(addr),
		input:  input,
		spin:   spin,
	}
}

// Run starts the TUI event loop.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type refreshMsg struct {
	status *Status
	tasks  []models.Task
	jobs   []models.Job
	err    error
}

type replyMsg struct {
	reply string
	err   error
}

type tickMsg time.Time

func (a *App) refresh() tea.Msg {
	status, err := a.client.GetStatus()
	if err != nil {
		return refreshMsg{err: err}
	}
	tasks, err := a.client.ListTasks(8)
	if err != nil {
		return refreshMsg{err: err}
	}
	jobs, err := a.client.ListJobs()
	if err != nil {
		return refreshMsg{err: err}
	}
	return refreshMsg{status: status, tasks: tasks, jobs: jobs}
}

func tick() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.refresh, tick(), a.spin.Tick, textinput.Blink)
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 6
		return a, nil

	case tickMsg:
		return a, tea.Batch(a.refresh, tick())

	case refreshMsg:
		if msg.err != nil {
			a.err = msg.err
			return a, nil
		}
		a.err = nil
		a.status = msg.status
		a.tasks = msg.tasks
		a.jobs = msg.jobs
		return a, nil

	case replyMsg:
		a.sending = false
		if msg.err != nil {
			a.err = msg.err
		} else {
			a.reply = msg.reply
		}
		return a, a.refresh

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return a, tea.Quit
		case "enter":
			text := strings.TrimSpace(a.input.Value())
			if text == "" || a.sending {
				return a, nil
			}
			a.input.Reset()
			a.sending = true
			a.reply = ""
			return a, func() tea.Msg {
				reply, err := a.client.Send(text)
				return replyMsg{reply: reply, err: err}
			}
		}
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// View implements tea.Model.
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Hazel"))
	b.WriteString("  ")
	b.WriteString(a.renderMode())
	b.WriteString("\n\n")

	b.WriteString(panelStyle.Render(a.renderTasks()))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(a.renderJobs()))
	b.WriteString("\n")

	if a.sending {
		b.WriteString(a.spin.View() + " waiting on harness...\n")
	} else if a.reply != "" {
		b.WriteString(panelStyle.Render("Reply: " + truncate(a.reply, 400)))
		b.WriteString("\n")
	}
	if a.err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(errorColor).Render("Error: "+a.err.Error()) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(a.input.View()))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter: send • esc: quit"))
	return b.String()
}

func (a *App) renderMode() string {
	if a.status == nil {
		return helpStyle.Render("connecting...")
	}
	mode := a.status.Mode.Mode
	label := fmt.Sprintf("● %s", mode)
	switch mode {
	case models.ModeWorking, models.ModeWaiting:
		return statusWorking.Render(label)
	case models.ModeGuarding:
		return statusGuarding.Render(label)
	default:
		return statusIdle.Render(label)
	}
}

func (a *App) renderTasks() string {
	var b strings.Builder
	b.WriteString("Tasks\n")
	if len(a.tasks) == 0 {
		b.WriteString(helpStyle.Render("none yet"))
		return b.String()
	}
	for _, t := range a.tasks {
		fmt.Fprintf(&b, "%s  %-12s %-8s %s\n", shortID(t.ID), t.Status, t.Agent, truncate(t.Prompt, 48))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *App) renderJobs() string {
	var b strings.Builder
	b.WriteString("Jobs\n")
	if len(a.jobs) == 0 {
		b.WriteString(helpStyle.Render("none scheduled"))
		return b.String()
	}
	for _, j := range a.jobs {
		line := fmt.Sprintf("%s  %-10s %s", shortID(j.ID), j.Kind, truncate(j.Command, 40))
		if j.TriggerAt != nil {
			line += "  fires " + j.TriggerAt.Format("Jan 2 15:04")
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncate shortens by runes so a cut never splits a UTF-8 sequence.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
