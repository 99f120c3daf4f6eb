// Package tui renders the foreground (interactive) mode of watchd.
package tui

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/grovetools/watchd/internal/daemon/store"
)

// Source is the running core the view observes.
type Source interface {
	NewFiles() []string
	Roots() []string
	Store() *store.Store
}

// Option configures the underlying program (input, output, renderer).
type Option = tea.ProgramOption

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	pathStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

type updateMsg store.Update

// Model is the bubbletea model of interactive mode.
type Model struct {
	src     Source
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	updates chan store.Update
	state   store.State
}

// New creates a model observing src.
func New(src Source) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		src:     src,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spinner: sp,
		state:   src.Store().Get(),
	}
}

// Run shows the view until the user quits or ctx is cancelled.
func Run(ctx context.Context, src Source, opts ...Option) error {
	m := New(src)
	m.updates = src.Store().Subscribe()
	defer src.Store().Unsubscribe(m.updates)

	opts = append([]Option{tea.WithContext(ctx)}, opts...)
	if _, err := tea.NewProgram(m, opts...).Run(); err != nil {
		if stderrors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForUpdate())
}

func (m Model) waitForUpdate() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	ch := m.updates
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return nil
		}
		return updateMsg(u)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Print):
			return m, printFiles(m.src.NewFiles())
		}
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
	case updateMsg:
		m.state = m.src.Store().Get()
		return m, m.waitForUpdate()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// printFiles writes the list above the live view so it stays in scrollback.
func printFiles(files []string) tea.Cmd {
	if len(files) == 0 {
		return tea.Println(keyStyle.Render("No new files"))
	}
	lines := make([]string, 0, len(files)+1)
	lines = append(lines, titleStyle.Render(fmt.Sprintf("New files (%d)", len(files))))
	for _, f := range files {
		lines = append(lines, "  "+pathStyle.Render(f))
	}
	return tea.Println(strings.Join(lines, "\n"))
}

func (m Model) View() string {
	var b strings.Builder

	phase := m.state.Phase
	if phase == "" {
		phase = "starting"
	}
	fmt.Fprintf(&b, "%s %s %s\n", m.spinner.View(), titleStyle.Render("watchd"), keyStyle.Render(phase))

	field := func(k string, v interface{}) {
		fmt.Fprintf(&b, "  %s %s\n", keyStyle.Render(k+":"), valueStyle.Render(fmt.Sprint(v)))
	}
	field("roots", len(m.state.Roots))
	field("new files", len(m.state.NewFiles))
	field("dispatched", m.state.Dispatched)
	if m.state.Failed > 0 {
		field("failed", m.state.Failed)
	}
	if !m.state.LastScan.IsZero() {
		field("last scan", m.state.LastScan.Format(time.TimeOnly))
	}
	if m.state.Notifier != "" {
		field("notifier", m.state.Notifier)
	}

	b.WriteString("\n" + m.help.View(m.keys) + "\n")
	return b.String()
}
