// Package tui is the optional terminal status view for the server:
// a live list of connected sessions and the active stream's codec,
// refreshed once a second. Grounded on the teacher's
// internal/server/tui.go bubbletea model, generalized from the
// teacher's single-source test-tone server to an arbitrary hub with
// any number of sessions.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Status is one snapshot of server state to render.
type Status struct {
	ServerID   string
	Addr       string
	Uptime     time.Duration
	Codec      string
	SampleRate uint32
	Sessions   []SessionInfo
}

// SessionInfo is one connected session's display row.
type SessionInfo struct {
	Mac    string
	Active bool
}

// View drives a bubbletea program fed by a channel of Status updates.
type View struct {
	program *tea.Program
	updates chan Status
}

// New creates a status view. Call Run to start it and Update to push
// new snapshots.
func New() *View {
	return &View{updates: make(chan Status, 10)}
}

// Update pushes a new snapshot to the view. Non-blocking: a snapshot
// is dropped if the view hasn't drained the previous one yet.
func (v *View) Update(s Status) {
	select {
	case v.updates <- s:
	default:
	}
}

// Run starts the terminal program and blocks until the user quits.
func (v *View) Run() error {
	m := model{startTime: time.Now()}
	v.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for s := range v.updates {
			v.program.Send(statusMsg(s))
		}
	}()

	_, err := v.program.Run()
	return err
}

// Stop ends the program and closes the update channel.
func (v *View) Stop() {
	if v.program != nil {
		v.program.Quit()
	}
	close(v.updates)
}

type model struct {
	status    Status
	startTime time.Time
	quitting  bool
}

type tickMsg time.Time
type statusMsg Status

func (m model) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		return m, tickEvery()
	case statusMsg:
		m.status = Status(msg)
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "shutting down\n"
	}

	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	value := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	sectionHeader := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))

	var b strings.Builder
	b.WriteString(title.Render("snapsync server"))
	b.WriteString("\n\n")

	b.WriteString(header.Render("Instance: "))
	b.WriteString(value.Render(m.status.ServerID))
	b.WriteString("\n")

	b.WriteString(header.Render("Listening: "))
	b.WriteString(value.Render(m.status.Addr))
	b.WriteString("\n")

	b.WriteString(header.Render("Uptime: "))
	b.WriteString(value.Render(time.Since(m.startTime).Round(time.Second).String()))
	b.WriteString("\n")

	b.WriteString(header.Render("Stream: "))
	b.WriteString(value.Render(fmt.Sprintf("%s @ %d Hz", m.status.Codec, m.status.SampleRate)))
	b.WriteString("\n\n")

	b.WriteString(sectionHeader.Render(fmt.Sprintf("Sessions (%d)", len(m.status.Sessions))))
	b.WriteString("\n\n")

	if len(m.status.Sessions) == 0 {
		b.WriteString(value.Render("  none connected"))
		b.WriteString("\n")
	}
	for _, s := range m.status.Sessions {
		state := "idle"
		if s.Active {
			state = "streaming"
		}
		b.WriteString(fmt.Sprintf("  - %s (%s)\n", s.Mac, state))
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("press q to quit"))
	return b.String()
}
