// Client-side status view: the same bubbletea/lipgloss treatment as
// View, reporting connection state, clock offset, and buffer health
// instead of a session list.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ClientStatus is one snapshot of client state to render.
type ClientStatus struct {
	ServerAddr  string
	State       string
	Codec       string
	SampleRate  uint32
	ClockOffset time.Duration
	BufferDepth int
	SyncQuality time.Duration
}

// ClientView drives a bubbletea program fed by a channel of
// ClientStatus updates.
type ClientView struct {
	program *tea.Program
	updates chan ClientStatus
}

// NewClient creates a client status view. Call Run to start it and
// Update to push new snapshots.
func NewClient() *ClientView {
	return &ClientView{updates: make(chan ClientStatus, 10)}
}

// Update pushes a new snapshot to the view. Non-blocking: a snapshot
// is dropped if the view hasn't drained the previous one yet.
func (v *ClientView) Update(s ClientStatus) {
	select {
	case v.updates <- s:
	default:
	}
}

// Run starts the terminal program and blocks until the user quits.
func (v *ClientView) Run() error {
	m := clientModel{}
	v.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for s := range v.updates {
			v.program.Send(clientStatusMsg(s))
		}
	}()

	_, err := v.program.Run()
	return err
}

// Stop ends the program and closes the update channel.
func (v *ClientView) Stop() {
	if v.program != nil {
		v.program.Quit()
	}
	close(v.updates)
}

type clientModel struct {
	status   ClientStatus
	quitting bool
}

type clientStatusMsg ClientStatus

func (m clientModel) Init() tea.Cmd {
	return nil
}

func (m clientModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case clientStatusMsg:
		m.status = ClientStatus(msg)
	}
	return m, nil
}

func (m clientModel) View() string {
	if m.quitting {
		return "shutting down\n"
	}

	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	value := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))

	stateColor := lipgloss.Color("240")
	switch m.status.State {
	case "streaming":
		stateColor = lipgloss.Color("76")
	case "handshaking", "connecting", "reconnecting":
		stateColor = lipgloss.Color("220")
	}
	stateStyle := lipgloss.NewStyle().Bold(true).Foreground(stateColor)

	var b strings.Builder
	b.WriteString(title.Render("snapsync client"))
	b.WriteString("\n\n")

	b.WriteString(header.Render("Server: "))
	b.WriteString(value.Render(m.status.ServerAddr))
	b.WriteString("\n")

	b.WriteString(header.Render("State: "))
	b.WriteString(stateStyle.Render(m.status.State))
	b.WriteString("\n\n")

	if m.status.Codec != "" {
		b.WriteString(header.Render("Stream: "))
		b.WriteString(value.Render(fmt.Sprintf("%s @ %d Hz", m.status.Codec, m.status.SampleRate)))
		b.WriteString("\n")
	}

	b.WriteString(header.Render("Clock offset: "))
	b.WriteString(value.Render(fmt.Sprintf("%+dus", m.status.ClockOffset.Microseconds())))
	b.WriteString("\n")

	b.WriteString(header.Render("Buffer depth: "))
	b.WriteString(value.Render(fmt.Sprintf("%d chunks", m.status.BufferDepth)))
	b.WriteString("\n")

	b.WriteString(header.Render("Sync quality: "))
	b.WriteString(value.Render(fmt.Sprintf("%+dus", m.status.SyncQuality.Microseconds())))
	b.WriteString("\n")

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("press q to quit"))
	return b.String()
}
