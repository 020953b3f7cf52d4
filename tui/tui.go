// Package tui is a live dashboard for the master's node registry,
// built with charmbracelet/bubbletea and lipgloss. Grounded on the
// Thermoquad-heliostat TUI's shape (a tickMsg-driven model carrying
// width/height/quitting, styled boxes per section) but driven from a
// single poll callback rather than a serial-port reader.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// NodeRow is one remote node's state for a single frame of the
// dashboard.
type NodeRow struct {
	NodeID        uint8
	State         string
	Live          bool
	ErrorRegister byte
	RecentEMCY    []string
}

// Snapshot is everything the dashboard renders for one tick.
type Snapshot struct {
	NowMs     int64
	Interface string
	Nodes     []NodeRow
}

// DriveFunc advances the master's poll loop by one tick and returns
// the resulting snapshot. The model calls it once per tickMsg.
type DriveFunc func() Snapshot

type tickMsg time.Time

// Model is the bubbletea model for the dashboard.
type Model struct {
	drive    DriveFunc
	snapshot Snapshot
	width    int
	height   int
	quitting bool
}

// NewModel returns a dashboard model that calls drive once per tick.
func NewModel(drive DriveFunc) Model {
	return Model{drive: drive}
}

func tickCmd() tea.Cmd {
	return tea.Tick(20*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), tea.EnterAltScreen)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.snapshot = m.drive()
		return m, tickCmd()
	}
	return m, nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Background(lipgloss.Color("235")).Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	liveStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	deadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("CONMASTER"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Interface: %s | t=%dms | Press 'q' to quit", m.snapshot.Interface, m.snapshot.NowMs)))
	s.WriteString("\n\n")

	if len(m.snapshot.Nodes) == 0 {
		s.WriteString(headerStyle.Render("  (no nodes configured)"))
		s.WriteString("\n")
		return s.String()
	}

	for _, node := range m.snapshot.Nodes {
		liveRendered := deadStyle.Render("offline")
		if node.Live {
			liveRendered = liveStyle.Render("live")
		}
		body := strings.Builder{}
		body.WriteString(fmt.Sprintf("%s %s   %s %s   %s 0x%02X\n",
			labelStyle.Render(fmt.Sprintf("Node %d:", node.NodeID)), node.State,
			labelStyle.Render("liveness:"), liveRendered,
			labelStyle.Render("error-reg:"), node.ErrorRegister,
		))
		if len(node.RecentEMCY) == 0 {
			body.WriteString(headerStyle.Render("  (no EMCY history)"))
		} else {
			body.WriteString(labelStyle.Render("  recent EMCY:"))
			body.WriteString("\n")
			for _, line := range node.RecentEMCY {
				body.WriteString("    " + line + "\n")
			}
		}
		s.WriteString(boxStyle.Render(strings.TrimRight(body.String(), "\n")))
		s.WriteString("\n")
	}

	return s.String()
}

// FormatEMCY renders one EMCY history record as a single log line.
func FormatEMCY(code uint16, errorRegister byte, vendorWord uint16, receivedAtMs int64) string {
	return fmt.Sprintf("t=%dms code=0x%04X reg=0x%02X vendor=0x%04X", receivedAtMs, code, errorRegister, vendorWord)
}
