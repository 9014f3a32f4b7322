package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type State int

const (
	StateStart State = iota
	StateConnecting
	StateTransferring
	StateDone
	StateError
)

type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

// Messages bridge internal/transfer's StatusFunc/ProgressFunc callbacks
// into bubbletea's message loop — a program feeds them in via
// tea.Program.Send from the goroutine actually running Send/Receive.
type StatusMsg string
type ErrorMsg error
type ProgressMsg struct {
	SentBytes  int64
	TotalBytes int64
	Speed      float64       // bytes per second
	ETA        time.Duration // estimated time remaining
	Path       string        // transport path label ("LAN" or "relay"); left empty by cmd/nudge, so the view keeps its initial value
}

type Model struct {
	Role     Role
	State    State
	Filename string
	Code     string
	Spinner  spinner.Model
	Progress progress.Model
	Speed    string
	ETA      string
	Path     string
	Status   string
	Err      error
	Exit     bool
}

func NewModel(role Role, filename string, code string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorSecondary)

	p := progress.New(
		progress.WithGradient(string(ColorPrimary), string(ColorSecondary)),
		progress.WithWidth(40),
	)

	return Model{
		Role:     role,
		State:    StateStart,
		Filename: filename,
		Code:     code,
		Spinner:  s,
		Progress: p,
		Speed:    "0 MB/s",
		ETA:      "calculating...",
		Path:     "negotiating...",
	}
}

func (m Model) Init() tea.Cmd {
	return m.Spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			m.Exit = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		newProgress, cmd := m.Progress.Update(msg)
		m.Progress = newProgress.(progress.Model)
		return m, cmd

	case StatusMsg:
		m.Status = string(msg)
		if m.State == StateStart {
			m.State = StateConnecting
		}

	case ProgressMsg:
		m.State = StateTransferring
		ratio := float64(msg.SentBytes) / float64(msg.TotalBytes)

		if ratio >= 1.0 {
			m.State = StateDone
			return m, tea.Quit
		}

		cmd := m.Progress.SetPercent(ratio)

		m.Speed = fmt.Sprintf("%.2f MB/s", msg.Speed/1024/1024)
		m.ETA = msg.ETA.Round(time.Second).String()
		if msg.Path != "" {
			m.Path = msg.Path
		}

		return m, cmd

	case ErrorMsg:
		m.State = StateError
		m.Err = msg
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) View() string {
	if m.Err != nil {
		return ContainerStyle.Render(
			lipgloss.JoinVertical(lipgloss.Left,
				ErrorStyle.Render("Error Occurred"),
				fmt.Sprintf("%v", m.Err),
			),
		)
	}

	var content string

	switch m.State {
	case StateStart, StateConnecting:
		header := HandshakeHeaderStyle.Render("NUDGE")

		info := ""
		if m.Role == RoleSender {
			info = ViewCode(m.Code)
		} else {
			info = HandshakeTextStyle.Render(">> AWAITING OFFER <<\n>> SYNCHRONIZING <<")
		}

		status := HandshakeTextStyle.Render(fmt.Sprintf(">> %s", m.Status))

		content = lipgloss.JoinVertical(lipgloss.Center, header, info, m.Spinner.View(), status)

	case StateTransferring:
		header := TitleStyle.Render(fmt.Sprintf("Transferring %s", m.Filename))

		telemetry := lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.JoinVertical(lipgloss.Left,
				StatLabelStyle.Render("SPEED"),
				StatValueStyle.Render(m.Speed),
			),
			lipgloss.NewStyle().Width(4).Render(""),
			lipgloss.JoinVertical(lipgloss.Left,
				StatLabelStyle.Render("ETA"),
				StatValueStyle.Render(m.ETA),
			),
			lipgloss.NewStyle().Width(4).Render(""),
			lipgloss.JoinVertical(lipgloss.Left,
				StatLabelStyle.Render("PATH"),
				StatValueStyle.Render(m.Path),
			),
		)

		content = lipgloss.JoinVertical(lipgloss.Center, header, telemetry, " ", m.Progress.View())

	case StateDone:
		content = TitleStyle.Render("Transfer complete")
	}

	return ContainerStyle.Render(content)
}
