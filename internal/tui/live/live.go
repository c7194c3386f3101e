package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/DR-lin-eng/download-speed-tester/internal/session"
	"github.com/DR-lin-eng/download-speed-tester/internal/tui/components"
	"github.com/DR-lin-eng/download-speed-tester/internal/tui/styles"
)

const mib = 1024 * 1024

// DoneMsg ends the live view once the session has its result.
type DoneMsg struct{}

// Model is the live download view: totals grid, throughput sparkline and a
// progress bar against the time budget.
type Model struct {
	Stats    session.Snapshot
	Progress progress.Model

	SpeedLine components.Sparkline

	Target   string
	Workers  int
	Duration time.Duration

	Width  int
	Height int
	Done   bool
}

func NewModel(target string, workers int, budget time.Duration) Model {
	sl := components.NewSparkline(
		50,
		"Throughput (MB/s)",
		styles.Active,
	)

	return Model{
		Progress:  progress.New(progress.WithDefaultGradient()),
		SpeedLine: sl,
		Target:    target,
		Workers:   workers,
		Duration:  budget,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case session.Snapshot:
		m.SpeedLine.Add(msg.Speed / mib)
		m.Stats = msg

		pct := float64(msg.Elapsed) / float64(m.Duration)
		if pct > 1.0 {
			pct = 1.0
		}
		cmd := m.Progress.SetPercent(pct)
		return m, cmd

	case DoneMsg:
		m.Done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 4

		w := msg.Width - 8
		if w < 10 {
			w = 10
		}
		m.SpeedLine.Width = w
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	s := strings.Builder{}

	s.WriteString(styles.Title.Render(fmt.Sprintf("dlspeed - %s", m.Target)))
	s.WriteString("\n\n")

	col1 := fmt.Sprintf("WORKERS: %d\nACTIVE : %d", m.Workers, m.Stats.Active)
	col2 := fmt.Sprintf("TOTAL: %.2f MB\nDONE : %d", float64(m.Stats.TotalBytes)/mib, m.Stats.Done)

	failStyle := styles.Active
	if m.Stats.Failed > 0 {
		failStyle = styles.Error
	}
	col3 := fmt.Sprintf(
		"CUR: %s\nAVG: %.2f MB/s",
		failStyle.Render(fmt.Sprintf("%.2f MB/s", m.Stats.Speed/mib)),
		m.Stats.AvgSpeed/mib,
	)

	grid := lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(col2),
		styles.Box.Render(col3),
	)
	s.WriteString(grid)
	s.WriteString("\n\n")

	s.WriteString(styles.Box.Render(m.SpeedLine.View()))
	s.WriteString("\n\n")

	s.WriteString(m.Progress.View())
	s.WriteString("\n")
	s.WriteString(styles.Subtle.Render("press q to stop early"))
	s.WriteString("\n")

	return s.String()
}
