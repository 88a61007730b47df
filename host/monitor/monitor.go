// Package monitor is a terminal dashboard that polls the controller
// registers and charts the odometer speeds.
package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"hailfire/host/mcu"
)

// Source is what the dashboard polls
type Source interface {
	Scan() ([]mcu.Reading, error)
}

// Charted registers and their colors
var series = []struct {
	name  string
	color string
}{
	{"odometer1_speed", "9"},
	{"odometer2_speed", "10"},
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type readingsMsg struct {
	readings []mcu.Reading
	err      error
}

// Model is the bubbletea model of the dashboard
type Model struct {
	src      Source
	interval time.Duration
	chart    *streamlinechart.Model

	readings []mcu.Reading
	polls    int
	err      error

	width, height int
	quitting      bool
}

// New creates a dashboard polling src every interval. yRange bounds the
// speed chart.
func New(src Source, interval time.Duration, yRange float64) Model {
	chart := streamlinechart.New(80, 16, streamlinechart.WithYRange(-yRange, yRange))
	for _, s := range series {
		chart.SetDataSetStyles(s.name, runes.ThinLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color(s.color)))
	}
	return Model{src: src, interval: interval, chart: &chart}
}

// Run shows the dashboard until the user quits
func Run(src Source, interval time.Duration, yRange float64) error {
	p := tea.NewProgram(New(src, interval, yRange), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) poll() tea.Msg {
	readings, err := m.src.Scan()
	return readingsMsg{readings: readings, err: err}
}

func (m Model) schedule() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return m.poll() })
}

func (m Model) Init() tea.Cmd {
	return m.poll
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.chart.Resize(max(msg.Width-4, 40), max(msg.Height/2, 8))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case readingsMsg:
		m.polls++
		m.err = msg.err
		if msg.err == nil {
			m.readings = msg.readings
			for _, r := range msg.readings {
				for _, s := range series {
					if r.Entry.Name == s.name {
						m.chart.PushDataSet(s.name, float64(r.Value))
					}
				}
			}
			m.chart.DrawAll()
		}
		return m, m.schedule()
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return "Monitor stopped.\n"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Hailfire Monitor"))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  every %v, %d polls", m.interval, m.polls)))
	sb.WriteString("\n\n")
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	for _, s := range series {
		sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(s.color)).Bold(true).Render("━━ " + s.name))
		sb.WriteString("  ")
	}
	sb.WriteString("\n\n")

	if m.err != nil {
		sb.WriteString(errorStyle.Render("poll failed: " + m.err.Error()))
		sb.WriteString("\n")
	}
	for _, r := range m.readings {
		sb.WriteString(r.String())
		sb.WriteString("\n")
	}
	sb.WriteString(statusStyle.Render("q to quit"))
	return sb.String()
}
