package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"logscout/internal/annotation"
	"logscout/internal/pipeline"
)

type timelineModel struct {
	title string
	lines []string
	vp    viewport.Model
	ready bool
}

// NewTimelineModel returns a Bubble Tea model rendering a log-scout
// analysis result as a scrollable, severity-colored timeline.
func NewTimelineModel(title string, result *pipeline.Result) tea.Model {
	return &timelineModel{
		title: title,
		lines: renderTimelineLines(result),
	}
}

func (m *timelineModel) Init() tea.Cmd {
	return nil
}

func (m *timelineModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := lipgloss.Height(m.headerView())
		if !m.ready {
			m.vp = viewport.New(msg.Width, msg.Height-headerHeight)
			m.vp.SetContent(strings.Join(m.lines, "\n"))
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = msg.Height - headerHeight
		}
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"))) {
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m *timelineModel) View() string {
	if !m.ready {
		return "loading timeline..."
	}
	return m.headerView() + "\n" + m.vp.View()
}

func (m *timelineModel) headerView() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	n := len(m.lines)
	if n == 1 && m.lines[0] == "no diagnostics found" {
		n = 0
	}
	return titleStyle.Render(fmt.Sprintf("%s (%d diagnostics, ↑/↓ to scroll, q to quit)", m.title, n))
}

func renderTimelineLines(result *pipeline.Result) []string {
	if result == nil || len(result.Diagnostics) == 0 {
		return []string{"no diagnostics found"}
	}
	lines := make([]string, 0, len(result.Diagnostics))
	for _, d := range result.Diagnostics {
		style := severityStyle(d.Severity)
		tag := style.Render(fmt.Sprintf("%-7s", d.Severity.String()))
		lines = append(lines, fmt.Sprintf("%4d  %s  [%s]  %s", d.Range.Start.Line+1, tag, d.CategoryRendered, d.Template))
	}
	return lines
}

func severityStyle(sev annotation.Severity) lipgloss.Style {
	switch sev {
	case annotation.SeverityError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	case annotation.SeverityWarning:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	case annotation.SeverityInfo:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}
