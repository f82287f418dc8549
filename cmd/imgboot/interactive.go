package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	okStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type inspectModel struct {
	info     *imageInfo
	all      []row
	visible  []row
	filter   textinput.Model
	selected int
}

func newInspectModel(info *imageInfo) *inspectModel {
	ti := textinput.New()
	ti.Placeholder = "filter by name"
	ti.Prompt = "/ "
	ti.Width = 40
	ti.Focus()

	m := &inspectModel{
		info:   info,
		all:    info.rows(),
		filter: ti,
	}
	m.applyFilter()
	return m
}

func (m *inspectModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "up", "ctrl+p":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil

		case "down", "ctrl+n":
			if m.selected < len(m.visible)-1 {
				m.selected++
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	before := m.filter.Value()
	m.filter, cmd = m.filter.Update(msg)
	if m.filter.Value() != before {
		m.applyFilter()
	}
	return m, cmd
}

// applyFilter keeps rows whose name contains the filter text.
func (m *inspectModel) applyFilter() {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	m.visible = m.visible[:0]
	for _, r := range m.all {
		if q == "" || strings.Contains(strings.ToLower(r.Name), q) {
			m.visible = append(m.visible, r)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = len(m.visible) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m *inspectModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Image Inspector"))
	b.WriteString(" ")
	b.WriteString(m.info.Path)
	b.WriteString("\n\n")

	p := m.info.Platform
	fmt.Fprintf(&b, "%s image, pointer %d / word %d bytes, host %d / %d\n",
		m.info.Flavor, p.PointerSize, p.WordSize, p.HostPointerSize, p.HostWordSize)
	if m.info.GuardErr != nil {
		b.WriteString(errorStyle.Render("platform guard: " + m.info.GuardErr.Error()))
	} else {
		b.WriteString(okStyle.Render("platform guard: ok"))
	}
	b.WriteString("\n\n")

	b.WriteString(m.filter.View())
	b.WriteString("\n\n")

	if len(m.visible) == 0 {
		b.WriteString(helpStyle.Render("  no matches"))
		b.WriteString("\n")
	}
	for i, r := range m.visible {
		line := fmt.Sprintf("%-6s %s %s", r.Section, nameStyle.Render(r.Name), typeStyle.Render(r.Sig))
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + fmt.Sprintf("%-6s %s %s", r.Section, r.Name, r.Sig)))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	if m.selected < len(m.visible) {
		r := m.visible[m.selected]
		b.WriteString("\n")
		b.WriteString(nameStyle.Render(r.Name))
		if r.Note != "" {
			b.WriteString(" ")
			if r.Note == "unresolved" {
				b.WriteString(errorStyle.Render(r.Note))
			} else {
				b.WriteString(helpStyle.Render(r.Note))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("type to filter • ↑/↓ select • esc quit"))
	return b.String()
}

func runInteractive(info *imageInfo, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(newInspectModel(info),
		tea.WithAltScreen(),
		tea.WithInput(in),
		tea.WithOutput(out))
	_, err := p.Run()
	return err
}
