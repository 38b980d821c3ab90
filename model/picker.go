package model

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ecrin/mdr-browse/style"
)

// PickerItem is a single entry in the settings picker.
type PickerItem struct {
	Group  string // setting name, e.g. "theme"
	Value  string
	Active bool
}

// PickerChoice is emitted when the user selects an item.
type PickerChoice struct {
	Group string
	Value string
}

// PickerCancel is emitted when the user presses Esc.
type PickerCancel struct{}

// PickerModel renders a vertical list of setting values grouped by setting,
// with arrow-key navigation.
type PickerModel struct {
	items    []PickerItem
	cursor   int
	active   bool
	width    int
	offset   int
	pageSize int
}

func NewPicker() PickerModel {
	return PickerModel{pageSize: 12}
}

// SetItems populates the picker, places the cursor on the first active
// item and opens it.
func (m *PickerModel) SetItems(items []PickerItem) {
	m.items = items
	m.cursor = 0
	m.offset = 0
	m.active = len(items) > 0
	for i, item := range items {
		if item.Active {
			m.cursor = i
			break
		}
	}
	m.follow()
}

func (m *PickerModel) Clear() {
	m.active = false
	m.items = nil
	m.cursor = 0
	m.offset = 0
}

func (m PickerModel) IsActive() bool { return m.active }

func (m *PickerModel) SetWidth(w int) { m.width = w }

// Update handles keyboard input when the picker is active. Up and Down wrap.
func (m PickerModel) Update(message tea.Msg) (PickerModel, tea.Cmd) {
	k, ok := message.(tea.KeyMsg)
	if !ok || !m.active {
		return m, nil
	}

	switch k.Type {
	case tea.KeyUp:
		m.cursor = (m.cursor - 1 + len(m.items)) % len(m.items)
		m.follow()
	case tea.KeyDown:
		m.cursor = (m.cursor + 1) % len(m.items)
		m.follow()
	case tea.KeyEnter:
		item := m.items[m.cursor]
		m.Clear()
		return m, func() tea.Msg { return PickerChoice{Group: item.Group, Value: item.Value} }
	case tea.KeyEsc:
		m.Clear()
		return m, func() tea.Msg { return PickerCancel{} }
	}
	return m, nil
}

// follow keeps the cursor inside the visible page.
func (m *PickerModel) follow() {
	switch {
	case m.cursor < m.offset:
		m.offset = m.cursor
	case m.cursor >= m.offset+m.pageSize:
		m.offset = m.cursor - m.pageSize + 1
	}
}

func (m PickerModel) View() string {
	if !m.active {
		return ""
	}
	muted := lipgloss.NewStyle().Foreground(style.Muted)

	var sb strings.Builder
	sb.WriteString(style.PanelTitle.Render("◈ Settings"))
	sb.WriteString(muted.Render("  ↑↓ navigate · enter apply · esc cancel"))
	sb.WriteString("\n\n")

	end := min(m.offset+m.pageSize, len(m.items))
	if m.offset > 0 {
		sb.WriteString(muted.Render("  ↑ more above") + "\n")
	}
	lastGroup := ""
	for i := m.offset; i < end; i++ {
		item := m.items[i]
		if item.Group != lastGroup {
			lastGroup = item.Group
			sb.WriteString(lipgloss.NewStyle().Foreground(style.Secondary).Bold(true).Render("  "+item.Group) + "\n")
		}
		sb.WriteString(renderPickerItem(item, i == m.cursor) + "\n")
	}
	if end < len(m.items) {
		sb.WriteString(muted.Render("  ↓ more below") + "\n")
	}

	box := style.PanelBorder
	if m.width > 0 {
		box = box.Width(max(m.width-2, 20))
	}
	return box.Render(strings.TrimRight(sb.String(), "\n"))
}

func renderPickerItem(item PickerItem, isCursor bool) string {
	cursor := "    "
	if isCursor {
		cursor = lipgloss.NewStyle().Foreground(style.Primary).Bold(true).Render("  > ")
	}
	marker := lipgloss.NewStyle().Foreground(style.Muted).Render("○")
	if item.Active {
		marker = lipgloss.NewStyle().Foreground(style.Success).Render("●")
	}
	name := item.Value
	if isCursor {
		name = style.Bold.Render(name)
	}
	return cursor + marker + " " + name
}
