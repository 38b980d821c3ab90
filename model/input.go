package model

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ecrin/mdr-browse/style"
)

// InputModel is the query bar with history navigation and history
// completion.
//
// History navigation:
//   - Up arrow: walk backwards through submitted queries
//   - Down arrow: walk forwards (towards the present)
//
// Completion:
//   - Tab cycles through earlier queries that start with the typed text
type InputModel struct {
	ti         textinput.Model
	history    []string
	historyIdx int // points one past the last entry when not navigating

	tabIdx     int      // current completion cursor (-1 = none)
	tabMatches []string // current completion candidates
}

// NewInput returns a ready-to-use InputModel.
func NewInput() InputModel {
	ti := textinput.New()
	ti.Placeholder = "Search study titles, empty for all studies…"
	ti.CharLimit = 512

	return InputModel{
		ti:     ti,
		tabIdx: -1,
	}
}

// SetWidth sizes the text field to the terminal width.
func (m *InputModel) SetWidth(w int) {
	m.ti.Width = max(w-4, 10)
}

// Focus gives keyboard focus to the input.
func (m *InputModel) Focus() tea.Cmd {
	return m.ti.Focus()
}

// Blur removes keyboard focus from the input.
func (m *InputModel) Blur() {
	m.ti.Blur()
}

func (m InputModel) Focused() bool {
	return m.ti.Focused()
}

// Value returns the current raw text in the input field.
func (m InputModel) Value() string {
	return m.ti.Value()
}

// SetValue replaces the text and moves the cursor to the end.
func (m *InputModel) SetValue(s string) {
	m.ti.SetValue(s)
	m.ti.CursorEnd()
}

// Reset clears the input field and resets completion state.
func (m *InputModel) Reset() {
	m.historyIdx = len(m.history)
	m.ti.SetValue("")
	m.resetTab()
}

// Submit records text in history, dropping an identical previous entry, and
// keeps it in the field so the active query stays visible.
func (m *InputModel) Submit(text string) {
	if text != "" && (len(m.history) == 0 || m.history[len(m.history)-1] != text) {
		m.history = append(m.history, text)
	}
	m.historyIdx = len(m.history)
	m.resetTab()
}

func (m *InputModel) resetTab() {
	m.tabIdx = -1
	m.tabMatches = nil
}

// Init satisfies tea.Model.
func (m InputModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update intercepts Up/Down for history and Tab for completion before
// delegating remaining keys to the underlying textinput.
func (m InputModel) Update(msg tea.Msg) (InputModel, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.Type {
		case tea.KeyUp:
			return m.navigateHistory(-1), nil
		case tea.KeyDown:
			return m.navigateHistory(+1), nil
		case tea.KeyTab:
			return m.cycleComplete(), nil
		default:
			m.resetTab()
		}
	}

	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(msg)
	return m, cmd
}

// View renders the prompt character followed by the textinput view.
func (m InputModel) View() string {
	prompt := style.PromptChar.Render("/ ")
	if !m.ti.Focused() {
		prompt = style.Faint.Render("/ ")
	}
	return prompt + m.ti.View()
}

// navigateHistory moves the history cursor by delta (-1 = older, +1 = newer).
func (m InputModel) navigateHistory(delta int) InputModel {
	if len(m.history) == 0 {
		return m
	}
	next := max(0, min(m.historyIdx+delta, len(m.history)))
	m.historyIdx = next

	if next == len(m.history) {
		m.ti.SetValue("")
	} else {
		m.ti.SetValue(m.history[next])
		m.ti.CursorEnd()
	}
	return m
}

// cycleComplete advances through history entries that extend the typed text,
// newest first.
func (m InputModel) cycleComplete() InputModel {
	if m.tabIdx == -1 || m.tabMatches == nil {
		m.tabMatches = matchHistory(m.history, m.ti.Value())
		if len(m.tabMatches) == 0 {
			return m
		}
		m.tabIdx = 0
	} else {
		m.tabIdx = (m.tabIdx + 1) % len(m.tabMatches)
	}

	m.ti.SetValue(m.tabMatches[m.tabIdx])
	m.ti.CursorEnd()
	return m
}

// matchHistory returns distinct history entries with prefix, newest first.
func matchHistory(history []string, prefix string) []string {
	prefix = strings.ToLower(prefix)
	seen := make(map[string]bool)
	var out []string
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if seen[h] || !strings.HasPrefix(strings.ToLower(h), prefix) {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}
