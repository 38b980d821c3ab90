package model

import (
	"fmt"
	"strings"

	"github.com/ecrin/mdr-browse/chunks"
	"github.com/ecrin/mdr-browse/style"
)

// StatusModel renders the bottom status line:
//
//	1,204 studies · rows 31–46 · loaded 7–70 · fetching forward · keyset
//
// It is driven entirely by setter calls.
type StatusModel struct {
	total      int
	totalKnown bool
	first      int
	last       int
	spanStart  int
	spanEnd    int
	state      chunks.State
	paging     string
	cluster    string
	spinner    string
	hint       string
}

// NewStatus returns a zero-value StatusModel.
func NewStatus() StatusModel {
	return StatusModel{}
}

// SetCluster stores the backend name shown when idle.
func (m *StatusModel) SetCluster(name, health string) {
	m.cluster = strings.TrimSpace(name + " " + health)
}

func (m *StatusModel) SetPaging(p string) {
	m.paging = p
}

// SetTotal updates the fitting-results count.
func (m *StatusModel) SetTotal(n int, known bool) {
	m.total, m.totalKnown = n, known
}

// SetVisible stores the first and last visible row indices.
func (m *StatusModel) SetVisible(first, last int) {
	m.first, m.last = first, last
}

// SetSpan stores the materialized run around the window.
func (m *StatusModel) SetSpan(start, end int) {
	m.spanStart, m.spanEnd = start, end
}

func (m *StatusModel) SetState(s chunks.State) {
	m.state = s
}

func (m *StatusModel) SetSpinner(frame string) {
	m.spinner = frame
}

// SetHint replaces the key hint shown at the right of the line.
func (m *StatusModel) SetHint(h string) {
	m.hint = h
}

// View renders the status line.
func (m StatusModel) View() string {
	var parts []string
	switch {
	case m.totalKnown:
		parts = append(parts, style.StatusCount.Render(fmt.Sprintf("%s studies", groupThousands(m.total))))
	case m.cluster != "":
		parts = append(parts, m.cluster)
	}
	if m.last >= m.first && m.totalKnown && m.total > 0 {
		parts = append(parts, fmt.Sprintf("rows %d–%d", m.first+1, m.last+1))
	}
	if m.spanEnd > m.spanStart {
		parts = append(parts, fmt.Sprintf("loaded %d–%d", m.spanStart+1, m.spanEnd))
	}
	if m.state != chunks.StateIdle {
		label := strings.ReplaceAll(m.state.String(), "_", " ")
		if m.spinner != "" {
			label = m.spinner + " " + label
		}
		parts = append(parts, style.StatusState.Render(label))
	}
	if m.paging != "" {
		parts = append(parts, m.paging)
	}
	line := style.StatusBar.Render(strings.Join(parts, " · "))
	if m.hint != "" {
		line += style.Hint.Render("  " + m.hint)
	}
	return line
}

// groupThousands formats n with comma separators.
func groupThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return "-" + groupThousands(-n)
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
