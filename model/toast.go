package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ecrin/mdr-browse/client"
	"github.com/ecrin/mdr-browse/style"
)

// ToastLevel classifies toast severity.
type ToastLevel int

const (
	ToastInfo ToastLevel = iota
	ToastWarning
	ToastError
)

const (
	maxToasts = 3
	toastTTL  = 5 * time.Second
)

type toast struct {
	message string
	level   ToastLevel
	expiry  time.Time
	count   int
}

// ToastsModel manages a queue of auto-dismissing notices. A notice equal to
// the newest one is folded into it with a repeat counter.
type ToastsModel struct {
	queue []toast
	now   func() time.Time
}

// NewToasts creates an empty ToastsModel.
func NewToasts() ToastsModel {
	return ToastsModel{now: time.Now}
}

// Add enqueues a notice. Oldest notices are dropped beyond maxToasts.
func (m *ToastsModel) Add(message string, level ToastLevel) {
	expiry := m.clock().Add(toastTTL)
	if n := len(m.queue); n > 0 && m.queue[n-1].message == message && m.queue[n-1].level == level {
		m.queue[n-1].count++
		m.queue[n-1].expiry = expiry
		return
	}
	m.queue = append(m.queue, toast{message: message, level: level, expiry: expiry, count: 1})
	if len(m.queue) > maxToasts {
		m.queue = m.queue[len(m.queue)-maxToasts:]
	}
}

// AddError adds an error notice using the short form of err.
func (m *ToastsModel) AddError(err error) {
	message, _ := client.DescribeError(err)
	m.Add(message, ToastError)
}

// Tick prunes expired notices. Call on every msg.TickMsg.
func (m *ToastsModel) Tick() {
	now := m.clock()
	alive := m.queue[:0]
	for _, t := range m.queue {
		if now.Before(t.expiry) {
			alive = append(alive, t)
		}
	}
	m.queue = alive
}

// HasToasts reports whether any toasts are visible.
func (m ToastsModel) HasToasts() bool {
	return len(m.queue) > 0
}

// View renders visible toasts as right-aligned colored lines.
func (m ToastsModel) View(termWidth int) string {
	if len(m.queue) == 0 {
		return ""
	}
	var lines []string
	for _, t := range m.queue {
		icon, color := toastIconColor(t.level)
		text := fmt.Sprintf(" %s %s ", icon, fit(t.message, max(termWidth-8, 10)))
		if t.count > 1 {
			text += fmt.Sprintf("×%d ", t.count)
		}
		rendered := lipgloss.NewStyle().Foreground(color).Render(text)
		pad := max(termWidth-lipgloss.Width(rendered), 0)
		lines = append(lines, strings.Repeat(" ", pad)+rendered)
	}
	return strings.Join(lines, "\n")
}

func (m ToastsModel) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

func toastIconColor(level ToastLevel) (string, lipgloss.TerminalColor) {
	switch level {
	case ToastWarning:
		return "⚠", style.Warning
	case ToastError:
		return "✘", style.Error
	default:
		return "✓", style.Success
	}
}
