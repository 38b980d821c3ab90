package model

import (
	"strings"

	"github.com/ecrin/mdr-browse/client"
	"github.com/ecrin/mdr-browse/style"
)

// ErrorPanel replaces the results list when a search fails before its first
// chunk arrives.
type ErrorPanel struct {
	message string
	details string
	width   int
}

func NewErrorPanel() ErrorPanel {
	return ErrorPanel{width: 80}
}

// SetError fills the panel from err. A nil err clears it.
func (p *ErrorPanel) SetError(err error) {
	p.message, p.details = client.DescribeError(err)
}

func (p ErrorPanel) HasError() bool { return p.message != "" }

func (p *ErrorPanel) SetWidth(w int) { p.width = w }

func (p ErrorPanel) View() string {
	if !p.HasError() {
		return ""
	}
	inner := max(p.width-8, 20)
	var b strings.Builder
	b.WriteString(style.ErrorText.Render("Search failed"))
	b.WriteString("\n\n")
	b.WriteString(fit(p.message, inner))
	if p.details != "" {
		lines := strings.Split(p.details, "\n")
		if len(lines) > 12 {
			lines = append(lines[:12], "…")
		}
		for i, l := range lines {
			lines[i] = fit(l, inner)
		}
		b.WriteString("\n\n")
		b.WriteString(style.DetailsCode.Render(strings.Join(lines, "\n")))
	}
	b.WriteString("\n\n")
	b.WriteString(style.Hint.Render("enter retry · / edit query · ctrl+c quit"))
	return style.ErrorBorder.Width(max(p.width-2, 20)).Render(b.String())
}
