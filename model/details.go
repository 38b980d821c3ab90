package model

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ecrin/mdr-browse/client"
	"github.com/ecrin/mdr-browse/markdown"
	"github.com/ecrin/mdr-browse/style"
)

// DetailsModel shows one study as rendered markdown in a scrollable pane.
type DetailsModel struct {
	vp       viewport.Model
	renderer *markdown.Renderer
	study    client.Study
	open     bool
	width    int
	height   int
}

func NewDetails(r *markdown.Renderer) DetailsModel {
	return DetailsModel{vp: viewport.New(80, 20), renderer: r, width: 80, height: 20}
}

// Show opens the pane on s.
func (m *DetailsModel) Show(s client.Study) {
	m.study = s
	m.open = true
	m.render()
	m.vp.GotoTop()
}

func (m *DetailsModel) Close() { m.open = false }

func (m DetailsModel) IsOpen() bool { return m.open }

func (m DetailsModel) Study() client.Study { return m.study }

// SetSize sizes the pane including its border.
func (m *DetailsModel) SetSize(width, height int) {
	m.width, m.height = width, height
	m.vp.Width = max(width-4, 10)
	m.vp.Height = max(height-3, 1)
	if m.open {
		m.render()
	}
}

// SetMarkdownStyle switches the glamour style, e.g. after a theme change.
func (m *DetailsModel) SetMarkdownStyle(name string) {
	m.renderer.SetStyle(name)
	if m.open {
		m.render()
	}
}

func (m *DetailsModel) render() {
	m.vp.SetContent(m.renderer.Render(StudyMarkdown(m.study), m.vp.Width))
}

// Update scrolls the pane.
func (m DetailsModel) Update(message tea.Msg) (DetailsModel, tea.Cmd) {
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(message)
	return m, cmd
}

func (m DetailsModel) View() string {
	title := style.PanelTitle.Render(fit(m.study.Title(), max(m.width-6, 10)))
	pos := style.Hint.Render(fmt.Sprintf(" %3.f%%  esc close", m.vp.ScrollPercent()*100))
	return style.PanelBorder.
		Width(max(m.width-2, 10)).
		Render(title + "\n" + m.vp.View() + "\n" + pos)
}

// StudyMarkdown formats the study record for the details pane.
func StudyMarkdown(s client.Study) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", markdown.Escape(s.Title()))

	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Study id | %s |\n", s.ID())
	if v := categoryLabel(s.Type); v != "" {
		fmt.Fprintf(&b, "| Type | %s |\n", markdown.Escape(v))
	}
	if v := categoryLabel(s.Status); v != "" {
		fmt.Fprintf(&b, "| Status | %s |\n", markdown.Escape(v))
	}
	if v := categoryLabel(s.GenderElig); v != "" {
		fmt.Fprintf(&b, "| Gender eligibility | %s |\n", markdown.Escape(v))
	}
	if s.StartYear > 0 {
		fmt.Fprintf(&b, "| Start year | %d |\n", s.StartYear)
	}
	if n := len(s.LinkedObjects); n > 0 {
		fmt.Fprintf(&b, "| Linked data objects | %d |\n", n)
	}

	if s.BriefDescription != "" {
		fmt.Fprintf(&b, "\n## Description\n\n%s\n", markdown.Escape(s.BriefDescription))
	}
	if s.DataSharing != "" {
		fmt.Fprintf(&b, "\n## Data sharing statement\n\n%s\n", markdown.Escape(s.DataSharing))
	}
	if len(s.Topics) > 0 {
		b.WriteString("\n## Topics\n\n")
		for _, t := range s.Topics {
			fmt.Fprintf(&b, "- %s\n", markdown.Escape(t.Value))
		}
	}
	if len(s.Identifiers) > 0 {
		b.WriteString("\n## Identifiers\n\n")
		for _, id := range s.Identifiers {
			label := categoryLabel(id.Type)
			if label == "" {
				label = "identifier"
			}
			fmt.Fprintf(&b, "- **%s**: `%s`\n", markdown.Escape(label), id.Value)
		}
	}
	return b.String()
}
