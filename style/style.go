package style

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Colors. SetTheme replaces them.
var (
	Primary     lipgloss.TerminalColor = lipgloss.Color("#2563EB")
	Secondary   lipgloss.TerminalColor = lipgloss.Color("#06B6D4")
	Success     lipgloss.TerminalColor = lipgloss.Color("#22C55E")
	Warning     lipgloss.TerminalColor = lipgloss.Color("#F59E0B")
	Error       lipgloss.TerminalColor = lipgloss.Color("#EF4444")
	Muted       lipgloss.TerminalColor = lipgloss.Color("#6B7280")
	Dim         lipgloss.TerminalColor = lipgloss.Color("#374151")
	Border      lipgloss.TerminalColor = lipgloss.Color("#4B5563")
	SelectionBg lipgloss.TerminalColor = lipgloss.Color("#1E293B")
)

// Styles, rebuilt by SetTheme.
var (
	Bold      lipgloss.Style
	Faint     lipgloss.Style
	ErrorText lipgloss.Style

	// Banner
	BannerTitle  lipgloss.Style
	BannerDetail lipgloss.Style

	// Prompt
	PromptChar lipgloss.Style

	// Results list
	ResultsHeader lipgloss.Style
	ColumnHeader  lipgloss.Style
	RowTitle      lipgloss.Style
	RowMeta       lipgloss.Style
	RowID         lipgloss.Style
	RowLoading    lipgloss.Style
	RowSelected   lipgloss.Style
	Scrollbar     lipgloss.Style

	// Status bar
	StatusBar    lipgloss.Style
	StatusState  lipgloss.Style
	StatusCount  lipgloss.Style
	SpinnerStyle lipgloss.Style

	// Panels
	PanelBorder lipgloss.Style
	PanelTitle  lipgloss.Style
	ErrorBorder lipgloss.Style
	DetailsCode lipgloss.Style

	Hint lipgloss.Style
)

func init() {
	rebuildStyles()
}

func rebuildStyles() {
	Bold = lipgloss.NewStyle().Bold(true)
	Faint = lipgloss.NewStyle().Foreground(Muted)
	ErrorText = lipgloss.NewStyle().Foreground(Error).Bold(true)

	BannerTitle = lipgloss.NewStyle().Foreground(Primary).Bold(true)
	BannerDetail = lipgloss.NewStyle().Foreground(Muted)

	PromptChar = lipgloss.NewStyle().Foreground(Primary).Bold(true)

	ResultsHeader = lipgloss.NewStyle().
		Foreground(Primary).
		Bold(true)
	ColumnHeader = lipgloss.NewStyle().
		Foreground(Muted).
		Bold(true).
		Underline(true)
	RowTitle = lipgloss.NewStyle().Bold(true)
	RowMeta = lipgloss.NewStyle().Foreground(Muted)
	RowID = lipgloss.NewStyle().Foreground(Secondary)
	RowLoading = lipgloss.NewStyle().Foreground(Dim).Italic(true)
	RowSelected = lipgloss.NewStyle().Background(SelectionBg)
	Scrollbar = lipgloss.NewStyle().Foreground(Border)

	StatusBar = lipgloss.NewStyle().
		Foreground(Muted).
		PaddingLeft(1)
	StatusState = lipgloss.NewStyle().Foreground(Warning)
	StatusCount = lipgloss.NewStyle().Foreground(Secondary)
	SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

	PanelBorder = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(0, 1)
	PanelTitle = lipgloss.NewStyle().
		Foreground(Primary).
		Bold(true)
	ErrorBorder = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Error).
		Padding(1, 2)
	DetailsCode = lipgloss.NewStyle().Foreground(Muted)

	Hint = lipgloss.NewStyle().Foreground(Dim)
}

// ScrollbarRender renders a vertical scrollbar of height cells for a view
// showing visible of total lines starting at offset.
func ScrollbarRender(height, offset, visible, total int) []string {
	out := make([]string, height)
	if height <= 0 {
		return out
	}
	if total <= visible || total <= 0 {
		for i := range out {
			out[i] = " "
		}
		return out
	}
	thumb := max(1, height*visible/total)
	top := min(height-thumb, height*offset/total)
	for i := range out {
		if i >= top && i < top+thumb {
			out[i] = Scrollbar.Render("█")
		} else {
			out[i] = Scrollbar.Render("│")
		}
	}
	return out
}

// Rule renders a horizontal separator of width cells.
func Rule(width int) string {
	if width <= 0 {
		return ""
	}
	return Faint.Render(strings.Repeat("─", width))
}
