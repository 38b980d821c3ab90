package markdown

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// Renderer renders markdown with glamour, keeping one term renderer per wrap
// width and style.
type Renderer struct {
	mu    sync.Mutex
	style string
	cache map[int]*glamour.TermRenderer
}

// New returns a Renderer for a glamour standard style ("dark", "light",
// "notty"). An empty style picks one from the terminal.
func New(style string) *Renderer {
	return &Renderer{style: style, cache: make(map[int]*glamour.TermRenderer)}
}

// SetStyle switches the style and drops cached renderers.
func (r *Renderer) SetStyle(style string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if style == r.style {
		return
	}
	r.style = style
	r.cache = make(map[int]*glamour.TermRenderer)
}

// Render converts markdown text to styled ANSI output wrapped at width.
// Falls back to raw text if the renderer is unavailable.
func (r *Renderer) Render(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	tr, err := r.get(max(width, 20))
	if err != nil {
		return md
	}
	out, err := tr.Render(md)
	if err != nil {
		return md
	}
	// glamour adds leading and trailing blank lines.
	return strings.Trim(out, "\n")
}

func (r *Renderer) get(width int) (*glamour.TermRenderer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tr, ok := r.cache[width]; ok {
		return tr, nil
	}
	styleOpt := glamour.WithAutoStyle()
	if r.style != "" {
		styleOpt = glamour.WithStandardStyle(r.style)
	}
	tr, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return nil, err
	}
	r.cache[width] = tr
	return tr, nil
}

// Escape backslash-escapes characters that would be read as markdown syntax
// in free text fields.
func Escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '`', '*', '_', '[', ']', '#', '<', '>', '|':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
