package model

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ecrin/mdr-browse/chunks"
	"github.com/ecrin/mdr-browse/client"
	"github.com/ecrin/mdr-browse/style"
	"github.com/ecrin/mdr-browse/watch"
)

// ResultSource is the read side of the result array.
type ResultSource interface {
	Len() int
	Slice(from, to int) []chunks.Entry[client.Study]
	IndexOf(id string) int
}

// headerLines is the height of the header block above the first row. The
// block is the header sentinel reported to the window controller.
const headerLines = 3

// ResultsModel is a fixed-row-height virtual list over a result set. Only
// the rows inside the viewport are rendered; rows whose record has not been
// fetched yet render as loading rows without an identifier.
//
// ResultsModel is used through a pointer: the window controller keeps a
// reference to it as its Viewport and EventSource.
type ResultsModel struct {
	source    ResultSource
	query     string
	width     int
	height    int
	rowHeight int
	offset    int // lines scrolled past the top of the virtual content
	selected  int

	headerVisible bool
	spinner       string

	listeners *listeners
}

type listeners struct {
	next   int
	scroll map[int]func()
	resize map[int]func()
}

// NewResults returns an empty list. rowHeight is clamped to at least one line.
func NewResults(rowHeight int) *ResultsModel {
	return &ResultsModel{
		rowHeight:     max(rowHeight, 1),
		width:         80,
		height:        20,
		headerVisible: true,
		listeners: &listeners{
			scroll: make(map[int]func()),
			resize: make(map[int]func()),
		},
	}
}

// SetSource swaps the result set and scrolls back to the top.
func (m *ResultsModel) SetSource(src ResultSource, query string) {
	m.source = src
	m.query = query
	m.offset = 0
	m.selected = 0
	m.headerVisible = true
	m.notify(m.listeners.scroll)
}

// SetSize updates the list area and notifies resize listeners.
func (m *ResultsModel) SetSize(width, height int) {
	if width == m.width && height == m.height {
		return
	}
	m.width = max(width, 10)
	m.height = max(height, 1)
	m.offset = m.clampOffset(m.offset)
	m.notify(m.listeners.resize)
}

// SetHeaderVisible records whether the header block is on screen; when it is
// not, View pins a column header to the first line.
func (m *ResultsModel) SetHeaderVisible(v bool) {
	m.headerVisible = v
}

// SetSpinner sets the frame shown on loading rows.
func (m *ResultsModel) SetSpinner(frame string) {
	m.spinner = frame
}

// Refresh tells the controller the rendered rows changed under it.
func (m *ResultsModel) Refresh() {
	m.offset = m.clampOffset(m.offset)
	m.selected = m.clampIndex(m.selected)
	m.notify(m.listeners.scroll)
}

// -- watch.Viewport --

func (m *ResultsModel) Rows() []watch.Row {
	if m.source == nil {
		return nil
	}
	first, last := m.visibleIndexRange()
	if first > last {
		return nil
	}
	entries := m.source.Slice(first, last+1)
	rows := make([]watch.Row, 0, len(entries))
	for _, e := range entries {
		r := watch.Row{Top: m.rowTop(e.Index), Height: m.rowHeight}
		if e.Loaded {
			r.ID = e.Item.ID()
		}
		rows = append(rows, r)
	}
	return rows
}

func (m *ResultsModel) Header() (int, int, bool) {
	return -m.offset, headerLines, true
}

func (m *ResultsModel) ScrollOffset() int {
	return m.offset - headerLines
}

func (m *ResultsModel) Height() int {
	return m.height
}

// -- watch.EventSource --

func (m *ResultsModel) OnScroll(fn func()) func() {
	return m.listen(m.listeners.scroll, fn)
}

func (m *ResultsModel) OnResize(fn func()) func() {
	return m.listen(m.listeners.resize, fn)
}

func (m *ResultsModel) listen(set map[int]func(), fn func()) func() {
	id := m.listeners.next
	m.listeners.next++
	set[id] = fn
	return func() { delete(set, id) }
}

func (m *ResultsModel) notify(set map[int]func()) {
	for _, fn := range set {
		fn()
	}
}

// -- navigation --

// ScrollBy moves the viewport by delta lines.
func (m *ResultsModel) ScrollBy(delta int) {
	next := m.clampOffset(m.offset + delta)
	if next == m.offset {
		return
	}
	m.offset = next
	m.notify(m.listeners.scroll)
}

// MoveSelection moves the cursor by delta rows and keeps it on screen.
func (m *ResultsModel) MoveSelection(delta int) {
	m.Select(m.selected + delta)
}

// Select places the cursor on row i and scrolls it into view.
func (m *ResultsModel) Select(i int) {
	m.selected = m.clampIndex(i)
	top := headerLines + m.selected*m.rowHeight
	switch {
	case m.selected == 0:
		m.ScrollBy(-m.offset)
	case top < m.offset:
		m.ScrollBy(top - m.offset)
	case top+m.rowHeight > m.offset+m.height:
		m.ScrollBy(top + m.rowHeight - m.height - m.offset)
	}
}

// PageSize is the number of whole rows that fit in the viewport.
func (m *ResultsModel) PageSize() int {
	return max(m.height/m.rowHeight, 1)
}

// Selected returns the record under the cursor, if it has been fetched.
func (m *ResultsModel) Selected() (client.Study, bool) {
	if m.source == nil || m.source.Len() == 0 {
		return client.Study{}, false
	}
	e := m.source.Slice(m.selected, m.selected+1)
	if len(e) == 0 || !e[0].Loaded {
		return client.Study{}, false
	}
	return e[0].Item, true
}

func (m *ResultsModel) SelectedIndex() int { return m.selected }

func (m *ResultsModel) Offset() int { return m.offset }

func (m *ResultsModel) Len() int {
	if m.source == nil {
		return 0
	}
	return m.source.Len()
}

// Update handles mouse wheel scrolling. Keys are routed by the app.
func (m *ResultsModel) Update(message tea.Msg) tea.Cmd {
	if mm, ok := message.(tea.MouseMsg); ok {
		switch mm.Button {
		case tea.MouseButtonWheelUp:
			m.ScrollBy(-3)
		case tea.MouseButtonWheelDown:
			m.ScrollBy(3)
		}
	}
	return nil
}

func (m *ResultsModel) contentHeight() int {
	return headerLines + m.Len()*m.rowHeight
}

func (m *ResultsModel) clampOffset(off int) int {
	return max(0, min(off, m.contentHeight()-m.height))
}

func (m *ResultsModel) clampIndex(i int) int {
	return max(0, min(i, m.Len()-1))
}

func (m *ResultsModel) rowTop(i int) int {
	return headerLines + i*m.rowHeight - m.offset
}

// visibleIndexRange returns the rows intersecting the viewport, inclusive.
func (m *ResultsModel) visibleIndexRange() (int, int) {
	n := m.Len()
	if n == 0 {
		return 0, -1
	}
	first := max(0, (m.offset-headerLines)/m.rowHeight)
	last := (m.offset + m.height - 1 - headerLines) / m.rowHeight
	if m.offset+m.height-1 < headerLines {
		last = -1
	}
	return first, min(last, n-1)
}

// -- rendering --

// View renders exactly height lines.
func (m *ResultsModel) View() string {
	inner := m.width - 1
	lines := make([]string, 0, m.height)

	var rendered map[int][]string
	if m.source != nil {
		first, last := m.visibleIndexRange()
		if first <= last {
			rendered = make(map[int][]string, last-first+1)
			for _, e := range m.source.Slice(first, last+1) {
				rendered[e.Index] = m.renderRow(e, inner)
			}
		}
	}

	for l := m.offset; l < m.offset+m.height; l++ {
		switch {
		case l < headerLines:
			lines = append(lines, m.renderHeader(l, inner))
		case l < m.contentHeight():
			i := (l - headerLines) / m.rowHeight
			lines = append(lines, rendered[i][(l-headerLines)%m.rowHeight])
		default:
			lines = append(lines, "")
		}
	}
	if !m.headerVisible && len(lines) > 0 {
		lines[0] = style.ColumnHeader.Render(fit(fmt.Sprintf("  %-8s %s", "ID", "TITLE"), inner))
	}

	bar := style.ScrollbarRender(m.height, m.offset, m.height, m.contentHeight())
	for i := range lines {
		lines[i] = padRight(lines[i], inner) + bar[i]
	}
	return strings.Join(lines, "\n")
}

func (m *ResultsModel) renderHeader(line, width int) string {
	switch line {
	case 0:
		q := m.query
		if q == "" {
			q = "all studies"
		}
		return style.ResultsHeader.Render(fit("Studies matching: "+q, width))
	case 1:
		if m.source == nil {
			return style.RowMeta.Render("no search yet")
		}
		return style.RowMeta.Render(fit(fmt.Sprintf("%d results · %d-line rows", m.Len(), m.rowHeight), width))
	default:
		return style.Rule(width)
	}
}

func (m *ResultsModel) renderRow(e chunks.Entry[client.Study], width int) []string {
	out := make([]string, m.rowHeight)
	marker := "  "
	if e.Index == m.selected {
		marker = style.PromptChar.Render("▌ ")
	}
	if !e.Loaded {
		frame := m.spinner
		if frame == "" {
			frame = "…"
		}
		out[0] = marker + style.RowLoading.Render(fit(fmt.Sprintf("%s loading row %d", frame, e.Index+1), width-2))
		return out
	}

	s := e.Item
	id := style.RowID.Render(runewidth.FillRight(s.ID(), 8))
	title := style.RowTitle.Render(fit(s.Title(), width-2-9))
	out[0] = marker + id + " " + title
	if m.rowHeight > 1 {
		out[1] = "  " + style.RowMeta.Render(fit(studyMeta(s), width-2))
	}
	if e.Index == m.selected {
		for i := range out {
			out[i] = style.RowSelected.Render(padRight(out[i], width))
		}
	}
	return out
}

func studyMeta(s client.Study) string {
	var parts []string
	if v := categoryLabel(s.Type); v != "" {
		parts = append(parts, v)
	}
	if v := categoryLabel(s.Status); v != "" {
		parts = append(parts, v)
	}
	if s.StartYear > 0 {
		parts = append(parts, fmt.Sprintf("started %d", s.StartYear))
	}
	if len(s.Topics) > 0 {
		parts = append(parts, s.Topics[0].Value)
	}
	if len(parts) == 0 {
		return s.BriefDescription
	}
	return strings.Join(parts, " · ")
}

func categoryLabel(c client.Category) string {
	if c.Name != "" {
		return c.Name
	}
	if c.ID != 0 {
		return fmt.Sprintf("#%d", c.ID)
	}
	return ""
}

// fit truncates s to width terminal cells.
func fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

// padRight pads a rendered line to width cells, ignoring ANSI sequences.
func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}
