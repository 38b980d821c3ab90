package app

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ecrin/mdr-browse/client"
	"github.com/ecrin/mdr-browse/config"
	"github.com/ecrin/mdr-browse/markdown"
	"github.com/ecrin/mdr-browse/model"
	"github.com/ecrin/mdr-browse/msg"
	"github.com/ecrin/mdr-browse/style"
)

const (
	healthTimeout = 10 * time.Second
	healthRetry   = 5 * time.Second
)

// ProgramReady hands the running program to the model so background work
// can post messages.
type ProgramReady struct{ Program *tea.Program }

type retryHealth struct{}

// Options configures New.
type Options struct {
	Config  config.Config
	Version string
	// Query, when AutoSearch is set, is searched as soon as the backend
	// answers the health check.
	Query      string
	AutoSearch bool
	// MarkdownStyle is the glamour style for the details pane.
	MarkdownStyle string
	// ProfileDir receives settings.json when settings change. Empty disables
	// saving.
	ProfileDir string
	Logger     *slog.Logger
}

type Model struct {
	banner   model.BannerModel
	input    model.InputModel
	results  *model.ResultsModel
	status   model.StatusModel
	toasts   model.ToastsModel
	details  model.DetailsModel
	errPanel model.ErrorPanel
	picker   model.PickerModel
	spinner  spinner.Model

	state  State
	cfg    config.Config
	client *client.Client
	log    *slog.Logger
	keys   KeyMap
	send   func(tea.Msg)

	gen    int
	cur    *search
	queued *string // query waiting for ProgramReady

	profileDir string
	autoSearch bool
	query      string
	width      int
	height     int
}

func New(c *client.Client, opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(style.SpinnerStyle))

	m := Model{
		banner:     model.NewBanner(opts.Version, opts.Config.Index),
		input:      model.NewInput(),
		results:    model.NewResults(opts.Config.RowHeight),
		status:     model.NewStatus(),
		toasts:     model.NewToasts(),
		details:    model.NewDetails(markdown.New(opts.MarkdownStyle)),
		errPanel:   model.NewErrorPanel(),
		picker:     model.NewPicker(),
		spinner:    sp,
		state:      StateConnecting,
		cfg:        opts.Config,
		client:     c,
		log:        logger,
		keys:       DefaultKeyMap(),
		profileDir: opts.ProfileDir,
		autoSearch: opts.AutoSearch,
		query:      opts.Query,
		width:      80,
		height:     24,
	}
	m.status.SetPaging(opts.Config.Paging)
	m.input.SetValue(opts.Query)
	m.layout()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.checkHealth(), m.input.Init(), m.spinner.Tick, tickCmd(), tea.WindowSize())
}

func (m Model) Update(rawMsg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := rawMsg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = v.Width, v.Height
		m.layout()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(v)
	case tea.MouseMsg:
		if m.details.IsOpen() {
			var cmd tea.Cmd
			m.details, cmd = m.details.Update(v)
			return m, cmd
		}
		return m, m.results.Update(v)
	case ProgramReady:
		m.send = v.Program.Send
		return m.runQueued()
	case msg.HealthResult:
		return m.handleHealth(v)
	case retryHealth:
		return m, m.checkHealth()
	case msg.SubmitQuery:
		return m.submit(v.Text)
	case msg.InitialLoaded:
		return m.handleInitialLoaded(v)
	case msg.ResultsChanged:
		return m.handleResultsChanged(v)
	case msg.RunScheduled:
		v.Fn()
		m.syncStatus()
		return m, nil
	case model.PickerChoice:
		return m.applySetting(v)
	case model.PickerCancel:
		return m, nil
	case msg.TickMsg:
		m.toasts.Tick()
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(v)
		m.results.SetSpinner(m.spinner.View())
		m.status.SetSpinner(m.spinner.View())
		return m, cmd
	}

	if m.input.Focused() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(rawMsg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	if m.state == StateConnecting {
		return m.renderConnecting()
	}

	var body string
	switch {
	case m.picker.IsActive():
		body = m.picker.View()
	case m.details.IsOpen():
		body = m.details.View()
	case m.state == StateError:
		body = m.errPanel.View()
	case m.state == StateIdle:
		body = m.renderIdle()
	default:
		body = m.results.View()
	}
	body = m.overlayToasts(fitHeight(body, m.bodyHeight()))

	sections := []string{
		m.banner.View(),
		m.input.View(),
		body,
		m.status.View(),
	}
	return strings.Join(sections, "\n")
}

func (m Model) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(k, m.keys.Quit) {
		m.cur.close()
		return m, tea.Quit
	}
	switch {
	case m.state == StateConnecting:
		return m, nil
	case m.picker.IsActive():
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(k)
		return m, cmd
	case key.Matches(k, m.keys.Settings):
		m.input.Blur()
		m.openSettings()
		return m, nil
	case key.Matches(k, m.keys.TogglePaging):
		if m.cfg.Paging == string(client.PagingKeyset) {
			return m.setPaging(string(client.PagingOffset))
		}
		return m.setPaging(string(client.PagingKeyset))
	case m.input.Focused():
		return m.handleInputKey(k)
	case m.details.IsOpen():
		return m.handleDetailsKey(k)
	}

	switch {
	case key.Matches(k, m.keys.QuitKey):
		m.cur.close()
		return m, tea.Quit
	case key.Matches(k, m.keys.Search):
		return m, m.focusInput()
	case key.Matches(k, m.keys.Retry):
		return m, m.retry()
	}

	if m.state == StateError {
		if key.Matches(k, m.keys.Submit) {
			return m, m.retry()
		}
		return m, nil
	}

	switch {
	case key.Matches(k, m.keys.Up):
		m.results.MoveSelection(-1)
	case key.Matches(k, m.keys.Down):
		m.results.MoveSelection(1)
	case key.Matches(k, m.keys.PageUp):
		m.results.MoveSelection(-m.results.PageSize())
	case key.Matches(k, m.keys.PageDown):
		m.results.MoveSelection(m.results.PageSize())
	case key.Matches(k, m.keys.Home):
		m.results.Select(0)
	case key.Matches(k, m.keys.End):
		m.results.Select(m.results.Len() - 1)
	case key.Matches(k, m.keys.Details):
		m.toggleDetails()
	case key.Matches(k, m.keys.Escape):
		return m, m.focusInput()
	}
	return m, nil
}

func (m Model) handleInputKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(k, m.keys.Submit):
		return m.submit(strings.TrimSpace(m.input.Value()))
	case key.Matches(k, m.keys.Escape):
		if m.cur != nil {
			m.input.Blur()
		} else {
			m.input.Reset()
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(k)
	return m, cmd
}

func (m Model) handleDetailsKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(k, m.keys.Escape), key.Matches(k, m.keys.Details), key.Matches(k, m.keys.QuitKey):
		m.details.Close()
		return m, nil
	}
	var cmd tea.Cmd
	m.details, cmd = m.details.Update(k)
	return m, cmd
}

func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	if m.state == StateConnecting {
		return m, nil
	}
	m.input.Submit(text)
	m.input.Blur()
	if m.send == nil {
		m.queued = &text
		return m, nil
	}
	return m, m.startSearch(text)
}

func (m Model) runQueued() (tea.Model, tea.Cmd) {
	if m.queued == nil || m.state == StateConnecting {
		return m, nil
	}
	text := *m.queued
	m.queued = nil
	return m, m.startSearch(text)
}

func (m *Model) focusInput() tea.Cmd {
	m.details.Close()
	return m.input.Focus()
}

func (m *Model) toggleDetails() {
	if m.details.IsOpen() {
		m.details.Close()
		return
	}
	s, ok := m.results.Selected()
	if !ok {
		return
	}
	m.details.Show(s)
}

func (m Model) setPaging(p string) (tea.Model, tea.Cmd) {
	if p == m.cfg.Paging {
		return m, nil
	}
	m.cfg.Paging = p
	m.status.SetPaging(p)
	m.saveConfig()
	m.log.Info("paging switched", "paging", m.cfg.Paging)
	if m.cur == nil {
		return m, nil
	}
	return m, m.startSearch(m.cur.query)
}

func (m *Model) openSettings() {
	var items []model.PickerItem
	for _, name := range style.ThemeNames {
		items = append(items, model.PickerItem{Group: "theme", Value: name, Active: name == style.CurrentThemeName})
	}
	for _, p := range []client.Paging{client.PagingOffset, client.PagingKeyset} {
		items = append(items, model.PickerItem{Group: "paging", Value: string(p), Active: string(p) == m.cfg.Paging})
	}
	m.details.Close()
	m.picker.SetItems(items)
}

func (m Model) applySetting(c model.PickerChoice) (tea.Model, tea.Cmd) {
	switch c.Group {
	case "theme":
		if !style.SetTheme(c.Value) {
			return m, nil
		}
		m.cfg.Theme = c.Value
		m.spinner.Style = style.SpinnerStyle
		mdStyle := "dark"
		if !style.IsDark() {
			mdStyle = "light"
		}
		m.details.SetMarkdownStyle(mdStyle)
		m.saveConfig()
		return m, nil
	case "paging":
		return m.setPaging(c.Value)
	}
	return m, nil
}

// saveConfig persists settings; failures are reported but not fatal.
func (m *Model) saveConfig() {
	if m.profileDir == "" {
		return
	}
	if err := config.Save(m.profileDir, m.cfg); err != nil {
		m.log.Warn("save settings", "dir", m.profileDir, "err", err)
		m.toasts.AddError(err)
		return
	}
	m.toasts.Add("settings saved", model.ToastInfo)
}

func (m Model) handleHealth(h msg.HealthResult) (Model, tea.Cmd) {
	if h.Err != nil {
		m.log.Warn("health check failed", "url", m.client.BaseURL, "err", h.Err)
		m.toasts.AddError(h.Err)
		m.state = StateConnecting
		return m, tea.Tick(healthRetry, func(time.Time) tea.Msg { return retryHealth{} })
	}
	m.log.Info("connected", "cluster", h.ClusterName, "status", h.Status, "nodes", h.Nodes)
	m.banner.SetHealth(h)
	m.status.SetCluster(h.ClusterName, h.Status)
	m.status.SetHint(m.keys.browseHint())
	m.state = StateIdle

	if m.autoSearch {
		m.autoSearch = false
		text := m.query
		return m, func() tea.Msg { return msg.SubmitQuery{Text: text} }
	}
	return m, m.input.Focus()
}

func (m Model) checkHealth() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()
		health, err := c.Health(ctx)
		if err != nil {
			return msg.HealthResult{Err: err}
		}
		return msg.HealthResult{ClusterName: health.ClusterName, Status: health.Status, Nodes: health.NumberOfNodes}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return msg.TickMsg{} })
}

// layout sizes every component from the terminal size.
func (m *Model) layout() {
	m.input.SetWidth(m.width)
	m.results.SetSize(m.width, m.bodyHeight())
	m.details.SetSize(m.width, m.bodyHeight())
	m.errPanel.SetWidth(m.width)
	m.picker.SetWidth(m.width)
}

// bodyHeight is what remains after the banner, query and status lines.
func (m Model) bodyHeight() int {
	return max(m.height-3, 3)
}

func (m Model) overlayToasts(body string) string {
	if !m.toasts.HasToasts() {
		return body
	}
	lines := strings.Split(body, "\n")
	toastLines := strings.Split(m.toasts.View(m.width), "\n")
	start := max(len(lines)-len(toastLines), 0)
	for i, t := range toastLines {
		if start+i < len(lines) {
			lines[start+i] = t
		}
	}
	return strings.Join(lines, "\n")
}

// fitHeight pads or cuts s to exactly n lines.
func fitHeight(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) < n {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderIdle() string {
	return style.Hint.Render("  Type a query and press enter. An empty query lists every study.")
}

// renderConnecting shows the logo while the health check is pending.
func (m Model) renderConnecting() string {
	logo := lipgloss.NewStyle().Foreground(style.Primary).Render(model.AppLogo)
	label := style.BannerTitle.Render("  " + m.spinner.View() + " Connecting to " + m.client.BaseURL + "...")
	out := logo + "\n\n" + label
	if m.toasts.HasToasts() {
		out += "\n\n" + m.toasts.View(m.width)
	}
	return out
}
