package app

import (
	"cmp"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ecrin/mdr-browse/chunks"
	"github.com/ecrin/mdr-browse/client"
	"github.com/ecrin/mdr-browse/model"
	"github.com/ecrin/mdr-browse/msg"
	"github.com/ecrin/mdr-browse/watch"
)

// programScheduler runs controller ticks on the UI goroutine: the timer
// posts a RunScheduled message and Update executes it.
type programScheduler struct {
	send func(tea.Msg)
}

func (s programScheduler) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() { s.send(msg.RunScheduled{Fn: fn}) })
	return func() { t.Stop() }
}

// search is one live result set and the controller feeding its window.
type search struct {
	gen         int
	query       string
	array       *chunks.Array[client.Study]
	watcher     *watch.Controller
	unsubscribe func()
}

func (s *search) close() {
	if s == nil {
		return
	}
	s.unsubscribe()
	s.watcher.Close()
	s.array.Close()
}

// startSearch replaces the current result set with one for text.
func (m *Model) startSearch(text string) tea.Cmd {
	m.cur.close()
	m.cur = nil
	m.gen++
	gen := m.gen

	mode, err := client.ParsePaging(m.cfg.Paging)
	if err != nil {
		m.toasts.AddError(err)
		return nil
	}

	acfg := chunks.Config[client.Study]{
		Fetch:       m.client.StudyFetcher(m.cfg.Index, client.TitleQuery(text), mode),
		StartIndex:  0,
		EndIndex:    m.cfg.WindowSize,
		IndexMargin: m.cfg.IndexMargin,
		Logger:      m.log,
	}
	if m.cfg.LocalSort {
		acfg.Less = func(a, b client.Study) int { return cmp.Compare(a.StudyID, b.StudyID) }
	}
	arr, err := chunks.New(acfg)
	if err != nil {
		m.toasts.AddError(fmt.Errorf("start search: %w", err))
		return nil
	}

	send := m.send
	unsubscribe := arr.Subscribe(func(c chunks.Change) {
		// Subscribers can run inside Update, where Send would block.
		go send(msg.ResultsChanged{Generation: gen, From: c.From, To: c.To, Len: c.Len, Err: c.Err})
	})

	m.results.SetSource(arr, text)
	results := m.results
	w, err := watch.New(watch.Config{
		Viewport:  results,
		Events:    results,
		Scheduler: programScheduler{send: send},
		Lookup:    arr,
		Target: watch.TargetFunc(func(start, end int) {
			// end is the last visible row; the array window is half-open.
			arr.SetWindow(start, end+1)
		}),
		OnChange: func(_ []string, headerVisible bool) {
			results.SetHeaderVisible(headerVisible)
		},
		RowHeight: m.cfg.RowHeight,
		Interval:  time.Duration(m.cfg.ScrollInterval),
		Logger:    m.log,
	})
	if err != nil {
		unsubscribe()
		arr.Close()
		m.toasts.AddError(fmt.Errorf("start search: %w", err))
		return nil
	}

	m.cur = &search{gen: gen, query: text, array: arr, watcher: w, unsubscribe: unsubscribe}
	m.state = StateLoading
	m.errPanel.SetError(nil)
	m.details.Close()
	m.status.SetPaging(string(mode))
	m.syncStatus()
	m.log.Info("search started", "generation", gen, "query", text, "paging", mode, "index", m.cfg.Index)
	return waitInitial(gen, arr.InitialLoad())
}

func waitInitial(gen int, l *chunks.Load) tea.Cmd {
	return func() tea.Msg {
		<-l.Done()
		return msg.InitialLoaded{Generation: gen, Err: l.Err()}
	}
}

func (m Model) handleInitialLoaded(v msg.InitialLoaded) (Model, tea.Cmd) {
	if m.cur == nil || v.Generation != m.cur.gen {
		return m, nil
	}
	if v.Err != nil {
		m.log.Warn("initial load failed", "generation", v.Generation, "err", v.Err)
		// nothing moves the window until the user retries
		m.cur.watcher.Close()
		m.state = StateError
		m.errPanel.SetError(v.Err)
		if client.IsAPIStatus(v.Err, http.StatusNotFound) {
			m.toasts.Add(fmt.Sprintf("index %q not found, see -index", m.cfg.Index), model.ToastWarning)
		}
		return m, nil
	}
	m.state = StateBrowsing
	m.results.Refresh()
	m.syncStatus()
	return m, nil
}

func (m Model) handleResultsChanged(v msg.ResultsChanged) (Model, tea.Cmd) {
	if m.cur == nil || v.Generation != m.cur.gen {
		return m, nil
	}
	if v.Err != nil {
		// No Refresh: a re-measure would request the same window and
		// re-issue the failed fetch. The next scroll or retry does that.
		m.log.Warn("fetch failed", "generation", v.Generation, "from", v.From, "to", v.To, "err", v.Err)
		if m.state == StateBrowsing {
			m.toasts.AddError(v.Err)
		}
		m.syncStatus()
		return m, nil
	}
	m.results.Refresh()
	m.syncStatus()
	return m, nil
}

// retry re-requests the current window, or restarts the search when its
// first chunk never arrived.
func (m *Model) retry() tea.Cmd {
	if m.cur == nil {
		return nil
	}
	if m.state == StateError || m.state == StateLoading {
		return m.startSearch(m.cur.query)
	}
	m.cur.array.SetWindow(m.cur.array.Window())
	m.syncStatus()
	return nil
}

// syncStatus copies the array and controller state into the status line.
func (m *Model) syncStatus() {
	if m.cur == nil {
		m.status.SetTotal(0, false)
		m.status.SetSpan(0, 0)
		m.status.SetState(chunks.StateIdle)
		return
	}
	total, known := m.cur.array.Total()
	m.status.SetTotal(total, known)
	m.status.SetSpan(m.cur.array.Span())
	m.status.SetState(m.cur.array.State())
	if v := m.cur.watcher.Last(); v.Ranged {
		m.status.SetVisible(v.Start, v.End)
	} else {
		m.status.SetVisible(0, -1)
	}
}
