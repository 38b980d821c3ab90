package model

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecrin/mdr-browse/client"
	"github.com/ecrin/mdr-browse/markdown"
	"github.com/ecrin/mdr-browse/msg"
)

func sampleStudy() client.Study {
	return client.Study{
		StudyID:          4021,
		DisplayTitle:     client.Title{Text: "Vitamin D in *severe* asthma"},
		BriefDescription: "A randomised trial.",
		Type:             client.Category{ID: 11, Name: "Interventional"},
		Status:           client.Category{ID: 25},
		StartYear:        2019,
		Topics:           []client.Topic{{Value: "asthma"}, {Value: "vitamin D"}},
		Identifiers: []client.Identifier{
			{Value: "NCT01234567", Type: client.Category{Name: "Trial registry ID"}},
			{Value: "X-1"},
		},
		LinkedObjects: []int64{1, 2, 3},
	}
}

func TestStudyMarkdown(t *testing.T) {
	md := StudyMarkdown(sampleStudy())

	assert.Contains(t, md, `# Vitamin D in \*severe\* asthma`)
	assert.Contains(t, md, "| Study id | 4021 |")
	assert.Contains(t, md, "| Type | Interventional |")
	assert.Contains(t, md, `| Status | \#25 |`)
	assert.Contains(t, md, "| Start year | 2019 |")
	assert.Contains(t, md, "| Linked data objects | 3 |")
	assert.Contains(t, md, "## Description")
	assert.NotContains(t, md, "## Data sharing statement")
	assert.Contains(t, md, "- vitamin D")
	assert.Contains(t, md, "- **Trial registry ID**: `NCT01234567`")
	assert.Contains(t, md, "- **identifier**: `X-1`")
}

func TestDetails_ShowAndClose(t *testing.T) {
	m := NewDetails(markdown.New("notty"))
	m.SetSize(70, 20)
	assert.False(t, m.IsOpen())

	m.Show(sampleStudy())
	require.True(t, m.IsOpen())
	assert.Equal(t, int64(4021), m.Study().StudyID)
	assert.Contains(t, m.View(), "Vitamin D")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Close()
	assert.False(t, m.IsOpen())
}

func TestErrorPanel(t *testing.T) {
	p := NewErrorPanel()
	assert.False(t, p.HasError())
	assert.Empty(t, p.View())

	p.SetWidth(70)
	p.SetError(&client.APIError{
		Status: 404,
		Type:   "index_not_found_exception",
		Reason: "no such index [study]",
		Body:   []byte(`{"error":{"type":"index_not_found_exception"},"status":404}`),
	})
	require.True(t, p.HasError())
	view := p.View()
	assert.Contains(t, view, "Search failed")
	assert.Contains(t, view, "no such index [study]")
	assert.Contains(t, view, `"status": 404`)

	p.SetError(nil)
	assert.False(t, p.HasError())
}

func TestPicker(t *testing.T) {
	p := NewPicker()
	p.SetWidth(60)
	p.SetItems([]PickerItem{
		{Group: "theme", Value: "dark"},
		{Group: "theme", Value: "light", Active: true},
		{Group: "paging", Value: "offset"},
	})
	require.True(t, p.IsActive())
	assert.Equal(t, 1, p.cursor)
	assert.Contains(t, p.View(), "paging")

	p, _ = p.Update(tea.KeyMsg{Type: tea.KeyDown})
	p, _ = p.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 0, p.cursor)
	p, _ = p.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 2, p.cursor)

	p, cmd := p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, PickerChoice{Group: "paging", Value: "offset"}, cmd())
	assert.False(t, p.IsActive())
	assert.Empty(t, p.View())

	p.SetItems([]PickerItem{{Group: "theme", Value: "dark"}})
	p, cmd = p.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, PickerCancel{}, cmd())
	assert.False(t, p.IsActive())
}

func TestBanner(t *testing.T) {
	b := NewBanner("1.2.0", "study")
	assert.Contains(t, b.View(), "MDR 1.2.0")
	assert.Contains(t, b.View(), "index study")

	b.SetHealth(msg.HealthResult{ClusterName: "mdr-es", Status: "yellow", Nodes: 3})
	view := b.View()
	assert.Contains(t, view, "mdr-es")
	assert.Contains(t, view, "(yellow)")
	assert.Contains(t, view, "3 nodes")
}
