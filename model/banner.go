package model

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/ecrin/mdr-browse/msg"
	"github.com/ecrin/mdr-browse/style"
)

// AppLogo is shown while the backend is being contacted.
const AppLogo = `
 ┌┬┐┌┬┐┬─┐
 │││ ││├┬┘
 ┴ ┴─┴┘┴└─  browse`

// BannerModel renders the one-line header:
//
//	MDR dev · mdr-cluster (green) · index study · 3 nodes
//
// It is populated from the health check result.
type BannerModel struct {
	version string
	cluster string
	health  string
	index   string
	nodes   int
}

// NewBanner returns a BannerModel for the given build version and index.
func NewBanner(version, index string) BannerModel {
	return BannerModel{version: version, index: index}
}

// SetHealth populates the banner from a HealthResult message.
func (m *BannerModel) SetHealth(h msg.HealthResult) {
	m.cluster = h.ClusterName
	m.health = h.Status
	m.nodes = h.Nodes
}

// View renders the banner line.
func (m BannerModel) View() string {
	muted := lipgloss.NewStyle().Foreground(style.Muted)
	sep := muted.Render(" · ")

	line := style.BannerTitle.Render(fmt.Sprintf("MDR %s", m.version))
	if m.cluster != "" {
		line += sep + style.BannerDetail.Render(m.cluster) + " " + m.healthBadge()
	}
	line += sep + style.BannerDetail.Render("index "+m.index)
	if m.nodes > 0 {
		line += sep + style.BannerDetail.Render(fmt.Sprintf("%d nodes", m.nodes))
	}
	return line
}

func (m BannerModel) healthBadge() string {
	color := style.Muted
	switch m.health {
	case "green":
		color = style.Success
	case "yellow":
		color = style.Warning
	case "red":
		color = style.Error
	}
	return lipgloss.NewStyle().Foreground(color).Render("(" + m.health + ")")
}
