package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/paneler/internal/workflow/engine"
	"github.com/kingrea/paneler/internal/workflow/resolver"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			Padding(0, 1)

	tabStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Padding(0, 1)
	activeTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true).Underline(true).Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)

	labelStyleComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleReady    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleBlocked  = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	labelStyleStale    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	labelStyleError    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	detailTextStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	warnTextStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	hintStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")).Italic(true)
)

type moduleLabel struct {
	text  string
	style lipgloss.Style
}

func labelFor(status engine.ModuleStatus) moduleLabel {
	switch {
	case status.State == resolver.NodeStateComplete:
		return moduleLabel{text: "done", style: labelStyleComplete}
	case status.State == resolver.NodeStateError:
		return moduleLabel{text: "error", style: labelStyleError}
	case status.Stale:
		return moduleLabel{text: "stale", style: labelStyleStale}
	case status.State == resolver.NodeStateReady:
		return moduleLabel{text: "ready", style: labelStyleReady}
	default:
		return moduleLabel{text: string(status.State), style: labelStyleBlocked}
	}
}
