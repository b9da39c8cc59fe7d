package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/paneler/internal/workflow/engine"
)

// View renders the dashboard.
func (a *App) View() string {
	var tabs []string
	for i, name := range tabNames {
		if tab(i) == a.tab {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, tabStyle.Render(name))
		}
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center, titleStyle.Render("⬡ PANELER"), strings.Join(tabs, ""))

	var body string
	switch a.tab {
	case tabStages:
		left := a.stages.View()
		right := boxStyle.Width(max(30, a.width/2-4)).Render(a.detail())
		body = lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	default:
		body = boxStyle.Render(a.pager.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, a.footer())
}

func (a *App) detail() string {
	item, ok := a.stages.SelectedItem().(stageItem)
	if !ok {
		return detailTextStyle.Render("No stages loaded.")
	}
	st := item.status
	label := labelFor(st)
	lines := []string{
		lipgloss.NewStyle().Bold(true).Render(st.Name),
		detailTextStyle.Render(st.Description),
		"",
		fmt.Sprintf("State: %s", label.style.Render(label.text)),
	}
	if len(st.Dependencies) > 0 {
		lines = append(lines, "Depends on: "+strings.Join(st.Dependencies, ", "))
	}
	if st.Error != "" {
		lines = append(lines, labelStyleError.Render("Error: "+st.Error))
	}
	for _, id := range sortedArtifactIDs(st.Artifacts) {
		art := st.Artifacts[id]
		line := fmt.Sprintf("  %s: %s", id, art.Status)
		if art.Reason != "" {
			line += fmt.Sprintf(" (%s)", art.Reason)
		}
		lines = append(lines, detailTextStyle.Render(line))
	}
	if run := st.LastRun; run != nil {
		lines = append(lines, "", fmt.Sprintf("Last run %s in %s", run.Status, run.Duration().Round(time.Millisecond)))
		if run.Message != "" {
			lines = append(lines, detailTextStyle.Render(run.Message))
		}
		if run.Error != "" {
			lines = append(lines, labelStyleError.Render(run.Error))
		}
		for _, w := range run.Warnings {
			lines = append(lines, warnTextStyle.Render("! "+w))
		}
	}
	return strings.Join(lines, "\n")
}

func (a *App) footer() string {
	var lines []string
	if a.running {
		pct := 0.0
		if a.total > 0 {
			pct = float64(a.done) / float64(a.total)
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", a.spin.View(), a.bar.ViewAs(pct), a.current))
	}
	status := a.status
	if a.err != nil {
		status = labelStyleError.Render(a.err.Error())
	}
	lines = append(lines, status)
	lines = append(lines, hintStyle.Render("r run · f force selected · s refresh · tab switch view · q quit"))
	return strings.Join(lines, "\n")
}

func sortedArtifactIDs(m map[string]engine.ArtifactStatus) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
