// internal/tui/app.go
//
// Interactive pipeline dashboard. It follows The Elm Architecture used by
// bubbletea: App holds all state, Update folds messages into it and View
// renders it. Pipeline runs happen on a goroutine that feeds engine progress
// events back as messages.

package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/paneler/internal/artifact"
	"github.com/kingrea/paneler/internal/module"
	"github.com/kingrea/paneler/internal/workflow"
	"github.com/kingrea/paneler/internal/workflow/engine"
)

// logTailLines is how much of the logbook the log tab shows.
const logTailLines = 200

type tab int

const (
	tabStages tab = iota
	tabLog
	tabReport
)

var tabNames = []string{"Stages", "Log", "Report"}

type statusMsg struct {
	state engine.State
	err   error
}

type progressMsg struct {
	event engine.ProgressEvent
}

type runDoneMsg struct {
	state engine.State
	err   error
}

// stageItem implements list.Item for one pipeline stage.
type stageItem struct {
	status engine.ModuleStatus
}

func (i stageItem) Title() string {
	label := labelFor(i.status)
	return fmt.Sprintf("%s  %s", label.style.Render(fmt.Sprintf("%-7s", label.text)), i.status.Name)
}

func (i stageItem) Description() string {
	if run := i.status.LastRun; run != nil {
		desc := fmt.Sprintf("last run %s: %s", run.Status, run.Message)
		if n := len(run.Warnings); n > 0 {
			desc += fmt.Sprintf(" (%d warning(s))", n)
		}
		return desc
	}
	if len(i.status.BlockedBy) > 0 {
		return "waiting for " + strings.Join(i.status.BlockedBy, ", ")
	}
	return i.status.Description
}

func (i stageItem) FilterValue() string { return i.status.ID }

// App is the dashboard model.
type App struct {
	mctx   *module.ModuleContext
	engine *engine.Engine
	def    workflow.WorkflowDefinition

	state   engine.State
	stages  list.Model
	bar     progress.Model
	spin    spinner.Model
	pager   viewport.Model
	tab     tab
	status  string
	err     error
	running bool
	current string
	done    int
	total   int
	events  chan tea.Msg
	cancel  context.CancelFunc

	width  int
	height int
}

// NewApp builds the dashboard for one workflow definition.
func NewApp(mctx *module.ModuleContext, eng *engine.Engine, def workflow.WorkflowDefinition) *App {
	stages := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	stages.Title = "Pipeline"
	stages.SetShowStatusBar(false)
	stages.SetFilteringEnabled(false)
	stages.SetShowHelp(false)

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return &App{
		mctx:   mctx,
		engine: eng,
		def:    def,
		stages: stages,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spin:   spin,
		pager:  viewport.New(80, 20),
		status: "Loading pipeline status…",
	}
}

// Init loads the current pipeline status.
func (a *App) Init() tea.Cmd {
	return a.loadStatus()
}

func (a *App) loadStatus() tea.Cmd {
	return func() tea.Msg {
		state, err := a.engine.Status(a.mctx, a.def)
		return statusMsg{state: state, err: err}
	}
}

// Update folds a message into the model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.stages.SetSize(max(20, msg.Width/2-4), max(5, msg.Height-8))
		a.pager.Width = max(20, msg.Width-6)
		a.pager.Height = max(5, msg.Height-8)
		a.bar.Width = max(10, min(60, msg.Width-30))
		return a, nil
	case statusMsg:
		if msg.err != nil {
			a.err = msg.err
			return a, nil
		}
		a.err = nil
		a.applyState(msg.state)
		a.status = fmt.Sprintf("Pipeline %s", msg.state.Status)
		if msg.state.StatusReason != "" {
			a.status += ": " + msg.state.StatusReason
		}
		return a, nil
	case progressMsg:
		ev := msg.event
		a.total = ev.Total
		if ev.Phase == engine.PhaseStarted {
			a.current = ev.Name
			a.status = fmt.Sprintf("Running %s (%d/%d)", ev.Name, ev.Index, ev.Total)
		} else {
			a.done = ev.Index
		}
		return a, a.waitForEvent()
	case runDoneMsg:
		a.running = false
		a.current = ""
		if a.cancel != nil {
			a.cancel()
			a.cancel = nil
		}
		a.err = msg.err
		a.applyState(msg.state)
		if msg.err == nil {
			a.status = fmt.Sprintf("Run %s finished: %d stage(s) executed", shortID(msg.state.RunID), len(msg.state.Executed))
		} else {
			a.status = "Run stopped"
		}
		return a, nil
	case spinner.TickMsg:
		if !a.running {
			return a, nil
		}
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd
	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if a.cancel != nil {
			a.cancel()
		}
		return a, tea.Quit
	case "tab":
		a.tab = (a.tab + 1) % tab(len(tabNames))
		a.refreshPager()
		return a, nil
	case "r":
		return a, a.startRun(false, nil)
	case "f":
		item, ok := a.stages.SelectedItem().(stageItem)
		if !ok {
			return a, nil
		}
		return a, a.startRun(true, []string{item.status.ID})
	case "s":
		if a.running {
			return a, nil
		}
		return a, a.loadStatus()
	}
	var cmd tea.Cmd
	if a.tab == tabStages {
		a.stages, cmd = a.stages.Update(msg)
	} else {
		a.pager, cmd = a.pager.Update(msg)
	}
	return a, cmd
}

// startRun launches the engine on a goroutine. Progress events and the final
// state arrive through a.events.
func (a *App) startRun(force bool, targets []string) tea.Cmd {
	if a.running {
		return nil
	}
	a.running = true
	a.err = nil
	a.done, a.total = 0, 0
	a.status = "Starting run…"
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	events := make(chan tea.Msg, 16)
	a.events = events
	req := engine.RunRequest{
		Definition: a.def,
		Targets:    targets,
		Force:      force,
		Progress: func(ev engine.ProgressEvent) {
			events <- progressMsg{event: ev}
		},
	}
	go func() {
		state, err := a.engine.Run(ctx, a.mctx, req)
		events <- runDoneMsg{state: state, err: err}
		close(events)
	}()
	return tea.Batch(a.spin.Tick, a.waitForEvent())
}

func (a *App) waitForEvent() tea.Cmd {
	events := a.events
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func (a *App) applyState(state engine.State) {
	a.state = state
	items := make([]list.Item, 0, len(state.Nodes))
	for _, node := range state.Nodes {
		items = append(items, stageItem{status: node})
	}
	a.stages.SetItems(items)
	a.refreshPager()
}

func (a *App) refreshPager() {
	switch a.tab {
	case tabLog:
		lines, total := a.mctx.Logbook.Tail(logTailLines)
		header := hintStyle.Render(fmt.Sprintf("%d of %d journal lines", len(lines), total))
		a.pager.SetContent(header + "\n" + strings.Join(lines, "\n"))
		a.pager.GotoBottom()
	case tabReport:
		_, body, err := a.mctx.Artifacts.ReadDocument(artifact.SummaryDoc)
		if err != nil {
			a.pager.SetContent(hintStyle.Render("No summary yet. Press r to run the pipeline."))
			return
		}
		a.pager.SetContent(string(body))
		a.pager.GotoTop()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
