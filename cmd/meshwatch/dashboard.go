package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.nanomsg.org/mangos/v3"

	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/bus"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/progress"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/sim/state"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			MarginLeft(2).
			MarginTop(1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#005F87")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666")).
				Padding(0, 2)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(0, 2).
			MarginLeft(2)

	contentStyle = lipgloss.NewStyle().
			MarginLeft(2).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type view int

const (
	linksView view = iota
	routingView
	viewCount
)

type keyMap struct {
	Tab    key.Binding
	Reload key.Binding
	Quit   key.Binding
	Up     key.Binding
	Down   key.Binding
}

var keys = keyMap{
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "links/routing"),
	),
	Reload: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "request reload"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Reload, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Tab, k.Reload}, {k.Up, k.Down}, {k.Quit}}
}

// messageSource yields bus messages. *bus.Subscriber satisfies it.
type messageSource interface {
	Next(timeout time.Duration) (string, []byte, error)
}

// reloader asks the simulator to re-publish. *bus.ReloadClient satisfies it.
type reloader interface {
	Request() error
}

type (
	progressMsg progress.View
	snapshotMsg state.Snapshot
	idleMsg     struct{}
	busErrMsg   struct{ err error }
	reloadMsg   struct{ err error }
)

const pollTimeout = 250 * time.Millisecond

// listen waits for the next bus message and turns it into a tea.Msg.
func listen(src messageSource) tea.Cmd {
	return func() tea.Msg {
		topic, body, err := src.Next(pollTimeout)
		switch {
		case errors.Is(err, mangos.ErrRecvTimeout):
			return idleMsg{}
		case err != nil:
			return busErrMsg{err: err}
		}
		return decodeMessage(topic, body)
	}
}

func decodeMessage(topic string, body []byte) tea.Msg {
	switch topic {
	case bus.TopicLoading:
		var v progress.View
		if err := json.Unmarshal(body, &v); err != nil {
			return busErrMsg{err: fmt.Errorf("decode progress: %w", err)}
		}
		return progressMsg(v)
	case bus.TopicData:
		var s state.Snapshot
		if err := json.Unmarshal(body, &s); err != nil {
			return busErrMsg{err: fmt.Errorf("decode snapshot: %w", err)}
		}
		return snapshotMsg(s)
	default:
		return idleMsg{}
	}
}

func requestReload(r reloader) tea.Cmd {
	return func() tea.Msg {
		return reloadMsg{err: r.Request()}
	}
}

type dashboard struct {
	source   messageSource
	reloader reloader

	currentView view
	links       table.Model
	routes      table.Model
	spinner     spinner.Model
	help        help.Model
	keys        keyMap
	width       int

	progress progress.View
	snapshot *state.Snapshot
	updated  time.Time

	message    string
	messageErr bool
}

func newDashboard(src messageSource, r reloader) dashboard {
	links := table.New(
		table.WithColumns([]table.Column{
			{Title: "Node", Width: 10},
			{Title: "Hears", Width: 10},
			{Title: "Quality", Width: 10},
			{Title: "Signal", Width: 8},
			{Title: "dBm", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	routes := table.New(
		table.WithColumns([]table.Column{
			{Title: "Node", Width: 10},
			{Title: "Via", Width: 12},
			{Title: "Hops", Width: 6},
			{Title: "Cost", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#005F87")).
		Bold(false)
	links.SetStyles(s)
	routes.SetStyles(s)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return dashboard{
		source:   src,
		reloader: r,
		links:    links,
		routes:   routes,
		spinner:  sp,
		help:     help.New(),
		keys:     keys,
	}
}

func (m dashboard) Init() tea.Cmd {
	return tea.Batch(listen(m.source), m.spinner.Tick)
}

func (m dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case progressMsg:
		m.progress = progress.View(msg)
		return m, listen(m.source)

	case snapshotMsg:
		snap := state.Snapshot(msg)
		m.snapshot = &snap
		m.updated = time.Now()
		m.links.SetRows(linkRows(snap.Controllers))
		m.routes.SetRows(routeRows(snap))
		return m, listen(m.source)

	case idleMsg:
		return m, listen(m.source)

	case busErrMsg:
		m.message = msg.err.Error()
		m.messageErr = true
		if errors.Is(msg.err, mangos.ErrClosed) {
			return m, nil
		}
		return m, listen(m.source)

	case reloadMsg:
		if msg.err != nil {
			m.message = "reload failed: " + msg.err.Error()
			m.messageErr = true
		} else {
			m.message = "reload requested"
			m.messageErr = false
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Tab):
			m.currentView = (m.currentView + 1) % viewCount
			return m, nil
		case key.Matches(msg, m.keys.Reload):
			if m.reloader == nil {
				m.message = "reload is not configured"
				m.messageErr = true
				return m, nil
			}
			return m, requestReload(m.reloader)
		}
	}

	var cmd tea.Cmd
	switch m.currentView {
	case linksView:
		m.links, cmd = m.links.Update(msg)
	case routingView:
		m.routes, cmd = m.routes.Update(msg)
	}
	return m, cmd
}

func (m dashboard) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Warehouse mesh"))
	s.WriteString("\n\n")
	s.WriteString(boxStyle.Render(m.renderStatus()))
	s.WriteString("\n\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n")

	if m.snapshot == nil {
		s.WriteString(contentStyle.Render(m.spinner.View() + " waiting for the first snapshot"))
	} else {
		switch m.currentView {
		case linksView:
			s.WriteString(contentStyle.Render(m.links.View()))
		case routingView:
			s.WriteString(contentStyle.Render(m.routes.View()))
		}
	}

	if m.message != "" {
		s.WriteString("\n\n")
		if m.messageErr {
			s.WriteString(errorStyle.Render("✗ " + m.message))
		} else {
			s.WriteString(successStyle.Render("✓ " + m.message))
		}
	}

	s.WriteString("\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	return s.String()
}

func (m dashboard) renderStatus() string {
	p := m.progress
	lines := []string{
		fmt.Sprintf("Build   %s %-34s", bar(p.Build.Value, 20), p.Build.Step),
		fmt.Sprintf("Signal  %s %-34s", bar(p.Signal.Value, 20), p.Signal.Step),
		fmt.Sprintf("Tick    %d / %s", p.Lifetime.Tick, endLabel(p.Lifetime.End)),
	}
	if m.snapshot != nil {
		links := 0
		for a, row := range m.snapshot.Controllers {
			for b := range row {
				if a < b {
					links++
				}
			}
		}
		root := ""
		if m.snapshot.Routing != nil {
			root = m.snapshot.Routing.Root
		}
		lines = append(lines, fmt.Sprintf("Snapshot tick %d: %d nodes, %d links, root %s (%s)",
			m.snapshot.Tick, len(m.snapshot.Controllers), links, root, m.updated.Format(time.TimeOnly)))
	}
	return strings.Join(lines, "\n")
}

func (m dashboard) renderTabs() string {
	tabs := []string{"Links", "Routing"}
	rendered := make([]string, 0, len(tabs))
	for i, tab := range tabs {
		if view(i) == m.currentView {
			rendered = append(rendered, activeTabStyle.Render(tab))
		} else {
			rendered = append(rendered, inactiveTabStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func endLabel(end int) string {
	if end <= 0 {
		return "∞"
	}
	return fmt.Sprint(end)
}

func bar(v float64, width int) string {
	filled := int(v*float64(width) + 0.5)
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// linkRows lists every link once, strongest first.
func linkRows(hears model.Hears) []table.Row {
	type link struct {
		a, b string
		sig  model.SignalResult
	}
	var all []link
	for a, row := range hears {
		for b, sig := range row {
			if a < b {
				all = append(all, link{a, b, sig})
			}
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].sig.Percent != all[j].sig.Percent {
			return all[i].sig.Percent > all[j].sig.Percent
		}
		if all[i].a != all[j].a {
			return all[i].a < all[j].a
		}
		return all[i].b < all[j].b
	})

	rows := make([]table.Row, 0, len(all))
	for _, l := range all {
		rows = append(rows, table.Row{
			l.a,
			l.b,
			string(l.sig.Quality()),
			fmt.Sprintf("%.1f%%", l.sig.Percent),
			fmt.Sprintf("%.1f", l.sig.DBm),
		})
	}
	return rows
}

// routeRows lists every node with its next hop towards the root.
func routeRows(snap state.Snapshot) []table.Row {
	names := make([]string, 0, len(snap.Controllers))
	for name := range snap.Controllers {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		if snap.Routing == nil {
			rows = append(rows, table.Row{name, "-", "-", "-"})
			continue
		}
		path, ok := snap.Routing.PathTo(name)
		if !ok {
			rows = append(rows, table.Row{name, "unreachable", "-", "-"})
			continue
		}
		via := "root"
		if len(path) > 1 {
			via = path[len(path)-2]
		}
		rows = append(rows, table.Row{
			name,
			via,
			fmt.Sprint(len(path) - 1),
			fmt.Sprintf("%.1f", snap.Routing.Dist[name]),
		})
	}
	return rows
}
