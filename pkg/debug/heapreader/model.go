package heapreader

import (
	"fmt"
	"strings"

	"heapstore/pkg/debug/ui"
	"heapstore/pkg/tuple"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

type keyMap struct {
	ui.CommonKeyMap
	ui.NavigationKeyMap
}

var keys = keyMap{
	CommonKeyMap:     ui.CommonKeys,
	NavigationKeyMap: ui.NavigationKeys,
}

// chromeHeight is the number of lines View draws around the viewport.
const chromeHeight = 5

// Model browses inspected heap pages one at a time. The page is shown in a
// viewport so that pages with many tuples can be scrolled.
type Model struct {
	title    string
	td       *tuple.TupleDescription
	pages    []PageSummary
	pageSize int

	current  int
	viewport viewport.Model
	ready    bool
}

func NewModel(title string, td *tuple.TupleDescription, pages []PageSummary, pageSize int) Model {
	return Model{
		title:    title,
		td:       td,
		pages:    pages,
		pageSize: pageSize,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport = viewport.New(max(msg.Width-4, 20), max(msg.Height-chromeHeight, 3))
		m.viewport.SetContent(m.renderPage())
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.NextPage):
			return m.showPage(m.current + 1), nil
		case key.Matches(msg, keys.PrevPage):
			return m.showPage(m.current - 1), nil
		case key.Matches(msg, keys.FirstPage):
			return m.showPage(0), nil
		case key.Matches(msg, keys.LastPage):
			return m.showPage(len(m.pages) - 1), nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// showPage moves to page i, clamped to the file, and scrolls to its top.
func (m Model) showPage(i int) Model {
	i = max(0, min(i, len(m.pages)-1))
	if i == m.current {
		return m
	}
	m.current = i
	m.viewport.SetContent(m.renderPage())
	m.viewport.GotoTop()
	return m
}

func (m Model) View() string {
	if !m.ready {
		return "loading...\n"
	}

	var b strings.Builder
	b.WriteString(ui.RenderTitle("Heap file "+m.title) + "\n")
	b.WriteString(fileSummary(m.td, m.pages, m.pageSize) + "\n")
	b.WriteString(m.viewport.View() + "\n")
	b.WriteString(m.renderStatusBar() + "\n")
	b.WriteString(ui.HelpLine(keys.PrevPage, keys.NextPage, keys.Up, keys.Down, keys.Quit))
	return b.String()
}

func (m Model) renderPage() string {
	if len(m.pages) == 0 {
		return ui.MutedStyle.Render("(no pages)")
	}

	p := m.pages[m.current]
	var b strings.Builder
	b.WriteString(ui.RenderHeaderWithCount(fmt.Sprintf("Page %d", p.PageNo), p.UsedSlots) + "\n")
	b.WriteString(occupancyBar(p.Occupancy) + "\n\n")
	if len(p.Tuples) == 0 {
		b.WriteString(ui.MutedStyle.Render("(empty page)"))
		return b.String()
	}

	rows := make([][]string, 0, len(p.Tuples))
	for _, t := range p.Tuples {
		rows = append(rows, tupleRow(t, m.td.NumFields()))
	}
	b.WriteString(ui.RenderTable(tupleHeaders(m.td), rows))
	return b.String()
}

func (m Model) renderStatusBar() string {
	if len(m.pages) == 0 {
		return ui.RenderStatusBar("no pages")
	}
	p := m.pages[m.current]
	return ui.RenderStatusBar(fmt.Sprintf("page %d/%d │ %d/%d slots │ %3.0f%%",
		m.current+1, len(m.pages), p.UsedSlots, p.NumSlots, m.viewport.ScrollPercent()*100))
}
