package logreader

import (
	"encoding/hex"
	"fmt"
	"strings"

	"heapstore/pkg/debug/ui"
	"heapstore/pkg/log"

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

// tableHeaderLines is the number of lines RenderTable puts above the first row.
const tableHeaderLines = 2

// Model lists log records with a cursor. Enter shows the images of the
// selected record; esc goes back to the list.
type Model struct {
	title   string
	records []*log.LogRecord
	readErr error

	cursor   int
	detail   bool
	viewport viewport.Model
	ready    bool
}

// NewModel browses records. readErr is the error that ended the read, if the
// log has a corrupt tail.
func NewModel(title string, records []*log.LogRecord, readErr error) Model {
	return Model{
		title:   title,
		records: records,
		readErr: readErr,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport = viewport.New(max(msg.Width-4, 20), max(msg.Height-chromeHeight, 3))
		m.refresh()
		if !m.detail {
			m.scrollToCursor()
		}
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			return m, tea.Quit
		}
		if m.detail {
			if key.Matches(msg, keys.Back) {
				m.detail = false
				m.refresh()
				m.scrollToCursor()
				return m, nil
			}
			break
		}

		switch {
		case key.Matches(msg, keys.Up):
			m.moveCursor(m.cursor - 1)
		case key.Matches(msg, keys.Down):
			m.moveCursor(m.cursor + 1)
		case key.Matches(msg, keys.PrevPage):
			m.moveCursor(m.cursor - m.viewport.Height)
		case key.Matches(msg, keys.NextPage):
			m.moveCursor(m.cursor + m.viewport.Height)
		case key.Matches(msg, keys.FirstPage):
			m.moveCursor(0)
		case key.Matches(msg, keys.LastPage):
			m.moveCursor(len(m.records) - 1)
		case key.Matches(msg, keys.Select):
			if len(m.records) > 0 {
				m.detail = true
				m.refresh()
				m.viewport.GotoTop()
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) moveCursor(i int) {
	i = max(0, min(i, len(m.records)-1))
	if i == m.cursor {
		return
	}
	m.cursor = i
	m.refresh()
	m.scrollToCursor()
}

// scrollToCursor moves the viewport the least needed to show the cursor row.
// The table header stays in view while the first row is selected.
func (m *Model) scrollToCursor() {
	line := m.cursor + tableHeaderLines
	top := line
	if m.cursor == 0 {
		top = 0
	}
	switch {
	case top < m.viewport.YOffset:
		m.viewport.SetYOffset(top)
	case line >= m.viewport.YOffset+m.viewport.Height:
		m.viewport.SetYOffset(line - m.viewport.Height + 1)
	}
}

func (m *Model) refresh() {
	if m.detail {
		m.viewport.SetContent(m.renderDetail())
		return
	}
	m.viewport.SetContent(m.renderList())
}

func (m Model) View() string {
	if !m.ready {
		return "loading...\n"
	}

	var b strings.Builder
	b.WriteString(ui.RenderTitle("Log "+m.title) + "\n")
	b.WriteString(summaryLine(m.records) + "\n")
	b.WriteString(m.viewport.View() + "\n")
	b.WriteString(m.renderStatusBar() + "\n")
	if m.detail {
		b.WriteString(ui.HelpLine(keys.Up, keys.Down, keys.Back, keys.Quit))
	} else {
		b.WriteString(ui.HelpLine(keys.Up, keys.Down, keys.PrevPage, keys.NextPage, keys.Select, keys.Quit))
	}
	return b.String()
}

func (m Model) renderList() string {
	if len(m.records) == 0 {
		return ui.MutedStyle.Render("(empty log)")
	}

	rows := make([][]string, 0, len(m.records))
	for i, r := range m.records {
		marker := " "
		if i == m.cursor {
			marker = ui.SelectedStyle.Render("▶")
		}
		rows = append(rows, append([]string{marker}, recordRow(r)...))
	}
	return ui.RenderTable(append([]string{" "}, recordHeaders...), rows)
}

func (m Model) renderDetail() string {
	r := m.records[m.cursor]

	var b strings.Builder
	b.WriteString(ui.RenderKV("lsn", fmt.Sprint(uint64(r.LSN)), "type", colorizeType(r.Type), "tx", r.TID.String()) + "\n")
	if r.Type != log.UpdateRecord {
		return b.String()
	}

	b.WriteString(ui.RenderKV(
		"page", r.PageID.String(),
		"changed", fmt.Sprintf("%d bytes", changedBytes(r.BeforeImage, r.AfterImage)),
	) + "\n\n")
	b.WriteString(imageDump("Before image", r.BeforeImage) + "\n")
	b.WriteString(imageDump("After image", r.AfterImage))
	return b.String()
}

func (m Model) renderStatusBar() string {
	var status string
	switch {
	case len(m.records) == 0:
		status = "no records"
	case m.detail:
		status = fmt.Sprintf("record %d/%d │ %3.0f%%", m.cursor+1, len(m.records), m.viewport.ScrollPercent()*100)
	default:
		status = fmt.Sprintf("record %d/%d", m.cursor+1, len(m.records))
	}
	bar := ui.RenderStatusBar(status)
	if m.readErr != nil {
		bar += " " + ui.ErrorStyle.Render("stopped: "+m.readErr.Error())
	}
	return bar
}

func imageDump(label string, img []byte) string {
	if img == nil {
		return ui.LabelStyle.Render(label) + " " + ui.MutedStyle.Render("(none)") + "\n"
	}
	return ui.RenderHeaderWithCount(label, len(img)) + "\n" + hex.Dump(img)
}

// changedBytes counts the positions at which before and after differ. A
// missing before-image counts every byte of after.
func changedBytes(before, after []byte) int {
	n := 0
	for i := range after {
		if i >= len(before) || before[i] != after[i] {
			n++
		}
	}
	return n
}
