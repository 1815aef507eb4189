// Package tui is the terminal front end for a single dashboard session.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kjstillabower/weather-dashboard/internal/dashboard"
	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// cellWidthPx approximates the pixel width of one terminal cell, so the session's
// narrow-viewport rule can be applied to a terminal measured in columns.
const cellWidthPx = 8

// fetchDoneMsg reports the end of one fetch cycle.
type fetchDoneMsg struct {
	err error
}

// Model drives one dashboard.Session from the keyboard.
type Model struct {
	ctx     context.Context
	session *dashboard.Session
	input   textinput.Model
	keys    keyMap
	help    help.Model

	width   int
	height  int
	pending int
}

// New returns a model bound to session. ctx bounds every fetch the model starts.
func New(ctx context.Context, session *dashboard.Session) Model {
	ti := textinput.New()
	ti.Placeholder = "Search city..."
	ti.CharLimit = 100
	ti.Width = 30
	ti.Focus()

	return Model{
		ctx:     ctx,
		session: session,
		input:   ti,
		keys:    defaultKeyMap(),
		help:    help.New(),
	}
}

// Init loads the default city.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.fetch(m.session.Init))
}

// fetch runs op off the update loop and reports back with fetchDoneMsg.
func (m *Model) fetch(op func(context.Context) error) tea.Cmd {
	m.pending++
	ctx := m.ctx
	return func() tea.Msg {
		return fetchDoneMsg{err: op(ctx)}
	}
}

// Update handles key presses, resizes and finished fetch cycles.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case fetchDoneMsg:
		if m.pending > 0 {
			m.pending--
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Search):
			input := m.input.Value()
			m.input.SetValue("")
			if strings.TrimSpace(input) == "" {
				return m, nil
			}
			return m, m.fetch(func(ctx context.Context) error {
				_, err := m.session.Search(ctx, input)
				return err
			})
		case key.Matches(msg, m.keys.Reload):
			city := m.session.View().ActiveCity
			return m, m.fetch(func(ctx context.Context) error {
				return m.session.Fetch(ctx, city)
			})
		case key.Matches(msg, m.keys.NextSection):
			m.moveSection(1)
			return m, nil
		case key.Matches(msg, m.keys.PrevSection):
			m.moveSection(-1)
			return m, nil
		case key.Matches(msg, m.keys.ToggleUnit):
			next := models.UnitImperial
			if m.session.View().Unit == models.UnitImperial {
				next = models.UnitMetric
			}
			_ = m.session.SetUnit(next)
			return m, nil
		case key.Matches(msg, m.keys.Sidebar):
			m.session.ToggleSidebar()
			return m, nil
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) moveSection(step int) {
	v := m.session.View()
	idx := 0
	for i, s := range dashboard.Sections {
		if s == v.ActiveSection {
			idx = i
		}
	}
	n := len(dashboard.Sections)
	next := dashboard.Sections[((idx+step)%n+n)%n]
	_ = m.session.ShowSection(string(next), m.width*cellWidthPx)
}

// View paints the session snapshot.
func (m Model) View() string {
	v := m.session.View()

	var main strings.Builder
	main.WriteString(m.input.View())
	main.WriteString("  ")
	main.WriteString(unitToggle(v.Unit))
	main.WriteString("\n\n")

	label := v.LocationLabel
	if m.pending > 0 {
		label = dashboard.LabelLoading
	}
	switch {
	case label == "":
	case v.Phase == dashboard.PhaseErrored && m.pending == 0:
		main.WriteString(errorStyle.Render(label))
	default:
		main.WriteString(titleStyle.Render(label))
	}
	main.WriteString("\n")

	switch v.ActiveSection {
	case dashboard.SectionCurrent:
		main.WriteString(renderCurrent(v))
	case dashboard.SectionHourly:
		main.WriteString(renderHourly(v))
	case dashboard.SectionDaily:
		main.WriteString(renderDaily(v))
	}
	main.WriteString("\n\n")
	main.WriteString(m.help.View(m.keys))

	body := mainStyle.Render(main.String())
	if !v.SidebarOpen {
		return body
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, renderSidebar(v), body)
}

func unitToggle(u models.Unit) string {
	c, f := "°C", "°F"
	if u == models.UnitImperial {
		f = unitActiveStyle.Render(f)
	} else {
		c = unitActiveStyle.Render(c)
	}
	return c + " | " + f
}

func renderSidebar(v dashboard.View) string {
	var b strings.Builder
	for _, tab := range v.Sections {
		if tab.Active {
			b.WriteString(navActiveStyle.Render("> " + tab.Title))
		} else {
			b.WriteString(navStyle.Render("  " + tab.Title))
		}
		b.WriteString("\n")
	}
	return sidebarStyle.Render(b.String())
}

func renderCurrent(v dashboard.View) string {
	c := v.Current
	if c == nil {
		return ""
	}
	rows := []string{
		tempStyle.Render(fmt.Sprintf("%s %d%s", glyph(c.Icon), c.Temp, v.UnitSymbol)) + "  " + c.Description,
		labelStyle.Render("Feels like ") + fmt.Sprintf("%d%s", c.FeelsLike, v.UnitSymbol),
		labelStyle.Render("Wind       ") + fmt.Sprintf("%d km/h", c.WindKmh),
		labelStyle.Render("Humidity   ") + fmt.Sprintf("%d%%", c.Humidity),
		labelStyle.Render("Visibility ") + c.VisibilityKm + " km",
	}
	return strings.Join(rows, "\n")
}

func renderHourly(v dashboard.View) string {
	cards := make([]string, 0, len(v.Hourly))
	for _, h := range v.Hourly {
		cards = append(cards, cardStyle.Render(fmt.Sprintf("%s\n%s\n%d%s", h.Time, glyph(h.Icon), h.Temp, v.UnitSymbol)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func renderDaily(v dashboard.View) string {
	cards := make([]string, 0, len(v.Daily))
	for _, d := range v.Daily {
		cards = append(cards, cardStyle.Render(fmt.Sprintf("%s\n%s %s\n%d%s / %d%s",
			d.Day, glyph(d.Icon), d.Description, d.Max, v.UnitSymbol, d.Min, v.UnitSymbol)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

// glyph maps a provider icon code such as "10d" to a terminal symbol.
func glyph(icon string) string {
	if len(icon) < 2 {
		return "?"
	}
	switch icon[:2] {
	case "01":
		return "☀"
	case "02", "03", "04":
		return "☁"
	case "09", "10":
		return "☂"
	case "11":
		return "⚡"
	case "13":
		return "❄"
	case "50":
		return "≋"
	}
	return "?"
}
