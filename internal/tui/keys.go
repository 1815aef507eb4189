package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Search      key.Binding
	NextSection key.Binding
	PrevSection key.Binding
	ToggleUnit  key.Binding
	Sidebar     key.Binding
	Reload      key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Search:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "search")),
		NextSection: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next panel")),
		PrevSection: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev panel")),
		ToggleUnit:  key.NewBinding(key.WithKeys("ctrl+u"), key.WithHelp("ctrl+u", "°C/°F")),
		Sidebar:     key.NewBinding(key.WithKeys("ctrl+b"), key.WithHelp("ctrl+b", "sidebar")),
		Reload:      key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "reload")),
		Help:        key.NewBinding(key.WithKeys("f1"), key.WithHelp("f1", "help")),
		Quit:        key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Search, k.NextSection, k.ToggleUnit, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Search, k.Reload},
		{k.NextSection, k.PrevSection, k.Sidebar},
		{k.ToggleUnit, k.Help, k.Quit},
	}
}
