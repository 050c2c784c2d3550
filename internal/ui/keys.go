package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the bindings of the page view.
type keyMap struct {
	Quit     key.Binding
	Down     key.Binding
	Up       key.Binding
	PageDown key.Binding
	PageUp   key.Binding
	Left     key.Binding
	Right    key.Binding
	First    key.Binding
	Last     key.Binding
	Search   key.Binding
	Next     key.Binding
	Prev     key.Binding
	ZoomIn   key.Binding
	ZoomOut  key.Binding
	ZoomNorm key.Binding
	RotateCW key.Binding
	RotateCC key.Binding
	Outline  key.Binding
	Links    key.Binding
	Copy     key.Binding
	Recent   key.Binding
	Debug    key.Binding
	Help     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Down:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "scroll down")),
		Up:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "scroll up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown", " ", "f"), key.WithHelp("space", "page down")),
		PageUp:   key.NewBinding(key.WithKeys("pgup", "b"), key.WithHelp("b", "page up")),
		Left:     key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "pan left")),
		Right:    key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "pan right")),
		First:    key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "first page")),
		Last:     key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "last page")),
		Search:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Next:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next match")),
		Prev:     key.NewBinding(key.WithKeys("N"), key.WithHelp("N", "previous match")),
		ZoomIn:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "zoom in")),
		ZoomOut:  key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "zoom out")),
		ZoomNorm: key.NewBinding(key.WithKeys("0"), key.WithHelp("0", "reset zoom")),
		RotateCW: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rotate")),
		RotateCC: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "rotate back")),
		Outline:  key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "outline")),
		Links:    key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "links")),
		Copy:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy page text")),
		Recent:   key.NewBinding(key.WithKeys("H"), key.WithHelp("H", "recent documents")),
		Debug:    key.NewBinding(key.WithKeys("~"), key.WithHelp("~", "debug")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Search, k.Next, k.ZoomIn, k.ZoomOut, k.Outline, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Down, k.Up, k.PageDown, k.PageUp, k.First, k.Last},
		{k.Left, k.Right, k.ZoomIn, k.ZoomOut, k.ZoomNorm, k.RotateCW, k.RotateCC},
		{k.Search, k.Next, k.Prev, k.Outline, k.Links, k.Copy},
		{k.Recent, k.Debug, k.Help, k.Quit},
	}
}

// panelKeys are active while a list panel is open. Forget only applies to
// the recent documents list.
type panelKeys struct {
	Down   key.Binding
	Up     key.Binding
	Enter  key.Binding
	Forget key.Binding
	Close  key.Binding
}

func defaultPanelKeys() panelKeys {
	return panelKeys{
		Down:   key.NewBinding(key.WithKeys("j", "down")),
		Up:     key.NewBinding(key.WithKeys("k", "up")),
		Enter:  key.NewBinding(key.WithKeys("enter")),
		Forget: key.NewBinding(key.WithKeys("x", "delete")),
		Close:  key.NewBinding(key.WithKeys("esc", "o", "l", "H", "q")),
	}
}
