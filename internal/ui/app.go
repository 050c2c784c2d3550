package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	listview "github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/folio/internal/acquire"
	"github.com/abelbrown/folio/internal/document"
	"github.com/abelbrown/folio/internal/logging"
	"github.com/abelbrown/folio/internal/otel"
	"github.com/abelbrown/folio/internal/processor"
	"github.com/abelbrown/folio/internal/store"
	"github.com/abelbrown/folio/internal/textdoc"
)

type mode int

const (
	modeView mode = iota
	modeSearch
	modePassword
	modeOutline
	modeLinks
	modeRecent
)

// chromeRows is the number of terminal rows below the page strip: the
// message line and the status bar.
const chromeRows = 2

// recentLimit is how many history entries the recent panel lists.
const recentLimit = 20

// AppConfig holds the App's dependencies. Storage and loading are passed as
// command factories; the App never touches the store directly.
type AppConfig struct {
	Ctrl *document.Controller
	Ctx  context.Context

	// Open loads a location and returns a Cmd producing DocOpened.
	Open func(location string) tea.Cmd
	// LoadView returns a Cmd producing ViewRestored.
	LoadView func(digest string) tea.Cmd
	// SaveView returns a Cmd producing ViewSaved.
	SaveView func(v store.View) tea.Cmd
	// Recent returns a Cmd producing RecentLoaded.
	Recent func(limit int) tea.Cmd
	// Forget returns a Cmd producing ViewForgotten.
	Forget func(digest string) tea.Cmd
	// Copy puts text on the clipboard. Defaults to the system clipboard.
	Copy func(text string) error

	Ring      *otel.RingBuffer
	Location  string
	CanCopy   bool
	CellWidth int // display pixels per terminal column
}

type panelEntry struct {
	label    string
	page     int
	href     string
	location string
	digest   string
}

// App is the root Bubble Tea model.
// IMPORTANT: App does NOT hold *store.Store. History goes through commands.
type App struct {
	cfg   AppConfig
	ctrl  *document.Controller
	ctx   context.Context
	keys  keyMap
	pkeys panelKeys

	mode    mode
	input   textinput.Model
	pwReply chan<- PasswordReply
	spin    spinner.Model
	bar     progress.Model
	help    help.Model
	panel   listview.Model
	entries []panelEntry
	cursor  int

	doc        *acquire.Document
	opening    bool
	wantRecent bool
	searching bool
	loaded    int64
	total     int64
	panX      int

	status  string
	message string
	err     error

	width        int
	height       int
	ready        bool
	debugVisible bool
	helpVisible  bool
}

// NewApp creates an App. If cfg.Location is set, Init starts opening it.
func NewApp(cfg AppConfig) App {
	if cfg.Ctx == nil {
		cfg.Ctx = context.Background()
	}
	if cfg.CellWidth <= 0 {
		cfg.CellWidth = 8
	}
	if cfg.Copy == nil {
		cfg.Copy = clipboard.WriteAll
	}
	return App{
		cfg:     cfg,
		ctrl:    cfg.Ctrl,
		ctx:     cfg.Ctx,
		keys:    defaultKeys(),
		pkeys:   defaultPanelKeys(),
		input:   textinput.New(),
		spin:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:     progress.New(progress.WithDefaultGradient()),
		help:    help.New(),
		panel:   listview.New(0, 0),
		opening: cfg.Location != "" && cfg.Open != nil,
		total:   -1,
	}
}

// Init starts opening the configured location. Without one it loads the
// recent documents list.
func (a App) Init() tea.Cmd {
	if !a.opening {
		if a.cfg.Recent != nil {
			return a.cfg.Recent(recentLimit)
		}
		return nil
	}
	return tea.Batch(a.spin.Tick, a.cfg.Open(a.cfg.Location))
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch a.mode {
		case modeSearch:
			return a.handleSearchKey(msg)
		case modePassword:
			return a.handlePasswordKey(msg)
		case modeOutline, modeLinks, modeRecent:
			return a.handlePanelKey(msg)
		}
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.resize()
		return a, nil

	case spinner.TickMsg:
		if !a.opening {
			return a, nil
		}
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case LoadProgress:
		a.loaded, a.total = msg.Done, msg.Total
		return a, nil

	case DocOpened:
		a.opening = false
		if a.mode == modePassword {
			a.closePrompt()
		}
		if msg.Err != nil {
			if errors.Is(msg.Err, document.ErrCancelled) {
				a.message = "Document opening cancelled."
			} else {
				a.err = msg.Err
			}
			return a, nil
		}
		a.doc = msg.Doc
		a.panX = 0
		if a.doc != nil && a.cfg.LoadView != nil {
			return a, a.cfg.LoadView(a.doc.Digest)
		}
		return a, nil

	case ViewRestored:
		if msg.Err != nil {
			logging.Warn("ui: restore view failed", "err", msg.Err)
			return a, nil
		}
		if msg.Found && a.doc != nil && a.doc.Digest == msg.View.Digest {
			if msg.View.Zoom > 0 {
				a.ctrl.SetZoom(msg.View.Zoom)
			}
			a.ctrl.SetRotation(msg.View.Rotation)
			a.ctrl.GoToPage(msg.View.Page)
		}
		return a, nil

	case PageChanged, ViewChanged:
		// Redraw only.
		return a, nil

	case DocError:
		a.err = msg.Err
		return a, nil

	case SearchStatus:
		a.status = msg.Msg
		return a, nil

	case SearchDone:
		return a.searchDone(msg)

	case PasswordRequest:
		a.mode = modePassword
		a.pwReply = msg.Reply
		a.input.Reset()
		a.input.EchoMode = textinput.EchoPassword
		a.input.EchoCharacter = '•'
		a.input.Prompt = "Password: "
		if msg.Retry {
			a.input.Prompt = "Wrong password, try again: "
		}
		return a, a.input.Focus()

	case TextCopied:
		if msg.Err != nil {
			a.err = msg.Err
		} else {
			a.message = fmt.Sprintf("Copied text of page %d (%d bytes).", msg.Page+1, msg.Bytes)
		}
		return a, nil

	case ViewSaved:
		if msg.Err != nil {
			logging.Warn("ui: save view failed", "err", msg.Err)
		}
		return a, nil

	case RecentLoaded:
		return a.recentLoaded(msg)

	case ViewForgotten:
		if msg.Err != nil {
			logging.Warn("ui: forget view failed", "digest", msg.Digest, "err", msg.Err)
		}
		return a, nil
	}

	return a, nil
}

// handleKeyMsg processes keyboard input in the page view.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Clear notices on key press
	a.err = nil
	a.message = ""

	switch {
	case key.Matches(msg, a.keys.Quit):
		if save := a.saveCmd(); save != nil {
			return a, tea.Sequence(save, tea.Quit)
		}
		return a, tea.Quit

	case key.Matches(msg, a.keys.Debug):
		a.debugVisible = !a.debugVisible
		return a, nil

	case key.Matches(msg, a.keys.Help):
		a.helpVisible = !a.helpVisible
		return a, nil

	case key.Matches(msg, a.keys.Recent):
		if a.cfg.Recent == nil || a.opening {
			return a, nil
		}
		a.wantRecent = true
		return a, a.cfg.Recent(recentLimit)
	}

	if a.ctrl == nil || !a.ctrl.IsOpen() {
		return a, nil
	}
	rowPx := float64(2 * a.cfg.CellWidth)

	switch {
	case key.Matches(msg, a.keys.Down):
		a.ctrl.ScrollBy(rowPx)
	case key.Matches(msg, a.keys.Up):
		a.ctrl.ScrollBy(-rowPx)
	case key.Matches(msg, a.keys.PageDown):
		a.ctrl.ScrollBy(a.pageStep())
	case key.Matches(msg, a.keys.PageUp):
		a.ctrl.ScrollBy(-a.pageStep())
	case key.Matches(msg, a.keys.First):
		a.ctrl.GoToPage(0)
	case key.Matches(msg, a.keys.Last):
		a.ctrl.GoToPage(a.ctrl.PageCount() - 1)
	case key.Matches(msg, a.keys.Left):
		a.pan(-max(a.width/4, 1))
	case key.Matches(msg, a.keys.Right):
		a.pan(max(a.width/4, 1))

	case key.Matches(msg, a.keys.ZoomIn):
		a.ctrl.ZoomIn()
		a.pan(0)
	case key.Matches(msg, a.keys.ZoomOut):
		a.ctrl.ZoomOut()
		a.pan(0)
	case key.Matches(msg, a.keys.ZoomNorm):
		a.ctrl.ResetZoom()
		a.pan(0)
	case key.Matches(msg, a.keys.RotateCW):
		a.ctrl.RotateAll(90)
		a.pan(0)
	case key.Matches(msg, a.keys.RotateCC):
		a.ctrl.RotateAll(-90)
		a.pan(0)

	case key.Matches(msg, a.keys.Search):
		a.mode = modeSearch
		a.input.Reset()
		a.input.EchoMode = textinput.EchoNormal
		a.input.Prompt = "/"
		a.input.SetValue(a.ctrl.Needle())
		a.input.CursorEnd()
		return a, a.input.Focus()
	case key.Matches(msg, a.keys.Next):
		return a.startSearch(1, 1)
	case key.Matches(msg, a.keys.Prev):
		return a.startSearch(-1, 1)

	case key.Matches(msg, a.keys.Outline):
		a.entries = outlineEntries(a.ctrl.Outline(), 0, nil)
		if len(a.entries) == 0 {
			a.message = "This document has no outline."
			return a, nil
		}
		a.openPanel(modeOutline)
	case key.Matches(msg, a.keys.Links):
		a.entries = a.linkEntries()
		if len(a.entries) == 0 {
			a.message = "No links on this page."
			return a, nil
		}
		a.openPanel(modeLinks)

	case key.Matches(msg, a.keys.Copy):
		if !a.cfg.CanCopy {
			a.message = "Copying text is not permitted."
			return a, nil
		}
		return a, a.copyCmd(a.ctrl.CurrentPage())
	}
	return a, nil
}

func (a App) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		needle := a.input.Value()
		a.closePrompt()
		a.ctrl.SetSearchNeedle(needle)
		if needle == "" {
			a.status = ""
			return a, nil
		}
		if a.searching {
			// The running scan stops with "needle changed" and is reissued.
			return a, nil
		}
		return a.startSearch(1, 0)
	case tea.KeyEsc, tea.KeyCtrlC:
		a.closePrompt()
		return a, nil
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a App) handlePasswordKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		a.answerPassword(PasswordReply{Password: a.input.Value(), OK: true})
		return a, nil
	case tea.KeyEsc, tea.KeyCtrlC:
		a.answerPassword(PasswordReply{})
		return a, nil
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) answerPassword(r PasswordReply) {
	if a.pwReply != nil {
		a.pwReply <- r
		a.pwReply = nil
	}
	a.closePrompt()
}

func (a *App) closePrompt() {
	a.mode = modeView
	a.input.Blur()
	a.input.Reset()
	a.input.EchoMode = textinput.EchoNormal
}

func (a App) handlePanelKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.pkeys.Down):
		if a.cursor < len(a.entries)-1 {
			a.cursor++
		}
	case key.Matches(msg, a.pkeys.Up):
		if a.cursor > 0 {
			a.cursor--
		}
	case key.Matches(msg, a.pkeys.Enter):
		e := a.entries[a.cursor]
		kind := a.mode
		a.mode = modeView
		switch kind {
		case modeRecent:
			return a.openRecent(e.location)
		case modeOutline:
			if e.page >= 0 {
				a.ctrl.GoToPage(e.page)
			}
			return a, nil
		}
		ext, err := a.ctrl.FollowLink(e.href)
		switch {
		case err != nil:
			a.err = err
		case ext != "":
			a.message = "External link: " + ext
		}
		return a, nil
	case key.Matches(msg, a.pkeys.Forget):
		if a.mode != modeRecent {
			return a, nil
		}
		return a.forgetRecent()
	case key.Matches(msg, a.pkeys.Close):
		a.mode = modeView
		return a, nil
	}
	a.syncPanel()
	return a, nil
}

// recentLoaded shows the history panel when the user asked for it, or on
// the start screen when nothing is open.
func (a App) recentLoaded(msg RecentLoaded) (tea.Model, tea.Cmd) {
	asked := a.wantRecent
	a.wantRecent = false
	if msg.Err != nil {
		logging.Warn("ui: load recent failed", "err", msg.Err)
		if asked {
			a.err = msg.Err
		}
		return a, nil
	}
	idle := !a.opening && a.mode == modeView && (a.ctrl == nil || !a.ctrl.IsOpen())
	if !asked && !idle {
		return a, nil
	}
	if len(msg.Views) == 0 {
		if asked {
			a.message = "No recent documents."
		}
		return a, nil
	}
	a.entries = recentEntries(msg.Views)
	a.openPanel(modeRecent)
	return a, nil
}

func recentEntries(views []store.View) []panelEntry {
	out := make([]panelEntry, 0, len(views))
	for _, v := range views {
		name := v.Name
		if name == "" {
			name = v.Location
		}
		out = append(out, panelEntry{
			label:    fmt.Sprintf("%s  (page %d)  %s", name, v.Page+1, v.Location),
			page:     v.Page,
			location: v.Location,
			digest:   v.Digest,
		})
	}
	return out
}

// openRecent saves the current view, then opens location.
func (a App) openRecent(location string) (tea.Model, tea.Cmd) {
	if a.cfg.Open == nil || location == "" {
		return a, nil
	}
	save := a.saveCmd()
	a.doc = nil
	a.opening = true
	a.loaded, a.total = 0, -1
	a.cfg.Location = location
	open := a.cfg.Open(location)
	if save != nil {
		open = tea.Sequence(save, open)
	}
	return a, tea.Batch(a.spin.Tick, open)
}

// forgetRecent removes the selected entry from history.
func (a App) forgetRecent() (tea.Model, tea.Cmd) {
	e := a.entries[a.cursor]
	a.entries = append(a.entries[:a.cursor:a.cursor], a.entries[a.cursor+1:]...)
	if a.cursor >= len(a.entries) {
		a.cursor = max(len(a.entries)-1, 0)
	}
	if len(a.entries) == 0 {
		a.mode = modeView
	}
	a.syncPanel()
	if a.cfg.Forget == nil {
		return a, nil
	}
	return a, a.cfg.Forget(e.digest)
}

func (a *App) openPanel(m mode) {
	a.mode = m
	a.cursor = 0
	a.panel.SetYOffset(0)
	a.syncPanel()
}

// syncPanel redraws the entry list and keeps the cursor in view.
func (a *App) syncPanel() {
	lines := make([]string, len(a.entries))
	w := max(a.panel.Width-2, 10)
	for i, e := range a.entries {
		label := truncateRunes(e.label, w)
		if i == a.cursor {
			lines[i] = SelectedItem.Render(label)
		} else {
			lines[i] = NormalItem.Render(label)
		}
	}
	a.panel.SetContent(strings.Join(lines, "\n"))
	if a.cursor < a.panel.YOffset {
		a.panel.SetYOffset(a.cursor)
	} else if h := a.panel.Height; h > 0 && a.cursor >= a.panel.YOffset+h {
		a.panel.SetYOffset(a.cursor - h + 1)
	}
}

func outlineEntries(items []processor.OutlineItem, depth int, out []panelEntry) []panelEntry {
	for _, it := range items {
		label := strings.Repeat("  ", depth) + it.Title
		if it.Page >= 0 {
			label += fmt.Sprintf("  (%d)", it.Page+1)
		}
		out = append(out, panelEntry{label: label, page: it.Page})
		out = outlineEntries(it.Children, depth+1, out)
	}
	return out
}

func (a App) linkEntries() []panelEntry {
	pages := a.ctrl.Pages()
	n := a.ctrl.CurrentPage()
	if n < 0 || n >= len(pages) {
		return nil
	}
	var out []panelEntry
	for _, l := range pages[n].Links() {
		out = append(out, panelEntry{label: l.Href, page: -1, href: l.Href})
	}
	return out
}

// startSearch scans from the current page. Only one scan runs at a time.
func (a App) startSearch(direction, step int) (tea.Model, tea.Cmd) {
	if a.searching || a.ctrl.Needle() == "" {
		return a, nil
	}
	a.searching = true
	ctrl, ctx := a.ctrl, a.ctx
	return a, func() tea.Msg {
		r, err := ctrl.RunSearch(ctx, direction, step)
		return SearchDone{Status: r.Status, Page: r.Page, Hits: r.Hits, Err: err}
	}
}

func (a App) searchDone(msg SearchDone) (tea.Model, tea.Cmd) {
	a.searching = false
	if msg.Err != nil {
		if !errors.Is(msg.Err, context.Canceled) {
			a.err = msg.Err
		}
		return a, nil
	}
	switch msg.Status {
	case document.StatusFound:
		a.status = fmt.Sprintf("%d hits on page %d.", msg.Hits, msg.Page+1)
	case document.StatusNoMoreHits:
		a.status = "No more search hits."
	case document.StatusEmptyNeedle:
		a.status = ""
	case document.StatusNeedleChanged:
		return a.startSearch(1, 0)
	}
	return a, nil
}

func (a App) copyCmd(n int) tea.Cmd {
	ctrl, ctx, write := a.ctrl, a.ctx, a.cfg.Copy
	return func() tea.Msg {
		text, err := ctrl.PageText(ctx, n)
		if err == nil {
			err = write(text)
		}
		return TextCopied{Page: n, Bytes: len(text), Err: err}
	}
}

// saveCmd records where the user is in the current document.
func (a App) saveCmd() tea.Cmd {
	if a.doc == nil || a.cfg.SaveView == nil || !a.ctrl.IsOpen() {
		return nil
	}
	return a.cfg.SaveView(store.View{
		Digest:   a.doc.Digest,
		Name:     a.doc.Name,
		Location: a.doc.Location,
		Page:     a.ctrl.CurrentPage(),
		Zoom:     a.ctrl.Zoom(),
		Rotation: a.ctrl.Rotation(),
	})
}

func (a *App) contentRows() int {
	return max(a.height-chromeRows, 1)
}

func (a *App) resize() {
	cw := float64(a.cfg.CellWidth)
	if a.ctrl != nil {
		a.ctrl.SetViewport(float64(a.width)*cw, float64(a.contentRows()*2)*cw)
	}
	a.bar.Width = max(min(a.width-8, 60), 10)
	a.help.Width = a.width
	a.panel.Width = max(min(a.width-4, 72), 10)
	a.panel.Height = max(a.contentRows()-3, 1)
	a.syncPanel()
}

func (a App) pageStep() float64 {
	return a.ctrl.Layout().Window.Height * 0.9
}

// pan shifts the strip horizontally, limited to the widest page overhang.
func (a *App) pan(delta int) {
	widest := 0
	for _, p := range a.ctrl.Pages() {
		w, _ := p.DisplaySize()
		widest = max(widest, w/a.cfg.CellWidth)
	}
	limit := max((widest-a.width+1)/2, 0)
	a.panX = min(max(a.panX+delta, -limit), limit)
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}
	if a.debugVisible {
		return debugOverlay(a.cfg.Ring, a.width, a.height-1) + "\n" + debugStatusBar(a.width)
	}

	var body string
	switch {
	case a.helpVisible:
		h := a.help
		h.ShowAll = true
		body = HelpStyle.Render(h.View(a.keys))
	case a.mode == modeOutline || a.mode == modeLinks || a.mode == modeRecent:
		title := "Outline"
		switch a.mode {
		case modeLinks:
			title = "Links"
		case modeRecent:
			title = "Recent documents"
		}
		body = Panel.Render(PanelTitle.Render(title) + "\n" + a.panel.View())
	case a.opening:
		body = a.openingView()
	case a.ctrl == nil || !a.ctrl.IsOpen():
		if a.cfg.Recent != nil {
			body = MessageStyle.Render("No document open. Press H for recent documents.")
		}
	default:
		// The strip is already exactly contentRows lines of full width.
		return a.strip() + "\n" + a.messageLine() + "\n" + a.statusBar()
	}
	body = lipgloss.NewStyle().Width(a.width).Height(a.contentRows()).MaxHeight(a.contentRows()).Render(body)

	return body + "\n" + a.messageLine() + "\n" + a.statusBar()
}

func (a App) strip() string {
	l := a.ctrl.Layout()
	pages := a.ctrl.Pages()
	views := make([]pageView, len(pages))
	for i, p := range pages {
		views[i] = p
	}
	canvas := paint(strip{
		bounds: l.Bounds,
		win:    l.Window,
		pages:  views,
		cellPx: float64(a.cfg.CellWidth),
		panX:   a.panX,
	}, a.width, a.contentRows())
	return halfBlocks(canvas)
}

func (a App) openingView() string {
	name := a.cfg.Location
	if a.doc != nil {
		name = a.doc.Name
	}
	lines := []string{a.spin.View() + " Opening " + name}
	if a.total > 0 {
		lines = append(lines, a.bar.ViewAs(float64(a.loaded)/float64(a.total)))
	} else if a.loaded > 0 {
		lines = append(lines, fmt.Sprintf("%d bytes", a.loaded))
	}
	return MessageStyle.Render(strings.Join(lines, "\n"))
}

func (a App) messageLine() string {
	switch {
	case a.mode == modeSearch || a.mode == modePassword:
		return InputBar.Width(a.width).MaxHeight(1).Render(a.input.View())
	case a.err != nil:
		return ErrorStyle.MaxWidth(a.width).Render("Error: " + a.err.Error())
	case a.message != "":
		return MessageStyle.MaxWidth(a.width).Render(a.message)
	}
	return SearchStatusStyle.MaxWidth(a.width).Render(a.status)
}

func (a App) statusBar() string {
	var parts []string
	if a.ctrl != nil && a.ctrl.IsOpen() {
		parts = append(parts,
			StatusBarKey.Render(truncateRunes(a.ctrl.Title(), 30)),
			StatusBarText.Render(fmt.Sprintf("%d/%d", a.ctrl.CurrentPage()+1, a.ctrl.PageCount())),
			StatusBarText.Render(fmt.Sprintf("%d%%", a.ctrl.Zoom()*100/document.DefaultZoom)),
		)
		if r := a.ctrl.Rotation(); r != 0 {
			parts = append(parts, StatusBarText.Render(fmt.Sprintf("%d°", r)))
		}
		if n := a.ctrl.Needle(); n != "" {
			parts = append(parts, StatusBarText.Render("/"+truncateRunes(n, 20)))
		}
	}
	left := strings.Join(parts, "  ")
	h := a.help
	h.Width = max(a.width-lipgloss.Width(left)-6, 1)
	return StatusBar.Width(a.width).MaxHeight(1).Render(left + "  " + h.View(a.keys))
}

// Mode reports the input mode name (for testing).
func (a App) Mode() string {
	return [...]string{"view", "search", "password", "outline", "links", "recent"}[a.mode]
}

// Status returns the search status line (for testing).
func (a App) Status() string { return a.status }

// Message returns the transient notice (for testing).
func (a App) Message() string { return a.message }

// Err returns the displayed error (for testing).
func (a App) Err() error { return a.err }

// Opener returns an AppConfig.Open that loads a location with f and opens
// it in ctrl, prompting for passwords through b.
func Opener(ctx context.Context, f *acquire.Fetcher, ctrl *document.Controller, b *Bridge) func(location string) tea.Cmd {
	return func(location string) tea.Cmd {
		return func() tea.Msg {
			doc, err := f.Load(ctx, location, func(done, total int64) {
				b.Send(LoadProgress{Done: done, Total: total})
			})
			if err != nil {
				return DocOpened{Err: err}
			}
			if err := ctrl.Open(ctx, doc.Data, magicFor(doc), doc.Name, b); err != nil {
				return DocOpened{Err: err}
			}
			return DocOpened{Doc: doc}
		}
	}
}

func magicFor(doc *acquire.Document) string {
	switch {
	case strings.HasPrefix(doc.ContentType, textdoc.MagicPlain):
		return textdoc.MagicPlain
	case strings.HasPrefix(doc.ContentType, textdoc.MagicMarkdown):
		return textdoc.MagicMarkdown
	}
	return textdoc.Magic(doc.Name)
}
