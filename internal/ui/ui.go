package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/DaanHessen/storyloom/internal/engine"
	"github.com/DaanHessen/storyloom/internal/store"
	"github.com/DaanHessen/storyloom/internal/text"
	"github.com/DaanHessen/storyloom/internal/util"
)

const (
	viewList     = "list"
	viewNew      = "new"
	viewStory    = "story"
	viewDetails  = "details"
	viewSettings = "settings"
	viewHelp     = "help"
)

// Models offered by the settings screen.
var modelChoices = []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-2.0-flash-lite", "gemini-flash-latest"}

// Settings is the key/value store behind the settings screen.
type Settings interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	All(ctx context.Context) (map[string]string, error)
}

// Deps are the collaborators the UI drives.
type Deps struct {
	Service  *engine.Service
	Settings Settings
	Backend  text.Backend
	Config   util.Config
	Logger   *zap.Logger
	Version  string
}

// openStory is the reader state of the story on screen.
type openStory struct {
	session *engine.Session
	healer  *engine.Healer
	pager   engine.Pager
	atLive  *atomic.Bool
	snap    engine.Story
	scroll  int
	// healGaveUp is set once the healer stopped retrying.
	healGaveUp bool
}

type model struct {
	ctx    context.Context
	deps   Deps
	log    *zap.Logger
	events chan tea.Msg

	view   string
	back   string
	width  int
	height int
	styles styles
	theme  string

	license   string
	modelName string
	licensed  *atomic.Bool

	status string
	err    error
	busy   bool

	form    storyForm
	stories []engine.Story
	cursor  int
	// confirmDelete arms the delete key on the details screen.
	confirmDelete bool

	open *openStory

	editingLicense bool
	licenseInput   string
}

func initialModel(ctx context.Context, deps Deps) model {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := model{
		ctx:       ctx,
		deps:      deps,
		log:       log,
		events:    make(chan tea.Msg, 16),
		view:      viewList,
		theme:     deps.Config.Theme,
		modelName: deps.Config.Model,
		licensed:  &atomic.Bool{},
		form:      newStoryForm(),
	}
	if deps.Settings != nil {
		if all, err := deps.Settings.All(ctx); err != nil {
			log.Warn("load settings", zap.Error(err))
		} else {
			m.license = all[store.SettingLicense]
			if v := all[store.SettingModel]; v != "" {
				m.modelName = v
			}
			if v := all[store.SettingTheme]; v != "" {
				m.theme = v
			}
		}
	}
	m.styles = newStyles(m.theme)
	m.applyBackend()
	return m
}

// applyBackend pushes the current license and model into the backend and
// recomputes the healer gate's credential half.
func (m *model) applyBackend() {
	if m.deps.Backend == nil {
		m.licensed.Store(true)
		return
	}
	m.deps.Backend.Configure(m.license, m.modelName)
	m.licensed.Store(m.license != "" || !m.deps.Backend.RequiresLicense())
}

func (m model) Init() tea.Cmd {
	return tea.Batch(loadStoriesCmd(m.ctx, m.deps.Service), waitForEvent(m.events))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.closeStory()
			return m, tea.Quit
		}
		return m.handleKey(msg)
	case storiesLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.stories = msg.stories
		if m.cursor >= len(m.stories) {
			m.cursor = max(0, len(m.stories)-1)
		}
		return m, nil
	case sessionOpenedMsg:
		m.busy = false
		if msg.session == nil {
			m.err = msg.err
			return m, nil
		}
		m.err = msg.err
		if !msg.created && msg.err == nil && m.view == viewNew {
			m.status = "A story with these parameters already exists; opened it."
		}
		m.openSession(msg.session)
		return m, loadStoriesCmd(m.ctx, m.deps.Service)
	case transitionMsg:
		m.busy = false
		if m.open == nil || m.open.session.ID() != msg.id {
			return m, nil
		}
		m.err = msg.err
		m.status = describeOutcome(msg.op, msg.out)
		m.syncOpen()
		return m, nil
	case healChangedMsg:
		if m.open != nil && m.open.session.ID() == msg.id {
			m.syncOpen()
			m.err = nil
		}
		return m, waitForEvent(m.events)
	case healGaveUpMsg:
		if m.open != nil && m.open.session.ID() == msg.id {
			m.open.healGaveUp = true
			m.err = msg.err
		}
		return m, waitForEvent(m.events)
	case listRefreshedMsg:
		m.busy = false
		m.err = msg.err
		return m, loadStoriesCmd(m.ctx, m.deps.Service)
	case deletedMsg:
		m.busy = false
		m.confirmDelete = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		if m.open != nil && m.open.session.ID() == msg.id {
			m.closeStory()
		}
		m.status = "Story deleted."
		m.view = viewList
		return m, loadStoriesCmd(m.ctx, m.deps.Service)
	case exportedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.status = "Exported to " + msg.path
		}
		return m, nil
	case settingSavedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.status = "Saved " + msg.key + "."
		}
		return m, nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := msg.String()
	if m.view == viewNew {
		return m.handleFormKey(k, msg.Runes)
	}
	if m.view == viewSettings && m.editingLicense {
		return m.handleLicenseKey(k, msg.Runes)
	}
	if k == "?" && m.view != viewHelp {
		m.back = m.view
		m.view = viewHelp
		return m, nil
	}
	switch m.view {
	case viewList:
		return m.handleListKey(k)
	case viewStory:
		return m.handleStoryKey(k)
	case viewDetails:
		return m.handleDetailsKey(k)
	case viewSettings:
		return m.handleSettingsKey(k)
	case viewHelp:
		if k == "esc" || k == "q" || k == "?" {
			m.view = m.back
		}
	}
	return m, nil
}

func (m model) handleListKey(k string) (tea.Model, tea.Cmd) {
	switch k {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.stories)-1 {
			m.cursor++
		}
	case "n":
		m.form = newStoryForm()
		m.err, m.status = nil, ""
		m.view = viewNew
	case "s":
		m.back = viewList
		m.view = viewSettings
	case "enter":
		if st, ok := m.selected(); ok {
			return m, openStoryCmd(m.ctx, m.deps.Service, st.ID)
		}
	case "d", "i":
		if _, ok := m.selected(); ok {
			m.back = viewList
			m.confirmDelete = false
			m.view = viewDetails
		}
	case "r":
		st, ok := m.selected()
		if !ok || m.busy {
			return m, nil
		}
		if st.Stage != engine.StageRequested || st.Status != engine.StatusActive {
			m.status = "Only stories still waiting for their opening can be refreshed here."
			return m, nil
		}
		m.busy = true
		m.status = "Requesting opening..."
		return m, refreshFromListCmd(m.ctx, m.deps.Service, st)
	}
	return m, nil
}

func (m model) handleFormKey(k string, runes []rune) (tea.Model, tea.Cmd) {
	if k == "esc" {
		m.view = viewList
		return m, nil
	}
	if !m.form.key(k, runes) {
		return m, nil
	}
	if !m.form.ready() {
		m.err = engine.ErrInvalidPremise
		return m, nil
	}
	if !m.licensed.Load() {
		m.err = text.ErrNoLicense
		return m, nil
	}
	if m.busy {
		return m, nil
	}
	m.busy = true
	m.err = nil
	m.status = "Writing the opening..."
	return m, createStoryCmd(m.ctx, m.deps.Service, m.form.params())
}

func (m model) handleStoryKey(k string) (tea.Model, tea.Cmd) {
	o := m.open
	if o == nil {
		m.view = viewList
		return m, nil
	}
	switch k {
	case "esc", "q":
		m.closeStory()
		m.view = viewList
		return m, loadStoriesCmd(m.ctx, m.deps.Service)
	case "1", "2", "3":
		if !o.pager.AtLive() || m.busy {
			return m, nil
		}
		idx := int(k[0] - '1')
		if !o.snap.HasPendingChoices() {
			m.err = engine.ErrNoPendingChoices
			return m, nil
		}
		if idx >= len(o.snap.PendingChoices) {
			m.err = engine.ErrInvalidChoice
			return m, nil
		}
		m.busy = true
		m.err = nil
		m.status = "Continuing..."
		return m, transitionCmd(m.ctx, o.session, "choose", func(ctx context.Context) (engine.Outcome, error) {
			return o.session.ResolveChoice(ctx, idx)
		})
	case "n":
		if !o.pager.AtLive() || m.busy {
			return m, nil
		}
		if !engine.CanAdvanceChapter(o.snap) {
			m.status = "The chapter has not concluded yet."
			return m, nil
		}
		m.busy = true
		m.err = nil
		m.status = "Opening the next chapter..."
		return m, transitionCmd(m.ctx, o.session, "advance", o.session.AdvanceChapter)
	case "r":
		if !o.pager.AtLive() || m.busy {
			return m, nil
		}
		m.busy = true
		m.err = nil
		m.status = "Refreshing..."
		return m, transitionCmd(m.ctx, o.session, "refresh", o.session.Refresh)
	case "left", "h", "[":
		if o.pager.Prev() {
			o.scroll = 0
			m.pageChanged()
		}
	case "right", "l", "]":
		if o.pager.Next() {
			o.scroll = 0
			m.pageChanged()
		}
	case "end":
		o.pager.Live()
		o.scroll = 0
		m.pageChanged()
	case "pgdown", "down", "j":
		o.scroll += scrollStep(k)
	case "pgup", "up", "k":
		o.scroll -= scrollStep(k)
		if o.scroll < 0 {
			o.scroll = 0
		}
	case "i":
		m.back = viewStory
		m.confirmDelete = false
		m.view = viewDetails
	case "e":
		return m, exportCmd(m.deps.Config.ExportDir, o.session.Snapshot(), store.FormatMarkdown)
	case "y":
		return m, exportCmd(m.deps.Config.ExportDir, o.session.Snapshot(), store.FormatYAML)
	}
	return m, nil
}

func scrollStep(k string) int {
	if strings.HasPrefix(k, "pg") {
		return 10
	}
	return 1
}

func (m model) handleDetailsKey(k string) (tea.Model, tea.Cmd) {
	st, ok := m.detailsStory()
	switch k {
	case "esc", "q":
		m.confirmDelete = false
		m.view = m.back
	case "x":
		if ok {
			m.confirmDelete = true
		}
	case "y":
		if ok && m.confirmDelete && !m.busy {
			m.busy = true
			return m, deleteStoryCmd(m.ctx, m.deps.Service, st.ID)
		}
	case "n":
		m.confirmDelete = false
	}
	return m, nil
}

func (m model) handleSettingsKey(k string) (tea.Model, tea.Cmd) {
	switch k {
	case "esc", "q":
		m.view = m.back
	case "l":
		m.editingLicense = true
		m.licenseInput = ""
	case "c":
		m.license = ""
		m.applyBackend()
		return m, saveSettingCmd(m.ctx, m.deps.Settings, store.SettingLicense, "")
	case "m":
		m.modelName = nextModel(m.modelName)
		m.applyBackend()
		return m, saveSettingCmd(m.ctx, m.deps.Settings, store.SettingModel, m.modelName)
	case "t":
		m.theme = nextThemeName(m.theme, 1)
		m.styles = newStyles(m.theme)
		return m, saveSettingCmd(m.ctx, m.deps.Settings, store.SettingTheme, m.theme)
	}
	return m, nil
}

func (m model) handleLicenseKey(k string, runes []rune) (tea.Model, tea.Cmd) {
	switch k {
	case "esc":
		m.editingLicense = false
		m.licenseInput = ""
	case "enter":
		m.editingLicense = false
		m.license = strings.TrimSpace(m.licenseInput)
		m.licenseInput = ""
		m.applyBackend()
		if m.open != nil {
			m.open.healer.Start()
		}
		return m, saveSettingCmd(m.ctx, m.deps.Settings, store.SettingLicense, m.license)
	case "backspace":
		if r := []rune(m.licenseInput); len(r) > 0 {
			m.licenseInput = string(r[:len(r)-1])
		}
	default:
		m.licenseInput += string(runes)
	}
	return m, nil
}

func nextModel(current string) string {
	for i, name := range modelChoices {
		if name == current {
			return modelChoices[(i+1)%len(modelChoices)]
		}
	}
	return modelChoices[0]
}

func (m model) selected() (engine.Story, bool) {
	if m.cursor < 0 || m.cursor >= len(m.stories) {
		return engine.Story{}, false
	}
	return m.stories[m.cursor], true
}

// detailsStory is the open story when details were opened from the reader,
// otherwise the list selection.
func (m model) detailsStory() (engine.Story, bool) {
	if m.back == viewStory && m.open != nil {
		return m.open.snap, true
	}
	return m.selected()
}

// openSession replaces the reader state and starts a healer for the story.
func (m *model) openSession(sess *engine.Session) {
	m.closeStory()
	snap := sess.Snapshot()
	o := &openStory{
		session: sess,
		pager:   engine.NewPager(len(snap.Pages)),
		atLive:  &atomic.Bool{},
		snap:    snap,
	}
	o.atLive.Store(true)
	licensed := m.licensed
	events := m.events
	id := sess.ID()
	o.healer = engine.NewHealer(m.ctx, sess,
		func() bool { return o.atLive.Load() && licensed.Load() },
		engine.WithMaxAttempts(m.deps.Config.HealMaxAttempts),
		engine.WithHealLogger(m.log),
		engine.OnChange(func(engine.Story) { post(events, healChangedMsg{id: id}) }),
		engine.OnGiveUp(func(err error) { post(events, healGaveUpMsg{id: id, err: err}) }),
	)
	m.open = o
	m.view = viewStory
	o.healer.Start()
}

func (m *model) closeStory() {
	if m.open == nil {
		return
	}
	m.open.healer.Stop()
	m.open = nil
}

// syncOpen refreshes the snapshot after the story changed and follows the
// live page if the reader was on it.
func (m *model) syncOpen() {
	o := m.open
	o.snap = o.session.Snapshot()
	o.pager.Sync(len(o.snap.Pages))
	o.atLive.Store(o.pager.AtLive())
	if _, ok := engine.RepairNeeded(o.snap); !ok {
		o.healGaveUp = false
	}
	o.healer.Start()
}

// pageChanged gates the healer on the reader being at the live page.
func (m *model) pageChanged() {
	o := m.open
	live := o.pager.AtLive()
	o.atLive.Store(live)
	if live {
		o.healer.Start()
	} else {
		o.healer.Stop()
	}
}

func describeOutcome(op string, out engine.Outcome) string {
	switch {
	case out.Noop:
		return "Nothing to do right now."
	case out.Malformed != "":
		return "The reply was incomplete (" + out.Malformed + "); it will be repaired."
	case out.Stuck:
		return "The story needs a repair; retrying shortly."
	case op == "advance":
		return "A new chapter begins."
	}
	return "Story reached " + out.Stage.String() + "."
}

// errorLine renders err for the status bar, hiding wrapped internals of
// generation failures.
func errorLine(err error) string {
	var gen *engine.GenerationError
	switch {
	case errors.Is(err, engine.ErrHealExhausted):
		return "Automatic repair gave up. Press r to try again."
	case errors.Is(err, text.ErrNoLicense):
		return "No license configured. Add one under settings (s)."
	case errors.As(err, &gen):
		return "Generation failed: " + gen.Error()
	case errors.Is(err, engine.ErrNotFound):
		return "Story not found."
	}
	return fmt.Sprintf("Error: %v", err)
}

// renderMarkdown renders md with glamour at width, falling back to the raw
// text when the renderer cannot be built.
func renderMarkdown(md string, width int) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
