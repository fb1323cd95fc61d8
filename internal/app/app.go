package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"github.com/nhle/content-portal/internal/digest"
	"github.com/nhle/content-portal/internal/keys"
	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/notify"
	appsync "github.com/nhle/content-portal/internal/sync"
	"github.com/nhle/content-portal/internal/ui"
	"github.com/nhle/content-portal/internal/ui/command"
	"github.com/nhle/content-portal/internal/ui/detail"
	"github.com/nhle/content-portal/internal/ui/feed"
	helpview "github.com/nhle/content-portal/internal/ui/help"
	"github.com/nhle/content-portal/internal/ui/notifications"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewNotifications ViewState = iota
	ViewJobs
	ViewArticles
	ViewDetail
	ViewHelp
	ViewCommand
)

// tabs are the views reachable with Tab, in order.
var tabs = []ViewState{ViewNotifications, ViewJobs, ViewArticles}

var tabNames = []string{"Notifications", "Jobs", "Articles"}

const detailTimeout = 30 * time.Second

// Logout ends the session. *session.Manager satisfies it.
type Logout interface {
	Logout(ctx context.Context) error
}

// Catalog loads single resources. *catalog.Catalog satisfies it.
type Catalog interface {
	Job(ctx context.Context, slug string) (*model.Job, error)
	Article(ctx context.Context, id model.ID) (*model.Article, error)
}

// Deps are the services the root model drives.
type Deps struct {
	Reconciler *notify.Reconciler
	Jobs       feed.Model[model.Job]
	Articles   feed.Model[model.Article]
	Catalog    Catalog
	Poller     *appsync.Poller
	Session    Logout
	Digest     *digest.Sender
	Logger     *log.Logger
}

// digestSentMsg reports the outcome of a digest delivery.
type digestSentMsg struct {
	total int
	err   error
}

// loggedOutMsg is sent once the session teardown finished.
type loggedOutMsg struct{ err error }

// Model is the root Bubble Tea model that routes between the
// notification inbox and the job and article feeds.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap

	rec      *notify.Reconciler
	inbox    notifications.Model
	jobs     feed.Model[model.Job]
	articles feed.Model[model.Article]
	detail   detail.Model
	helpView helpview.Model
	command  command.Model
	catalog  Catalog

	poller  *appsync.Poller
	session Logout
	digest  *digest.Sender
	logger  *log.Logger

	ready            bool
	unseen           int
	authErrorMessage string
	flash            string
}

// New creates the root application model.
func New(d Deps, k *keys.KeyMap) Model {
	logger := d.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	help := helpview.New(k, 80, 24)
	help.SetRole(d.Reconciler.Role())

	return Model{
		currentView: ViewNotifications,
		keys:        k,
		rec:         d.Reconciler,
		inbox:       notifications.New(d.Reconciler, k, 80, 24),
		jobs:        d.Jobs,
		articles:    d.Articles,
		detail:      detail.New(k, 80, 24),
		helpView:    help,
		catalog:     d.Catalog,
		command:     command.New(80, 24),
		poller:      d.Poller,
		session:     d.Session,
		digest:      d.Digest,
		logger:      logger,
	}
}

// Attach routes cache invalidations of the feeds into p.
func (m Model) Attach(p *tea.Program) {
	m.jobs.WatchInvalidations(p.Send)
	m.articles.WatchInvalidations(p.Send)
}

// Init starts polling and loads the first page of every feed.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.poller.Start(),
		m.inbox.Init(),
		m.jobs.Init(),
		m.articles.Init(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.inbox.SetSize(w, h)
		m.jobs.SetSize(w, h)
		m.articles.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.command.SetSize(w, h)
		return m.updateActiveView(msg)

	case appsync.RefreshResultMsg:
		if msg.AuthError != nil {
			m.authErrorMessage = msg.AuthError.Message
		} else if msg.Error == nil {
			m.authErrorMessage = ""
		}
		m.unseen = m.rec.TotalUnseen()
		reload := m.inbox.Reload()
		return m, tea.Batch(reload, m.poller.WaitForNextResult())

	case notifications.ChangedMsg:
		m.unseen = m.rec.TotalUnseen()
		return m, nil

	case feed.InvalidatedMsg:
		var jc, ac tea.Cmd
		m.jobs, jc = m.jobs.Update(msg)
		m.articles, ac = m.articles.Update(msg)
		return m, tea.Batch(jc, ac)

	case feed.SelectedMsg[model.Job]:
		return m.openDetail(func(ctx context.Context) (*detail.Detail, error) {
			j, err := m.catalog.Job(ctx, msg.Item.Slug)
			if err != nil {
				return nil, err
			}
			return detail.FromJob(j), nil
		})

	case feed.SelectedMsg[model.Article]:
		return m.openDetail(func(ctx context.Context) (*detail.Detail, error) {
			a, err := m.catalog.Article(ctx, msg.Item.ID)
			if err != nil {
				return nil, err
			}
			return detail.FromArticle(a), nil
		})

	case detail.LoadedMsg:
		m.detail, _ = m.detail.Update(msg)
		return m, nil

	case detail.BackMsg:
		m.currentView = m.previousView
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(string(msg))

	case digestSentMsg:
		switch {
		case errors.Is(msg.err, digest.ErrNothingToSend):
			m.flash = "digest skipped: nothing unseen"
		case msg.err != nil:
			m.flash = "digest failed: " + msg.err.Error()
		default:
			m.flash = fmt.Sprintf("digest with %d notifications delivered", msg.total)
		}
		return m, nil

	case loggedOutMsg:
		if msg.err != nil {
			m.logger.WithError(msg.err).Warn("logout incomplete")
		}
		m.poller.Stop()
		return m, tea.Quit

	case tea.KeyMsg:
		if m.capturesKeys() {
			return m.updateActiveView(msg)
		}
		m.flash = ""

		switch msg.String() {
		case "ctrl+c":
			m.poller.Stop()
			return m, tea.Quit

		case "q":
			if m.isTab() {
				m.poller.Stop()
				return m, tea.Quit
			}

		case "tab":
			if m.isTab() {
				m.currentView = nextTab(m.currentView)
				return m, nil
			}

		case "?":
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case ":":
			if m.currentView == ViewCommand {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.command.Focus()

		case "esc":
			if m.currentView == ViewHelp || m.currentView == ViewCommand {
				m.currentView = m.previousView
				return m, nil
			}
		}
	}

	return m.updateActiveView(msg)
}

// capturesKeys reports whether the active view is taking text input.
func (m Model) capturesKeys() bool {
	switch m.currentView {
	case ViewNotifications:
		return m.inbox.InForm()
	case ViewJobs:
		return m.jobs.InSearch()
	case ViewArticles:
		return m.articles.InSearch()
	}
	return false
}

func (m Model) isTab() bool {
	for _, t := range tabs {
		if m.currentView == t {
			return true
		}
	}
	return false
}

func nextTab(v ViewState) ViewState {
	for i, t := range tabs {
		if t == v {
			return tabs[(i+1)%len(tabs)]
		}
	}
	return tabs[0]
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewNotifications:
		m.inbox, cmd = m.inbox.Update(msg)
	case ViewJobs:
		m.jobs, cmd = m.jobs.Update(msg)
	case ViewArticles:
		m.articles, cmd = m.articles.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.command, cmd = m.command.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("Content Portal · "+string(m.rec.Role()), m.unseen, m.syncStatus())
	active := 0
	for i, t := range tabs {
		if t == m.currentView || (t == m.previousView && !m.isTab()) {
			active = i
		}
	}
	tabBar := m.layout.RenderTabs(tabNames, active)
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, tabBar, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewNotifications:
		return m.inbox.View()
	case ViewJobs:
		return m.jobs.View()
	case ViewArticles:
		return m.articles.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.command.View()
	default:
		return ""
	}
}

// syncStatus returns a short string describing the poll state.
func (m Model) syncStatus() string {
	statuses := m.poller.Statuses()
	if len(statuses) == 0 {
		return "offline"
	}

	var running int
	var failed []string
	for _, s := range statuses {
		switch s.State {
		case appsync.SyncRunning:
			running++
		case appsync.SyncError:
			failed = append(failed, s.Name)
		}
	}

	if running > 0 {
		return "syncing"
	}
	if len(failed) > 0 {
		return "⚠ unreachable: " + strings.Join(failed, ", ")
	}
	return "idle"
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.authErrorMessage != "" && m.isTab() {
		return m.authErrorMessage
	}
	if m.flash != "" {
		return m.flash
	}

	switch m.currentView {
	case ViewDetail:
		return "j/k scroll | esc back"
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return ": close command | enter execute | esc back"
	case ViewNotifications:
		if m.inbox.InForm() {
			return "enter next | esc cancel"
		}
		return "s seen | S all seen | a approve | d reject | m more | tab next | ? help"
	case ViewJobs:
		if s := m.jobs.FilterSummary(); s != "" {
			return s + " | x clear"
		}
		return "/ search | t type | l language | m more | r refresh | tab next"
	case ViewArticles:
		if s := m.articles.FilterSummary(); s != "" {
			return s + " | x clear"
		}
		return "/ search | t section | l language | m more | r refresh | tab next"
	default:
		return "q quit | ? help"
	}
}

// executeCommand runs a command resolved by the command palette.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	switch cmd {
	case "refresh":
		m.poller.RefreshAll()
		return nil
	case "jobs":
		m.currentView = ViewJobs
		return nil
	case "articles":
		m.currentView = ViewArticles
		return nil
	case "notifications":
		m.currentView = ViewNotifications
		return nil
	case "mark all seen":
		m.currentView = ViewNotifications
		var c tea.Cmd
		m.inbox, c = m.inbox.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("S")})
		return c
	case "clear":
		var c tea.Cmd
		switch m.currentView {
		case ViewJobs:
			m.jobs, c = m.jobs.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
		case ViewArticles:
			m.articles, c = m.articles.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
		}
		return c
	case "digest":
		return m.sendDigest()
	case "logout":
		sess := m.session
		return func() tea.Msg {
			if sess == nil {
				return loggedOutMsg{}
			}
			return loggedOutMsg{err: sess.Logout(context.Background())}
		}
	case "quit":
		m.poller.Stop()
		return tea.Quit
	default:
		m.flash = "unknown command: " + cmd
		return nil
	}
}

// openDetail switches to the detail view and loads it with fetch.
func (m Model) openDetail(fetch func(ctx context.Context) (*detail.Detail, error)) (tea.Model, tea.Cmd) {
	if m.catalog == nil {
		return m, nil
	}
	m.previousView = m.currentView
	m.currentView = ViewDetail
	m.detail.SetLoading()
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), detailTimeout)
		defer cancel()
		d, err := fetch(ctx)
		return detail.LoadedMsg{Detail: d, Err: err}
	}
}

func (m Model) sendDigest() tea.Cmd {
	if m.digest == nil {
		return func() tea.Msg {
			return digestSentMsg{err: errors.New("digest delivery is not configured")}
		}
	}
	sender, rec := m.digest, m.rec
	return func() tea.Msg {
		d, err := sender.Send(context.Background(), rec)
		return digestSentMsg{total: d.Total(), err: err}
	}
}
