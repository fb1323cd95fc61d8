package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/content-portal/internal/api"
	"github.com/nhle/content-portal/internal/keys"
	"github.com/nhle/content-portal/internal/listview"
	"github.com/nhle/content-portal/internal/logging"
	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/notify"
	"github.com/nhle/content-portal/internal/querycache"
	"github.com/nhle/content-portal/internal/store"
	appsync "github.com/nhle/content-portal/internal/sync"
	"github.com/nhle/content-portal/internal/ui/command"
	"github.com/nhle/content-portal/internal/ui/detail"
	"github.com/nhle/content-portal/internal/ui/feed"
)

// quietAPI answers every notification call with nothing.
type quietAPI struct{}

func (quietAPI) UnseenRoleNotifications(context.Context, model.Role) (api.NotificationList, error) {
	return api.NotificationList{}, nil
}
func (quietAPI) MarkSeen(context.Context, model.ID) error { return nil }
func (quietAPI) MarkAllSeen(context.Context, model.Role) error { return nil }
func (quietAPI) Approve(context.Context, model.ID) error { return nil }
func (quietAPI) Reject(context.Context, model.ID, string) error { return nil }
func (quietAPI) PostUnseenCount(context.Context) (int, error) { return 0, nil }
func (quietAPI) MarkPostSeen(context.Context, model.ID) error { return nil }
func (quietAPI) PostNotifications(context.Context, *string) (model.Page[model.Notification], error) {
	return model.Page[model.Notification]{}, nil
}

type stubCatalog struct {
	jobs map[string]*model.Job
}

func (c stubCatalog) Job(_ context.Context, slug string) (*model.Job, error) {
	j, ok := c.jobs[slug]
	if !ok {
		return nil, errors.New("job not found")
	}
	return j, nil
}

func (c stubCatalog) Article(context.Context, model.ID) (*model.Article, error) {
	return nil, errors.New("no articles")
}

func emptyPages[T any](context.Context, map[string]string, *string) (model.Page[T], error) {
	return model.Page[T]{}, nil
}

func newTestApp(t *testing.T, cat Catalog) Model {
	t.Helper()
	logger := logging.Discard()
	cache := querycache.New(20, querycache.WithLogger(logger))
	t.Cleanup(cache.Wait)

	rec := notify.NewReconciler(quietAPI{}, cache, notify.NewStateStore(store.NewMemoryStore()), model.RoleAdmin, notify.WithLogger(logger))
	t.Cleanup(rec.Close)

	k := keys.DefaultKeyMap()
	jobs := listview.NewView(cache, querycache.Jobs, emptyPages[model.Job], listview.Filters{})
	articles := listview.NewView(cache, querycache.Articles, emptyPages[model.Article], listview.Filters{})
	t.Cleanup(jobs.Close)
	t.Cleanup(articles.Close)

	m := New(Deps{
		Reconciler: rec,
		Jobs:       feed.New("Jobs", jobs, feed.NewJobItem, listview.JobType, feed.JobTypes, k, 80, 24),
		Articles:   feed.New("Articles", articles, feed.NewArticleItem, listview.Section, feed.ArticleSections, k, 80, 24),
		Catalog:    cat,
		Poller:     appsync.New(logger),
		Logger:     logger,
	}, k)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestTabCyclesFeeds(t *testing.T) {
	m := newTestApp(t, stubCatalog{})
	want := []ViewState{ViewJobs, ViewArticles, ViewNotifications}
	for _, v := range want {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
		if m.currentView != v {
			t.Fatalf("currentView = %d, want %d", m.currentView, v)
		}
	}
}

func TestSelectedJobOpensDetail(t *testing.T) {
	cat := stubCatalog{jobs: map[string]*model.Job{"clerk": {Slug: "clerk", Title: "Clerk", Organization: "Post Office"}}}
	m := newTestApp(t, cat)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})

	m, cmd := update(t, m, feed.SelectedMsg[model.Job]{Name: "Jobs", Item: model.Job{Slug: "clerk"}})
	if m.currentView != ViewDetail || cmd == nil {
		t.Fatalf("view = %d, cmd nil = %v", m.currentView, cmd == nil)
	}

	loaded, ok := cmd().(detail.LoadedMsg)
	if !ok || loaded.Err != nil || loaded.Detail.Title != "Clerk" {
		t.Fatalf("loaded = %+v", loaded)
	}
	m, _ = update(t, m, loaded)
	if !strings.Contains(m.View(), "Post Office") {
		t.Error("detail not rendered")
	}

	m, _ = update(t, m, detail.BackMsg{})
	if m.currentView != ViewJobs {
		t.Errorf("back went to %d", m.currentView)
	}
}

func TestCommandPalette(t *testing.T) {
	m := newTestApp(t, stubCatalog{})

	m, _ = update(t, m, command.CommandMsg("articles"))
	if m.currentView != ViewArticles {
		t.Errorf("currentView = %d", m.currentView)
	}

	m, _ = update(t, m, command.CommandMsg("frobnicate"))
	if !strings.Contains(m.keyHints(), "unknown command: frobnicate") {
		t.Errorf("hints = %q", m.keyHints())
	}
}

func TestDigestWithoutSenderReportsFailure(t *testing.T) {
	m := newTestApp(t, stubCatalog{})
	m, cmd := update(t, m, command.CommandMsg("digest"))
	if cmd == nil {
		t.Fatal("digest returned no command")
	}
	m, _ = update(t, m, cmd())
	if !strings.HasPrefix(m.keyHints(), "digest failed") {
		t.Errorf("hints = %q", m.keyHints())
	}
}

func TestSyncStatusWithoutRefreshers(t *testing.T) {
	m := newTestApp(t, stubCatalog{})
	if got := m.syncStatus(); got != "offline" {
		t.Errorf("syncStatus() = %q", got)
	}
}

func TestSearchKeepsGlobalKeys(t *testing.T) {
	m := newTestApp(t, stubCatalog{})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	if !m.jobs.InSearch() {
		t.Fatal("search did not open")
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.currentView != ViewJobs || !m.jobs.InSearch() {
		t.Errorf("currentView = %d, in search = %v", m.currentView, m.jobs.InSearch())
	}
}
