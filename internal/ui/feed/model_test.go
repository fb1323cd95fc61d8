package feed

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/content-portal/internal/keys"
	"github.com/nhle/content-portal/internal/listview"
	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/querycache"
)

type recordingSource struct {
	mu    sync.Mutex
	calls []map[string]string
}

func (r *recordingSource) jobs(_ context.Context, filters map[string]string, cursor *string) (model.Page[model.Job], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, filters)
	jt := filters["job_type"]
	return model.Page[model.Job]{Results: []model.Job{
		{ID: "1", Title: "Clerk", JobType: jt, IsActive: true},
	}}, nil
}

func newJobFeed(t *testing.T) (Model[model.Job], *recordingSource) {
	t.Helper()
	src := &recordingSource{}
	cache := querycache.New(20)
	view := listview.NewView(cache, querycache.Jobs, src.jobs, listview.Filters{})
	t.Cleanup(view.Close)
	return New("Jobs", view, NewJobItem, listview.JobType, JobTypes, keys.DefaultKeyMap(), 80, 24), src
}

// drive runs cmd and feeds its message back into m.
func drive[T any](m Model[T], cmd tea.Cmd) Model[T] {
	if cmd == nil {
		return m
	}
	m, _ = m.Update(cmd())
	return m
}

func press(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestFeedCyclesJobType(t *testing.T) {
	m, src := newJobFeed(t)
	m = drive(m, m.Init())

	m, cmd := m.Update(press("t"))
	m = drive(m, cmd)

	if got := m.FilterSummary(); got != "filters: job_type=GOVT" {
		t.Errorf("FilterSummary() = %q", got)
	}
	if len(src.calls) != 2 || src.calls[1]["job_type"] != "GOVT" {
		t.Errorf("source calls = %v", src.calls)
	}
	if !strings.Contains(m.View(), "Clerk") {
		t.Errorf("view missing job row:\n%s", m.View())
	}
}

func TestFeedClearFiltersIsOneFetch(t *testing.T) {
	m, src := newJobFeed(t)
	m = drive(m, m.Init())

	m, cmd := m.Update(press("t"))
	m = drive(m, cmd)
	m, cmd = m.Update(press("l"))
	m = drive(m, cmd)
	before := len(src.calls)

	m, cmd = m.Update(press("x"))
	m = drive(m, cmd)

	if len(src.calls) != before+1 {
		t.Errorf("clear issued %d fetches", len(src.calls)-before)
	}
	if m.FilterSummary() != "" {
		t.Errorf("filters left after clear: %q", m.FilterSummary())
	}
}

func TestNextValueWraps(t *testing.T) {
	values := []string{"", "a", "b"}
	if got := nextValue(values, "b"); got != "" {
		t.Errorf("nextValue(b) = %q", got)
	}
	if got := nextValue(values, "zzz"); got != "" {
		t.Errorf("unknown value should restart at the first entry, got %q", got)
	}
	if got := nextValue(nil, "a"); got != "" {
		t.Errorf("nextValue(nil) = %q", got)
	}
}

func TestArticleSections(t *testing.T) {
	got := ArticleSections([]model.Article{{Section: "sports"}, {Section: "politics"}, {Section: "sports"}, {}})
	want := []string{"", "politics", "sports"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ArticleSections() = %q, want %q", got, want)
	}
}

func TestFeedEnterSelectsHighlightedRow(t *testing.T) {
	m, _ := newJobFeed(t)
	m = drive(m, m.Init())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter returned no command")
	}
	sel, ok := cmd().(SelectedMsg[model.Job])
	if !ok {
		t.Fatalf("enter sent %T", cmd())
	}
	if sel.Name != "Jobs" || sel.Item.Title != "Clerk" {
		t.Errorf("selected = %+v", sel)
	}
}
