package notifications

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/content-portal/internal/keys"
	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/notify"
)

type stubReconciler struct {
	role       model.Role
	items      []model.Notification
	posts      []model.Notification
	approveErr error
	approved   []model.ID
	seen       []model.ID
}

func (s *stubReconciler) Role() model.Role { return s.role }
func (s *stubReconciler) Refresh(context.Context) error { return nil }
func (s *stubReconciler) UnseenItems(context.Context) []model.Notification {
	return s.items
}
func (s *stubReconciler) UnseenCount() int { return len(s.items) }
func (s *stubReconciler) PostUnseenCount() int { return len(s.posts) }
func (s *stubReconciler) MarkSeen(_ context.Context, id model.ID) error {
	s.seen = append(s.seen, id)
	s.items = s.items[1:]
	return nil
}
func (s *stubReconciler) MarkAllSeen(context.Context) error { return nil }
func (s *stubReconciler) Approve(_ context.Context, id model.ID) error {
	if s.approveErr != nil {
		return s.approveErr
	}
	s.approved = append(s.approved, id)
	return nil
}
func (s *stubReconciler) Reject(context.Context, model.ID, string) error { return nil }
func (s *stubReconciler) LoadMorePosts(context.Context) error { return nil }
func (s *stubReconciler) PostItems() []model.Notification { return s.posts }
func (s *stubReconciler) HasMorePosts() bool { return false }
func (s *stubReconciler) MarkPostSeen(context.Context, model.ID) error { return nil }

func press(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// run executes cmd and feeds the action result back into m.
func run(m Model, cmd tea.Cmd) Model {
	if cmd == nil {
		return m
	}
	m, _ = m.Update(cmd())
	return m
}

func TestApproveFailureShowsServerMessage(t *testing.T) {
	rec := &stubReconciler{
		role:       model.RoleAdmin,
		items:      []model.Notification{{ID: "1", Role: model.RoleAdmin, Message: "Publisher access for a@b.c", Status: model.StatusPending}},
		approveErr: &notify.ActionError{Action: "approve", ID: "1", Message: "Request already handled"},
	}
	m := New(rec, keys.DefaultKeyMap(), 100, 30)
	m.Reload()

	m, cmd := m.Update(press("a"))
	m = run(m, cmd)

	if !strings.Contains(m.View(), "Request already handled") {
		t.Errorf("view missing server message:\n%s", m.View())
	}
	if len(rec.approved) != 0 {
		t.Error("approve recorded despite failure")
	}
}

func TestMarkSeenUpdatesRows(t *testing.T) {
	rec := &stubReconciler{
		role:  model.RoleSuperAdmin,
		items: []model.Notification{{ID: "7", Role: model.RoleCreator, Message: "hello"}},
	}
	m := New(rec, keys.DefaultKeyMap(), 100, 30)
	m.Reload()

	m, cmd := m.Update(press("s"))
	m = run(m, cmd)

	if len(rec.seen) != 1 || rec.seen[0] != "7" {
		t.Errorf("seen = %v", rec.seen)
	}
	if len(m.list.Items()) != 0 {
		t.Errorf("rows = %d after mark seen", len(m.list.Items()))
	}
}

func TestOnlyReviewersDecide(t *testing.T) {
	rec := &stubReconciler{role: model.RoleEditor}
	m := New(rec, keys.DefaultKeyMap(), 100, 30)

	pending := model.Notification{ID: "1", Kind: model.KindApproval, Status: model.StatusPending}
	if m.canDecide(pending) {
		t.Error("editor can decide approval requests")
	}

	rec.role = model.RoleAdmin
	if !m.canDecide(pending) {
		t.Error("admin cannot decide a pending request")
	}
	if m.canDecide(model.Notification{Kind: model.KindPost}) {
		t.Error("post notifications are decidable")
	}
	if m.canDecide(model.Notification{Status: model.StatusApproved}) {
		t.Error("approved request is decidable again")
	}
}

func TestRejectOpensForm(t *testing.T) {
	rec := &stubReconciler{
		role:  model.RoleAdmin,
		items: []model.Notification{{ID: "3", Role: model.RoleAdmin, Message: "req", Status: model.StatusPending}},
	}
	m := New(rec, keys.DefaultKeyMap(), 100, 30)
	m.Reload()

	m, _ = m.Update(press("d"))
	if !m.InForm() {
		t.Fatal("reject form not shown")
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.InForm() {
		t.Error("esc did not close the form")
	}
}
