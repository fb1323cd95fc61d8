package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/content-portal/internal/keys"
	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/notify"
	"github.com/nhle/content-portal/internal/theme"
)

// Reconciler is what the view needs from *notify.Reconciler.
type Reconciler interface {
	Role() model.Role
	Refresh(ctx context.Context) error
	UnseenItems(ctx context.Context) []model.Notification
	UnseenCount() int
	PostUnseenCount() int
	MarkSeen(ctx context.Context, id model.ID) error
	MarkAllSeen(ctx context.Context) error
	Approve(ctx context.Context, id model.ID) error
	Reject(ctx context.Context, id model.ID, reason string) error
	LoadMorePosts(ctx context.Context) error
	PostItems() []model.Notification
	HasMorePosts() bool
	MarkPostSeen(ctx context.Context, id model.ID) error
}

// ChangedMsg is emitted after any action so the app can update the
// unseen badge.
type ChangedMsg struct{}

// actionDoneMsg reports the outcome of an action started by the view.
type actionDoneMsg struct {
	status string
	err    error
}

// rejectBindings holds form values on the heap so huh's Value()
// pointers stay valid across model copies.
type rejectBindings struct {
	id      model.ID
	reason  string
	confirm bool
}

// Item is one row: a role approval request or a post notification.
type Item struct {
	N model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.N.Message }

// Model lists the viewer's unseen notifications and runs the approval
// actions on them.
type Model struct {
	rec    Reconciler
	keys   *keys.KeyMap
	list   list.Model
	form   *huh.Form
	fb     *rejectBindings
	status string
	err    string
	busy   bool
	width  int
	height int
}

// New creates the notifications view.
func New(rec Reconciler, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, Delegate{}, width, height-2)
	l.Title = "Notifications"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		rec:    rec,
		keys:   k,
		list:   l,
		fb:     &rejectBindings{},
		width:  width,
		height: height,
	}
}

// Init loads the first page of post notifications.
func (m Model) Init() tea.Cmd {
	rec := m.rec
	return m.do("", func(ctx context.Context) error {
		if rec.HasMorePosts() && len(rec.PostItems()) == 0 {
			return rec.LoadMorePosts(ctx)
		}
		return nil
	})
}

// Reload rebuilds the rows from the reconciler's current state.
func (m *Model) Reload() tea.Cmd {
	items := m.rows()
	return m.list.SetItems(items)
}

func (m Model) rows() []list.Item {
	unseen := m.rec.UnseenItems(context.Background())
	posts := m.rec.PostItems()
	items := make([]list.Item, 0, len(unseen)+len(posts))
	for _, n := range unseen {
		if n.Kind == "" {
			n.Kind = model.KindApproval
		}
		items = append(items, Item{N: n})
	}
	for _, n := range posts {
		n.Kind = model.KindPost
		items = append(items, Item{N: n})
	}
	return items
}

// InForm reports whether the reject form has focus.
func (m Model) InForm() bool { return m.form != nil }

// do runs fn off the UI goroutine and reports status on success.
func (m Model) do(status string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return actionDoneMsg{status: status, err: fn(ctx)}
	}
}

// Update handles messages for the notifications view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form != nil {
		return m.updateForm(msg)
	}

	switch msg := msg.(type) {
	case actionDoneMsg:
		m.busy = false
		m.err = ""
		m.status = msg.status
		if msg.err != nil {
			m.status = ""
			m.err = errorText(msg.err)
		}
		reload := m.Reload()
		return m, tea.Batch(reload, func() tea.Msg { return ChangedMsg{} })

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// errorText prefers the server's message for failed approvals.
func errorText(err error) string {
	var actionErr *notify.ActionError
	if errors.As(err, &actionErr) {
		return actionErr.Message
	}
	return err.Error()
}

func (m Model) selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	return it.N, ok
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	rec := m.rec

	switch {
	case key.Matches(msg, m.keys.Refresh):
		m.busy = true
		return m, m.do("refreshed", rec.Refresh)

	case key.Matches(msg, m.keys.MarkAllSeen):
		m.busy = true
		return m, m.do("all notifications marked seen", rec.MarkAllSeen)

	case key.Matches(msg, m.keys.LoadMore):
		if !rec.HasMorePosts() {
			return m, nil
		}
		m.busy = true
		return m, m.do("", rec.LoadMorePosts)

	case key.Matches(msg, m.keys.MarkSeen):
		n, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.busy = true
		if n.Kind == model.KindPost {
			return m, m.do("marked seen", func(ctx context.Context) error {
				if err := rec.MarkPostSeen(ctx, n.ID); err != nil {
					return err
				}
				return rec.LoadMorePosts(ctx)
			})
		}
		return m, m.do("marked seen", func(ctx context.Context) error { return rec.MarkSeen(ctx, n.ID) })

	case key.Matches(msg, m.keys.Approve):
		n, ok := m.selected()
		if !ok || !m.canDecide(n) {
			return m, nil
		}
		m.busy = true
		return m, m.do("request approved", func(ctx context.Context) error { return rec.Approve(ctx, n.ID) })

	case key.Matches(msg, m.keys.Reject):
		n, ok := m.selected()
		if !ok || !m.canDecide(n) {
			return m, nil
		}
		m.fb.id = n.ID
		m.fb.reason = ""
		m.fb.confirm = true
		m.form = m.buildRejectForm(n)
		return m, m.form.Init()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// canDecide reports whether the viewer may approve or reject n.
func (m Model) canDecide(n model.Notification) bool {
	return n.Kind != model.KindPost && m.rec.Role().CanReview() &&
		(n.Status == "" || n.Status == model.StatusPending)
}

func (m Model) buildRejectForm(n model.Notification) *huh.Form {
	width := m.width - 8
	if width < 20 {
		width = 20
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Reject request").
				Description(n.Message),
			huh.NewText().
				Title("Reason").
				Placeholder("Why is this request rejected?").
				Value(&m.fb.reason).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("a reason is required")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Send rejection?").
				Affirmative("Reject").
				Negative("Cancel").
				Value(&m.fb.confirm),
		),
	).WithWidth(width).WithShowHelp(true)
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && key.Matches(k, m.keys.Back) {
		m.form = nil
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateAborted:
		m.form = nil
		return m, nil
	case huh.StateCompleted:
		m.form = nil
		if !m.fb.confirm {
			return m, nil
		}
		id, reason, rec := m.fb.id, strings.TrimSpace(m.fb.reason), m.rec
		m.busy = true
		return m, m.do("request rejected", func(ctx context.Context) error { return rec.Reject(ctx, id, reason) })
	}
	return m, cmd
}

// View renders the notifications view.
func (m Model) View() string {
	if m.form != nil {
		return theme.PanelStyle.Width(m.width - 4).Render(m.form.View())
	}

	summary := fmt.Sprintf("%d approval · %d article unseen", m.rec.UnseenCount(), m.rec.PostUnseenCount())
	lines := []string{theme.HelpStyle.Render("  " + summary)}
	switch {
	case m.err != "":
		lines = append(lines, theme.ErrorStyle.Render("  "+m.err))
	case m.status != "":
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorGreen).Render("  "+m.status))
	}

	if len(m.list.Items()) == 0 {
		empty := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height - 4).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("You're all caught up.")
		return lipgloss.JoinVertical(lipgloss.Left, append(lines, empty)...)
	}

	body := m.list.View()
	if m.rec.HasMorePosts() {
		body = lipgloss.JoinVertical(lipgloss.Left, body, theme.HelpStyle.Render("  m load more"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, append(lines, body)...)
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-4)
}

// Delegate renders notification rows.
type Delegate struct{}

// Height returns the number of lines each item takes.
func (d Delegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d Delegate) Spacing() int { return 0 }

// Update handles per-item messages.
func (d Delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render draws a single notification line.
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	n := it.N

	var badge string
	if n.Kind == model.KindPost {
		badge = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).Padding(0, 1).Render("POST")
	} else {
		badge = theme.RoleStyle(n.Role).Render(n.Role.Initials())
	}
	status := ""
	if n.Status != "" {
		status = theme.StatusStyle(n.Status).Render(string(n.Status))
	}
	when := lipgloss.NewStyle().Foreground(theme.ColorGray).Render(relativeTime(n.Timestamp))

	line := fmt.Sprintf("%s%s %s  %s", badge, status, n.Message, when)
	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}
	fmt.Fprint(w, line)
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 02")
	}
}
