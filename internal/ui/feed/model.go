package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/content-portal/internal/keys"
	"github.com/nhle/content-portal/internal/listview"
	"github.com/nhle/content-portal/internal/paginate"
	"github.com/nhle/content-portal/internal/theme"
)

// Languages offered by the language filter, "" meaning all.
var Languages = []string{"", "en", "te"}

// loadedMsg is sent when a page request of feed name has settled.
type loadedMsg struct {
	name string
	err  error
}

// InvalidatedMsg is sent when the cached list behind feed Name was
// dropped and should be refetched.
type InvalidatedMsg struct {
	Name string
}

// SelectedMsg is sent when the user opens the highlighted row.
type SelectedMsg[T any] struct {
	Name string
	Item T
}

// ItemFunc converts a record into a list row.
type ItemFunc[T any] func(T) list.Item

// CycleFunc returns the values the cycle key steps through for the
// current items, "" meaning unfiltered.
type CycleFunc[T any] func(items []T) []string

// Model is a filterable, paginated list of one resource type.
type Model[T any] struct {
	name     string
	view     *listview.View[T]
	toItem   ItemFunc[T]
	cycleDim listview.Dimension
	cycle    CycleFunc[T]

	list        list.Model
	keys        *keys.KeyMap
	searchMode  bool
	searchInput textinput.Model
	loading     bool
	err         error
	width       int
	height      int
}

// New creates a feed named name over view. The cycle key steps
// cycleDim through the values returned by cycle.
func New[T any](name string, view *listview.View[T], toItem ItemFunc[T], cycleDim listview.Dimension, cycle CycleFunc[T], k *keys.KeyMap, width, height int) Model[T] {
	l := list.New([]list.Item{}, Delegate{}, width, height-2)
	l.Title = name
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search " + strings.ToLower(name) + "..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model[T]{
		name:        name,
		view:        view,
		toItem:      toItem,
		cycleDim:    cycleDim,
		cycle:       cycle,
		list:        l,
		keys:        k,
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// Name identifies the feed in messages.
func (m Model[T]) Name() string { return m.name }

// InSearch reports whether the search input has focus.
func (m Model[T]) InSearch() bool { return m.searchMode }

// Init loads the first page.
func (m Model[T]) Init() tea.Cmd {
	return m.run(func(ctx context.Context) error {
		return m.view.FetchNext(ctx)
	})
}

// WatchInvalidations arranges for an InvalidatedMsg to be sent through
// send whenever the feed's cached list is dropped.
func (m Model[T]) WatchInvalidations(send func(tea.Msg)) {
	name := m.name
	m.view.OnInvalidate(func() { send(InvalidatedMsg{Name: name}) })
}

func (m Model[T]) run(fn func(ctx context.Context) error) tea.Cmd {
	name := m.name
	return func() tea.Msg {
		err := fn(context.Background())
		if errors.Is(err, paginate.ErrNoMore) {
			err = nil
		}
		return loadedMsg{name: name, err: err}
	}
}

// Update handles messages for the feed.
func (m Model[T]) Update(msg tea.Msg) (Model[T], tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		if msg.name != m.name {
			return m, nil
		}
		m.loading = false
		m.err = msg.err
		cmd := m.syncItems()
		return m, cmd

	case InvalidatedMsg:
		if msg.Name != m.name {
			return m, nil
		}
		return m.startLoad(func(ctx context.Context) error { return m.view.FetchNext(ctx) })

	case tea.KeyMsg:
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model[T]) startLoad(fn func(ctx context.Context) error) (Model[T], tea.Cmd) {
	m.loading = true
	return m, m.run(fn)
}

func (m *Model[T]) syncItems() tea.Cmd {
	records := m.view.Items()
	items := make([]list.Item, len(records))
	for i, r := range records {
		items[i] = m.toItem(r)
	}
	return m.list.SetItems(items)
}

func (m Model[T]) handleSearchKeys(msg tea.KeyMsg) (Model[T], tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		query := m.searchInput.Value()
		return m.startLoad(func(ctx context.Context) error {
			return m.view.SetFilter(ctx, listview.Query, query)
		})

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		return m.startLoad(func(ctx context.Context) error {
			return m.view.SetFilter(ctx, listview.Query, "")
		})
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m Model[T]) handleNormalKeys(msg tea.KeyMsg) (Model[T], tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.SetValue(m.view.Filters().Get(listview.Query))
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.CycleJobType):
		if m.cycle == nil {
			return m, nil
		}
		next := nextValue(m.cycle(m.view.Items()), m.view.Filters().Get(m.cycleDim))
		dim := m.cycleDim
		return m.startLoad(func(ctx context.Context) error {
			return m.view.SetFilter(ctx, dim, next)
		})

	case key.Matches(msg, m.keys.CycleLanguage):
		next := nextValue(Languages, m.view.Filters().Get(listview.Language))
		return m.startLoad(func(ctx context.Context) error {
			return m.view.SetFilter(ctx, listview.Language, next)
		})

	case key.Matches(msg, m.keys.ClearFilters):
		m.searchInput.Reset()
		return m.startLoad(m.view.ClearAll)

	case key.Matches(msg, m.keys.Refresh):
		return m.startLoad(m.view.Refresh)

	case key.Matches(msg, m.keys.Select):
		items := m.view.Items()
		i := m.list.Index()
		if i < 0 || i >= len(items) {
			return m, nil
		}
		sel := SelectedMsg[T]{Name: m.name, Item: items[i]}
		return m, func() tea.Msg { return sel }

	case key.Matches(msg, m.keys.LoadMore):
		if !m.view.HasMore() || m.loading {
			return m, nil
		}
		return m.startLoad(m.view.FetchNext)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	// Reaching the last row pulls the next page.
	if m.list.Index() == len(m.list.Items())-1 && m.view.HasMore() && !m.loading {
		var more tea.Cmd
		m, more = m.startLoad(m.view.FetchNext)
		return m, tea.Batch(cmd, more)
	}
	return m, cmd
}

// nextValue returns the value after current in values, wrapping around.
func nextValue(values []string, current string) string {
	if len(values) == 0 {
		return ""
	}
	i := slices.Index(values, current)
	return values[(i+1)%len(values)]
}

// FilterSummary describes the active filters for the status bar.
func (m Model[T]) FilterSummary() string {
	f := m.view.Filters()
	if f.IsEmpty() {
		return ""
	}
	return "filters: " + f.String()
}

// View renders the feed.
func (m Model[T]) View() string {
	var header []string
	if m.searchMode {
		header = append(header, lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View()))
	} else if s := m.FilterSummary(); s != "" {
		header = append(header, theme.FilterChipStyle.Render(s))
	}
	if m.err != nil {
		header = append(header, theme.ErrorStyle.Render("  "+m.err.Error()))
	}

	body := m.list.View()
	if len(m.list.Items()) == 0 {
		body = m.renderEmptyState()
	} else if m.loading {
		body = lipgloss.JoinVertical(lipgloss.Left, body, theme.HelpStyle.Render("  loading..."))
	} else if m.view.HasMore() {
		body = lipgloss.JoinVertical(lipgloss.Left, body, theme.HelpStyle.Render("  m load more"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, append(header, body)...)
}

func (m Model[T]) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height - 2).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case m.loading || !m.view.Loaded():
		return style.Render("Loading " + strings.ToLower(m.name) + "...")
	case !m.view.Filters().IsEmpty():
		return style.Render(fmt.Sprintf("No matching %s.\nPress x to clear filters.", strings.ToLower(m.name)))
	default:
		return style.Render("Nothing published yet.")
	}
}

// SetSize updates the list dimensions.
func (m *Model[T]) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}
