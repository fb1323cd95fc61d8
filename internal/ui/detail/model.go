package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/content-portal/internal/keys"
	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/theme"
)

// BackMsg signals the parent to navigate back to the feed.
type BackMsg struct{}

// LoadedMsg carries a loaded job or article. Err is set when the fetch
// failed.
type LoadedMsg struct {
	Detail *Detail
	Err    error
}

// Field is one labelled metadata row.
type Field struct {
	Label string
	Value string
}

// Detail is the rendering-neutral form of a job or article.
type Detail struct {
	Title  string
	Badges []string
	Fields []Field
	Body   string
}

// FromJob builds the detail of a job posting.
func FromJob(j *model.Job) *Detail {
	d := &Detail{
		Title: j.Title,
		Fields: []Field{
			{"Organization", j.Organization},
			{"Location", j.Location},
			{"Last date", j.LastDate},
			{"Language", j.Language},
			{"Slug", j.Slug},
		},
		Body: j.Description,
	}
	if j.JobType != "" {
		d.Badges = append(d.Badges, theme.JobTypeStyle(j.JobType).Render(j.JobType))
	}
	if !j.IsActive {
		d.Badges = append(d.Badges, theme.DimmedStyle.Render("inactive"))
	}
	return d
}

// FromArticle builds the detail of an article.
func FromArticle(a *model.Article) *Detail {
	d := &Detail{
		Title: a.Title,
		Fields: []Field{
			{"Section", a.Section},
			{"Author", a.Author},
			{"Published", a.PublishedAt},
			{"Language", a.Language},
			{"Categories", strings.Join(a.Categories, ", ")},
		},
		Body: a.Summary,
	}
	if a.Status != "" {
		d.Badges = append(d.Badges, theme.BadgeStyle.Render(strings.ToUpper(a.Status)))
	}
	return d
}

// Model is the resource detail view component.
type Model struct {
	detail   *Detail
	err      error
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
	loading  bool
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.loading = false
		m.detail, m.err = msg.Detail, msg.Err
		m.viewport.SetContent(m.renderContent())
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Back) {
			return m, func() tea.Msg { return BackMsg{} }
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	placeholder := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case m.loading:
		return placeholder.Render("Loading...")
	case m.err != nil:
		return placeholder.Foreground(theme.ColorRed).Render(m.err.Error())
	case m.detail == nil:
		return placeholder.Render("Nothing selected")
	}
	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.detail == nil {
		return ""
	}

	d := m.detail
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(d.Title))
	if len(d.Badges) > 0 {
		sections = append(sections, strings.Join(d.Badges, "  "))
	}
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	labelWidth := 0
	for _, f := range d.Fields {
		labelWidth = max(labelWidth, len(f.Label)+1)
	}
	for _, f := range d.Fields {
		if f.Value == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("%s %s",
			metaStyle.Render(fmt.Sprintf("%-*s", labelWidth, f.Label+":")),
			valStyle.Render(f.Value),
		))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	body := d.Body
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No description")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(m.width-2, 20)).Render(body))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetLoading clears the current detail and shows the loading state.
func (m *Model) SetLoading() {
	m.loading = true
	m.detail = nil
	m.err = nil
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	m.viewport.SetContent(m.renderContent())
}
