package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/content-portal/internal/keys"
	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/theme"
)

// Model is the help overlay view. Besides the key bindings it shows the
// legend for role badges and approval statuses.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	role   model.Role
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	h.ShowAll = true
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// SetRole sets the viewer role shown in the legend.
func (m *Model) SetRole(role model.Role) {
	m.role = role
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	sections := []string{
		titleStyle.Render("Keyboard Shortcuts"),
		m.help.View(m.keys),
		"",
		titleStyle.Render("Legend"),
		m.legend(),
	}

	return theme.PanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) legend() string {
	var roles []string
	for _, r := range []model.Role{
		model.RoleSuperAdmin, model.RoleAdmin, model.RolePublisher,
		model.RoleEditor, model.RoleCreator, model.RoleContributor,
	} {
		label := theme.RoleStyle(r).Render(r.Initials()) + " " + string(r)
		if r == m.role {
			label += " (you)"
		}
		roles = append(roles, label)
	}

	var statuses []string
	for _, s := range []model.NotificationStatus{model.StatusPending, model.StatusApproved, model.StatusRejected} {
		statuses = append(statuses, theme.StatusStyle(s).Render(string(s)))
	}

	note := theme.HelpStyle.Render("Only admins receive approval requests; everyone gets article notifications.")
	return lipgloss.JoinVertical(lipgloss.Left,
		strings.Join(roles, "  "),
		strings.Join(statuses, " "),
		note,
	)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
