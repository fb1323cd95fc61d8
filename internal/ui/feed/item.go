package feed

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/theme"
)

// JobItem wraps a model.Job so it can be used in a bubbles/list.
type JobItem struct {
	Job model.Job
}

// FilterValue returns the string used for fuzzy filtering.
func (i JobItem) FilterValue() string { return i.Job.Title }

// Line renders the row text.
func (i JobItem) Line() string {
	j := i.Job
	badge := theme.JobTypeStyle(j.JobType).Render(jobTypeLabel(j.JobType))
	meta := lipgloss.NewStyle().Foreground(theme.ColorGray).Render(
		strings.Join(nonEmpty(j.Organization, j.Location, lastDate(j.LastDate)), " · "),
	)
	line := fmt.Sprintf("%s %s  %s", badge, j.Title, meta)
	if !j.IsActive {
		line = theme.DimmedStyle.Render(line + " (closed)")
	}
	return line
}

// NewJobItem adapts a job for the feed list.
func NewJobItem(j model.Job) list.Item { return JobItem{Job: j} }

// JobTypes is the cycle for the job type filter.
func JobTypes([]model.Job) []string {
	return []string{"", model.JobTypeGovt, model.JobTypePrivate}
}

// ArticleItem wraps a model.Article so it can be used in a bubbles/list.
type ArticleItem struct {
	Article model.Article
}

// FilterValue returns the string used for fuzzy filtering.
func (i ArticleItem) FilterValue() string { return i.Article.Title }

// Line renders the row text.
func (i ArticleItem) Line() string {
	a := i.Article
	section := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorMagenta).Padding(0, 1).Render(strings.ToUpper(orDash(a.Section)))
	meta := lipgloss.NewStyle().Foreground(theme.ColorGray).Render(
		strings.Join(nonEmpty(a.Author, shortDate(a.PublishedAt)), " · "),
	)
	return fmt.Sprintf("%s %s  %s", section, a.Title, meta)
}

// NewArticleItem adapts an article for the feed list.
func NewArticleItem(a model.Article) list.Item { return ArticleItem{Article: a} }

// ArticleSections is the cycle for the section filter: every section in
// the loaded articles, sorted.
func ArticleSections(items []model.Article) []string {
	seen := map[string]bool{}
	out := []string{""}
	for _, a := range items {
		if a.Section != "" && !seen[a.Section] {
			seen[a.Section] = true
			out = append(out, a.Section)
		}
	}
	sort.Strings(out[1:])
	return out
}

// liner is a row that can render itself.
type liner interface {
	Line() string
}

// Delegate implements list.ItemDelegate for feed rows.
type Delegate struct{}

// Height returns the number of lines each item takes.
func (d Delegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d Delegate) Spacing() int { return 0 }

// Update handles per-item messages.
func (d Delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render draws a single list item line.
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	row, ok := item.(liner)
	if !ok {
		return
	}
	line := row.Line()
	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}
	fmt.Fprint(w, line)
}

func jobTypeLabel(t string) string {
	switch t {
	case model.JobTypeGovt:
		return "GOV"
	case model.JobTypePrivate:
		return "PVT"
	default:
		return "---"
	}
}

func lastDate(s string) string {
	if s == "" {
		return ""
	}
	return "apply by " + shortDate(s)
}

// shortDate keeps the date part of an ISO timestamp.
func shortDate(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
