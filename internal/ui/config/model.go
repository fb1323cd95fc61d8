package config

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/content-portal/internal/credential"
	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/theme"
)

// ConfigMode represents the current state of the settings editor.
type ConfigMode int

const (
	ModeForm           ConfigMode = iota // Editing settings
	ModeValidating                       // Testing the digest mailbox
	ModeValidateResult                   // Show validation or save result
)

// DoneMsg signals the editor is finished. Saved is false when the user
// aborted.
type DoneMsg struct {
	Saved bool
}

// ValidateResultMsg carries the result of a mailbox check.
type ValidateResultMsg struct {
	Err error
}

// savedMsg is sent after the settings are persisted.
type savedMsg struct {
	err error
}

// SecretStore keeps passwords out of the config file. *credential.Vault
// satisfies it.
type SecretStore interface {
	SetSecret(key, value string) error
}

// CheckFunc tests digest delivery settings before they are saved.
type CheckFunc func(ctx context.Context, cfg model.DigestConfig, password string) error

// SaveFunc persists the configuration.
type SaveFunc func(cfg *model.AppConfig) error

// checkTimeout bounds a mailbox check.
const checkTimeout = 20 * time.Second

// fields holds the values huh binds to. It lives on the heap so the
// form keeps pointing at it while Model is copied.
type fields struct {
	baseURL      string
	timeoutSec   string
	pollSec      string
	backend      string
	sqlitePath   string
	redisAddr    string
	digestOn     bool
	imapHost     string
	imapPort     string
	imapUser     string
	imapPassword string
	imapMailbox  string
	imapTLS      bool
	eventsOn     bool
	brokers      string
	topic        string
}

// Model is the Bubble Tea model for the settings editor.
type Model struct {
	mode    ConfigMode
	cfg     model.AppConfig
	form    *huh.Form
	f       *fields
	spinner spinner.Model

	save    SaveFunc
	secrets SecretStore
	check   CheckFunc

	validError error
	saved      bool
	statusMsg  string

	width, height int
}

// New creates an editor seeded with cfg. check may be nil to skip the
// mailbox test.
func New(cfg model.AppConfig, save SaveFunc, secrets SecretStore, check CheckFunc, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		mode:    ModeForm,
		cfg:     cfg,
		f:       fieldsFrom(cfg),
		spinner: sp,
		save:    save,
		secrets: secrets,
		check:   check,
		width:   width,
		height:  height,
	}
	m.form = m.buildForm()
	return m
}

func fieldsFrom(cfg model.AppConfig) *fields {
	return &fields{
		baseURL:     cfg.API.BaseURL,
		timeoutSec:  strconv.Itoa(cfg.API.TimeoutSec),
		pollSec:     strconv.Itoa(cfg.Notifications.PollIntervalSec),
		backend:     cfg.State.Backend,
		sqlitePath:  cfg.State.SQLitePath,
		redisAddr:   cfg.State.RedisAddr,
		digestOn:    cfg.Digest.Enabled,
		imapHost:    cfg.Digest.Host,
		imapPort:    cfg.Digest.Port,
		imapUser:    cfg.Digest.Username,
		imapMailbox: cfg.Digest.Mailbox,
		imapTLS:     cfg.Digest.TLS,
		eventsOn:    cfg.Events.Enabled,
		brokers:     cfg.Events.Brokers,
		topic:       cfg.Events.Topic,
	}
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages and dispatches based on current mode.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case ValidateResultMsg:
		if msg.Err != nil {
			m.validError = msg.Err
			m.mode = ModeValidateResult
			return m, nil
		}
		return m, m.persist()

	case savedMsg:
		m.validError = msg.err
		m.saved = msg.err == nil
		m.mode = ModeValidateResult
		return m, nil

	case spinner.TickMsg:
		if m.mode == ModeValidating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeValidating:
			// Only allow escape during validation
			if msg.String() == "esc" {
				m.mode = ModeForm
				m.form = m.buildForm()
				return m, m.form.Init()
			}
			return m, nil
		case ModeValidateResult:
			return m.handleResultKeys(msg)
		}
	}

	if m.mode == ModeForm {
		return m.updateForm(msg)
	}
	return m, nil
}

func (m Model) handleResultKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "r":
		if m.validError != nil {
			return m.submit()
		}
	case "e":
		if m.validError != nil {
			m.mode = ModeForm
			m.form = m.buildForm()
			return m, m.form.Init()
		}
	case "enter", "esc", "q":
		saved := m.saved
		return m, func() tea.Msg { return DoneMsg{Saved: saved} }
	}
	return m, nil
}

func (m *Model) buildForm() *huh.Form {
	f := m.f
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API base URL").
				Description("Root of the portal REST API").
				Placeholder("https://portal.example.com/api").
				Value(&f.baseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Request timeout (seconds)").
				Value(&f.timeoutSec).
				Validate(validateSeconds),
			huh.NewInput().
				Title("Notification poll interval (seconds)").
				Value(&f.pollSec).
				Validate(validateSeconds),
		).Title("Server"),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("State backend").
				Description("Where seen notifications are remembered").
				Options(huh.NewOptions("sqlite", "keyring", "redis", "memory")...).
				Value(&f.backend),
			huh.NewInput().
				Title("SQLite path").
				Value(&f.sqlitePath),
			huh.NewInput().
				Title("Redis address").
				Placeholder("localhost:6379").
				Value(&f.redisAddr),
		).Title("Local state"),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Deliver digests").
				Description("Append unseen notification digests to an IMAP mailbox").
				Affirmative("Yes").
				Negative("No").
				Value(&f.digestOn),
			huh.NewInput().
				Title("IMAP host").
				Placeholder("imap.example.com").
				Value(&f.imapHost),
			huh.NewInput().
				Title("IMAP port").
				Placeholder("993").
				Value(&f.imapPort).
				Validate(validatePort),
			huh.NewInput().
				Title("Username").
				Description("Defaults to the signed-in email").
				Value(&f.imapUser),
			huh.NewInput().
				Title("Password").
				Description("Leave empty to keep the stored password").
				EchoMode(huh.EchoModePassword).
				Value(&f.imapPassword),
			huh.NewInput().
				Title("Mailbox").
				Value(&f.imapMailbox),
			huh.NewConfirm().
				Title("Use TLS").
				Affirmative("Yes").
				Negative("No").
				Value(&f.imapTLS),
		).Title("Digest"),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Follow notification events").
				Description("Refresh as soon as the server publishes a change").
				Affirmative("Yes").
				Negative("No").
				Value(&f.eventsOn),
			huh.NewInput().
				Title("Kafka brokers").
				Description("Comma separated host:port list").
				Value(&f.brokers),
			huh.NewInput().
				Title("Topic").
				Value(&f.topic),
		).Title("Events"),
	).WithWidth(m.formWidth()).WithShowHelp(true)
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m.submit()
	case huh.StateAborted:
		return m, func() tea.Msg { return DoneMsg{} }
	}
	return m, cmd
}

// Config returns the configuration the form currently describes.
func (m Model) Config() model.AppConfig {
	cfg := m.cfg
	f := m.f

	cfg.API.BaseURL = strings.TrimSpace(f.baseURL)
	cfg.API.TimeoutSec = atoiOr(f.timeoutSec, cfg.API.TimeoutSec)
	cfg.Notifications.PollIntervalSec = atoiOr(f.pollSec, cfg.Notifications.PollIntervalSec)
	cfg.State.Backend = f.backend
	cfg.State.SQLitePath = strings.TrimSpace(f.sqlitePath)
	cfg.State.RedisAddr = strings.TrimSpace(f.redisAddr)
	cfg.Digest.Enabled = f.digestOn
	cfg.Digest.Host = strings.TrimSpace(f.imapHost)
	cfg.Digest.Port = strings.TrimSpace(f.imapPort)
	cfg.Digest.Username = strings.TrimSpace(f.imapUser)
	cfg.Digest.Mailbox = strings.TrimSpace(f.imapMailbox)
	cfg.Digest.TLS = f.imapTLS
	cfg.Events.Enabled = f.eventsOn
	cfg.Events.Brokers = strings.TrimSpace(f.brokers)
	cfg.Events.Topic = strings.TrimSpace(f.topic)
	return cfg
}

// submit checks the mailbox when digests are on, then saves.
func (m Model) submit() (Model, tea.Cmd) {
	cfg := m.Config()
	if !cfg.Digest.Enabled || m.check == nil {
		return m, m.persist()
	}
	if cfg.Digest.Host == "" {
		m.validError = fmt.Errorf("IMAP host is required when digests are on")
		m.mode = ModeValidateResult
		return m, nil
	}

	m.mode = ModeValidating
	check, password := m.check, m.f.imapPassword
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		return ValidateResultMsg{Err: check(ctx, cfg.Digest, password)}
	})
}

// persist stores the password, if one was entered, and the config file.
func (m Model) persist() tea.Cmd {
	cfg := m.Config()
	password := m.f.imapPassword
	save, secrets := m.save, m.secrets
	return func() tea.Msg {
		if password != "" && secrets != nil {
			if err := secrets.SetSecret(credential.DigestPassword, password); err != nil {
				return savedMsg{err: fmt.Errorf("saving digest password: %w", err)}
			}
		}
		return savedMsg{err: save(&cfg)}
	}
}

// --- View ---

// View renders the editor based on the current mode.
func (m Model) View() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	switch m.mode {
	case ModeForm:
		title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).MarginBottom(1)
		return style.Render(title.Render("Portal Settings") + "\n" + m.form.View())

	case ModeValidating:
		return style.Render(fmt.Sprintf(
			"%s Testing the digest mailbox...\n\nPress esc to cancel.",
			m.spinner.View(),
		))

	case ModeValidateResult:
		hint := lipgloss.NewStyle().Foreground(theme.ColorGray)
		if m.validError != nil {
			errStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorRed)
			return style.Render(errStyle.Render("Settings not saved") + "\n\n" +
				m.validError.Error() + "\n\n" +
				hint.Render("r retry | e edit | esc quit"))
		}
		okStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorGreen)
		return style.Render(okStyle.Render("Settings saved") + "\n\n" +
			hint.Render("enter/esc close"))
	}
	return ""
}

// --- Helpers ---

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	if m.form != nil {
		m.form = m.form.WithWidth(m.formWidth())
	}
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// --- Validators ---

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., https://example.com)")
	}
	return nil
}

func validatePort(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return fmt.Errorf("port must be a number")
		}
	}
	return nil
}

func validateSeconds(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive number of seconds")
	}
	return nil
}

// program runs the editor as its own tea.Program.
type program struct {
	m Model
}

// Program wraps m so it can run on its own, quitting once editing is
// done.
func Program(m Model) tea.Model { return program{m: m} }

func (p program) Init() tea.Cmd { return p.m.Init() }

func (p program) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(DoneMsg); ok {
		return p, tea.Quit
	}
	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "ctrl+c" {
		return p, tea.Quit
	}
	var cmd tea.Cmd
	p.m, cmd = p.m.Update(msg)
	return p, cmd
}

func (p program) View() string { return p.m.View() }
