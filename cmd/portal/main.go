// Command portal is a terminal client for the content portal: it shows
// the public job and article feeds and the viewer's notification inbox.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	flag "github.com/spf13/pflag"

	"github.com/nhle/content-portal/internal/app"
	"github.com/nhle/content-portal/internal/credential"
	"github.com/nhle/content-portal/internal/digest"
	"github.com/nhle/content-portal/internal/events"
	"github.com/nhle/content-portal/internal/keys"
	"github.com/nhle/content-portal/internal/listview"
	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/notify"
	"github.com/nhle/content-portal/internal/querycache"
	appsync "github.com/nhle/content-portal/internal/sync"
	"github.com/nhle/content-portal/internal/ui/config"
	"github.com/nhle/content-portal/internal/ui/feed"
)

const usage = `usage: portal [flags] [command]

commands:
  (none)          open the terminal UI
  unseen          print the unseen notifications
  digest          deliver the unseen digest to the configured mailbox
  login <token>   store an access token
  logout          forget the token and all local state
  configure       edit the settings
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "portal:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("portal", flag.ContinueOnError)
	configPath := fs.StringP("config", "c", model.DefaultConfigPath(), "path to config.yaml")
	asJSON := fs.Bool("json", false, "print machine readable output")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if fs.Arg(0) == "configure" {
		return runConfigure(ctx, *configPath, cfg)
	}

	s, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	switch cmd := fs.Arg(0); cmd {
	case "":
		return runTUI(ctx, s)
	case "unseen":
		return runUnseen(ctx, s, out, *asJSON)
	case "digest":
		return runDigest(ctx, s, out)
	case "login":
		if fs.NArg() < 2 {
			return errors.New("login needs a token")
		}
		sess, err := s.session.Login(fs.Arg(1))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "signed in as %s (%s), expires %s\n", sess.Email, sess.Role, formatExpiry(sess.ExpiresAt))
		return nil
	case "logout":
		if err := s.session.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "signed out")
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runTUI(ctx context.Context, s *services) error {
	rec, sess, err := s.reconciler()
	if err != nil {
		return err
	}
	defer rec.Close()

	sender, err := s.digestSender(sess)
	if err != nil {
		s.logger.WithError(err).Warn("digest delivery disabled")
	}

	k := keys.DefaultKeyMap()

	jobView := listview.NewView(s.cache, querycache.Jobs, s.catalog.JobPages, listview.Filters{})
	defer jobView.Close()
	articleView := listview.NewView(s.cache, querycache.Articles, s.catalog.ArticlePages, listview.Filters{})
	defer articleView.Close()

	poller := appsync.New(s.logger)
	poller.Register(rec, time.Duration(s.cfg.Notifications.PollIntervalSec)*time.Second)
	defer poller.Stop()

	root := app.New(app.Deps{
		Reconciler: rec,
		Jobs:       feed.New("Jobs", jobView, feed.NewJobItem, listview.JobType, feed.JobTypes, k, 80, 24),
		Articles:   feed.New("Articles", articleView, feed.NewArticleItem, listview.Section, feed.ArticleSections, k, 80, 24),
		Catalog:    s.catalog,
		Poller:     poller,
		Session:    s.session,
		Digest:     sender,
		Logger:     s.logger,
	}, k)

	p := tea.NewProgram(root, tea.WithAltScreen(), tea.WithContext(ctx))
	root.Attach(p)

	if s.cfg.Events.Enabled {
		reader := events.NewReader(s.cfg.Events.Brokers, s.cfg.Events.GroupID, s.cfg.Events.Topic)
		listener := events.NewListener(reader, s.cache, sess.Role, func(model.NotificationKind) {
			poller.Refresh(rec.Name())
		}, s.logger)
		evCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := listener.Run(evCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.WithError(err).Warn("event listener stopped")
			}
		}()
	}

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}

func runConfigure(ctx context.Context, path string, cfg *model.AppConfig) error {
	ring, err := credential.Open()
	if err != nil {
		return err
	}
	vault := credential.NewVault(ring)

	save := func(c *model.AppConfig) error { return model.SaveConfig(path, c) }
	check := func(ctx context.Context, d model.DigestConfig, password string) error {
		if password == "" {
			stored, err := vault.Secret(credential.DigestPassword)
			if err != nil {
				return err
			}
			password = stored
		}
		return digest.NewIMAPMailbox(d.Host, d.Port, d.Username, password, d.TLS).Check(ctx, d.Mailbox)
	}

	editor := config.New(*cfg, save, vault, check, 80, 24)
	if _, err := tea.NewProgram(config.Program(editor), tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running settings editor: %w", err)
	}
	return nil
}

// unseenRow is the machine readable form of one unseen notification.
type unseenRow struct {
	ID        model.ID                 `json:"id"`
	Kind      model.NotificationKind   `json:"kind"`
	Role      model.Role               `json:"role"`
	Status    model.NotificationStatus `json:"status,omitempty"`
	Message   string                   `json:"message"`
	Timestamp time.Time                `json:"timestamp"`
}

type unseenReport struct {
	Role       model.Role  `json:"role"`
	Total      int         `json:"total"`
	PostUnseen int         `json:"postUnseen"`
	Items      []unseenRow `json:"items"`
}

func loadUnseen(ctx context.Context, rec *notify.Reconciler) (unseenReport, error) {
	if err := rec.Refresh(ctx); err != nil {
		return unseenReport{}, err
	}
	if err := rec.LoadMorePosts(ctx); err != nil {
		return unseenReport{}, err
	}

	report := unseenReport{
		Role:       rec.Role(),
		Total:      rec.TotalUnseen(),
		PostUnseen: rec.PostUnseenCount(),
		Items:      []unseenRow{},
	}
	for _, n := range rec.UnseenItems(ctx) {
		report.Items = append(report.Items, unseenRow{
			ID: n.ID, Kind: n.Kind, Role: n.Role, Status: n.Status,
			Message: n.Message, Timestamp: n.Timestamp,
		})
	}
	return report, nil
}

func runUnseen(ctx context.Context, s *services, out io.Writer, asJSON bool) error {
	rec, _, err := s.reconciler()
	if err != nil {
		return err
	}
	defer rec.Close()

	report, err := loadUnseen(ctx, rec)
	if err != nil {
		return err
	}

	if asJSON || !isTerminal(out) {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return writeUnseenTable(out, report)
}

func writeUnseenTable(out io.Writer, r unseenReport) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ROLE\tSTATUS\tWHEN\tMESSAGE\n")
	for _, row := range r.Items {
		status := string(row.Status)
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Role, status, row.Timestamp.Local().Format("Jan 02 15:04"), oneLine(row.Message))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\n%d unseen as %s (%d posts)\n", r.Total, r.Role, r.PostUnseen)
	return err
}

func runDigest(ctx context.Context, s *services, out io.Writer) error {
	rec, sess, err := s.reconciler()
	if err != nil {
		return err
	}
	defer rec.Close()

	sender, err := s.digestSender(sess)
	if err != nil {
		return err
	}
	if sender == nil {
		return errors.New("digest delivery is disabled; set digest.enabled in the config")
	}
	if err := rec.Refresh(ctx); err != nil {
		return err
	}
	if err := rec.LoadMorePosts(ctx); err != nil {
		return err
	}

	d, err := sender.Send(ctx, rec)
	if errors.Is(err, digest.ErrNothingToSend) {
		fmt.Fprintln(out, "nothing unseen, no digest sent")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "delivered digest with %d notifications\n", d.Total())
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 80 {
		return s[:77] + "..."
	}
	return s
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.RFC1123)
}
