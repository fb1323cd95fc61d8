package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/nhle/content-portal/internal/api"
	"github.com/nhle/content-portal/internal/catalog"
	"github.com/nhle/content-portal/internal/credential"
	"github.com/nhle/content-portal/internal/digest"
	"github.com/nhle/content-portal/internal/logging"
	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/notify"
	"github.com/nhle/content-portal/internal/querycache"
	"github.com/nhle/content-portal/internal/session"
	"github.com/nhle/content-portal/internal/store"
	"github.com/nhle/content-portal/internal/telemetry"
)

// errNotSignedIn is returned by commands that need a session.
var errNotSignedIn = errors.New("not signed in; run `portal login <token>` first")

// services holds everything the commands share.
type services struct {
	cfg     *model.AppConfig
	logger  *log.Logger
	state   store.Backend
	vault   *credential.Vault
	cache   *querycache.Cache
	client  *api.Client
	catalog *catalog.Catalog
	notify  *notify.StateStore
	session *session.Manager

	closers []func() error
}

func bootstrap(ctx context.Context, cfg *model.AppConfig) (*services, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	s := &services{cfg: cfg, logger: logger}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(ctx)
	})

	s.state, err = store.Open(cfg.State)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("opening state backend: %w", err)
	}
	s.closers = append(s.closers, s.state.Close)

	ring, err := credential.Open()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.vault = credential.NewVault(ring)

	s.cache = querycache.New(cfg.Cache.MaxEntries,
		querycache.WithStaleAfter(cfg.Cache.StaleAfter()),
		querycache.WithLogger(logger),
	)

	s.notify = notify.NewStateStore(store.WithPrefix(s.state, "notifications"))
	s.session = session.NewManager(s.vault, s.cache, s.notify)

	s.client = api.NewClient(cfg.API.BaseURL,
		api.WithToken(s.session.Token),
		api.WithTimeout(time.Duration(cfg.API.TimeoutSec)*time.Second),
		api.WithMaxRetries(cfg.API.MaxRetries),
		api.WithLogger(logger),
	)
	s.catalog = catalog.New(s.client, s.cache, logger)

	if cfg.Metrics.Addr != "" {
		s.serveMetrics(cfg.Metrics.Addr)
	}
	return s, nil
}

// serveMetrics exposes the cache collector on addr until Close.
func (s *services) serveMetrics(addr string) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(s.cache.Collector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).WithField("addr", addr).Warn("metrics server stopped")
		}
	}()
	s.closers = append(s.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// reconciler builds the notification reconciler for the signed-in viewer.
func (s *services) reconciler() (*notify.Reconciler, session.Session, error) {
	sess, err := s.session.Current()
	if err != nil {
		if errors.Is(err, session.ErrSignedOut) || errors.Is(err, session.ErrExpired) {
			return nil, sess, errNotSignedIn
		}
		return nil, sess, err
	}
	rec := notify.NewReconciler(s.client, s.cache, s.notify, sess.Role, notify.WithLogger(s.logger))
	return rec, sess, nil
}

// digestSender returns nil when digest delivery is disabled.
func (s *services) digestSender(sess session.Session) (*digest.Sender, error) {
	cfg := s.cfg.Digest
	if !cfg.Enabled {
		return nil, nil
	}
	password, err := s.vault.Secret(credential.DigestPassword)
	if err != nil {
		return nil, fmt.Errorf("reading digest password: %w", err)
	}
	username := cfg.Username
	if username == "" {
		username = sess.Email
	}
	box := digest.NewIMAPMailbox(cfg.Host, cfg.Port, username, password, cfg.TLS)
	from := cfg.From
	if from == "" {
		from = username
	}
	return digest.NewSender(box, cfg.Mailbox, from, sess.Email), nil
}

// Close releases resources in reverse order of acquisition.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.WithError(err).Warn("shutdown")
		}
	}
	s.closers = nil
}
