package events

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/querycache"
)

// Event is a notification change pushed by the portal backend.
type Event struct {
	Kind           model.NotificationKind `json:"kind"`
	Role           string                 `json:"role"`
	NotificationID model.ID               `json:"notificationId"`
}

// Reader is the subset of *kafka.Reader the listener uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewReader returns a consumer-group reader for topic on the
// comma-separated brokers.
func NewReader(brokers, groupID, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        strings.Split(brokers, ","),
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        2 * time.Second,
		CommitInterval: time.Second,
	})
}

// Listener turns notification events into cache invalidations so the
// next read goes to the server instead of waiting for the poll.
type Listener struct {
	reader   Reader
	cache    *querycache.Cache
	role     model.Role
	onChange func(model.NotificationKind)
	logger   *log.Logger
}

// NewListener creates a listener for a viewer with role. onChange, if
// set, is called after every invalidation.
func NewListener(r Reader, cache *querycache.Cache, role model.Role, onChange func(model.NotificationKind), logger *log.Logger) *Listener {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Listener{reader: r, cache: cache, role: role, onChange: onChange, logger: logger}
}

// Run consumes events until ctx is done. Fetch errors are logged and
// retried after a second.
func (l *Listener) Run(ctx context.Context) error {
	defer func() {
		_ = l.reader.Close()
	}()

	l.logger.WithField("role", l.role).Info("notification listener started")
	for {
		m, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.WithError(err).Warn("fetching notification event")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := l.Handle(m.Value); err != nil {
			l.logger.WithError(err).WithField("offset", m.Offset).Warn("handling notification event")
		}
		if err := l.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			l.logger.WithError(err).Warn("committing notification event")
		}
	}
}

// Handle applies one event payload. Approval events addressed to roles
// the viewer does not follow are ignored.
func (l *Listener) Handle(value []byte) error {
	var ev Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("decoding notification event: %w", err)
	}

	var prefix querycache.Key
	switch ev.Kind {
	case model.KindPost:
		prefix = querycache.Notifications.Sub("posts")
	case model.KindApproval, "":
		if !slices.Contains(l.role.ApprovalAudiences(), model.ParseRole(ev.Role)) {
			return nil
		}
		prefix = querycache.Notifications.Sub("roles")
	default:
		return fmt.Errorf("unknown notification event kind %q", ev.Kind)
	}

	n := l.cache.Invalidate(querycache.Prefix(prefix))
	l.logger.WithFields(log.Fields{"kind": ev.Kind, "role": ev.Role, "invalidated": n}).Debug("notification event")
	if l.onChange != nil {
		kind := ev.Kind
		if kind == "" {
			kind = model.KindApproval
		}
		l.onChange(kind)
	}
	return nil
}
