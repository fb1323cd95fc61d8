package digest

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/nhle/content-portal/internal/model"
)

// ErrNothingToSend is returned by Send when the viewer has seen everything.
var ErrNothingToSend = errors.New("no unseen notifications")

// Source provides the unseen state. *notify.Reconciler satisfies it.
type Source interface {
	Role() model.Role
	UnseenItems(ctx context.Context) []model.Notification
	PostUnseenCount() int
}

// Mailbox stores a composed message.
type Mailbox interface {
	Append(ctx context.Context, mailbox string, msg []byte, at time.Time) error
}

// Sender builds digests from a Source and delivers them to a Mailbox.
type Sender struct {
	box     Mailbox
	mailbox string
	from    string
	to      string
	now     func() time.Time
}

// NewSender creates a sender that appends to folder as from -> to.
func NewSender(box Mailbox, folder, from, to string) *Sender {
	if folder == "" {
		folder = "INBOX"
	}
	return &Sender{box: box, mailbox: folder, from: from, to: to, now: time.Now}
}

// Build snapshots src.
func (s *Sender) Build(ctx context.Context, src Source) Digest {
	return Digest{
		Role:       src.Role(),
		Items:      src.UnseenItems(ctx),
		PostUnseen: src.PostUnseenCount(),
		At:         s.now(),
	}
}

// Send composes and delivers the digest for src. It returns
// ErrNothingToSend rather than delivering an empty digest.
func (s *Sender) Send(ctx context.Context, src Source) (Digest, error) {
	d := s.Build(ctx, src)
	if d.Total() == 0 {
		return d, ErrNothingToSend
	}

	var buf bytes.Buffer
	if err := Compose(&buf, d, s.from, s.to); err != nil {
		return d, err
	}
	return d, s.box.Append(ctx, s.mailbox, buf.Bytes(), d.At)
}
