package digest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/emersion/go-message"

	"github.com/nhle/content-portal/internal/model"
)

type fakeSource struct {
	role  model.Role
	items []model.Notification
	posts int
}

func (f fakeSource) Role() model.Role { return f.role }

func (f fakeSource) UnseenItems(context.Context) []model.Notification { return f.items }

func (f fakeSource) PostUnseenCount() int { return f.posts }

type recordingBox struct {
	mailbox string
	msg     []byte
	at      time.Time
}

func (r *recordingBox) Append(_ context.Context, mailbox string, msg []byte, at time.Time) error {
	r.mailbox, r.msg, r.at = mailbox, msg, at
	return nil
}

func TestComposeProducesReadableMessage(t *testing.T) {
	faker := gofakeit.New(5)
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	d := Digest{
		Role: model.RoleAdmin,
		Items: []model.Notification{
			{ID: "1", Role: model.RoleAdmin, Message: faker.Sentence(5), Requester: faker.Email(), Status: model.StatusPending, Timestamp: at},
			{ID: "2", Role: model.RoleAdmin, Message: faker.Sentence(5)},
		},
		PostUnseen: 3,
		At:         at,
	}

	var buf bytes.Buffer
	if err := Compose(&buf, d, "portal@example.com", "admin@example.com"); err != nil {
		t.Fatalf("Compose: %v", err)
	}

	e, err := message.Read(&buf)
	if err != nil {
		t.Fatalf("reading composed message: %v", err)
	}
	if got := e.Header.Get("Subject"); got != "Portal: 5 unseen notifications" {
		t.Errorf("Subject = %q", got)
	}
	if !strings.Contains(e.Header.Get("To"), "admin@example.com") {
		t.Errorf("To = %q", e.Header.Get("To"))
	}
	body, err := io.ReadAll(e.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	text := string(body)
	for _, want := range []string{d.Items[0].Message, d.Items[0].Requester, "PENDING", "3 unseen article notifications"} {
		if !strings.Contains(text, want) {
			t.Errorf("body missing %q:\n%s", want, text)
		}
	}
}

func TestComposeRejectsBadAddress(t *testing.T) {
	if err := Compose(io.Discard, Digest{At: time.Now()}, "not an address", "a@example.com"); err == nil {
		t.Error("bad from address accepted")
	}
}

func TestSenderSkipsEmptyDigest(t *testing.T) {
	box := &recordingBox{}
	s := NewSender(box, "", "portal@example.com", "me@example.com")

	_, err := s.Send(context.Background(), fakeSource{role: model.RoleAdmin})
	if !errors.Is(err, ErrNothingToSend) {
		t.Fatalf("Send error = %v, want ErrNothingToSend", err)
	}
	if box.msg != nil {
		t.Error("empty digest delivered")
	}
}

func TestSenderAppendsToMailbox(t *testing.T) {
	box := &recordingBox{}
	s := NewSender(box, "Portal", "portal@example.com", "me@example.com")
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	d, err := s.Send(context.Background(), fakeSource{role: model.RoleCreator, posts: 1})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if d.Total() != 1 || d.Subject() != "Portal: 1 unseen notification" {
		t.Errorf("digest = %+v", d)
	}
	if box.mailbox != "Portal" || !box.at.Equal(at) || len(box.msg) == 0 {
		t.Errorf("appended to %q at %v (%d bytes)", box.mailbox, box.at, len(box.msg))
	}
}
