package digest

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/content-portal/internal/model"
)

// Digest is a snapshot of what a viewer has not seen yet.
type Digest struct {
	Role       model.Role
	Items      []model.Notification
	PostUnseen int
	At         time.Time
}

// Total is the number of unseen notifications of both kinds.
func (d Digest) Total() int { return len(d.Items) + d.PostUnseen }

// Subject is the mail subject line.
func (d Digest) Subject() string {
	if d.Total() == 1 {
		return "Portal: 1 unseen notification"
	}
	return fmt.Sprintf("Portal: %d unseen notifications", d.Total())
}

// WriteText renders the plain text body.
func (d Digest) WriteText(w io.Writer) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Unseen notifications for %s as of %s\n\n", d.Role, d.At.Format("2006-01-02 15:04"))
	if len(d.Items) == 0 {
		b.WriteString("No pending approval requests.\n")
	}
	for _, n := range d.Items {
		fmt.Fprintf(&b, "- [%s] %s", n.Role, n.Message)
		if n.Requester != "" {
			fmt.Fprintf(&b, " (%s)", n.Requester)
		}
		if n.Status != "" {
			fmt.Fprintf(&b, " %s", n.Status)
		}
		if !n.Timestamp.IsZero() {
			fmt.Fprintf(&b, " at %s", n.Timestamp.Format("2006-01-02 15:04"))
		}
		b.WriteString("\n")
	}
	if d.PostUnseen > 0 {
		fmt.Fprintf(&b, "\n%d unseen article notifications.\n", d.PostUnseen)
	}
	_, err := w.Write(b.Bytes())
	return err
}

// Compose writes d as an RFC 5322 message from one address to another.
func Compose(w io.Writer, d Digest, from, to string) error {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return fmt.Errorf("parsing from address %q: %w", from, err)
	}
	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("parsing to address %q: %w", to, err)
	}

	var h mail.Header
	h.SetDate(d.At)
	h.SetSubject(d.Subject())
	h.SetAddressList("From", []*mail.Address{fromAddr})
	h.SetAddressList("To", []*mail.Address{toAddr})
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return fmt.Errorf("generating message id: %w", err)
	}

	mw, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return fmt.Errorf("creating message writer: %w", err)
	}
	if err := d.WriteText(mw); err != nil {
		return fmt.Errorf("writing digest body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing message writer: %w", err)
	}
	return nil
}
