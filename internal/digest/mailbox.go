package digest

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/content-portal/internal/api"
)

// IMAPMailbox delivers digests by appending them to an IMAP mailbox, so
// they show up in the user's mail client without an SMTP relay.
type IMAPMailbox struct {
	host     string
	port     string
	username string
	password string
	tls      bool
}

// NewIMAPMailbox creates a mailbox configuration.
func NewIMAPMailbox(host, port, username, password string, tls bool) *IMAPMailbox {
	return &IMAPMailbox{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
	}
}

// connect dials and authenticates. The caller logs out.
func (m *IMAPMailbox) connect() (*imapclient.Client, error) {
	addr := m.host + ":" + m.port

	var client *imapclient.Client
	var err error
	if m.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(m.username, m.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &api.AuthError{Message: fmt.Sprintf("IMAP login failed for %s: %v", m.username, err)}
	}
	return client, nil
}

// Append stores msg in mailbox as an unread message dated at.
func (m *IMAPMailbox) Append(ctx context.Context, mailbox string, msg []byte, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := m.connect()
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	cmd := client.Append(mailbox, int64(len(msg)), &imap.AppendOptions{Time: at})
	if _, err := bytes.NewReader(msg).WriteTo(cmd); err != nil {
		_ = cmd.Close()
		return fmt.Errorf("writing message to %s: %w", mailbox, err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("closing append to %s: %w", mailbox, err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("appending to %s: %w", mailbox, err)
	}
	return nil
}

// Check logs in and verifies that mailbox exists.
func (m *IMAPMailbox) Check(ctx context.Context, mailbox string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := m.connect()
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Status(mailbox, &imap.StatusOptions{NumMessages: true}).Wait(); err != nil {
		return fmt.Errorf("checking mailbox %s: %w", mailbox, err)
	}
	return nil
}
