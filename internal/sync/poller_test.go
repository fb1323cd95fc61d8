package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nhle/content-portal/internal/api"
	"github.com/nhle/content-portal/internal/logging"
)

type countingRefresher struct {
	name  string
	calls atomic.Int32
	err   error
}

func (c *countingRefresher) Name() string { return c.name }

func (c *countingRefresher) Refresh(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func nextResult(t *testing.T, p *Poller) RefreshResultMsg {
	t.Helper()
	done := make(chan RefreshResultMsg, 1)
	go func() { done <- p.WaitForNextResult()().(RefreshResultMsg) }()
	select {
	case msg := <-done:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh result")
		return RefreshResultMsg{}
	}
}

func TestPollerRefreshesImmediatelyAndOnTrigger(t *testing.T) {
	r := &countingRefresher{name: "notifications"}
	p := New(logging.Discard())
	p.Register(r, time.Hour)

	if cmd := p.Start(); cmd == nil {
		t.Fatal("Start returned nil command")
	}
	defer p.Stop()

	if msg := nextResult(t, p); msg.Name != "notifications" || msg.Error != nil {
		t.Fatalf("first result = %+v", msg)
	}

	p.Refresh("notifications")
	nextResult(t, p)
	if got := r.calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}

	statuses := p.Statuses()
	if len(statuses) != 1 || statuses[0].State != SyncIdle || statuses[0].LastSync.IsZero() {
		t.Errorf("statuses = %+v", statuses)
	}
}

func TestPollerReportsAuthErrors(t *testing.T) {
	r := &countingRefresher{name: "notifications", err: &api.AuthError{Message: "expired"}}
	p := New(logging.Discard())
	p.Register(r, time.Hour)
	p.Start()
	defer p.Stop()

	msg := nextResult(t, p)
	if msg.AuthError == nil {
		t.Fatalf("result = %+v, want auth error", msg)
	}
	if p.Statuses()[0].State != SyncError {
		t.Errorf("state = %v", p.Statuses()[0].State)
	}
}

func TestPollerPlainErrorIsNotAuth(t *testing.T) {
	r := &countingRefresher{name: "posts", err: errors.New("boom")}
	p := New(logging.Discard())
	p.Register(r, time.Hour)
	p.Start()
	defer p.Stop()

	msg := nextResult(t, p)
	if msg.Error == nil || msg.AuthError != nil {
		t.Errorf("result = %+v", msg)
	}
}

func TestPollerTicks(t *testing.T) {
	r := &countingRefresher{name: "fast"}
	p := New(logging.Discard())
	p.Register(r, 10*time.Millisecond)
	p.Start()

	for i := 0; i < 3; i++ {
		nextResult(t, p)
	}
	p.Stop()

	if r.calls.Load() < 3 {
		t.Errorf("calls = %d", r.calls.Load())
	}
	p.Stop()
}
