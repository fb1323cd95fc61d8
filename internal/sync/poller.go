package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"github.com/nhle/content-portal/internal/api"
)

// Refresher is anything the poller reloads on an interval.
type Refresher interface {
	Name() string
	Refresh(ctx context.Context) error
}

// SyncState represents the current state of a refresher.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// SyncStatus holds the sync state for a single refresher.
type SyncStatus struct {
	Name     string
	State    SyncState
	LastSync time.Time
	Error    error
}

// RefreshResultMsg is a tea.Msg sent when a refresh completes.
type RefreshResultMsg struct {
	Name      string
	Error     error
	AuthError *AuthErrorMsg
}

// AuthErrorMsg is a tea.Msg sent when a refresh fails because the
// session is no longer accepted.
type AuthErrorMsg struct {
	Name    string
	Message string
}

// fetchTimeout is the maximum time allowed for a single refresh.
const fetchTimeout = 30 * time.Second

// DefaultInterval is used when a refresher is registered without one.
const DefaultInterval = 30 * time.Second

type entry struct {
	r        Refresher
	interval time.Duration
	trigger  chan struct{}
}

// Poller orchestrates background refreshes of registered refreshers.
type Poller struct {
	entries  []*entry
	statuses map[string]*SyncStatus
	resultCh chan RefreshResultMsg
	logger   *log.Logger

	mu      gosync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      gosync.WaitGroup
}

// New creates an empty Poller.
func New(logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Poller{
		statuses: make(map[string]*SyncStatus),
		resultCh: make(chan RefreshResultMsg, 16),
		logger:   logger,
	}
}

// Register adds a refresher polled every interval. It must be called
// before Start.
func (p *Poller) Register(r Refresher, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if interval <= 0 {
		interval = DefaultInterval
	}
	p.entries = append(p.entries, &entry{r: r, interval: interval, trigger: make(chan struct{}, 1)})
	p.statuses[r.Name()] = &SyncStatus{Name: r.Name(), State: SyncIdle}
}

// Start launches one polling goroutine per refresher and returns a
// command that delivers the first RefreshResultMsg.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	entries := append([]*entry(nil), p.entries...)
	p.mu.Unlock()

	for _, e := range entries {
		p.wg.Add(1)
		go p.poll(ctx, e)
	}
	return p.WaitForNextResult()
}

// Stop halts all polling goroutines, cancelling refreshes in flight, and
// waits for them to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
}

// RefreshAll triggers an immediate refresh of every refresher. A
// refresher that already has a trigger pending is not queued twice.
func (p *Poller) RefreshAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		select {
		case e.trigger <- struct{}{}:
		default:
		}
	}
}

// Refresh triggers an immediate refresh of the named refresher.
func (p *Poller) Refresh(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.r.Name() != name {
			continue
		}
		select {
		case e.trigger <- struct{}{}:
		default:
		}
	}
}

// Statuses returns the current status of every registered refresher.
func (p *Poller) Statuses() []SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(p.statuses))
	for _, e := range p.entries {
		statuses = append(statuses, *p.statuses[e.r.Name()])
	}
	return statuses
}

func (p *Poller) poll(ctx context.Context, e *entry) {
	defer p.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	p.refresh(ctx, e.r)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx, e.r)
		case <-e.trigger:
			p.refresh(ctx, e.r)
		}
	}
}

func (p *Poller) refresh(ctx context.Context, r Refresher) {
	name := r.Name()
	p.setStatus(name, SyncRunning, nil)

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	err := r.Refresh(ctx)
	if ctx.Err() != nil && err != nil {
		// Stopped mid-refresh; nothing to report.
		p.setStatus(name, SyncIdle, nil)
		return
	}
	if err != nil {
		p.setStatus(name, SyncError, err)
		p.logger.WithError(err).WithField("refresher", name).Warn("refresh failed")

		msg := RefreshResultMsg{Name: name, Error: err}
		if api.IsAuthError(err) {
			msg.AuthError = &AuthErrorMsg{
				Name:    name,
				Message: fmt.Sprintf("%s: session expired. Sign in again.", name),
			}
		}
		p.sendResult(msg)
		return
	}

	p.setStatus(name, SyncIdle, nil)
	p.sendResult(RefreshResultMsg{Name: name})
}

func (p *Poller) setStatus(name string, state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[name]
	if !ok {
		return
	}
	status.State = state
	status.Error = err
	if state == SyncIdle && err == nil {
		status.LastSync = time.Now()
	}
}

// sendResult delivers msg without blocking; results are dropped while
// the channel is full.
func (p *Poller) sendResult(msg RefreshResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next refresh
// result. Call it again after handling each RefreshResultMsg to keep
// listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return func() tea.Msg {
		return <-p.resultCh
	}
}
