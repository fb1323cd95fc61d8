package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nhle/content-portal/internal/api"
	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/paginate"
	"github.com/nhle/content-portal/internal/querycache"
)

// API is the subset of the portal client the reconciler needs.
type API interface {
	UnseenRoleNotifications(ctx context.Context, role model.Role) (api.NotificationList, error)
	MarkSeen(ctx context.Context, id model.ID) error
	MarkAllSeen(ctx context.Context, role model.Role) error
	Approve(ctx context.Context, id model.ID) error
	Reject(ctx context.Context, id model.ID, reason string) error
	PostNotifications(ctx context.Context, cursor *string) (model.Page[model.Notification], error)
	PostUnseenCount(ctx context.Context) (int, error)
	MarkPostSeen(ctx context.Context, id model.ID) error
}

// Fallback messages shown when a failed action carries no server message.
const (
	approveFallback = "Failed to approve request"
	rejectFallback  = "Failed to reject request"
)

// ActionError is a failed approve or reject. Message is fit for display.
type ActionError struct {
	Action  string
	ID      model.ID
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Action, e.ID, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Cache keys owned by the reconciler.
var (
	postCountKey = querycache.Notifications.Sub("posts", "unseen-count")
	postFeedKey  = querycache.Notifications.Sub("posts", "feed")
)

func roleKey(role model.Role) querycache.Key {
	return querycache.Notifications.Sub("roles", "unseen", string(role))
}

// Reconciler merges the server's notification lists with the locally
// persisted suppression state and exposes one unseen view per viewer.
//
// The server's bulk "seen all" only clears the caller's own role. A
// viewer who also sees other roles' approval requests gets those marked
// one by one, and the local cutoff covers whatever the loop missed.
type Reconciler struct {
	api    API
	cache  *querycache.Cache
	state  *StateStore
	role   model.Role
	logger *log.Logger
	now    func() time.Time

	// workers bounds the concurrent per-item seen calls.
	workers int

	mu          sync.Mutex
	items       []model.Notification
	unseenCount int
	postUnseen  int
	loaded      bool

	// itemsGen and postGen advance on every local change to the role
	// list and the post count. A response is applied only if the
	// generation it was requested under is still current.
	itemsGen uint64
	postGen  uint64

	posts   *paginate.Accumulator[model.Notification]
	unwatch func()
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock replaces time.Now for the seen cutoff.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithWorkers bounds the concurrent per-item seen calls.
func WithWorkers(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.workers = n
		}
	}
}

// NewReconciler creates a reconciler for a viewer with role.
func NewReconciler(client API, cache *querycache.Cache, state *StateStore, role model.Role, opts ...Option) *Reconciler {
	r := &Reconciler{
		api:     client,
		cache:   cache,
		state:   state,
		role:    role,
		logger:  log.StandardLogger(),
		now:     time.Now,
		workers: 4,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.posts = paginate.New(r.fetchPostPage)
	r.unwatch = cache.Watch(r.handleEvent)
	return r
}

// Close stops following cache invalidations.
func (r *Reconciler) Close() {
	if r.unwatch != nil {
		r.unwatch()
	}
}

// Name identifies the reconciler to the poller.
func (r *Reconciler) Name() string { return "notifications" }

// Role returns the viewer's role.
func (r *Reconciler) Role() model.Role { return r.role }

// Refresh reloads the role notifications and the post unseen count from
// the server. On failure the previously loaded state is kept and the
// error is returned after logging. A response requested before a local
// change such as a seen mark or an approval is dropped.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	itemsGen, postGen := r.itemsGen, r.postGen
	r.mu.Unlock()

	state, err := r.state.Snapshot(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("reading notification state")
		state = SuppressionState{}
	}

	var errs []error

	if r.role.CanReview() {
		list, err := querycache.Refetch(ctx, r.cache, roleKey(r.role), func(ctx context.Context) (api.NotificationList, error) {
			return r.api.UnseenRoleNotifications(ctx, r.role)
		})
		switch {
		case errors.Is(err, querycache.ErrSuperseded):
			r.logger.WithField("role", r.role).Debug("role notifications changed during refresh")
		case err != nil:
			r.logger.WithError(err).WithField("role", r.role).Warn("refreshing role notifications")
			errs = append(errs, err)
		default:
			r.mu.Lock()
			if r.itemsGen == itemsGen {
				r.items = list.Items
				r.unseenCount = countUnseen(list.Items, state)
				r.loaded = true
			}
			r.mu.Unlock()
		}
	}

	count, err := querycache.Refetch(ctx, r.cache, postCountKey, r.api.PostUnseenCount)
	switch {
	case errors.Is(err, querycache.ErrSuperseded):
		r.logger.Debug("post unseen count changed during refresh")
	case err != nil:
		r.logger.WithError(err).Warn("refreshing post unseen count")
		errs = append(errs, err)
	default:
		r.mu.Lock()
		if r.postGen == postGen {
			r.postUnseen = count
		}
		r.mu.Unlock()
	}

	return errors.Join(errs...)
}

func countUnseen(items []model.Notification, state SuppressionState) int {
	n := 0
	for _, it := range items {
		if !state.IsSeen(it) {
			n++
		}
	}
	return n
}

// Loaded reports whether the role notifications were fetched at least once.
func (r *Reconciler) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// UnseenItems returns the loaded role notifications the viewer has not
// seen, in server order.
func (r *Reconciler) UnseenItems(ctx context.Context) []model.Notification {
	state, err := r.state.Snapshot(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("reading notification state")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Notification, 0, len(r.items))
	for _, n := range r.items {
		if !state.IsSeen(n) {
			out = append(out, n)
		}
	}
	return out
}

// UnseenCount is the displayed role unseen count. It is recomputed on
// every refresh and decremented optimistically by MarkSeen; it never
// goes below zero.
func (r *Reconciler) UnseenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unseenCount
}

// PostUnseenCount is the unseen post notification count.
func (r *Reconciler) PostUnseenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.postUnseen
}

// TotalUnseen is the badge count: role plus post notifications.
func (r *Reconciler) TotalUnseen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unseenCount + r.postUnseen
}

// MarkSeen marks one notification seen on the server, then suppresses it
// locally and decrements the displayed count.
func (r *Reconciler) MarkSeen(ctx context.Context, id model.ID) error {
	if err := r.api.MarkSeen(ctx, id); err != nil {
		return err
	}
	if err := r.state.Suppress(ctx, id); err != nil {
		r.logger.WithError(err).WithField("id", id).Warn("persisting seen notification")
	}

	r.mu.Lock()
	r.itemsGen++
	if r.unseenCount > 0 {
		r.unseenCount--
	}
	r.mu.Unlock()
	return nil
}

// MarkAllSeen clears the viewer's own role with the bulk endpoint, marks
// every loaded unseen item of another role seen one by one, records the
// seen cutoff and reloads the notifications.
//
// Only items loaded at call time are covered by the per-item loop. The
// cutoff hides older items locally but the server still reports them
// unseen to other clients.
func (r *Reconciler) MarkAllSeen(ctx context.Context) error {
	if err := r.api.MarkAllSeen(ctx, r.role); err != nil {
		return err
	}

	r.mu.Lock()
	var others []model.ID
	for _, n := range r.items {
		if n.Role != r.role && !n.Seen {
			others = append(others, n.ID)
		}
	}
	r.mu.Unlock()

	loopErr := r.markEach(ctx, others)

	if err := r.state.SetLastSeenAll(ctx, r.now()); err != nil {
		r.logger.WithError(err).Warn("persisting seen cutoff")
	}

	r.mu.Lock()
	r.itemsGen++
	r.mu.Unlock()
	r.cache.Invalidate(querycache.Prefix(querycache.Notifications.Sub("roles")))
	if err := r.Refresh(ctx); err != nil {
		r.logger.WithError(err).Warn("reloading after mark all seen")
	}
	return loopErr
}

// markEach calls the single-item seen endpoint for ids with bounded
// concurrency and suppresses each id that succeeded.
func (r *Reconciler) markEach(ctx context.Context, ids []model.ID) error {
	if len(ids) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		done []model.ID
		sem  = make(chan struct{}, r.workers)
	)
	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(id model.ID) {
			defer wg.Done()
			defer func() { <-sem }()

			err := r.api.MarkSeen(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			done = append(done, id)
		}(id)
	}
	wg.Wait()

	if err := r.state.Suppress(ctx, done...); err != nil {
		r.logger.WithError(err).Warn("persisting seen notifications")
	}
	if len(errs) > 0 {
		return fmt.Errorf("marking %d of %d notifications seen failed: %w", len(errs), len(ids), errors.Join(errs...))
	}
	return nil
}

// Approve approves a pending request. Nothing changes locally until the
// server confirms; then the whole notification family is reloaded.
func (r *Reconciler) Approve(ctx context.Context, id model.ID) error {
	if err := r.api.Approve(ctx, id); err != nil {
		return &ActionError{Action: "approve", ID: id, Message: api.MessageOf(err, approveFallback), Err: err}
	}
	r.afterAction(ctx)
	return nil
}

// Reject rejects a pending request with a reason, like Approve.
func (r *Reconciler) Reject(ctx context.Context, id model.ID, reason string) error {
	if err := r.api.Reject(ctx, id, reason); err != nil {
		return &ActionError{Action: "reject", ID: id, Message: api.MessageOf(err, rejectFallback), Err: err}
	}
	r.afterAction(ctx)
	return nil
}

func (r *Reconciler) afterAction(ctx context.Context) {
	r.mu.Lock()
	r.itemsGen++
	r.postGen++
	r.mu.Unlock()
	r.cache.Invalidate(querycache.Resource(querycache.Notifications.Resource))
	if err := r.Refresh(ctx); err != nil {
		r.logger.WithError(err).Warn("reloading after approval action")
	}
}

func (r *Reconciler) fetchPostPage(ctx context.Context, cursor *string) (model.Page[model.Notification], error) {
	key := postFeedKey
	if cursor != nil {
		key = key.WithFilters(map[string]string{"cursor": *cursor})
	}
	return querycache.Fetch(ctx, r.cache, key, func(ctx context.Context) (model.Page[model.Notification], error) {
		return r.api.PostNotifications(ctx, cursor)
	})
}

// LoadMorePosts fetches the next page of the post notification feed.
func (r *Reconciler) LoadMorePosts(ctx context.Context) error {
	_, err := r.posts.FetchNext(ctx)
	if errors.Is(err, paginate.ErrSuperseded) {
		return nil
	}
	return err
}

// PostItems returns the loaded post notifications in feed order.
func (r *Reconciler) PostItems() []model.Notification {
	return r.posts.Items()
}

// HasMorePosts reports whether the feed has another page.
func (r *Reconciler) HasMorePosts() bool {
	return r.posts.HasMore() || !r.posts.Loaded()
}

// MarkPostSeen marks a post notification seen and reloads the feed.
func (r *Reconciler) MarkPostSeen(ctx context.Context, id model.ID) error {
	if err := r.api.MarkPostSeen(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	r.postGen++
	if r.postUnseen > 0 {
		r.postUnseen--
	}
	r.mu.Unlock()

	r.cache.Invalidate(querycache.Prefix(querycache.Notifications.Sub("posts")))
	return nil
}

// handleEvent drops the loaded feed when its pages are invalidated and
// retires responses in flight for an invalidated list or count.
func (r *Reconciler) handleEvent(ev querycache.Event) {
	if ev.Kind != querycache.EventInvalidated {
		return
	}
	switch {
	case ev.Key.HasPrefix(postFeedKey):
		r.posts.Reset()
	case ev.Key.Equal(roleKey(r.role)):
		r.mu.Lock()
		r.itemsGen++
		r.mu.Unlock()
	case ev.Key.Equal(postCountKey):
		r.mu.Lock()
		r.postGen++
		r.mu.Unlock()
	}
}
