package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/store"
)

// Keys under which the suppression state is persisted.
const (
	SuppressedKey  = "cv_suppressed_notifs"
	LastSeenAllKey = "cv_last_seen_all"
)

// SuppressionState is the client-local record of what the user has seen
// beyond what the server reports.
type SuppressionState struct {
	SuppressedIDs map[model.ID]struct{}
	LastSeenAllAt *time.Time
}

// IsSeen reports whether n counts as seen: the server says so, the id
// was marked seen locally, or n is no newer than the last "mark all
// seen". A notification without a timestamp is never covered by the
// cutoff.
func (s SuppressionState) IsSeen(n model.Notification) bool {
	if n.Seen {
		return true
	}
	if _, ok := s.SuppressedIDs[n.ID]; ok {
		return true
	}
	return s.LastSeenAllAt != nil && !n.Timestamp.IsZero() && !n.Timestamp.After(*s.LastSeenAllAt)
}

func (s SuppressionState) clone() SuppressionState {
	out := SuppressionState{SuppressedIDs: make(map[model.ID]struct{}, len(s.SuppressedIDs))}
	for id := range s.SuppressedIDs {
		out.SuppressedIDs[id] = struct{}{}
	}
	if s.LastSeenAllAt != nil {
		t := *s.LastSeenAllAt
		out.LastSeenAllAt = &t
	}
	return out
}

// StateStore keeps the suppression state in memory and writes every
// change through to a KV. Writes are last-write-wins.
type StateStore struct {
	kv store.KV

	mu     sync.Mutex
	state  SuppressionState
	loaded bool
}

// NewStateStore returns a store backed by kv. The persisted state is
// read on first use.
func NewStateStore(kv store.KV) *StateStore {
	return &StateStore{kv: kv, state: SuppressionState{SuppressedIDs: map[model.ID]struct{}{}}}
}

// Load reads the persisted state. Unreadable values are dropped, the
// same as an empty store.
func (s *StateStore) Load(ctx context.Context) (SuppressionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return SuppressionState{}, err
	}
	return s.state.clone(), nil
}

func (s *StateStore) ensureLoadedLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	state := SuppressionState{SuppressedIDs: map[model.ID]struct{}{}}

	raw, err := s.kv.Get(ctx, SuppressedKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return fmt.Errorf("loading suppressed notifications: %w", err)
	default:
		var ids []model.ID
		if json.Unmarshal([]byte(raw), &ids) == nil {
			for _, id := range ids {
				state.SuppressedIDs[id] = struct{}{}
			}
		}
	}

	raw, err = s.kv.Get(ctx, LastSeenAllKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return fmt.Errorf("loading last seen cutoff: %w", err)
	default:
		if t, perr := model.ParseTimestamp(raw); perr == nil {
			state.LastSeenAllAt = &t
		}
	}

	s.state = state
	s.loaded = true
	return nil
}

// Snapshot returns a copy of the current state, loading it if needed.
func (s *StateStore) Snapshot(ctx context.Context) (SuppressionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return SuppressionState{}, err
	}
	return s.state.clone(), nil
}

// Suppress adds ids to the suppressed set and persists it. The in-memory
// state is updated even when persisting fails.
func (s *StateStore) Suppress(ctx context.Context, ids ...model.ID) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	for _, id := range ids {
		s.state.SuppressedIDs[id] = struct{}{}
	}

	list := make([]model.ID, 0, len(s.state.SuppressedIDs))
	for id := range s.state.SuppressedIDs {
		list = append(list, id)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encoding suppressed notifications: %w", err)
	}
	if err := s.kv.Set(ctx, SuppressedKey, string(data)); err != nil {
		return fmt.Errorf("saving suppressed notifications: %w", err)
	}
	return nil
}

// SetLastSeenAll records the "mark all seen" cutoff and persists it.
func (s *StateStore) SetLastSeenAll(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	s.state.LastSeenAllAt = &t
	if err := s.kv.Set(ctx, LastSeenAllKey, t.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("saving last seen cutoff: %w", err)
	}
	return nil
}

// Reset forgets the state, in memory and in the KV.
func (s *StateStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SuppressionState{SuppressedIDs: map[model.ID]struct{}{}}
	s.loaded = true
	return errors.Join(
		s.kv.Remove(ctx, SuppressedKey),
		s.kv.Remove(ctx, LastSeenAllKey),
	)
}
