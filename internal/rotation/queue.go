package rotation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/callowcreation/sfs-api/internal/notify"
	"github.com/callowcreation/sfs-api/internal/store"
	"github.com/callowcreation/sfs-api/pkg/logging"
	"github.com/callowcreation/sfs-api/pkg/models"
)

// Queue maintains the ordered per-channel rotation. All mutations serialize
// on the channel lock, broadcast only after their write is durable, and
// evict logically: events stay in the store, only the rotation forgets them.
type Queue struct {
	events     EventStore
	rotations  RotationStore
	settings   SettingsProvider
	dispatcher Dispatcher
	locks      *ChannelLocks
	logger     logging.Logger

	now func() int64
}

func NewQueue(events EventStore, rotations RotationStore, settings SettingsProvider, dispatcher Dispatcher, locks *ChannelLocks, logger logging.Logger) *Queue {
	return &Queue{
		events:     events,
		rotations:  rotations,
		settings:   settings,
		dispatcher: dispatcher,
		locks:      locks,
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Insert records a shoutout and places it at the head of the rotation.
// Automatic shoutouts are dropped entirely when the channel has not opted in;
// a dropped insert returns a nil event and no error. Any existing entry for
// the same streamer (case-insensitive) is evicted before the new one lands.
func (q *Queue) Insert(ctx context.Context, channelID, streamerID, posterID string, auto bool) (*models.ShoutoutEvent, error) {
	if auto {
		settings, err := q.settings.Effective(ctx, channelID)
		if err != nil {
			return nil, err
		}
		if !settings.AutoShoutouts {
			return nil, nil
		}
	}

	unlock := q.locks.Lock(channelID)
	defer unlock()

	state, err := q.loadOrRebuild(ctx, channelID)
	if err != nil {
		return nil, err
	}

	ev := &models.ShoutoutEvent{
		ChannelID:  channelID,
		StreamerID: streamerID,
		PosterID:   posterID,
		Timestamp:  q.now(),
	}
	if err := q.events.Insert(ctx, ev); err != nil {
		return nil, err
	}

	kept, err := q.evictStreamer(ctx, state.Sources, streamerID)
	if err != nil {
		return nil, err
	}

	state.Sources = prepend(kept, ev.Key)
	if err := q.rotations.Save(ctx, state); err != nil {
		return nil, err
	}

	q.dispatcher.Dispatch(notify.Shoutout(ev))
	return ev, nil
}

// Remove evicts one entry from the rotation, matched by event key or, when
// no key is given, by streamer (case-insensitive). Returns the removed index;
// the event row itself is untouched.
func (q *Queue) Remove(ctx context.Context, channelID, streamerID, key string) (int, error) {
	unlock := q.locks.Lock(channelID)
	defer unlock()

	state, err := q.rotations.Get(ctx, channelID)
	if err != nil {
		return 0, err
	}

	idx := -1
	switch {
	case key != "":
		idx = indexOf(state.Sources, key)
	case streamerID != "":
		resolved, err := q.events.GetMany(ctx, state.Sources)
		if err != nil {
			return 0, err
		}
		for i, k := range state.Sources {
			if ev, ok := resolved[k]; ok && strings.EqualFold(ev.StreamerID, streamerID) {
				idx, key = i, k
				break
			}
		}
	}
	if idx < 0 {
		return 0, store.ErrNotFound
	}

	state.Sources = append(state.Sources[:idx], state.Sources[idx+1:]...)
	if err := q.rotations.Save(ctx, state); err != nil {
		return 0, err
	}

	posterID := ""
	if ev, err := q.events.Get(ctx, key); err == nil {
		posterID = ev.PosterID
	}
	q.dispatcher.Dispatch(notify.ItemRemove(channelID, key, posterID, idx))
	return idx, nil
}

// MoveUp swaps an entry with its predecessor. Moving the head entry is a
// no-op and broadcasts nothing.
func (q *Queue) MoveUp(ctx context.Context, channelID, key string) error {
	unlock := q.locks.Lock(channelID)
	defer unlock()

	state, err := q.rotations.Get(ctx, channelID)
	if err != nil {
		return err
	}

	idx := indexOf(state.Sources, key)
	if idx < 0 {
		return store.ErrNotFound
	}
	if idx == 0 {
		return nil
	}

	state.Sources[idx-1], state.Sources[idx] = state.Sources[idx], state.Sources[idx-1]
	if err := q.rotations.Save(ctx, state); err != nil {
		return err
	}

	q.dispatcher.Dispatch(notify.MoveUp(channelID, key))
	return nil
}

// List returns the rotation's events in order, most recent first. A channel
// with no stored rotation gets one rebuilt from its recent events. Keys whose
// backing event has vanished are dropped from the result and logged.
func (q *Queue) List(ctx context.Context, channelID string) ([]models.ShoutoutEvent, error) {
	unlock := q.locks.Lock(channelID)
	defer unlock()

	state, err := q.loadOrRebuild(ctx, channelID)
	if err != nil {
		return nil, err
	}

	resolved, err := q.events.GetMany(ctx, state.Sources)
	if err != nil {
		return nil, err
	}

	events := make([]models.ShoutoutEvent, 0, len(state.Sources))
	for _, key := range state.Sources {
		ev, ok := resolved[key]
		if !ok {
			q.logger.WithFields(logging.Fields{
				"channel_id": channelID,
				"key":        key,
			}).Warn("Rotation references missing event")
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// loadOrRebuild fetches the rotation state, reconstructing it from the most
// recent events when the channel has none. Callers must hold the channel lock.
func (q *Queue) loadOrRebuild(ctx context.Context, channelID string) (*models.RotationState, error) {
	state, err := q.rotations.Get(ctx, channelID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	recent, err := q.events.Recent(ctx, channelID, models.MaxChannelShoutouts)
	if err != nil {
		return nil, err
	}

	state = &models.RotationState{ChannelID: channelID, Sources: []string{}}
	seen := make(map[string]bool, len(recent))
	for _, ev := range recent {
		streamer := strings.ToLower(ev.StreamerID)
		if seen[streamer] {
			continue
		}
		seen[streamer] = true
		state.Sources = append(state.Sources, ev.Key)
	}

	if err := q.rotations.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// evictStreamer drops every key whose event belongs to streamerID,
// case-insensitively.
func (q *Queue) evictStreamer(ctx context.Context, sources []string, streamerID string) ([]string, error) {
	if len(sources) == 0 {
		return sources, nil
	}
	resolved, err := q.events.GetMany(ctx, sources)
	if err != nil {
		return nil, err
	}

	kept := make([]string, 0, len(sources))
	for _, key := range sources {
		if ev, ok := resolved[key]; ok && strings.EqualFold(ev.StreamerID, streamerID) {
			continue
		}
		kept = append(kept, key)
	}
	return kept, nil
}

// prepend puts key at the head and trims the tail to capacity.
func prepend(sources []string, key string) []string {
	out := append([]string{key}, sources...)
	if len(out) > models.MaxChannelShoutouts {
		out = out[:models.MaxChannelShoutouts]
	}
	return out
}

func removeKey(sources []string, key string) ([]string, bool) {
	kept := make([]string, 0, len(sources))
	found := false
	for _, k := range sources {
		if k == key {
			found = true
			continue
		}
		kept = append(kept, k)
	}
	return kept, found
}

func indexOf(sources []string, key string) int {
	for i, k := range sources {
		if k == key {
			return i
		}
	}
	return -1
}
