package rotation

import (
	"context"
	"errors"
	"time"

	"github.com/callowcreation/sfs-api/internal/notify"
	"github.com/callowcreation/sfs-api/internal/store"
	"github.com/callowcreation/sfs-api/pkg/logging"
	"github.com/callowcreation/sfs-api/pkg/models"
)

// pinDuration is how long a pin holds its entry out of rotation.
const pinDuration = 10 * time.Second

// Registry manages the single live pin per channel. Pinning lifts the entry
// out of the rotation; release and expiry put it back at the head.
type Registry struct {
	events     EventStore
	rotations  RotationStore
	pins       PinStore
	dispatcher Dispatcher
	locks      *ChannelLocks
	logger     logging.Logger

	now func() int64
}

func NewRegistry(events EventStore, rotations RotationStore, pins PinStore, dispatcher Dispatcher, locks *ChannelLocks, logger logging.Logger) *Registry {
	return &Registry{
		events:     events,
		rotations:  rotations,
		pins:       pins,
		dispatcher: dispatcher,
		locks:      locks,
		logger:     logger,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Pin holds the given entry out of rotation until it expires. Returns
// store.ErrConflict while another pin is live and store.ErrNotFound when the
// key has no backing event.
func (r *Registry) Pin(ctx context.Context, channelID, pinnerID, key string) (*models.PinnedItem, error) {
	unlock := r.locks.Lock(channelID)
	defer unlock()

	ev, err := r.events.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	rec := &models.PinRecord{
		ChannelID: channelID,
		PinnerID:  pinnerID,
		Key:       key,
		ExpireAt:  r.now() + pinDuration.Milliseconds(),
	}
	if err := r.pins.Create(ctx, rec); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		// A conflicting record that already expired just missed its sweep.
		// Reclaim it here and take the slot.
		existing, getErr := r.pins.Get(ctx, channelID)
		if getErr != nil || existing.ExpireAt > r.now() {
			return nil, err
		}
		if err := r.reclaim(ctx, existing); err != nil {
			return nil, err
		}
		if err := r.pins.Create(ctx, rec); err != nil {
			return nil, err
		}
	}

	// Lift the entry out of the rotation while pinned.
	state, err := r.rotations.Get(ctx, channelID)
	if err == nil {
		if kept, found := removeKey(state.Sources, key); found {
			state.Sources = kept
			if err := r.rotations.Save(ctx, state); err != nil {
				return nil, err
			}
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	r.dispatcher.Dispatch(notify.PinItem(ev, pinnerID, rec.ExpireAt))
	return &models.PinnedItem{ShoutoutEvent: *ev, PinnerID: pinnerID, ExpireAt: rec.ExpireAt}, nil
}

// Get returns the channel's live pin with its event resolved. A pin whose
// event has vanished is treated as absent and cleaned up.
func (r *Registry) Get(ctx context.Context, channelID string) (*models.PinnedItem, error) {
	rec, err := r.pins.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}

	ev, err := r.events.Get(ctx, rec.Key)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.WithFields(logging.Fields{
			"channel_id": channelID,
			"key":        rec.Key,
		}).Warn("Pin references missing event, dropping it")
		_ = r.pins.Delete(ctx, channelID)
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &models.PinnedItem{ShoutoutEvent: *ev, PinnerID: rec.PinnerID, ExpireAt: rec.ExpireAt}, nil
}

// Release drops the live pin early and puts its entry back at the head of
// the rotation.
func (r *Registry) Release(ctx context.Context, channelID string) error {
	unlock := r.locks.Lock(channelID)
	defer unlock()

	rec, err := r.pins.Get(ctx, channelID)
	if err != nil {
		return err
	}
	return r.reclaim(ctx, rec)
}

// SweepExpired reclaims every expired pin across all channels. Safe to run
// concurrently with releases: a pin that vanished mid-sweep is skipped.
func (r *Registry) SweepExpired(ctx context.Context) error {
	channels, err := r.pins.Channels(ctx)
	if err != nil {
		return err
	}

	now := r.now()
	for _, channelID := range channels {
		if err := r.sweepChannel(ctx, channelID, now); err != nil {
			r.logger.WithError(err).WithField("channel_id", channelID).Warn("Pin sweep failed for channel")
		}
	}
	return nil
}

func (r *Registry) sweepChannel(ctx context.Context, channelID string, now int64) error {
	unlock := r.locks.Lock(channelID)
	defer unlock()

	rec, err := r.pins.Get(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		// Released between listing and locking; clear any stale index entry.
		return r.pins.Delete(ctx, channelID)
	}
	if err != nil {
		return err
	}
	if rec.ExpireAt > now {
		return nil
	}
	return r.reclaim(ctx, rec)
}

// reclaim deletes the pin and reinserts its key at the head of the rotation,
// creating the rotation state when the channel has none. Callers must hold
// the channel lock.
func (r *Registry) reclaim(ctx context.Context, rec *models.PinRecord) error {
	if err := r.pins.Delete(ctx, rec.ChannelID); err != nil {
		return err
	}

	state, err := r.rotations.Get(ctx, rec.ChannelID)
	if errors.Is(err, store.ErrNotFound) {
		state = &models.RotationState{ChannelID: rec.ChannelID, Sources: []string{}}
	} else if err != nil {
		return err
	}

	if indexOf(state.Sources, rec.Key) < 0 {
		state.Sources = prepend(state.Sources, rec.Key)
	}
	if err := r.rotations.Save(ctx, state); err != nil {
		return err
	}

	r.dispatcher.Dispatch(notify.PinItemRemove(rec.ChannelID, rec.Key))
	return nil
}
