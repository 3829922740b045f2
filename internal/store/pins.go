package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/callowcreation/sfs-api/pkg/models"
)

const pinIndexKey = "shoutouts:pins"

// PinStore keeps the single live pin per channel in Redis. Exclusivity is
// enforced with SET NX so concurrent pin attempts cannot both win. A side
// index of pinned channels supports the expiry sweeper.
type PinStore struct {
	rdb *goredis.Client
}

func NewPinStore(rdb *goredis.Client) *PinStore {
	return &PinStore{rdb: rdb}
}

func pinKey(channelID string) string {
	return "shoutouts:pin:" + channelID
}

// Create stores a pin record if the channel has none. Returns ErrConflict
// when a live pin already exists.
func (s *PinStore) Create(ctx context.Context, rec *models.PinRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode pin for channel %s: %w", rec.ChannelID, err)
	}

	// Index first: a pin key that exists without an index entry would never
	// be seen by the sweeper. A stale index entry from a lost SetNX is
	// harmless, the sweep clears those.
	if err := s.rdb.SAdd(ctx, pinIndexKey, rec.ChannelID).Err(); err != nil {
		return err
	}

	set, err := s.rdb.SetNX(ctx, pinKey(rec.ChannelID), raw, 0).Result()
	if err != nil {
		return err
	}
	if !set {
		return ErrConflict
	}
	return nil
}

func (s *PinStore) Get(ctx context.Context, channelID string) (*models.PinRecord, error) {
	raw, err := s.rdb.Get(ctx, pinKey(channelID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec models.PinRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode pin for channel %s: %w", channelID, err)
	}
	return &rec, nil
}

// Delete removes a channel's pin and its index entry. Deleting an absent pin
// is not an error.
func (s *PinStore) Delete(ctx context.Context, channelID string) error {
	if err := s.rdb.Del(ctx, pinKey(channelID)).Err(); err != nil {
		return err
	}
	return s.rdb.SRem(ctx, pinIndexKey, channelID).Err()
}

// Channels lists all channels that currently hold a pin.
func (s *PinStore) Channels(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, pinIndexKey).Result()
}
