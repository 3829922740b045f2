package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/callowcreation/sfs-api/pkg/models"
)

// RotationStore keeps the live per-channel rotation in Redis. The whole state
// is stored as one JSON value so an empty rotation stays distinguishable from
// a channel that has never had one.
type RotationStore struct {
	rdb *goredis.Client
}

func NewRotationStore(rdb *goredis.Client) *RotationStore {
	return &RotationStore{rdb: rdb}
}

func rotationKey(channelID string) string {
	return "shoutouts:rotation:" + channelID
}

func (s *RotationStore) Get(ctx context.Context, channelID string) (*models.RotationState, error) {
	raw, err := s.rdb.Get(ctx, rotationKey(channelID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var state models.RotationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode rotation for channel %s: %w", channelID, err)
	}
	return &state, nil
}

func (s *RotationStore) Save(ctx context.Context, state *models.RotationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode rotation for channel %s: %w", state.ChannelID, err)
	}
	return s.rdb.Set(ctx, rotationKey(state.ChannelID), raw, 0).Err()
}

func (s *RotationStore) Delete(ctx context.Context, channelID string) error {
	return s.rdb.Del(ctx, rotationKey(channelID)).Err()
}
