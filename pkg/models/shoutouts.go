package models

// MaxChannelShoutouts is the hard capacity of a channel's rotation. It is
// intentionally not configurable; display limits elsewhere are a separate
// concern.
const MaxChannelShoutouts = 4

// ShoutoutEvent is one featured-guest record. Rows are append-only: eviction
// from a rotation never deletes the event itself.
type ShoutoutEvent struct {
	Key        string `json:"key"`
	ChannelID  string `json:"broadcaster_id"`
	StreamerID string `json:"streamer_id"`
	PosterID   string `json:"poster_id"`
	Timestamp  int64  `json:"timestamp"`
	Legacy     bool   `json:"legacy"`
}

// RotationState is the ordered list of event keys currently featured for a
// channel, most recent first. Len(Sources) never exceeds MaxChannelShoutouts
// after a completed operation.
type RotationState struct {
	ChannelID string   `json:"broadcaster_id"`
	Sources   []string `json:"sources"`
}

// PinRecord holds one entry out of rotation until ExpireAt. At most one live
// record exists per channel.
type PinRecord struct {
	ChannelID string `json:"broadcaster_id"`
	PinnerID  string `json:"pinner_id"`
	Key       string `json:"key"`
	ExpireAt  int64  `json:"expire_at"`
}

// PinnedItem is a PinRecord with its event resolved, as returned to clients.
type PinnedItem struct {
	ShoutoutEvent
	PinnerID string `json:"pinner_id"`
	ExpireAt int64  `json:"expire_at"`
}

// MigrationCheckpoint tracks resumable progress of a channel's legacy stats
// conversion. InProgress=false with no remaining legacy data is terminal.
type MigrationCheckpoint struct {
	ChannelID      string `json:"broadcaster_id"`
	InProgress     bool   `json:"in_progress"`
	ConvertedTotal int    `json:"converted_total"`
}

// LegacyLeaf is a single convertible entry from the legacy nested counter
// structure, flattened to a tuple so traversal order is independent of the
// storage shape.
type LegacyLeaf struct {
	StreamerID  string
	PosterID    string
	SequenceKey string
	Timestamp   int64
}
