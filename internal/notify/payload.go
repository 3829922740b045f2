package notify

import (
	"time"

	"github.com/callowcreation/sfs-api/pkg/models"
)

// Action names as the frontend dispatches on them.
const (
	ActionShoutout      = "shoutout"
	ActionItemRemove    = "item-remove"
	ActionMoveUp        = "move-up"
	ActionPinItem       = "pin-item"
	ActionPinItemRemove = "pin-item-remove"
	ActionMigration     = "migration"
)

// Payload is one broadcast message before the envelope is attached. Exactly
// the fields for its action are set; constructors below are the only way to
// build one.
type Payload struct {
	Action    string `json:"action"`
	ChannelID string `json:"-"`

	Event     *models.ShoutoutEvent `json:"event,omitempty"`
	Key       string                `json:"key,omitempty"`
	Index     *int                  `json:"index,omitempty"`
	Capacity  int                   `json:"max_channel_shoutouts,omitempty"`
	PosterID  string                `json:"poster_id,omitempty"`
	PinnerID  string                `json:"pinner_id,omitempty"`
	ExpireAt  int64                 `json:"expire_at,omitempty"`
	Converted int                   `json:"converted,omitempty"`
	Completed bool                  `json:"completed,omitempty"`
}

// Envelope is the wire frame around every payload. The frontend uses cycle
// and version to drop messages from mismatched deployments.
type Envelope struct {
	Cycle     string  `json:"cycle"`
	Version   string  `json:"version"`
	Timestamp int64   `json:"timestamp"`
	Payload   Payload `json:"payload"`
}

func Shoutout(ev *models.ShoutoutEvent) Payload {
	return Payload{
		Action:    ActionShoutout,
		ChannelID: ev.ChannelID,
		Event:     ev,
		Capacity:  models.MaxChannelShoutouts,
	}
}

func ItemRemove(channelID, key, posterID string, index int) Payload {
	return Payload{Action: ActionItemRemove, ChannelID: channelID, Key: key, PosterID: posterID, Index: &index}
}

func MoveUp(channelID, key string) Payload {
	return Payload{Action: ActionMoveUp, ChannelID: channelID, Key: key}
}

func PinItem(ev *models.ShoutoutEvent, pinnerID string, expireAt int64) Payload {
	return Payload{
		Action:    ActionPinItem,
		ChannelID: ev.ChannelID,
		Event:     ev,
		PinnerID:  pinnerID,
		ExpireAt:  expireAt,
	}
}

func PinItemRemove(channelID, key string) Payload {
	return Payload{Action: ActionPinItemRemove, ChannelID: channelID, Key: key}
}

func Migration(channelID string, converted int, completed bool) Payload {
	return Payload{
		Action:    ActionMigration,
		ChannelID: channelID,
		Converted: converted,
		Completed: completed,
	}
}

// Wrap attaches the deployment envelope to a payload.
func Wrap(cycle, version string, p Payload) Envelope {
	return Envelope{
		Cycle:     cycle,
		Version:   version,
		Timestamp: time.Now().UnixMilli(),
		Payload:   p,
	}
}
