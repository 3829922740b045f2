package rotation

import (
	"context"

	"github.com/callowcreation/sfs-api/internal/notify"
	"github.com/callowcreation/sfs-api/pkg/models"
)

// EventStore is the slice of event persistence the engines need.
type EventStore interface {
	Insert(ctx context.Context, ev *models.ShoutoutEvent) error
	Get(ctx context.Context, key string) (*models.ShoutoutEvent, error)
	GetMany(ctx context.Context, keys []string) (map[string]models.ShoutoutEvent, error)
	Recent(ctx context.Context, channelID string, limit int) ([]models.ShoutoutEvent, error)
}

// RotationStore persists per-channel rotation state.
type RotationStore interface {
	Get(ctx context.Context, channelID string) (*models.RotationState, error)
	Save(ctx context.Context, state *models.RotationState) error
	Delete(ctx context.Context, channelID string) error
}

// PinStore persists the single live pin per channel.
type PinStore interface {
	Create(ctx context.Context, rec *models.PinRecord) error
	Get(ctx context.Context, channelID string) (*models.PinRecord, error)
	Delete(ctx context.Context, channelID string) error
	Channels(ctx context.Context) ([]string, error)
}

// SettingsProvider resolves effective settings for a channel, falling back
// to defaults for channels that never saved any.
type SettingsProvider interface {
	Effective(ctx context.Context, channelID string) (models.Settings, error)
}

// Dispatcher broadcasts a payload after a durable write.
type Dispatcher interface {
	Dispatch(p notify.Payload)
}
