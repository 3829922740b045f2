package migration

import (
	"context"
	"errors"

	"golang.org/x/sync/singleflight"

	"github.com/callowcreation/sfs-api/internal/notify"
	"github.com/callowcreation/sfs-api/internal/store"
	"github.com/callowcreation/sfs-api/pkg/logging"
	"github.com/callowcreation/sfs-api/pkg/models"
)

// BatchSize bounds how many legacy leaves one migration pass converts. An
// interrupted or larger-than-batch migration stays resumable through its
// checkpoint.
const BatchSize = 250

// NoLegacyData marks a channel that had nothing to migrate.
const NoLegacyData = -1

// EventStore is the slice of event persistence the migrator needs.
type EventStore interface {
	Insert(ctx context.Context, ev *models.ShoutoutEvent) error
}

// LegacyStore drains the flattened legacy structure.
type LegacyStore interface {
	ListLeaves(ctx context.Context, channelID string, limit int) ([]models.LegacyLeaf, error)
	DeleteLeaf(ctx context.Context, channelID string, leaf models.LegacyLeaf) error
	HasLeaves(ctx context.Context, channelID string) (bool, error)
}

// CheckpointStore persists migration progress.
type CheckpointStore interface {
	Get(ctx context.Context, channelID string) (*models.MigrationCheckpoint, error)
	Save(ctx context.Context, cp *models.MigrationCheckpoint) error
	ListInProgress(ctx context.Context) ([]string, error)
}

// RotationStore is needed only to clear a channel's cached rotation once its
// migration completes.
type RotationStore interface {
	Delete(ctx context.Context, channelID string) error
}

// Dispatcher broadcasts the terminal migration notification.
type Dispatcher interface {
	Dispatch(p notify.Payload)
}

// Migrator converts legacy per-streamer counters into regular shoutout
// events. Each leaf is written before its source is deleted, so a crash can
// only re-convert, never lose. Concurrent triggers for one channel collapse
// into a single run.
type Migrator struct {
	events      EventStore
	legacy      LegacyStore
	checkpoints CheckpointStore
	rotations   RotationStore
	dispatcher  Dispatcher
	logger      logging.Logger
	group       singleflight.Group
}

func NewMigrator(events EventStore, legacy LegacyStore, checkpoints CheckpointStore, rotations RotationStore, dispatcher Dispatcher, logger logging.Logger) *Migrator {
	return &Migrator{
		events:      events,
		legacy:      legacy,
		checkpoints: checkpoints,
		rotations:   rotations,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

// Migrate runs one bounded migration pass for a channel and returns how many
// leaves it converted. A pass that drains the channel finalizes the
// checkpoint, clears the cached rotation and broadcasts completion; a pass
// that hits the batch ceiling leaves in_progress set for the next pass.
// Channels that never had legacy data yield NoLegacyData; calls against an
// already-terminal checkpoint yield its converted total.
func (m *Migrator) Migrate(ctx context.Context, channelID string) (int, error) {
	converted, err, _ := m.group.Do(channelID, func() (interface{}, error) {
		return m.migrate(ctx, channelID)
	})
	if err != nil {
		return 0, err
	}
	return converted.(int), nil
}

// TriggerAsync starts a best-effort migration pass off the caller's request
// path. Reads call this so legacy channels converge without explicit action.
func (m *Migrator) TriggerAsync(channelID string) {
	go func() {
		ctx := context.Background()
		if _, err := m.Migrate(ctx, channelID); err != nil {
			m.logger.WithError(err).WithField("channel_id", channelID).Warn("Background migration pass failed")
		}
	}()
}

// Status reports a channel's migration checkpoint. Channels with no
// checkpoint get a synthesized one: converted_total 0 when legacy data is
// waiting, the no-data sentinel otherwise.
func (m *Migrator) Status(ctx context.Context, channelID string) (*models.MigrationCheckpoint, error) {
	cp, err := m.checkpoints.Get(ctx, channelID)
	if err == nil {
		return cp, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	has, err := m.legacy.HasLeaves(ctx, channelID)
	if err != nil {
		return nil, err
	}
	cp = &models.MigrationCheckpoint{ChannelID: channelID, InProgress: false, ConvertedTotal: 0}
	if !has {
		cp.ConvertedTotal = NoLegacyData
	}
	return cp, nil
}

// Resume re-runs a pass for every channel whose previous run was interrupted.
func (m *Migrator) Resume(ctx context.Context) error {
	channels, err := m.checkpoints.ListInProgress(ctx)
	if err != nil {
		return err
	}
	for _, channelID := range channels {
		if _, err := m.Migrate(ctx, channelID); err != nil {
			m.logger.WithError(err).WithField("channel_id", channelID).Warn("Migration resume failed for channel")
		}
	}
	return nil
}

func (m *Migrator) migrate(ctx context.Context, channelID string) (int, error) {
	cp, err := m.checkpoints.Get(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		has, err := m.legacy.HasLeaves(ctx, channelID)
		if err != nil {
			return 0, err
		}
		if !has {
			cp = &models.MigrationCheckpoint{ChannelID: channelID, InProgress: false, ConvertedTotal: NoLegacyData}
			if err := m.checkpoints.Save(ctx, cp); err != nil {
				return 0, err
			}
			return NoLegacyData, nil
		}
		cp = &models.MigrationCheckpoint{ChannelID: channelID}
	} else if err != nil {
		return 0, err
	}

	leaves, err := m.legacy.ListLeaves(ctx, channelID, BatchSize)
	if err != nil {
		return 0, err
	}
	if len(leaves) == 0 {
		if cp.InProgress {
			m.finalize(ctx, cp)
		}
		return cp.ConvertedTotal, nil
	}

	if !cp.InProgress {
		cp.InProgress = true
		if err := m.checkpoints.Save(ctx, cp); err != nil {
			return 0, err
		}
	}

	converted := 0
	for _, leaf := range leaves {
		ev := &models.ShoutoutEvent{
			ChannelID:  channelID,
			StreamerID: leaf.StreamerID,
			PosterID:   leaf.PosterID,
			Timestamp:  leaf.Timestamp,
			Legacy:     true,
		}
		if err := m.events.Insert(ctx, ev); err != nil {
			return converted, m.checkpointAfterFailure(ctx, cp, converted, err)
		}
		if err := m.legacy.DeleteLeaf(ctx, channelID, leaf); err != nil {
			return converted, m.checkpointAfterFailure(ctx, cp, converted, err)
		}
		converted++
	}

	cp.ConvertedTotal += converted
	if len(leaves) < BatchSize {
		m.finalize(ctx, cp)
	} else if err := m.checkpoints.Save(ctx, cp); err != nil {
		return converted, err
	}
	return converted, nil
}

// checkpointAfterFailure records partial progress so a later pass resumes
// instead of restarting the count.
func (m *Migrator) checkpointAfterFailure(ctx context.Context, cp *models.MigrationCheckpoint, converted int, cause error) error {
	cp.ConvertedTotal += converted
	if err := m.checkpoints.Save(ctx, cp); err != nil {
		m.logger.WithError(err).WithField("channel_id", cp.ChannelID).Error("Failed to checkpoint partial migration")
	}
	return cause
}

func (m *Migrator) finalize(ctx context.Context, cp *models.MigrationCheckpoint) {
	cp.InProgress = false
	if err := m.checkpoints.Save(ctx, cp); err != nil {
		m.logger.WithError(err).WithField("channel_id", cp.ChannelID).Error("Failed to finalize migration checkpoint")
		return
	}
	// Drop the cached rotation so the next read rebuilds it with the
	// migrated events in place.
	if err := m.rotations.Delete(ctx, cp.ChannelID); err != nil {
		m.logger.WithError(err).WithField("channel_id", cp.ChannelID).Warn("Failed to clear rotation after migration")
	}
	m.dispatcher.Dispatch(notify.Migration(cp.ChannelID, cp.ConvertedTotal, true))
}
