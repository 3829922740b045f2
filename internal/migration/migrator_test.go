package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callowcreation/sfs-api/internal/notify"
	"github.com/callowcreation/sfs-api/internal/store"
	"github.com/callowcreation/sfs-api/pkg/logging"
	"github.com/callowcreation/sfs-api/pkg/models"
)

type fakeEvents struct {
	mu        sync.Mutex
	events    []models.ShoutoutEvent
	failAfter int // fail the nth insert (1-based); 0 = never
}

func (f *fakeEvents) Insert(ctx context.Context, ev *models.ShoutoutEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.events)+1 == f.failAfter {
		return errors.New("insert failed")
	}
	if ev.Key == "" {
		ev.Key = fmt.Sprintf("ev-%d", len(f.events)+1)
	}
	f.events = append(f.events, *ev)
	return nil
}

type fakeLegacy struct {
	mu     sync.Mutex
	leaves map[string][]models.LegacyLeaf
}

func newFakeLegacy() *fakeLegacy {
	return &fakeLegacy{leaves: map[string][]models.LegacyLeaf{}}
}

func (f *fakeLegacy) seed(channelID string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.leaves[channelID] = append(f.leaves[channelID], models.LegacyLeaf{
			StreamerID:  fmt.Sprintf("streamer-%04d", i),
			PosterID:    "poster",
			SequenceKey: fmt.Sprintf("seq-%04d", i),
			Timestamp:   int64(i),
		})
	}
}

func (f *fakeLegacy) ListLeaves(ctx context.Context, channelID string, limit int) ([]models.LegacyLeaf, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	leaves := f.leaves[channelID]
	if len(leaves) > limit {
		leaves = leaves[:limit]
	}
	return append([]models.LegacyLeaf(nil), leaves...), nil
}

func (f *fakeLegacy) DeleteLeaf(ctx context.Context, channelID string, leaf models.LegacyLeaf) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.leaves[channelID][:0]
	for _, l := range f.leaves[channelID] {
		if l.StreamerID == leaf.StreamerID && l.PosterID == leaf.PosterID && l.SequenceKey == leaf.SequenceKey {
			continue
		}
		kept = append(kept, l)
	}
	f.leaves[channelID] = kept
	return nil
}

func (f *fakeLegacy) HasLeaves(ctx context.Context, channelID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.leaves[channelID]) > 0, nil
}

type fakeCheckpoints struct {
	mu  sync.Mutex
	cps map[string]models.MigrationCheckpoint
}

func newFakeCheckpoints() *fakeCheckpoints {
	return &fakeCheckpoints{cps: map[string]models.MigrationCheckpoint{}}
}

func (f *fakeCheckpoints) Get(ctx context.Context, channelID string) (*models.MigrationCheckpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp, ok := f.cps[channelID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &cp, nil
}

func (f *fakeCheckpoints) Save(ctx context.Context, cp *models.MigrationCheckpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cps[cp.ChannelID] = *cp
	return nil
}

func (f *fakeCheckpoints) ListInProgress(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id, cp := range f.cps {
		if cp.InProgress {
			out = append(out, id)
		}
	}
	return out, nil
}

type fakeRotations struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeRotations) Delete(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID)
	return nil
}

type fakeDispatcher struct {
	mu       sync.Mutex
	payloads []notify.Payload
}

func (f *fakeDispatcher) Dispatch(p notify.Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
}

type fixture struct {
	events      *fakeEvents
	legacy      *fakeLegacy
	checkpoints *fakeCheckpoints
	rotations   *fakeRotations
	dispatcher  *fakeDispatcher
	migrator    *Migrator
}

func newFixture() *fixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	f := &fixture{
		events:      &fakeEvents{},
		legacy:      newFakeLegacy(),
		checkpoints: newFakeCheckpoints(),
		rotations:   &fakeRotations{},
		dispatcher:  &fakeDispatcher{},
	}
	f.migrator = NewMigrator(f.events, f.legacy, f.checkpoints, f.rotations, f.dispatcher, logging.Logger(logger))
	return f
}

func TestMigrate_NoLegacyDataWritesSentinel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	converted, err := f.migrator.Migrate(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, NoLegacyData, converted)

	cp, err := f.checkpoints.Get(ctx, "chan-1")
	require.NoError(t, err)
	assert.False(t, cp.InProgress)
	assert.Equal(t, NoLegacyData, cp.ConvertedTotal)
	assert.Empty(t, f.dispatcher.payloads, "nothing to announce")

	// Repeat calls keep yielding the sentinel.
	converted, err = f.migrator.Migrate(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, NoLegacyData, converted)
}

func TestMigrate_ConvertsAllWithinOneBatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.legacy.seed("chan-1", 5)

	converted, err := f.migrator.Migrate(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, 5, converted)

	// Converted events are marked legacy and the source is drained.
	require.Len(t, f.events.events, 5)
	for _, ev := range f.events.events {
		assert.True(t, ev.Legacy)
		assert.Equal(t, "chan-1", ev.ChannelID)
	}
	has, _ := f.legacy.HasLeaves(ctx, "chan-1")
	assert.False(t, has)

	cp, err := f.checkpoints.Get(ctx, "chan-1")
	require.NoError(t, err)
	assert.False(t, cp.InProgress)
	assert.Equal(t, 5, cp.ConvertedTotal)

	// Terminal pass clears the cached rotation and announces completion.
	assert.Equal(t, []string{"chan-1"}, f.rotations.deleted)
	require.Len(t, f.dispatcher.payloads, 1)
	assert.Equal(t, notify.ActionMigration, f.dispatcher.payloads[0].Action)
	assert.Equal(t, 5, f.dispatcher.payloads[0].Converted)
	assert.True(t, f.dispatcher.payloads[0].Completed)
}

func TestMigrate_BatchCeilingLeavesInProgress(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.legacy.seed("chan-1", BatchSize+30)

	converted, err := f.migrator.Migrate(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, BatchSize, converted)

	cp, err := f.checkpoints.Get(ctx, "chan-1")
	require.NoError(t, err)
	assert.True(t, cp.InProgress)
	assert.Equal(t, BatchSize, cp.ConvertedTotal)
	assert.Empty(t, f.dispatcher.payloads, "not terminal yet")

	// Second pass drains the rest and finalizes.
	converted, err = f.migrator.Migrate(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, 30, converted)

	cp, err = f.checkpoints.Get(ctx, "chan-1")
	require.NoError(t, err)
	assert.False(t, cp.InProgress)
	assert.Equal(t, BatchSize+30, cp.ConvertedTotal)
	require.Len(t, f.dispatcher.payloads, 1)
	assert.Equal(t, BatchSize+30, f.dispatcher.payloads[0].Converted)
}

func TestMigrate_FailureMidBatchIsResumable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.legacy.seed("chan-1", 10)
	f.events.failAfter = 4 // fourth insert blows up

	_, err := f.migrator.Migrate(ctx, "chan-1")
	require.Error(t, err)

	cp, cpErr := f.checkpoints.Get(ctx, "chan-1")
	require.NoError(t, cpErr)
	assert.True(t, cp.InProgress, "interrupted run stays resumable")
	assert.Equal(t, 3, cp.ConvertedTotal)

	// Remaining leaves are still there; retry converts the rest.
	f.events.failAfter = 0
	converted, err := f.migrator.Migrate(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, 7, converted)

	cp, cpErr = f.checkpoints.Get(ctx, "chan-1")
	require.NoError(t, cpErr)
	assert.False(t, cp.InProgress)
	assert.Equal(t, 10, cp.ConvertedTotal)
}

func TestMigrate_SecondCallAfterCompletionIsNoop(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.legacy.seed("chan-1", 2)

	_, err := f.migrator.Migrate(ctx, "chan-1")
	require.NoError(t, err)

	converted, err := f.migrator.Migrate(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, 2, converted, "terminal checkpoint reports its total")
	assert.Len(t, f.dispatcher.payloads, 1, "completion announced once")
	assert.Len(t, f.events.events, 2, "no duplicate conversions")
}

func TestStatus_SynthesizedWithoutCheckpoint(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cp, err := f.migrator.Status(ctx, "untouched")
	require.NoError(t, err)
	assert.Equal(t, NoLegacyData, cp.ConvertedTotal)
	assert.False(t, cp.InProgress)

	f.legacy.seed("waiting", 3)
	cp, err = f.migrator.Status(ctx, "waiting")
	require.NoError(t, err)
	assert.Equal(t, 0, cp.ConvertedTotal)
}

func TestResume_PicksUpInterruptedChannels(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.legacy.seed("chan-1", 4)

	require.NoError(t, f.checkpoints.Save(ctx, &models.MigrationCheckpoint{
		ChannelID:      "chan-1",
		InProgress:     true,
		ConvertedTotal: 6,
	}))

	require.NoError(t, f.migrator.Resume(ctx))

	cp, err := f.checkpoints.Get(ctx, "chan-1")
	require.NoError(t, err)
	assert.False(t, cp.InProgress)
	assert.Equal(t, 10, cp.ConvertedTotal)
}
