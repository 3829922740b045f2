package rotation

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/callowcreation/sfs-api/internal/notify"
	"github.com/callowcreation/sfs-api/internal/store"
	"github.com/callowcreation/sfs-api/pkg/logging"
	"github.com/callowcreation/sfs-api/pkg/models"
)

type fakeEvents struct {
	mu     sync.Mutex
	events map[string]models.ShoutoutEvent
	byTime []string // insertion order, oldest first
	nextID int
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{events: map[string]models.ShoutoutEvent{}}
}

func (f *fakeEvents) Insert(ctx context.Context, ev *models.ShoutoutEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev.Key == "" {
		f.nextID++
		ev.Key = fmt.Sprintf("ev-%d", f.nextID)
	}
	f.events[ev.Key] = *ev
	f.byTime = append(f.byTime, ev.Key)
	return nil
}

func (f *fakeEvents) Get(ctx context.Context, key string) (*models.ShoutoutEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &ev, nil
}

func (f *fakeEvents) GetMany(ctx context.Context, keys []string) (map[string]models.ShoutoutEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]models.ShoutoutEvent, len(keys))
	for _, k := range keys {
		if ev, ok := f.events[k]; ok {
			out[k] = ev
		}
	}
	return out, nil
}

func (f *fakeEvents) Recent(ctx context.Context, channelID string, limit int) ([]models.ShoutoutEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ShoutoutEvent
	for i := len(f.byTime) - 1; i >= 0 && len(out) < limit; i-- {
		ev := f.events[f.byTime[i]]
		if ev.ChannelID == channelID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEvents) drop(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.events, key)
}

type fakeRotations struct {
	mu     sync.Mutex
	states map[string]models.RotationState
}

func newFakeRotations() *fakeRotations {
	return &fakeRotations{states: map[string]models.RotationState{}}
}

func (f *fakeRotations) Get(ctx context.Context, channelID string) (*models.RotationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[channelID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := state
	copied.Sources = append([]string(nil), state.Sources...)
	return &copied, nil
}

func (f *fakeRotations) Save(ctx context.Context, state *models.RotationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *state
	copied.Sources = append([]string(nil), state.Sources...)
	f.states[state.ChannelID] = copied
	return nil
}

func (f *fakeRotations) Delete(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, channelID)
	return nil
}

func (f *fakeRotations) sources(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.states[channelID].Sources...)
}

type fakePins struct {
	mu   sync.Mutex
	pins map[string]models.PinRecord
}

func newFakePins() *fakePins {
	return &fakePins{pins: map[string]models.PinRecord{}}
}

func (f *fakePins) Create(ctx context.Context, rec *models.PinRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.pins[rec.ChannelID]; exists {
		return store.ErrConflict
	}
	f.pins[rec.ChannelID] = *rec
	return nil
}

func (f *fakePins) Get(ctx context.Context, channelID string) (*models.PinRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.pins[channelID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (f *fakePins) Delete(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pins, channelID)
	return nil
}

func (f *fakePins) Channels(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id := range f.pins {
		out = append(out, id)
	}
	return out, nil
}

type fakeSettings struct {
	settings models.Settings
}

func (f *fakeSettings) Effective(ctx context.Context, channelID string) (models.Settings, error) {
	return f.settings, nil
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

func (f *fakeDispatcher) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.payloads))
	for i, p := range f.payloads {
		out[i] = p.Action
	}
	return out
}

func (f *fakeDispatcher) last() notify.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[len(f.payloads)-1]
}

func testLogger() logging.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
